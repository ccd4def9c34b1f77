// Package ownership verifies the certificate-based ownership proofs an app
// owner publishes on-chain: a signature, made by a private key matching one
// of the signing certificates, over a message binding the owner's address to
// that certificate's fingerprint on a specific chain.
package ownership

import (
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"strings"
)

// Proof is one on-chain (certificate, signature-bytes) pair, keyed by the
// uppercase hex SHA-256 fingerprint of the certificate it was made for.
type Proof struct {
	FingerprintHex string
	Signature      []byte
}

// BuildProofMap zips the on-chain parallel certificate/proof lists into a
// fingerprint-keyed map, computing each certificate's fingerprint locally
// rather than trusting an index correlation from the chain.
func BuildProofMap(certs [][]byte, proofs [][]byte) (map[string][]byte, error) {
	if len(certs) != len(proofs) {
		return nil, fmt.Errorf("ownership: certs/proofs length mismatch: %d vs %d", len(certs), len(proofs))
	}
	out := make(map[string][]byte, len(certs))
	for i, cert := range certs {
		out[Fingerprint(cert)] = proofs[i]
	}
	return out, nil
}

// Fingerprint returns the uppercase hex SHA-256 digest of a certificate's
// raw DER bytes, matching the casing an owner actually signs off-chain.
func Fingerprint(certDER []byte) string {
	sum := sha256.Sum256(certDER)
	return fmt.Sprintf("%X", sum[:])
}

// Message builds the exact bytes an owner must have signed to prove
// ownership of a certificate with the given fingerprint on chainID, as a
// CAIP-2-prefixed, colon-delimited triple:
// "eip155:{chainID}::{ownerAddressChecksum}::{fingerprint byte groups, colon separated}".
func Message(chainID int64, ownerAddressChecksum string, fingerprintHex string) string {
	caip2 := fmt.Sprintf("eip155:%d", chainID)
	return caip2 + "::" + ownerAddressChecksum + "::" + colonSeparate(fingerprintHex)
}

func colonSeparate(hexDigest string) string {
	var parts []string
	for i := 0; i < len(hexDigest); i += 2 {
		end := i + 2
		if end > len(hexDigest) {
			end = len(hexDigest)
		}
		parts = append(parts, hexDigest[i:end])
	}
	return strings.Join(parts, ":")
}

// VerifyProof confirms that proof.Signature is a valid RSA-SHA256 signature,
// by the public key embedded in cert, over Message(chainID,
// ownerAddressChecksum, proof.FingerprintHex). The proof is always checked
// as RSA-SHA256 regardless of the certificate's own signing algorithm: the
// proof is a message the owner signed directly, not a certificate signature.
func VerifyProof(cert *x509.Certificate, chainID int64, ownerAddressChecksum string, proof Proof) error {
	msg := Message(chainID, ownerAddressChecksum, proof.FingerprintHex)
	return cert.CheckSignature(x509.SHA256WithRSA, []byte(msg), proof.Signature)
}
