package apk

import (
	"crypto/dsa"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	casn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// parseDSASignature decodes the DER SEQUENCE { r INTEGER, s INTEGER }
// wrapping a DSA signature, the same low-level cryptobyte reader style
// Go's own ECDSA/DSA machinery uses internally instead of reflection-based
// encoding/asn1.
func parseDSASignature(der []byte) (r, s *big.Int, err error) {
	input := cryptobyte.String(der)
	var inner cryptobyte.String
	r, s = new(big.Int), new(big.Int)
	if !input.ReadASN1(&inner, casn1.SEQUENCE) ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) {
		return nil, nil, Fail(StatusIncorrectEncryptionData)
	}
	return r, s, nil
}

func verifyDSA(pub *dsa.PublicKey, digest, sig []byte) error {
	r, s, err := parseDSASignature(sig)
	if err != nil {
		return err
	}
	if !dsa.Verify(pub, digest, r, s) {
		return Fail(StatusInvalidSignature)
	}
	return nil
}
