package apk

import (
	"bytes"
	"crypto/x509"
	"encoding/binary"
	"io"
)

// maxSigners is the v2 scheme's hard cap on signers per APK.
const maxSigners = 10

// additionalAttrStrippingProtectionID is the reserved additional-attribute
// id APK signers use to detect v2-block stripping: its presence with a
// payload declaring the v3 scheme id inside an otherwise v2-only block means
// the block has been tampered with.
const additionalAttrStrippingProtectionID uint32 = 0xBEEFF00D

// v3SchemeID is the scheme id a stripping-protection attribute's payload
// declares when the APK was originally also signed with v3.
const v3SchemeID uint32 = 3

// Offsets records the three structural offsets recovered while locating and
// parsing the APK's signing block, carried through to ValidationResult so
// observers can audit parsing without re-downloading the artifact.
type Offsets struct {
	EOCD         int64 `json:"eocd_offset"`
	CentralDir   int64 `json:"central_dir_offset"`
	SigningBlock int64 `json:"signing_block_offset"`
}

// SignerInfo is what the rest of the validator needs out of a verified APK:
// every signer's certificate chain (leaf first, concatenated in signer
// order) and the offsets recovered while parsing it.
type SignerInfo struct {
	Certificates [][]byte // raw DER, leaf first per signer
	Offsets      Offsets
}

type digestEntry struct {
	Algo   SignatureAlgorithm
	Digest []byte
}

type signatureEntry struct {
	Algo      SignatureAlgorithm
	Signature []byte
}

type parsedSigner struct {
	signedData   []byte
	digests      []digestEntry
	certificates [][]byte
	signatures   []signatureEntry
	publicKey    []byte
}

// VerifyV2 runs the full APK Signing Scheme v2 check against r: locating the
// signing block, parsing every signer (up to the scheme's 10-signer limit),
// verifying the strongest signature each provides, reconciling declared
// content digests across signers, and confirming every declared digest
// matches the file's actual 1MB-chunked digest.
func VerifyV2(r io.ReaderAt, size int64) (*SignerInfo, error) {
	eocd, err := FindEOCD(r, size)
	if err != nil {
		return nil, err
	}
	block, err := FindSigningBlock(r, eocd)
	if err != nil {
		return nil, err
	}
	v2, ok := block.Values[APKSignatureSchemeV2BlockID]
	if !ok {
		return nil, Fail(StatusSignaturesNotFound)
	}

	signerBlobs, err := splitLPSequence(v2)
	if err != nil {
		return nil, err
	}
	if len(signerBlobs) == 0 {
		return nil, Fail(StatusNoSignersFound)
	}
	if len(signerBlobs) > maxSigners {
		return nil, Fail(StatusTooManySigners)
	}

	declaredDigests := make(map[SignatureAlgorithm][]byte)
	var allCerts [][]byte
	for _, blob := range signerBlobs {
		certs, err := verifySigner(blob, declaredDigests)
		if err != nil {
			return nil, err
		}
		allCerts = append(allCerts, certs...)
	}

	computed := make(map[DigestAlgo][]byte)
	for sigAlgo, declared := range declaredDigests {
		digestAlgo, ok := sigAlgo.digestAlgo()
		if !ok {
			return nil, Fail(StatusUnknownSignatureAlgorithm)
		}
		actual, ok := computed[digestAlgo]
		if !ok {
			actual, err = ComputeContentDigest(r, block.Offset, eocd, digestAlgo)
			if err != nil {
				return nil, err
			}
			computed[digestAlgo] = actual
		}
		if !bytes.Equal(actual, declared) {
			return nil, Fail(StatusDigestMismatch)
		}
	}

	return &SignerInfo{
		Certificates: allCerts,
		Offsets: Offsets{
			EOCD:         eocd.Offset,
			CentralDir:   int64(eocd.CDOffset),
			SigningBlock: block.Offset,
		},
	}, nil
}

// verifySigner validates a single signer's blob: signature selection over
// signed_data, the leaf certificate's public key against the signer's
// declared public key, and the selected signature's signature bytes. Every
// digest the signer declares is folded into declaredDigests, which is shared
// across all signers in the block so a later signer declaring a different
// digest for an algorithm an earlier signer already declared is caught here.
func verifySigner(buf []byte, declaredDigests map[SignatureAlgorithm][]byte) ([][]byte, error) {
	signer, err := parseSigner(buf)
	if err != nil {
		return nil, err
	}

	if len(signer.digests) == 0 {
		return nil, Fail(StatusNoDigestFound)
	}
	if len(signer.signatures) == 0 {
		return nil, Fail(StatusSignaturesNotFound)
	}
	if len(signer.certificates) == 0 {
		return nil, Fail(StatusNoCertificatesFound)
	}

	for _, s := range signer.signatures {
		if !s.Algo.valid() {
			return nil, Fail(StatusUnknownSignatureAlgorithm)
		}
	}
	for _, d := range signer.digests {
		if !d.Algo.valid() {
			return nil, Fail(StatusUnknownSignatureAlgorithm)
		}
	}

	sigAlgoSet := make(map[SignatureAlgorithm]struct{}, len(signer.signatures))
	sigAlgos := make([]SignatureAlgorithm, 0, len(signer.signatures))
	for _, s := range signer.signatures {
		sigAlgoSet[s.Algo] = struct{}{}
		sigAlgos = append(sigAlgos, s.Algo)
	}
	digestAlgoSet := make(map[SignatureAlgorithm]struct{}, len(signer.digests))
	for _, d := range signer.digests {
		digestAlgoSet[d.Algo] = struct{}{}
	}
	if !sameAlgorithmSet(sigAlgoSet, digestAlgoSet) {
		return nil, Fail(StatusDigestAndSignatureAlgorithmsMismatch)
	}

	strongestSigAlgo := strongest(sigAlgos)
	var chosenSig []byte
	for _, s := range signer.signatures {
		if s.Algo == strongestSigAlgo {
			chosenSig = s.Signature
			break
		}
	}

	pubKey, err := x509.ParsePKIXPublicKey(signer.publicKey)
	if err != nil {
		return nil, Wrap(StatusIncorrectEncryptionData, err)
	}

	leafCert, err := x509.ParseCertificate(signer.certificates[0])
	if err != nil {
		return nil, Wrap(StatusIncorrectCertFormat, err)
	}
	certPubKeyDER, err := x509.MarshalPKIXPublicKey(leafCert.PublicKey)
	if err != nil {
		return nil, Wrap(StatusIncorrectCertFormat, err)
	}
	if !bytes.Equal(certPubKeyDER, signer.publicKey) {
		return nil, Fail(StatusPubKeyFromCertMismatch)
	}

	digestForSig, ok := strongestSigAlgo.digestAlgo()
	if !ok {
		return nil, Fail(StatusUnknownSignatureAlgorithm)
	}
	signedDataDigest := digestFor(digestForSig, signer.signedData)
	if err := verifySignature(strongestSigAlgo, pubKey, signedDataDigest, chosenSig); err != nil {
		return nil, Fail(StatusInvalidSignature)
	}

	for _, d := range signer.digests {
		if prev, ok := declaredDigests[d.Algo]; ok {
			if !bytes.Equal(prev, d.Digest) {
				return nil, Fail(StatusPreviousDigestForSameAlgorithmMismatch)
			}
			continue
		}
		declaredDigests[d.Algo] = d.Digest
	}
	if _, ok := declaredDigests[strongestSigAlgo]; !ok {
		return nil, Fail(StatusNoKnownDigestToCheck)
	}

	return signer.certificates, nil
}

func sameAlgorithmSet(a, b map[SignatureAlgorithm]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func parseSigner(buf []byte) (*parsedSigner, error) {
	signedData, pos, err := readLP(buf, 0)
	if err != nil {
		return nil, Fail(StatusInvalidSignBlockFormat)
	}
	signaturesBlob, pos, err := readLP(buf, pos)
	if err != nil {
		return nil, Fail(StatusInvalidSignBlockFormat)
	}
	publicKeyBlob, _, err := readLP(buf, pos)
	if err != nil {
		return nil, Fail(StatusInvalidSignBlockFormat)
	}

	digests, certs, err := parseSignedData(signedData)
	if err != nil {
		return nil, err
	}

	sigBlobs, err := splitLPSequence(signaturesBlob)
	if err != nil {
		return nil, Fail(StatusInvalidSignBlockFormat)
	}
	var sigs []signatureEntry
	for _, s := range sigBlobs {
		if len(s) < 4 {
			return nil, Fail(StatusInvalidSignBlockFormat)
		}
		algo := SignatureAlgorithm(binary.LittleEndian.Uint32(s[0:4]))
		sigBytes, _, err := readLP(s, 4)
		if err != nil {
			return nil, Fail(StatusInvalidSignBlockFormat)
		}
		sigs = append(sigs, signatureEntry{Algo: algo, Signature: sigBytes})
	}

	return &parsedSigner{
		signedData:   signedData,
		digests:      digests,
		certificates: certs,
		signatures:   sigs,
		publicKey:    publicKeyBlob,
	}, nil
}

func parseSignedData(buf []byte) ([]digestEntry, [][]byte, error) {
	digestsBlob, pos, err := readLP(buf, 0)
	if err != nil {
		return nil, nil, Fail(StatusInvalidSignBlockFormat)
	}
	certsBlob, pos, err := readLP(buf, pos)
	if err != nil {
		return nil, nil, Fail(StatusInvalidSignBlockFormat)
	}
	if pos < len(buf) {
		attrsBlob, _, err := readLP(buf, pos)
		if err != nil {
			return nil, nil, Fail(StatusInvalidSignBlockFormat)
		}
		if err := checkAdditionalAttributes(attrsBlob); err != nil {
			return nil, nil, err
		}
	}

	digestBlobs, err := splitLPSequence(digestsBlob)
	if err != nil {
		return nil, nil, Fail(StatusInvalidSignBlockFormat)
	}
	var digests []digestEntry
	for _, d := range digestBlobs {
		if len(d) < 4 {
			return nil, nil, Fail(StatusInvalidSignBlockFormat)
		}
		algo := SignatureAlgorithm(binary.LittleEndian.Uint32(d[0:4]))
		digestBytes, _, err := readLP(d, 4)
		if err != nil {
			return nil, nil, Fail(StatusInvalidSignBlockFormat)
		}
		digests = append(digests, digestEntry{Algo: algo, Digest: digestBytes})
	}

	certBlobs, err := splitLPSequence(certsBlob)
	if err != nil {
		return nil, nil, Fail(StatusInvalidSignBlockFormat)
	}

	return digests, certBlobs, nil
}

// checkAdditionalAttributes walks the signed_data section's
// additional_attributes records, each a [u32 id][payload] pair the same
// shape splitLPSequence already knows how to peel off an LP-prefixed blob.
// A stripping-protection id whose payload declares the v3 scheme means this
// supposedly v2-only block has been tampered with.
func checkAdditionalAttributes(blob []byte) error {
	records, err := splitLPSequence(blob)
	if err != nil {
		return Fail(StatusInvalidSignBlockFormat)
	}
	for _, rec := range records {
		if len(rec) < 4 {
			return Fail(StatusInvalidSignBlockFormat)
		}
		id := binary.LittleEndian.Uint32(rec[0:4])
		if id != additionalAttrStrippingProtectionID {
			continue
		}
		payload := rec[4:]
		if len(payload) >= 4 && binary.LittleEndian.Uint32(payload[0:4]) == v3SchemeID {
			return Fail(StatusInvalidSignBlockFormat)
		}
	}
	return nil
}
