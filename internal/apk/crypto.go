package apk

import (
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
)

// SignatureAlgorithm is one of the ten algorithm ids the v2 signing scheme
// recognizes, pairing a digest algorithm with a signing scheme.
type SignatureAlgorithm uint32

const (
	AlgoRSAPSSWithSHA256       SignatureAlgorithm = 0x0101
	AlgoRSAPSSWithSHA512       SignatureAlgorithm = 0x0102
	AlgoRSAPKCS1WithSHA256     SignatureAlgorithm = 0x0103
	AlgoRSAPKCS1WithSHA512     SignatureAlgorithm = 0x0104
	AlgoECDSAWithSHA256        SignatureAlgorithm = 0x0201
	AlgoECDSAWithSHA512        SignatureAlgorithm = 0x0202
	AlgoDSAWithSHA256          SignatureAlgorithm = 0x0301
	AlgoVerityRSAPKCS1SHA256   SignatureAlgorithm = 0x0421
	AlgoVerityECDSAWithSHA256  SignatureAlgorithm = 0x0423
	AlgoVerityDSAWithSHA256    SignatureAlgorithm = 0x0425
)

// digestAlgo maps a signature algorithm id to the content digest it
// verifies against.
func (a SignatureAlgorithm) digestAlgo() (DigestAlgo, bool) {
	switch a {
	case AlgoRSAPSSWithSHA512, AlgoECDSAWithSHA512, AlgoRSAPKCS1WithSHA512:
		return DigestSHA512, true
	case AlgoRSAPSSWithSHA256, AlgoRSAPKCS1WithSHA256, AlgoECDSAWithSHA256, AlgoDSAWithSHA256,
		AlgoVerityRSAPKCS1SHA256, AlgoVerityECDSAWithSHA256, AlgoVerityDSAWithSHA256:
		return DigestSHA256, true
	default:
		return 0, false
	}
}

// isVerity reports whether a is one of the verity-flavored algorithm ids,
// which rank between plain SHA-256 and SHA-512 in strength ordering.
func (a SignatureAlgorithm) isVerity() bool {
	switch a {
	case AlgoVerityRSAPKCS1SHA256, AlgoVerityECDSAWithSHA256, AlgoVerityDSAWithSHA256:
		return true
	default:
		return false
	}
}

// strength ranks algorithms the way the v2 scheme does when picking the
// strongest signature to actually verify: SHA-512 variants rank highest,
// then verity-SHA-256 variants, then plain SHA-256 variants.
func (a SignatureAlgorithm) strength() int {
	switch {
	case a.isSHA512():
		return 2
	case a.isVerity():
		return 1
	default:
		return 0
	}
}

func (a SignatureAlgorithm) isSHA512() bool {
	switch a {
	case AlgoRSAPSSWithSHA512, AlgoRSAPKCS1WithSHA512, AlgoECDSAWithSHA512:
		return true
	default:
		return false
	}
}

func (a SignatureAlgorithm) valid() bool {
	switch a {
	case AlgoRSAPSSWithSHA256, AlgoRSAPSSWithSHA512, AlgoRSAPKCS1WithSHA256, AlgoRSAPKCS1WithSHA512,
		AlgoECDSAWithSHA256, AlgoECDSAWithSHA512, AlgoDSAWithSHA256,
		AlgoVerityRSAPKCS1SHA256, AlgoVerityECDSAWithSHA256, AlgoVerityDSAWithSHA256:
		return true
	default:
		return false
	}
}

// strongest picks the algorithm with the highest strength rank among algos,
// matching the scheme's rule of verifying only the strongest signature a
// signer provides.
func strongest(algos []SignatureAlgorithm) SignatureAlgorithm {
	best := algos[0]
	for _, a := range algos[1:] {
		if a.strength() > best.strength() {
			best = a
		}
	}
	return best
}

// verifySignature checks sig against digest using pubKey, dispatching on
// the concrete key type the way the scheme's RSA/ECDSA/DSA families require.
func verifySignature(algo SignatureAlgorithm, pubKey crypto.PublicKey, digest []byte, sig []byte) error {
	hashFunc := crypto.SHA256
	if algo.isSHA512() {
		hashFunc = crypto.SHA512
	}

	switch key := pubKey.(type) {
	case *rsa.PublicKey:
		if algo == AlgoRSAPSSWithSHA256 || algo == AlgoRSAPSSWithSHA512 {
			opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: hashFunc}
			return rsa.VerifyPSS(key, hashFunc, digest, sig, opts)
		}
		return rsa.VerifyPKCS1v15(key, hashFunc, digest, sig)
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest, sig) {
			return Fail(StatusInvalidSignature)
		}
		return nil
	case *dsa.PublicKey:
		return verifyDSA(key, digest, sig)
	default:
		return Fail(StatusIncorrectEncryptionData)
	}
}

func digestFor(algo DigestAlgo, data []byte) []byte {
	if algo == DigestSHA512 {
		sum := sha512.Sum512(data)
		return sum[:]
	}
	sum := sha256.Sum256(data)
	return sum[:]
}
