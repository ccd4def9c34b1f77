package apk

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func TestSignatureAlgorithmStrength(t *testing.T) {
	cases := []struct {
		algo SignatureAlgorithm
		want int
	}{
		{AlgoRSAPKCS1WithSHA256, 0},
		{AlgoECDSAWithSHA256, 0},
		{AlgoVerityRSAPKCS1SHA256, 1},
		{AlgoVerityECDSAWithSHA256, 1},
		{AlgoRSAPSSWithSHA512, 2},
		{AlgoECDSAWithSHA512, 2},
	}
	for _, c := range cases {
		if got := c.algo.strength(); got != c.want {
			t.Errorf("strength(%x) = %d, want %d", uint32(c.algo), got, c.want)
		}
	}
}

func TestStrongestPicksHighestStrength(t *testing.T) {
	algos := []SignatureAlgorithm{AlgoRSAPKCS1WithSHA256, AlgoVerityRSAPKCS1SHA256, AlgoRSAPSSWithSHA512}
	if got := strongest(algos); got != AlgoRSAPSSWithSHA512 {
		t.Fatalf("strongest = %x, want AlgoRSAPSSWithSHA512", uint32(got))
	}
}

func TestSignatureAlgorithmValid(t *testing.T) {
	if !AlgoECDSAWithSHA256.valid() {
		t.Error("expected AlgoECDSAWithSHA256 to be valid")
	}
	if SignatureAlgorithm(0xdead).valid() {
		t.Error("expected unknown algorithm id to be invalid")
	}
}

func TestVerifySignatureRSAPKCS1RoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	content := []byte("apk content digest")
	digest := digestFor(DigestSHA256, content)

	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest)
	if err != nil {
		t.Fatalf("SignPKCS1v15: %v", err)
	}

	if err := verifySignature(AlgoRSAPKCS1WithSHA256, &key.PublicKey, digest, sig); err != nil {
		t.Fatalf("verifySignature: %v", err)
	}

	tampered := append([]byte{}, digest...)
	tampered[0] ^= 0xff
	if err := verifySignature(AlgoRSAPKCS1WithSHA256, &key.PublicKey, tampered, sig); err == nil {
		t.Fatal("expected verification to fail against a tampered digest")
	}
}
