package ownership

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func TestMessageFormat(t *testing.T) {
	got := Message(1, "0xABCDEF", "aabb")
	want := "eip155:1::0xABCDEF::aa:bb"
	if got != want {
		t.Fatalf("Message() = %q, want %q", got, want)
	}
}

func TestFingerprintMatchesSHA256(t *testing.T) {
	der := []byte("fake certificate bytes")
	sum := sha256.Sum256(der)
	want := fingerprintHex(sum[:])
	if got := Fingerprint(der); got != want {
		t.Fatalf("Fingerprint() = %q, want %q", got, want)
	}
}

func fingerprintHex(b []byte) string {
	const hex = "0123456789ABCDEF"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hex[c>>4]
		out[i*2+1] = hex[c&0xf]
	}
	return string(out)
}

func TestBuildProofMap(t *testing.T) {
	certA := []byte("cert-a")
	certB := []byte("cert-b")
	proofA := []byte("proof-a")
	proofB := []byte("proof-b")

	m, err := BuildProofMap([][]byte{certA, certB}, [][]byte{proofA, proofB})
	if err != nil {
		t.Fatalf("BuildProofMap: %v", err)
	}
	if string(m[Fingerprint(certA)]) != string(proofA) {
		t.Error("expected certA's fingerprint to map to proofA")
	}
	if string(m[Fingerprint(certB)]) != string(proofB) {
		t.Error("expected certB's fingerprint to map to proofB")
	}
}

func TestBuildProofMapLengthMismatch(t *testing.T) {
	_, err := BuildProofMap([][]byte{{1}}, [][]byte{{1}, {2}})
	if err == nil {
		t.Fatal("expected an error for mismatched certs/proofs lengths")
	}
}

func TestVerifyProofRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test owner"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		SignatureAlgorithm:    x509.SHA256WithRSA,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}

	fp := Fingerprint(der)
	msg := Message(31337, "0xOwnerAddress", fp)
	sig, err := signPKCS1(key, []byte(msg))
	if err != nil {
		t.Fatalf("signPKCS1: %v", err)
	}

	proof := Proof{FingerprintHex: fp, Signature: sig}
	if err := VerifyProof(cert, 31337, "0xOwnerAddress", proof); err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}

	proof.Signature[0] ^= 0xff
	if err := VerifyProof(cert, 31337, "0xOwnerAddress", proof); err == nil {
		t.Fatal("expected VerifyProof to fail against a tampered signature")
	}
}

func signPKCS1(key *rsa.PrivateKey, msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}
