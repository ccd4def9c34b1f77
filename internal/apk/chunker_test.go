package apk

import (
	"bytes"
	"testing"
)

// TestComputeContentDigestDeterministic checks that hashing the same three
// regions twice produces the same digest, and that changing a single byte
// anywhere in range changes it.
func TestComputeContentDigestDeterministic(t *testing.T) {
	content := bytes.Repeat([]byte{0x42}, 3000)
	cd := bytes.Repeat([]byte{0x07}, 100)
	eocd := buildEOCD(uint32(len(content)), uint32(len(cd)))
	buf := append(append(append([]byte{}, content...), cd...), eocd...)

	e := &EOCD{CDOffset: uint32(len(content)), CDSize: uint32(len(cd)), Offset: int64(len(content) + len(cd))}

	d1, err := ComputeContentDigest(bytes.NewReader(buf), int64(len(content)), e, DigestSHA256)
	if err != nil {
		t.Fatalf("ComputeContentDigest: %v", err)
	}
	d2, err := ComputeContentDigest(bytes.NewReader(buf), int64(len(content)), e, DigestSHA256)
	if err != nil {
		t.Fatalf("ComputeContentDigest (2nd run): %v", err)
	}
	if !bytes.Equal(d1, d2) {
		t.Fatal("expected identical digests for identical input")
	}

	mutated := append([]byte{}, buf...)
	mutated[0] ^= 0xff
	d3, err := ComputeContentDigest(bytes.NewReader(mutated), int64(len(content)), e, DigestSHA256)
	if err != nil {
		t.Fatalf("ComputeContentDigest (mutated): %v", err)
	}
	if bytes.Equal(d1, d3) {
		t.Fatal("expected digest to change when content changes")
	}
}

func TestComputeContentDigestMultiChunk(t *testing.T) {
	content := bytes.Repeat([]byte{0x01}, chunkSize+500)
	cd := []byte{}
	eocd := buildEOCD(uint32(len(content)), 0)
	buf := append(append(append([]byte{}, content...), cd...), eocd...)
	e := &EOCD{CDOffset: uint32(len(content)), CDSize: 0, Offset: int64(len(content))}

	digest, err := ComputeContentDigest(bytes.NewReader(buf), int64(len(content)), e, DigestSHA256)
	if err != nil {
		t.Fatalf("ComputeContentDigest: %v", err)
	}
	if len(digest) != 32 {
		t.Fatalf("expected a 32-byte SHA-256 digest, got %d bytes", len(digest))
	}
}
