package apk

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"hash"
	"io"
	"math"
)

const chunkSize = 1024 * 1024

// maxChunkCount is the v2 scheme's hard limit on total_chunk_count,
// ⌊i32::MAX / 1024⌋, guarding against a pathologically large declared APK
// size forcing an unbounded chunk count.
const maxChunkCount = math.MaxInt32 / 1024

// DigestAlgo identifies one of the digest algorithms the v2 scheme can use
// for the content digest (distinct from, but paired with, a signature
// algorithm id, a SignatureAlgorithm in crypto.go).
type DigestAlgo int

const (
	DigestSHA256 DigestAlgo = iota
	DigestSHA512
)

func (d DigestAlgo) newHash() hash.Hash {
	if d == DigestSHA512 {
		return sha512.New()
	}
	return sha256.New()
}

// contentRegion is one of the three logical byte ranges the v2 content
// digest is computed over: the file contents up to the signing block, the
// central directory, and the EOCD record with its central-directory-offset
// field patched to point at the signing block (since the signing block
// physically displaces the central directory from the offset an unmodified
// APK would record).
type contentRegion struct {
	data io.Reader
	size int64
}

// ComputeContentDigest rolls up the APK's content digest exactly as the v2
// scheme defines it: each consecutive 1MB chunk (the final chunk may be
// shorter) across the three content regions is hashed as
// H(0xA5 || len_le_u32(chunk) || chunk), and the top-level digest is
// H(0x5A || count_le_u32(chunks) || concat(chunk digests)).
func ComputeContentDigest(r io.ReaderAt, signingBlockOffset int64, eocd *EOCD, algo DigestAlgo) ([]byte, error) {
	patchedEOCD, err := patchedEOCDBytes(r, eocd, signingBlockOffset)
	if err != nil {
		return nil, err
	}

	regions := []contentRegion{
		{data: io.NewSectionReader(r, 0, signingBlockOffset), size: signingBlockOffset},
		{data: io.NewSectionReader(r, int64(eocd.CDOffset), int64(eocd.CDSize)), size: int64(eocd.CDSize)},
		{data: newBytesReader(patchedEOCD), size: int64(len(patchedEOCD))},
	}

	var chunkDigests [][]byte
	h := algo.newHash()
	var carry []byte
	for _, region := range regions {
		remaining := region.size
		for remaining > 0 || len(carry) > 0 {
			need := chunkSize - len(carry)
			if int64(need) > remaining {
				need = int(remaining)
			}
			buf := make([]byte, need)
			n, err := io.ReadFull(region.data, buf)
			if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
				return nil, Wrap(StatusInvalidApkFormat, err)
			}
			carry = append(carry, buf[:n]...)
			remaining -= int64(n)
			if len(carry) == chunkSize || (remaining == 0 && len(carry) > 0) {
				chunkDigests = append(chunkDigests, hashChunk(h, carry))
				carry = nil
			}
			if n == 0 {
				break
			}
		}
	}

	if len(chunkDigests) > maxChunkCount {
		return nil, Fail(StatusTooManyChunks)
	}

	top := algo.newHash()
	top.Write([]byte{0x5a})
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(chunkDigests)))
	top.Write(countBuf[:])
	for _, d := range chunkDigests {
		top.Write(d)
	}
	return top.Sum(nil), nil
}

func hashChunk(h hash.Hash, chunk []byte) []byte {
	h.Reset()
	h.Write([]byte{0xa5})
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(chunk)))
	h.Write(lenBuf[:])
	h.Write(chunk)
	return h.Sum(nil)
}

// patchedEOCDBytes returns the raw EOCD record bytes, including any trailing
// ZIP comment, with the central directory offset field rewritten to point at
// the start of the signing block, matching what an APK signer computed the
// digest over.
func patchedEOCDBytes(r io.ReaderAt, eocd *EOCD, signingBlockOffset int64) ([]byte, error) {
	head := make([]byte, eocdMinSize)
	if _, err := r.ReadAt(head, eocd.Offset); err != nil {
		return nil, Wrap(StatusInvalidApkFormat, err)
	}
	commentLen := binary.LittleEndian.Uint16(head[20:22])

	buf := make([]byte, eocdMinSize+int(commentLen))
	if _, err := r.ReadAt(buf, eocd.Offset); err != nil && err != io.EOF {
		return nil, Wrap(StatusInvalidApkFormat, err)
	}
	patched := make([]byte, len(buf))
	copy(patched, buf)
	binary.LittleEndian.PutUint32(patched[16:20], uint32(signingBlockOffset))
	return patched, nil
}

type bytesReader struct {
	data []byte
	pos  int
}

func newBytesReader(b []byte) *bytesReader { return &bytesReader{data: b} }

func (b *bytesReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}
