package blockrepo

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/certen/independant-validator/internal/apk"
	"github.com/certen/independant-validator/internal/model"
)

// EncodeBlock produces the deterministic length-delimited encoding of a
// ValidationBlock: a fixed field order, fixed-width integers, and
// length-prefixed strings/bytes, so two validators that agree on the same
// requests always produce byte-identical output.
func EncodeBlock(b *model.ValidationBlock) []byte {
	var buf bytes.Buffer
	writeU64(&buf, b.BlockID)
	writeU32(&buf, uint32(len(b.Requests)))
	for _, r := range b.Requests {
		encodeResult(&buf, r)
	}
	return buf.Bytes()
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(data []byte) (*model.ValidationBlock, error) {
	r := bytes.NewReader(data)
	blockID, err := readU64(r)
	if err != nil {
		return nil, err
	}
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}
	block := &model.ValidationBlock{BlockID: blockID, Requests: make([]model.ValidationResult, 0, count)}
	for i := uint32(0); i < count; i++ {
		res, err := decodeResult(r)
		if err != nil {
			return nil, err
		}
		block.Requests = append(block.Requests, res)
	}
	return block, nil
}

func encodeResult(buf *bytes.Buffer, r model.ValidationResult) {
	writeU64(buf, r.RequestID)
	buf.WriteByte(r.RequestType)
	writeU32(buf, uint32(r.Status))
	writeString(buf, r.AssetAddress)
	writeString(buf, r.ArtifactRefID)
	buf.WriteByte(r.ArtifactProtocol)
	writeU64(buf, r.ObjectVersion)
	writeU64(buf, r.OwnerVersion)
	buf.WriteByte(r.TrackID)
	writeString(buf, r.FileHash)
	buf.WriteByte(byte(r.FileHashAlgorithm))
	writeProofs(buf, r.Proofs)
}

func decodeResult(r *bytes.Reader) (model.ValidationResult, error) {
	var out model.ValidationResult
	var err error
	if out.RequestID, err = readU64(r); err != nil {
		return out, err
	}
	reqType, err := r.ReadByte()
	if err != nil {
		return out, err
	}
	out.RequestType = reqType
	status, err := readU32(r)
	if err != nil {
		return out, err
	}
	out.Status = apk.Status(status)
	if out.AssetAddress, err = readString(r); err != nil {
		return out, err
	}
	if out.ArtifactRefID, err = readString(r); err != nil {
		return out, err
	}
	protocol, err := r.ReadByte()
	if err != nil {
		return out, err
	}
	out.ArtifactProtocol = protocol
	if out.ObjectVersion, err = readU64(r); err != nil {
		return out, err
	}
	if out.OwnerVersion, err = readU64(r); err != nil {
		return out, err
	}
	trackID, err := r.ReadByte()
	if err != nil {
		return out, err
	}
	out.TrackID = trackID
	if out.FileHash, err = readString(r); err != nil {
		return out, err
	}
	algo, err := r.ReadByte()
	if err != nil {
		return out, err
	}
	out.FileHashAlgorithm = model.FileHashAlgo(algo)
	if out.Proofs, err = readProofs(r); err != nil {
		return out, err
	}
	return out, nil
}

// writeProofs encodes an optional Offsets as a presence byte followed by
// three fixed-width offsets when present, so the absent case (an
// unsuccessful or not-yet-parsed result) costs a single byte.
func writeProofs(buf *bytes.Buffer, p *apk.Offsets) {
	if p == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeU64(buf, uint64(p.EOCD))
	writeU64(buf, uint64(p.CentralDir))
	writeU64(buf, uint64(p.SigningBlock))
}

func readProofs(r *bytes.Reader) (*apk.Offsets, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	eocd, err := readU64(r)
	if err != nil {
		return nil, err
	}
	cd, err := readU64(r)
	if err != nil {
		return nil, err
	}
	sb, err := readU64(r)
	if err != nil {
		return nil, err
	}
	return &apk.Offsets{EOCD: int64(eocd), CentralDir: int64(cd), SigningBlock: int64(sb)}, nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, fmt.Errorf("blockrepo: short read: wanted %d got %d", len(buf), n)
	}
	return n, nil
}
