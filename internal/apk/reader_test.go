package apk

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildEOCD(cdOffset, cdSize uint32) []byte {
	rec := make([]byte, eocdMinSize)
	binary.LittleEndian.PutUint32(rec[0:4], eocdSignature)
	binary.LittleEndian.PutUint32(rec[12:16], cdSize)
	binary.LittleEndian.PutUint32(rec[16:20], cdOffset)
	return rec
}

func TestFindEOCD_Simple(t *testing.T) {
	cd := bytes.Repeat([]byte{0xcd}, 50)
	eocd := buildEOCD(10, uint32(len(cd)))
	buf := append(append([]byte{}, cd...), eocd...)

	got, err := FindEOCD(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		t.Fatalf("FindEOCD: %v", err)
	}
	if got.CDOffset != 10 || got.CDSize != uint32(len(cd)) {
		t.Fatalf("unexpected EOCD fields: %+v", got)
	}
	if got.Offset != int64(len(cd)) {
		t.Fatalf("expected EOCD offset %d, got %d", len(cd), got.Offset)
	}
}

func TestFindEOCD_NotFound(t *testing.T) {
	buf := bytes.Repeat([]byte{0x00}, 40)
	_, err := FindEOCD(bytes.NewReader(buf), int64(len(buf)))
	if err == nil {
		t.Fatal("expected an error when no EOCD signature is present")
	}
	apkErr, ok := err.(*Error)
	if !ok || apkErr.Status != StatusInvalidApkFormat {
		t.Fatalf("expected StatusInvalidApkFormat, got %v", err)
	}
}

func TestFindEOCD_Zip64Rejected(t *testing.T) {
	eocd := buildEOCD(0, 0)
	locator := make([]byte, 20)
	binary.LittleEndian.PutUint32(locator[0:4], zip64LocatorSig)
	buf := append(locator, eocd...)

	_, err := FindEOCD(bytes.NewReader(buf), int64(len(buf)))
	apkErr, ok := err.(*Error)
	if !ok || apkErr.Status != StatusZip64NotSupported {
		t.Fatalf("expected StatusZip64NotSupported, got %v", err)
	}
}

func TestFindSigningBlock(t *testing.T) {
	v2Value := []byte("signer-data")
	pairEntry := func(id uint32, value []byte) []byte {
		var buf bytes.Buffer
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(4+len(value)))
		buf.Write(lenBuf[:])
		var idBuf [4]byte
		binary.LittleEndian.PutUint32(idBuf[:], id)
		buf.Write(idBuf[:])
		buf.Write(value)
		return buf.Bytes()
	}
	pairs := pairEntry(APKSignatureSchemeV2BlockID, v2Value)

	blockSize := uint64(len(pairs) + 24)
	var block bytes.Buffer
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], blockSize)
	block.Write(sizeBuf[:])
	block.Write(pairs)
	block.Write(sizeBuf[:])
	binary.LittleEndian.PutUint64(sizeBuf[:], apkSigBlockMagicLo)
	block.Write(sizeBuf[:])
	binary.LittleEndian.PutUint64(sizeBuf[:], apkSigBlockMagicHi)
	block.Write(sizeBuf[:])

	cdOffset := uint32(block.Len())
	cd := []byte{}
	eocd := buildEOCD(cdOffset, uint32(len(cd)))

	buf := append(append(append([]byte{}, block.Bytes()...), cd...), eocd...)

	e := &EOCD{CDOffset: cdOffset, CDSize: uint32(len(cd)), Offset: int64(cdOffset)}
	sb, err := FindSigningBlock(bytes.NewReader(buf), e)
	if err != nil {
		t.Fatalf("FindSigningBlock: %v", err)
	}
	got, ok := sb.Values[APKSignatureSchemeV2BlockID]
	if !ok {
		t.Fatal("expected v2 signer data block id to be present")
	}
	if !bytes.Equal(got, v2Value) {
		t.Fatalf("signer data mismatch: got %q want %q", got, v2Value)
	}
	if sb.Offset != 0 {
		t.Fatalf("expected signing block offset 0, got %d", sb.Offset)
	}
}
