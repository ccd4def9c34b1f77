package apk

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	eocdSignature       = 0x06054b50
	zip64LocatorSig      = 0x07064b50
	eocdMinSize          = 22
	eocdMaxCommentLen    = 0xffff
	apkSigBlockMagicLo   = 0x20676953204b5041
	apkSigBlockMagicHi   = 0x3234206b636f6c42
	apkSigBlockMinSize   = 32 // size field x2 + 16-byte magic
)

// EOCD is the parsed End Of Central Directory record fields this validator
// needs: where the central directory starts and how big it is.
type EOCD struct {
	CDOffset uint32
	CDSize   uint32
	Offset   int64 // absolute file offset of the EOCD record itself
}

// FindEOCD scans backward from the end of r for the EOCD signature. Per the
// ZIP format an arbitrary comment up to 65535 bytes may follow the record,
// so the scan window is the last (22 + 65535) bytes of the file.
func FindEOCD(r io.ReaderAt, size int64) (*EOCD, error) {
	window := int64(eocdMinSize + eocdMaxCommentLen)
	if window > size {
		window = size
	}
	buf := make([]byte, window)
	if _, err := r.ReadAt(buf, size-window); err != nil && err != io.EOF {
		return nil, Wrap(StatusInvalidApkFormat, err)
	}

	sigPos := -1
	for i := len(buf) - eocdMinSize; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:i+4]) == eocdSignature {
			sigPos = i
			break
		}
	}
	if sigPos < 0 {
		return nil, Fail(StatusInvalidApkFormat)
	}

	record := buf[sigPos:]
	if len(record) < eocdMinSize {
		return nil, Fail(StatusInvalidApkFormat)
	}
	cdSize := binary.LittleEndian.Uint32(record[12:16])
	cdOffset := binary.LittleEndian.Uint32(record[16:20])
	eocdAbsOffset := size - window + int64(sigPos)

	if err := checkZip64(r, eocdAbsOffset); err != nil {
		return nil, err
	}

	return &EOCD{CDOffset: cdOffset, CDSize: cdSize, Offset: eocdAbsOffset}, nil
}

// checkZip64 looks for a ZIP64 End Of Central Directory Locator immediately
// preceding the EOCD record. This validator does not support ZIP64 APKs.
func checkZip64(r io.ReaderAt, eocdOffset int64) error {
	locatorOffset := eocdOffset - 20
	if locatorOffset < 0 {
		return nil
	}
	buf := make([]byte, 4)
	if _, err := r.ReadAt(buf, locatorOffset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return Wrap(StatusInvalidApkFormat, err)
	}
	if binary.LittleEndian.Uint32(buf) == zip64LocatorSig {
		return Fail(StatusZip64NotSupported)
	}
	return nil
}

// SigningBlock is the parsed APK Signing Block: its absolute file offset
// and the raw id/value pairs it carries.
type SigningBlock struct {
	Offset int64
	Values map[uint32][]byte
}

// FindSigningBlock locates the APK Signing Block that must sit directly
// before the central directory, per the v2 scheme's footer-magic convention.
func FindSigningBlock(r io.ReaderAt, eocd *EOCD) (*SigningBlock, error) {
	cdOffset := int64(eocd.CDOffset)
	if cdOffset < apkSigBlockMinSize {
		return nil, Fail(StatusInvalidSignBlockFormat)
	}

	footer := make([]byte, 24)
	if _, err := r.ReadAt(footer, cdOffset-24); err != nil {
		return nil, Wrap(StatusInvalidSignBlockFormat, err)
	}
	sizeAtEnd := binary.LittleEndian.Uint64(footer[0:8])
	lo := binary.LittleEndian.Uint64(footer[8:16])
	hi := binary.LittleEndian.Uint64(footer[16:24])
	if lo != apkSigBlockMagicLo || hi != apkSigBlockMagicHi {
		return nil, Fail(StatusInvalidSignBlockFormat)
	}

	blockStart := cdOffset - 8 - int64(sizeAtEnd)
	if blockStart < 0 {
		return nil, Fail(StatusInvalidSignBlockFormat)
	}

	sizeHeader := make([]byte, 8)
	if _, err := r.ReadAt(sizeHeader, blockStart); err != nil {
		return nil, Wrap(StatusInvalidSignBlockFormat, err)
	}
	sizeAtStart := binary.LittleEndian.Uint64(sizeHeader)
	if sizeAtStart != sizeAtEnd {
		return nil, Fail(StatusInvalidSignBlockFormat)
	}

	pairsLen := int64(sizeAtEnd) - 24 // exclude the trailing size+magic
	if pairsLen < 0 {
		return nil, Fail(StatusInvalidSignBlockFormat)
	}
	pairs := make([]byte, pairsLen)
	if _, err := r.ReadAt(pairs, blockStart+8); err != nil {
		return nil, Wrap(StatusInvalidSignBlockFormat, err)
	}

	values := make(map[uint32][]byte)
	pos := int64(0)
	for pos < pairsLen {
		if pos+12 > pairsLen {
			return nil, Fail(StatusInvalidSignBlockFormat)
		}
		entryLen := binary.LittleEndian.Uint64(pairs[pos : pos+8])
		if entryLen < 4 || pos+8+int64(entryLen) > pairsLen {
			return nil, Fail(StatusInvalidSignBlockFormat)
		}
		id := binary.LittleEndian.Uint32(pairs[pos+8 : pos+12])
		value := pairs[pos+12 : pos+8+int64(entryLen)]
		values[id] = value
		pos += 8 + int64(entryLen)
	}

	return &SigningBlock{Offset: blockStart, Values: values}, nil
}

// APKSignatureSchemeV2BlockID is the block id the v2 signing scheme stores
// its signer data under within the APK Signing Block.
const APKSignatureSchemeV2BlockID = 0x7109871a
