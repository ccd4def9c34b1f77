package apk

import "encoding/binary"

// readLP reads a single uint32-length-prefixed byte slice starting at pos in
// buf, returning the slice and the position immediately after it.
func readLP(buf []byte, pos int) (value []byte, next int, err error) {
	if pos+4 > len(buf) {
		return nil, 0, Fail(StatusInvalidSignBlockFormat)
	}
	n := binary.LittleEndian.Uint32(buf[pos : pos+4])
	start := pos + 4
	end := start + int(n)
	if end < start || end > len(buf) {
		return nil, 0, Fail(StatusInvalidSignBlockFormat)
	}
	return buf[start:end], end, nil
}

// splitLPSequence splits a buffer that is itself a concatenation of
// uint32-length-prefixed elements (with no further header) into its
// individual element slices.
func splitLPSequence(buf []byte) ([][]byte, error) {
	var out [][]byte
	pos := 0
	for pos < len(buf) {
		elem, next, err := readLP(buf, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, elem)
		pos = next
	}
	return out, nil
}
