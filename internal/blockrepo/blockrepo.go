package blockrepo

import (
	"bytes"
	"crypto/sha256"

	"github.com/certen/independant-validator/internal/apk"
	"github.com/certen/independant-validator/internal/model"
)

// CreateBlock wraps an ordered set of results into a ValidationBlock for the
// given block id.
func CreateBlock(blockID uint64, results []model.ValidationResult) *model.ValidationBlock {
	return &model.ValidationBlock{BlockID: blockID, Requests: results}
}

// Sha256Block is the hash that a StoreBlockRef's BlockHash must match: the
// SHA-256 of the block's deterministic encoding.
func Sha256Block(b *model.ValidationBlock) []byte {
	enc := EncodeBlock(b)
	sum := sha256.Sum256(enc)
	return sum[:]
}

// ContractBlockRef builds the StoreBlockRef a proposal or vote publishes on
// chain: the object-storage reference, the packed per-request status
// bitset, and the block's content hash.
func ContractBlockRef(id uint64, refID string, protocolID uint8, b *model.ValidationBlock) *model.StoreBlockRef {
	from, _ := b.FromRequestID()
	to, _ := b.ToRequestID()

	var result [32]byte
	for i, r := range b.Requests {
		Write2BitStatus(&result, i, r.Status)
	}

	return &model.StoreBlockRef{
		ID:            id,
		RefID:         refID,
		ProtocolID:    protocolID,
		BlockHash:     Sha256Block(b),
		FromRequestID: from,
		ToRequestID:   to,
		Result:        result,
	}
}

// IsValidBlockData confirms a fetched ValidationBlock actually matches what
// a StoreBlockRef claims: same id and request range, same content hash, and
// every request's truncated status agreeing with the packed bitset (a
// bitset value of 3 is only valid if the request's real status is not
// better than an error; any other mismatch fails the check).
func IsValidBlockData(info *model.StoreBlockRef, block *model.ValidationBlock) bool {
	if info.ID != block.BlockID {
		return false
	}
	from, ok := block.FromRequestID()
	if !ok || from != info.FromRequestID {
		return false
	}
	to, ok := block.ToRequestID()
	if !ok || to != info.ToRequestID {
		return false
	}
	if !bytes.Equal(Sha256Block(block), info.BlockHash) {
		return false
	}
	for i, req := range block.Requests {
		if req.RequestID != from+uint64(i) {
			return false
		}
		packed := Read2BitStatus(info.Result, i)
		real := truncate2Bit(req.Status)
		if packed == 3 {
			if real < 3 {
				return false
			}
		} else if packed != real {
			return false
		}
	}
	return true
}

// AlignBlocks reconciles our own validation block against a competing one
// fetched from a proposer, producing the block we'll vote on (or counter
// propose) plus the unavailability mask recording which requests we had to
// defer to the other validator's view for.
//
// For each request: if theirs is Unavailable and ours isn't, we adopt
// theirs (we apparently have stronger local data they lack, but we must
// still agree on content to compare, so we defer). If ours is Unavailable
// and theirs isn't, we adopt theirs and flag the bit (we lacked data they
// had). If both are Unavailable, we just flag the bit.
func AlignBlocks(own, with *model.ValidationBlock) (*model.ValidationBlock, [16]byte) {
	var mask [16]byte
	aligned := &model.ValidationBlock{BlockID: own.BlockID, Requests: make([]model.ValidationResult, len(own.Requests))}
	copy(aligned.Requests, own.Requests)

	for i := range aligned.Requests {
		if i >= len(with.Requests) {
			break
		}
		ownReq := own.Requests[i]
		otherReq := with.Requests[i]
		switch {
		case otherReq.Status == apk.StatusUnavailable && ownReq.Status != apk.StatusUnavailable:
			aligned.Requests[i] = otherReq
		case ownReq.Status == apk.StatusUnavailable && otherReq.Status != apk.StatusUnavailable:
			aligned.Requests[i] = otherReq
			setMaskBit(&mask, i)
		case ownReq.Status == apk.StatusUnavailable:
			setMaskBit(&mask, i)
		}
	}
	return aligned, mask
}

func setMaskBit(mask *[16]byte, i int) {
	byteIdx := i / 8
	if byteIdx >= len(mask) {
		return
	}
	mask[byteIdx] |= 1 << uint(i%8)
}
