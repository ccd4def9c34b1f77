// Package model holds the data shapes shared across the validator: the
// request read from the chain, the per-request validation outcome, the
// rolled-up block of outcomes proposed to the chain, and the local view of
// block/assignment state.
package model

import "github.com/certen/independant-validator/internal/apk"

// FileHashAlgo identifies which algorithm, if any, produced a request's
// recorded file hash.
type FileHashAlgo int

const (
	FileHashAlgoNone FileHashAlgo = iota
	FileHashAlgoBlake3
	FileHashAlgoSHA256
)

// Code returns the wire string for a FileHashAlgo.
func (f FileHashAlgo) Code() string {
	switch f {
	case FileHashAlgoBlake3:
		return "blake3"
	case FileHashAlgoSHA256:
		return "sha256"
	default:
		return "none"
	}
}

// Request is a single pending validation request read from the chain: an
// app build's artifact reference and the metadata needed to validate it.
type Request struct {
	RequestID     uint64 // [OBSERVED]
	RequestType   uint8  // [OBSERVED]
	Target        string // [OBSERVED] app contract address
	BuildVersion  uint64 // [OBSERVED]
	ArtifactRefID string // [OBSERVED] object-storage reference id
	ProtocolID    uint8  // [OBSERVED]
	OwnerVersion  uint64 // [OBSERVED] owner state version the ownership proof must be checked against
	TrackID       uint8  // [OBSERVED] release track (e.g. production, beta)
}

// ValidationResult is the per-request outcome this validator attaches to a
// proposed block.
type ValidationResult struct {
	RequestID         uint64       `json:"request_id"`          // [OBSERVED]
	RequestType       uint8        `json:"request_type"`        // [OBSERVED]
	Status            apk.Status   `json:"status"`               // [DERIVED]
	AssetAddress      string       `json:"asset_address"`       // [OBSERVED]
	ArtifactRefID     string       `json:"artifact_ref_id"`     // [OBSERVED]
	ArtifactProtocol  uint8        `json:"artifact_protocol"`   // [OBSERVED] object-storage protocol the artifact record declares
	ObjectVersion     uint64       `json:"object_version"`      // [OBSERVED] build version validated
	OwnerVersion      uint64       `json:"owner_version"`       // [OBSERVED] owner state version the ownership proof was checked against
	TrackID           uint8        `json:"track_id"`            // [OBSERVED]
	FileHash          string       `json:"file_hash"`           // [DERIVED]
	FileHashAlgorithm FileHashAlgo `json:"file_hash_algorithm"`  // [DERIVED]
	Proofs            *apk.Offsets `json:"proofs,omitempty"`    // [DERIVED] EOCD/central-dir/signing-block offsets recovered while parsing
}

// Unavailable builds the placeholder result used when a request could not
// even be fetched for validation (distinct from a request that was fetched
// and found invalid).
func Unavailable(requestID uint64) ValidationResult {
	return ValidationResult{
		RequestID:         requestID,
		Status:            apk.StatusUnavailable,
		AssetAddress:      "0x",
		ArtifactRefID:     "0x",
		FileHash:          "0x",
		FileHashAlgorithm: FileHashAlgoNone,
	}
}

// ValidationBlock is the ordered set of results this validator proposes (or
// votes on) for a contiguous range of request ids.
type ValidationBlock struct {
	BlockID  uint64              `json:"block_id"`
	Requests []ValidationResult  `json:"requests"`
}

// FromRequestID returns the first request id covered by the block, or false
// if the block has no requests.
func (b *ValidationBlock) FromRequestID() (uint64, bool) {
	if len(b.Requests) == 0 {
		return 0, false
	}
	return b.Requests[0].RequestID, true
}

// ToRequestID returns one past the last request id covered by the block, or
// false if the block has no requests.
func (b *ValidationBlock) ToRequestID() (uint64, bool) {
	if len(b.Requests) == 0 {
		return 0, false
	}
	return b.Requests[len(b.Requests)-1].RequestID + 1, true
}

// BlockState is the lifecycle stage of a block this validator knows about,
// locally or on chain. Ordering matters: later states are "at least" every
// earlier one (AtLeastX helpers below rely on this).
type BlockState int

const (
	BlockStateNone BlockState = iota
	BlockStateAssigned
	BlockStateProposed
	BlockStateDiscussing
	BlockStateVoted
	BlockStateFinalized
)

func (s BlockState) AtLeastProposed() bool  { return s >= BlockStateProposed }
func (s BlockState) AtLeastAssigned() bool  { return s >= BlockStateAssigned }
func (s BlockState) AtLeastVoted() bool     { return s >= BlockStateVoted }
func (s BlockState) IsDiscussing() bool     { return s == BlockStateDiscussing }
func (s BlockState) IsProposed() bool       { return s == BlockStateProposed }
func (s BlockState) IsAssigned() bool       { return s == BlockStateAssigned }
func (s BlockState) IsFinalized() bool      { return s == BlockStateFinalized }

// Proposal mode distinguishes a plain discussion (a counter-proposal offered
// for comparison, not yet a binding vote) from a binding proposal.
func BlockStateForProposal(isDiscussion bool) BlockState {
	if isDiscussion {
		return BlockStateDiscussing
	}
	return BlockStateProposed
}

// ProtocolID values for where block data was stored.
const (
	ProtocolBSC uint8 = iota
)

// StoreBlockRef is the on-chain pointer to an uploaded block's data plus the
// packed per-request status summary and per-request unavailability mask
// the chain keeps alongside it.
type StoreBlockRef struct {
	ID              uint64
	RefID           string // object-storage / tx-hash reference
	ProtocolID      uint8
	BlockHash       []byte
	FromRequestID   uint64
	ToRequestID     uint64
	Result          [32]byte // 256-bit packed 2-bit-per-request status, up to 128 requests
	PropertyMask    uint64
}

// ValidatorAssignStatus is the outcome of checking whether this validator
// can currently be assigned to a new block.
type ValidatorAssignStatus int

const (
	AssignStatusAssignable ValidatorAssignStatus = iota
	AssignStatusAlreadyAssigned
	AssignStatusNotEnoughVotes
	AssignStatusNotRegistered
	AssignStatusValidatorVersionOutdated
)

// LastState is the chain's view of global progress: which request/block ids
// are next, and what the given validator's standing is.
type LastState struct {
	BlockNumber             uint64
	NextRequestID           uint64
	NextProposalRequestID   uint64
	NextProposalBlockID     uint64
	NextFinalBlockID        uint64
	AssignedValidator       string
	AssignedBlockID         uint64
}

func (s *LastState) CanAssignValidator() bool {
	return s.AssignedValidator == ""
}

func (s *LastState) ShouldCreateProposal(myBlockID uint64) bool {
	return s.AssignedBlockID == myBlockID && s.NextProposalBlockID == myBlockID
}

func (s *LastState) IsMyBlock(blockID uint64, me string) bool {
	return s.AssignedValidator == me && s.AssignedBlockID == blockID
}

func (s *LastState) IsMyNextFinalizationBlock(blockID uint64, me string) bool {
	return s.IsMyBlock(blockID, me) && blockID == s.NextFinalBlockID
}

func (s *LastState) CanUnassign(myBlockID uint64) bool {
	return s.AssignedBlockID == myBlockID
}
