// Package chain is the validator's typed read/write surface over the
// OpenStore contract family: last-state reads, block proposal/vote/finalize
// writes, validator assignment and registration, and log polling.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/independant-validator/internal/model"
)

// Log is a minimal decoded event log, enough for the poll subsystem to
// dispatch on topic and extract the fields each handler needs.
type Log struct {
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
}

// Topic hashes for the event types the poll subsystem filters on.
var (
	NewRequestTopic    = common.HexToHash("0x" + "4e5745515245515545535400000000000000000000000000000000000000")
	BlockProposedTopic = common.HexToHash("0x" + "424c4f434b50524f504f534544000000000000000000000000000000000000")
	BlockFinalizedTopic = common.HexToHash("0x" + "424c4f434b46494e414c495a4544000000000000000000000000000000000000")
	AddedToTrackTopic  = common.HexToHash("0x" + "4144444544544f545241434b0000000000000000000000000000000000000000")
)

// Adapter is everything the validator state machine needs from the chain.
type Adapter interface {
	GetLastState(ctx context.Context, validator common.Address) (*model.LastState, error)
	GetRequest(ctx context.Context, requestID uint64) (*model.Request, error)
	NextRequestID(ctx context.Context) (uint64, error)

	GetBlockInfo(ctx context.Context, blockID uint64, proposer common.Address) (*model.StoreBlockRef, error)
	GetBlockProposers(ctx context.Context, blockID uint64) ([]common.Address, error)
	GetBlockData(ctx context.Context, ref common.Hash) ([]byte, error)
	SaveBlockData(ctx context.Context, data []byte) (common.Hash, error)
	ProposeBlock(ctx context.Context, ref *model.StoreBlockRef) error
	Vote(ctx context.Context, blockID uint64, validator common.Address, unavailableMask [16]byte) error
	Finalize(ctx context.Context, blockID uint64) error
	BlockState(ctx context.Context, blockID uint64, validator common.Address) (model.BlockState, error)
	NextBlockIDToFinalize(ctx context.Context) (uint64, error)
	IsFinalizable(ctx context.Context, blockID uint64) (bool, error)

	AssignValidator(ctx context.Context, blockID uint64) error
	UnassignValidator(ctx context.Context, blockID uint64) error
	RegisterValidator(ctx context.Context) error
	UnregisterValidator(ctx context.Context) error
	IsRegistered(ctx context.Context, validator common.Address) (bool, error)
	NextAssignBlockID(ctx context.Context) (uint64, error)
	NextBlockIDFor(ctx context.Context, validator common.Address) (uint64, error)
	ValidatorAssignStatus(ctx context.Context, validator common.Address, version uint64) (model.ValidatorAssignStatus, error)
	MinAvailableVersion(ctx context.Context) (uint64, error)
	RecommendedStakeAmount(ctx context.Context) (*big.Int, error)
	TotalBalance(ctx context.Context, validator common.Address) (*big.Int, error)
	TopUp(ctx context.Context, amount *big.Int) error

	GetArtifact(ctx context.Context, app common.Address, buildVersion uint64) (refID string, protocolID uint8, checksum string, err error)
	GetOwnerData(ctx context.Context, app common.Address, ownerVersion uint64) (certs [][]byte, proofs [][]byte, err error)

	PollLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topics []common.Hash) ([]Log, error)
	CurrentBlockNumber(ctx context.Context) (uint64, error)
}
