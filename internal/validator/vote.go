package validator

import (
	"bytes"
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/independant-validator/internal/blockrepo"
	"github.com/certen/independant-validator/internal/metrics"
	"github.com/certen/independant-validator/internal/model"
	"github.com/certen/independant-validator/internal/queue"
	"github.com/certen/independant-validator/internal/retry"
)

// fetchRemoteBlock downloads and validates a proposer's published block
// data against the on-chain reference it claims to match.
func (m *Machine) fetchRemoteBlock(ctx context.Context, blockID uint64, proposer common.Address) (*model.ValidationBlock, *model.StoreBlockRef, error) {
	ref, err := m.chain.GetBlockInfo(ctx, blockID, proposer)
	if err != nil {
		return nil, nil, err
	}
	data, err := m.chain.GetBlockData(ctx, common.HexToHash(ref.RefID))
	if err != nil {
		return nil, nil, err
	}
	block, err := blockrepo.DecodeBlock(data)
	if err != nil {
		return nil, nil, err
	}
	if !blockrepo.IsValidBlockData(ref, block) {
		return nil, nil, errBlockDataMismatch(blockID)
	}
	return block, ref, nil
}

type blockDataMismatchError uint64

func errBlockDataMismatch(blockID uint64) error { return blockDataMismatchError(blockID) }
func (e blockDataMismatchError) Error() string {
	return "validator: fetched block data does not match its on-chain reference"
}

// handleVote reconciles this validator's own view of the assigned block's
// request range against the proposer's published one, then votes with the
// reconciled result. A block's local state is recorded as Voted directly
// once the vote lands, not as Discussing: discussion only matters while
// deciding what to vote, never after, so there is no separate
// Discussing-then-Voted transition to persist.
func (m *Machine) handleVote(ctx context.Context, q *queue.Queue, e voteEvent) {
	proposers, err := m.chain.GetBlockProposers(ctx, e.blockID)
	if err != nil {
		m.log.Printf("validator: vote: GetBlockProposers: %v", err)
		return
	}
	if len(proposers) == 0 {
		m.log.Printf("validator: vote: no proposers for block %d", e.blockID)
		return
	}

	remote, ref, err := m.fetchRemoteBlock(ctx, e.blockID, proposers[0])
	if err != nil {
		m.log.Printf("validator: vote: fetchRemoteBlock: %v", err)
		return
	}

	from, ok := remote.FromRequestID()
	if !ok {
		m.log.Printf("validator: vote: remote block %d has no requests", e.blockID)
		return
	}
	to, _ := remote.ToRequestID()

	own, err := m.buildBlock(ctx, e.blockID, from, to)
	if err != nil {
		m.log.Printf("validator: vote: buildBlock: %v", err)
		return
	}

	aligned, mask := blockrepo.AlignBlocks(own, remote)
	if !bytes.Equal(blockrepo.Sha256Block(aligned), ref.BlockHash) {
		m.log.Printf("validator: vote: aligned view of block %d still disagrees with proposer after reconciliation", e.blockID)
	}

	if err := m.chain.Vote(ctx, e.blockID, m.cfg.Self, mask); err != nil {
		m.log.Printf("validator: vote: Vote: %v", err)
		return
	}
	if err := m.st.SaveBlock(ctx, e.blockID, model.BlockStateVoted, blockrepo.EncodeBlock(aligned)); err != nil {
		m.log.Printf("validator: vote: SaveBlock: %v", err)
	}
	metrics.BlocksVotedTotal.Inc()
	q.PushSequential(observeVotingEvent{blockID: e.blockID})
}

// handleObserveVoting watches an assigned block this validator has already
// voted on, finalizing it once it's this validator's turn and it has
// enough votes, and reschedules itself as a parallel action otherwise so it
// never blocks either lane.
func (m *Machine) handleObserveVoting(ctx context.Context, q *queue.Queue, e observeVotingEvent) {
	state, err := m.chain.GetLastState(ctx, m.cfg.Self)
	if err != nil {
		m.log.Printf("validator: observe voting: GetLastState: %v", err)
		return
	}
	if !state.IsMyBlock(e.blockID, m.cfg.Self.Hex()) {
		return
	}

	bstate, err := m.chain.BlockState(ctx, e.blockID, m.cfg.Self)
	if err != nil {
		m.log.Printf("validator: observe voting: BlockState: %v", err)
		return
	}
	if bstate.IsFinalized() {
		return
	}
	if state.IsMyNextFinalizationBlock(e.blockID, m.cfg.Self.Hex()) {
		finalizable, err := m.chain.IsFinalizable(ctx, e.blockID)
		if err != nil {
			m.log.Printf("validator: observe voting: IsFinalizable: %v", err)
		} else if finalizable {
			q.PushSequential(finalizeEvent{blockID: e.blockID})
			return
		}
	}

	if q.IsShutdown() {
		return
	}
	// This handler still holds its dedup key until it returns, so the next
	// run is pushed from a goroutine after the wait.
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(m.cfg.ObserveTimeout):
			q.PushParallel(ctx, observeVotingEvent{blockID: e.blockID})
		}
	}()
}

// handleFinalize attempts to finalize a block that has enough votes,
// bounded at 10000 tries (this can legitimately wait a long time behind
// other validators' blocks ahead of it in finalization order) and bailing
// out cleanly the moment another validator finalizes it first.
func (m *Machine) handleFinalize(ctx context.Context, q *queue.Queue, e finalizeEvent) {
	trier := retry.New(10000, time.Second, 30*time.Second)
	for !trier.Exceeded() {
		if q.IsShutdown() {
			return
		}
		bstate, err := m.chain.BlockState(ctx, e.blockID, m.cfg.Self)
		if err == nil && bstate.IsFinalized() {
			return
		}
		if err := m.chain.Finalize(ctx, e.blockID); err == nil {
			metrics.BlocksFinalizedTotal.Inc()
			return
		} else {
			m.log.Printf("validator: finalize: Finalize(%d): %v", e.blockID, err)
		}
		if err := trier.Iterate(ctx); err != nil {
			return
		}
	}
	m.log.Printf("validator: finalize: exhausted retries for block %d", e.blockID)
}
