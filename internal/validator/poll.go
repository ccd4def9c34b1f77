package validator

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/independant-validator/internal/chain"
	"github.com/certen/independant-validator/internal/metrics"
	"github.com/certen/independant-validator/internal/queue"
)

// handlePoll is the validator's event pump: it reads every store-contract
// log since the last poll, dispatches each to the handler its topic calls
// for, and reschedules itself as a parallel action so polling never
// competes with the serial lanes for a slot.
func (m *Machine) handlePoll(ctx context.Context, q *queue.Queue, e pollEvent) {
	current, err := m.chain.CurrentBlockNumber(ctx)
	if err != nil {
		m.log.Printf("validator: poll: CurrentBlockNumber: %v", err)
		m.reschedulePoll(ctx, q, e.blockNumber)
		return
	}
	if current < e.blockNumber {
		m.reschedulePoll(ctx, q, e.blockNumber)
		return
	}
	metrics.PollLagBlocks.Set(float64(current - e.blockNumber))

	logs, err := m.chain.PollLogs(ctx, e.blockNumber, current, m.cfg.StoreAddress, []common.Hash{
		chain.NewRequestTopic,
		chain.BlockProposedTopic,
		chain.BlockFinalizedTopic,
		chain.AddedToTrackTopic,
	})
	if err != nil {
		m.log.Printf("validator: poll: PollLogs: %v", err)
		m.reschedulePoll(ctx, q, e.blockNumber)
		return
	}

	for _, lg := range logs {
		m.handleLog(ctx, q, lg)
	}

	m.lastPolled = current + 1
	m.reschedulePoll(ctx, q, m.lastPolled)
}

func (m *Machine) reschedulePoll(ctx context.Context, q *queue.Queue, from uint64) {
	if q.IsShutdown() {
		return
	}
	// The running poll still holds its dedup key until its handler returns,
	// so the next one is pushed from a goroutine after the wait.
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(m.cfg.PollTimeout):
			q.PushParallel(ctx, pollEvent{blockNumber: from})
		}
	}()
}

// handleLog dispatches a single decoded log to the lifecycle event its
// topic corresponds to. A new request widens the range ValidateSync needs
// to catch up on; a proposed block means our assignment (if any) needs
// checking for a vote; being newly tracked means we may now be eligible
// for assignment.
func (m *Machine) handleLog(ctx context.Context, q *queue.Queue, lg chain.Log) {
	if len(lg.Topics) == 0 {
		return
	}
	switch lg.Topics[0] {
	case chain.NewRequestTopic:
		q.PushSequential(validateSyncEvent{})
	case chain.BlockProposedTopic:
		q.PushSequential(checkProposalEvent{blockID: blockIDFromLog(lg), hasBlock: true})
	case chain.BlockFinalizedTopic:
		m.log.Printf("validator: poll: block %d finalized", blockIDFromLog(lg))
	case chain.AddedToTrackTopic:
		q.PushSequential(tryAssignEvent{})
	}
}

// blockIDFromLog reads the block id out of a log's first 32-byte data word,
// the convention every one of the store contract's block-related events
// follows.
func blockIDFromLog(lg chain.Log) uint64 {
	if len(lg.Data) < 32 {
		return 0
	}
	return new(big.Int).SetBytes(lg.Data[:32]).Uint64()
}
