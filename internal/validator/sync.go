package validator

import (
	"context"
	"time"

	"github.com/certen/independant-validator/internal/metrics"
	"github.com/certen/independant-validator/internal/model"
	"github.com/certen/independant-validator/internal/queue"
)

// handleSync reconciles this process's view of its assignment against the
// chain's and schedules whatever follow-up the assignment's current block
// state calls for.
func (m *Machine) handleSync(ctx context.Context, q *queue.Queue) {
	state, err := m.chain.GetLastState(ctx, m.cfg.Self)
	if err != nil {
		m.log.Printf("validator: sync: GetLastState: %v", err)
		return
	}

	if state.AssignedBlockID == 0 || state.AssignedValidator != m.cfg.Self.Hex() {
		q.PushSequential(tryAssignEvent{})
		return
	}

	bstate, err := m.chain.BlockState(ctx, state.AssignedBlockID, m.cfg.Self)
	if err != nil {
		m.log.Printf("validator: sync: BlockState: %v", err)
		return
	}

	switch {
	case bstate.IsFinalized():
		return
	case bstate.AtLeastVoted():
		q.PushSequential(observeVotingEvent{blockID: state.AssignedBlockID})
	case bstate.IsProposed() || bstate.IsDiscussing():
		q.PushSequential(voteEvent{blockID: state.AssignedBlockID})
	default:
		q.PushSequential(checkProposalEvent{blockID: state.AssignedBlockID, hasBlock: true})
	}
}

// handleObserveOverdue periodically checks whether the next block due for
// finalization has enough votes, finalizing it if so, and reschedules
// itself. It runs as a parallel action so it never blocks either lane.
func (m *Machine) handleObserveOverdue(ctx context.Context, q *queue.Queue) {
	blockID, err := m.chain.NextBlockIDToFinalize(ctx)
	if err != nil {
		m.log.Printf("validator: observe overdue: NextBlockIDToFinalize: %v", err)
	} else {
		finalizable, err := m.chain.IsFinalizable(ctx, blockID)
		if err != nil {
			m.log.Printf("validator: observe overdue: IsFinalizable: %v", err)
		} else if finalizable {
			q.PushSequential(finalizeEvent{blockID: blockID})
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
			q.PushParallel(ctx, observeOverdueEvent{})
		}
	}()
}

// handleTryAssign checks whether this validator is currently eligible for a
// new block assignment and, if so, claims the next one and kicks off its
// proposal.
func (m *Machine) handleTryAssign(ctx context.Context, q *queue.Queue) {
	status, err := m.chain.ValidatorAssignStatus(ctx, m.cfg.Self, m.cfg.Version)
	if err != nil {
		m.log.Printf("validator: try assign: ValidatorAssignStatus: %v", err)
		return
	}

	switch status {
	case model.AssignStatusAssignable:
		blockID, err := m.chain.NextAssignBlockID(ctx)
		if err != nil {
			m.log.Printf("validator: try assign: NextAssignBlockID: %v", err)
			return
		}
		if err := m.chain.AssignValidator(ctx, blockID); err != nil {
			m.log.Printf("validator: try assign: AssignValidator: %v", err)
			return
		}
		q.PushSequential(checkProposalEvent{blockID: blockID, hasBlock: true})
	case model.AssignStatusNotRegistered:
		q.PushSequential(registerEvent{})
	case model.AssignStatusValidatorVersionOutdated:
		m.log.Printf("validator: version %d outdated, cannot be assigned", m.cfg.Version)
	case model.AssignStatusNotEnoughVotes, model.AssignStatusAlreadyAssigned:
		// Nothing to do: either we're already on a block (Sync will pick it
		// back up) or the network doesn't have quorum to assign one yet.
	}
}

// handleValidateSync catches the local store up on every request the chain
// knows about that hasn't been validated yet, one request at a time so a
// failure partway through resumes at the right place next try. Retries are
// bounded; exhausting them shuts the whole validator down rather than
// silently falling further behind.
func (m *Machine) handleValidateSync(ctx context.Context, q *queue.Queue) {
	next, err := m.st.NextLocalRequestID(ctx)
	if err != nil {
		m.log.Printf("validator: validate sync: NextLocalRequestID: %v", err)
		m.retryValidateSync(ctx, q)
		return
	}
	last, err := m.chain.NextRequestID(ctx)
	if err != nil {
		m.log.Printf("validator: validate sync: NextRequestID: %v", err)
		m.retryValidateSync(ctx, q)
		return
	}

	for reqID := next; reqID < last; reqID++ {
		if q.IsShutdown() {
			return
		}
		has, err := m.st.HasRequest(ctx, reqID)
		if err != nil {
			m.log.Printf("validator: validate sync: HasRequest(%d): %v", reqID, err)
			m.retryValidateSync(ctx, q)
			return
		}
		if has {
			continue
		}
		req, err := m.chain.GetRequest(ctx, reqID)
		if err != nil {
			m.log.Printf("validator: validate sync: GetRequest(%d): %v", reqID, err)
			m.retryValidateSync(ctx, q)
			return
		}
		result := m.art.ValidateRequest(ctx, req)
		if err := m.st.SaveResult(ctx, result); err != nil {
			m.log.Printf("validator: validate sync: SaveResult(%d): %v", reqID, err)
			m.retryValidateSync(ctx, q)
			return
		}
		metrics.RequestsValidatedTotal.WithLabelValues(result.Status.String()).Inc()
	}
	m.validateSyncTrier.Reset()
}

func (m *Machine) retryValidateSync(ctx context.Context, q *queue.Queue) {
	if m.validateSyncTrier.Exceeded() {
		m.log.Printf("validator: validate sync retries exhausted, shutting down")
		m.validateSyncTrier.Reset()
		q.AsyncShutdown()
		return
	}
	if err := m.validateSyncTrier.Iterate(ctx); err != nil {
		return
	}
	q.PushSequential(validateSyncEvent{})
}
