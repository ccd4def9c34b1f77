package validator

import (
	"context"
	"fmt"

	"github.com/certen/independant-validator/internal/blockrepo"
	"github.com/certen/independant-validator/internal/metrics"
	"github.com/certen/independant-validator/internal/model"
	"github.com/certen/independant-validator/internal/queue"
)

// buildBlock assembles the validation block this validator would propose or
// vote with for the request range [from, to), reading already-validated
// results from the local store. It errors rather than validating on demand:
// by the time a block is proposed, ValidateSync should already have covered
// every request in range.
func (m *Machine) buildBlock(ctx context.Context, blockID, from, to uint64) (*model.ValidationBlock, error) {
	if to <= from {
		return nil, fmt.Errorf("validator: empty request range [%d,%d)", from, to)
	}
	results, err := m.st.GetResults(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if uint64(len(results)) != to-from {
		return nil, fmt.Errorf("validator: local results incomplete for range [%d,%d): have %d", from, to, len(results))
	}
	return blockrepo.CreateBlock(blockID, results), nil
}

// handleCheckProposal decides whether this validator is the one responsible
// for proposing the block it's assigned, deferring to Sync to re-derive the
// right next step if it isn't (yet, or any more).
func (m *Machine) handleCheckProposal(ctx context.Context, q *queue.Queue, e checkProposalEvent) {
	if !e.hasBlock {
		q.PushSequential(syncEvent{})
		return
	}
	state, err := m.chain.GetLastState(ctx, m.cfg.Self)
	if err != nil {
		m.log.Printf("validator: check proposal: GetLastState: %v", err)
		return
	}
	if !state.ShouldCreateProposal(e.blockID) {
		q.PushSequential(syncEvent{})
		return
	}
	q.PushSequential(proposeEvent{blockID: e.blockID, from: state.NextProposalRequestID})
}

// handlePropose builds this validator's view of the assigned block's
// request range, uploads it to object storage, and publishes the resulting
// reference on chain.
func (m *Machine) handlePropose(ctx context.Context, q *queue.Queue, e proposeEvent) {
	state, err := m.chain.GetLastState(ctx, m.cfg.Self)
	if err != nil {
		m.log.Printf("validator: propose: GetLastState: %v", err)
		return
	}
	from := state.NextProposalRequestID
	to := state.NextRequestID
	if to <= from {
		m.log.Printf("validator: propose: nothing to propose yet for block %d", e.blockID)
		return
	}

	block, err := m.buildBlock(ctx, e.blockID, from, to)
	if err != nil {
		m.log.Printf("validator: propose: buildBlock: %v", err)
		return
	}
	refID, err := m.uploadBlockData(ctx, block)
	if err != nil {
		m.log.Printf("validator: propose: uploadBlockData: %v", err)
		return
	}

	ref := blockrepo.ContractBlockRef(e.blockID, refID, model.ProtocolBSC, block)
	if err := m.chain.ProposeBlock(ctx, ref); err != nil {
		m.log.Printf("validator: propose: ProposeBlock: %v", err)
		return
	}
	if err := m.st.SaveBlock(ctx, e.blockID, model.BlockStateProposed, blockrepo.EncodeBlock(block)); err != nil {
		m.log.Printf("validator: propose: SaveBlock: %v", err)
	}
	metrics.BlocksProposedTotal.Inc()
	q.PushSequential(observeVotingEvent{blockID: e.blockID})
}
