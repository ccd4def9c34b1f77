package validator

import (
	"context"
	"math/big"

	"github.com/certen/independant-validator/internal/metrics"
	"github.com/certen/independant-validator/internal/queue"
)

// handleLaunch bootstraps a fresh process: register if needed, replay any
// history the local store hasn't caught up on, check for an assignment this
// process doesn't yet know about, and start the event poll loop.
func (m *Machine) handleLaunch(ctx context.Context, q *queue.Queue) {
	q.PushSequential(registerEvent{})
	q.PushSequential(syncEvent{})
	q.PushSequential(validateSyncEvent{})
	q.PushParallel(ctx, observeOverdueEvent{})

	start, err := m.chain.CurrentBlockNumber(ctx)
	if err != nil {
		m.log.Printf("validator: launch: current block number: %v", err)
		start = 0
	}
	m.lastPolled = start
	q.PushSequential(pollEvent{blockNumber: start})
}

// handleRegister checks this validator's on-chain registration and version
// standing, tops up its stake if the store requires more than it currently
// holds, and registers if it hasn't already. It retries a bounded number of
// times with a 30s backoff, since registration depends on a transaction
// landing, then gives up and lets the operator intervene.
func (m *Machine) handleRegister(ctx context.Context, q *queue.Queue) {
	registered, err := m.chain.IsRegistered(ctx, m.cfg.Self)
	if err != nil {
		m.log.Printf("validator: register: IsRegistered: %v", err)
		m.retryRegister(ctx, q)
		return
	}
	if registered {
		m.registerTrier.Reset()
		return
	}

	minVersion, err := m.chain.MinAvailableVersion(ctx)
	if err != nil {
		m.log.Printf("validator: register: MinAvailableVersion: %v", err)
		m.retryRegister(ctx, q)
		return
	}
	if m.cfg.Version < minVersion {
		m.log.Printf("validator: version %d below minimum %d, refusing to register", m.cfg.Version, minVersion)
		return
	}

	balance, err := m.chain.TotalBalance(ctx, m.cfg.Self)
	if err != nil {
		m.log.Printf("validator: register: TotalBalance: %v", err)
		m.retryRegister(ctx, q)
		return
	}
	if m.cfg.RecommendedStakeAmount != nil && balance.Cmp(m.cfg.RecommendedStakeAmount) < 0 {
		topUp := new(big.Int).Sub(m.cfg.RecommendedStakeAmount, balance)
		if err := m.chain.TopUp(ctx, topUp); err != nil {
			m.log.Printf("validator: register: TopUp: %v", err)
			m.retryRegister(ctx, q)
			return
		}
	}

	if err := m.chain.RegisterValidator(ctx); err != nil {
		m.log.Printf("validator: register: RegisterValidator: %v", err)
		m.retryRegister(ctx, q)
		return
	}
	m.registerTrier.Reset()
}

func (m *Machine) retryRegister(ctx context.Context, q *queue.Queue) {
	metrics.RegisterRetriesTotal.Inc()
	if m.registerTrier.Exceeded() {
		m.log.Printf("validator: register: retries exhausted, giving up")
		m.registerTrier.Reset()
		return
	}
	if err := m.registerTrier.Iterate(ctx); err != nil {
		return
	}
	q.PushSequential(registerEvent{})
}

// handleUnregister shuts the queue down immediately (no further lifecycle
// events should be scheduled once an operator has asked to unregister),
// then unwinds this validator's on-chain standing: unassign from any
// pending block, then unregister. Each step is tried once; a failure is
// logged and does not stop the next step.
func (m *Machine) handleUnregister(ctx context.Context, q *queue.Queue) {
	q.AsyncShutdown()

	state, err := m.chain.GetLastState(ctx, m.cfg.Self)
	if err == nil && state.AssignedBlockID != 0 && state.AssignedValidator == m.cfg.Self.Hex() {
		if err := m.chain.UnassignValidator(ctx, state.AssignedBlockID); err != nil {
			m.log.Printf("validator: unregister: UnassignValidator: %v", err)
		}
	}
	if err := m.chain.UnregisterValidator(ctx); err != nil {
		m.log.Printf("validator: unregister: UnregisterValidator: %v", err)
	}
}

// handleRestart is the supplemented event for a planned process restart: it
// shuts the queue down without touching on-chain assignment or
// registration, so the next launch picks up exactly where this one left
// off instead of being unassigned and having to re-register.
func (m *Machine) handleRestart(ctx context.Context, q *queue.Queue) {
	q.AsyncShutdown()
}
