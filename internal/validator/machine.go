// Package validator is the state machine driving a single validator
// instance: registering and staking with the store contract, syncing
// historical requests, picking up block assignments, proposing and voting
// on validation blocks, and finalizing them once enough votes land. Every
// operation runs as a queue.Event handled by Machine.Handle, so the whole
// lifecycle is expressed as events pushed back onto the same queue rather
// than as nested function calls.
package validator

import (
	"context"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/independant-validator/internal/artifact"
	"github.com/certen/independant-validator/internal/chain"
	"github.com/certen/independant-validator/internal/queue"
	"github.com/certen/independant-validator/internal/retry"
	"github.com/certen/independant-validator/internal/store"
)

// Config holds the tunables Machine needs that don't belong to any single
// handler (timeouts, batch sizes, this validator's identity).
type Config struct {
	Self                    common.Address
	StoreAddress            common.Address
	ObjectStoreURL          string
	Version                 uint64
	RecommendedStakeAmount  *big.Int
	SyncRetryInterval       time.Duration
	SyncTimeout             time.Duration
	PollTimeout             time.Duration
	ObserveTimeout          time.Duration
	MaxLogsPerRequest       uint64
}

// Machine wires the chain adapter, local store, and artifact validator
// together behind the event handlers that make up the validator lifecycle.
type Machine struct {
	chain chain.Adapter
	st    *store.Store
	art   *artifact.Validator
	cfg   Config
	log   *log.Logger

	registerTrier     *retry.Trier
	validateSyncTrier *retry.Trier

	lastPolled uint64
}

// New builds a Machine. Handle is suitable to pass directly as a
// queue.Handler.
func New(c chain.Adapter, st *store.Store, art *artifact.Validator, cfg Config, logger *log.Logger) *Machine {
	if logger == nil {
		logger = log.Default()
	}
	return &Machine{
		chain:             c,
		st:                st,
		art:               art,
		cfg:               cfg,
		log:               logger,
		registerTrier:     retry.New(4, 30*time.Second, 30*time.Second),
		validateSyncTrier: retry.New(10, 5*time.Second, time.Minute),
	}
}

// Handle dispatches a single event to its handler. It matches queue.Handler.
func (m *Machine) Handle(ctx context.Context, q *queue.Queue, ev queue.Event) {
	switch e := ev.(type) {
	case launchEvent:
		m.handleLaunch(ctx, q)
	case registerEvent:
		m.handleRegister(ctx, q)
	case syncEvent:
		m.handleSync(ctx, q)
	case pollEvent:
		m.handlePoll(ctx, q, e)
	case observeOverdueEvent:
		m.handleObserveOverdue(ctx, q)
	case tryAssignEvent:
		m.handleTryAssign(ctx, q)
	case validateSyncEvent:
		m.handleValidateSync(ctx, q)
	case voteEvent:
		m.handleVote(ctx, q, e)
	case checkProposalEvent:
		m.handleCheckProposal(ctx, q, e)
	case proposeEvent:
		m.handlePropose(ctx, q, e)
	case observeVotingEvent:
		m.handleObserveVoting(ctx, q, e)
	case finalizeEvent:
		m.handleFinalize(ctx, q, e)
	case unregisterEvent:
		m.handleUnregister(ctx, q)
	case restartEvent:
		m.handleRestart(ctx, q)
	default:
		m.log.Printf("validator: unhandled event type %T", ev)
	}
}

// PushLaunch seeds the queue with launchEvent, whose handler pushes the
// initial set of events every fresh process needs: register (if not
// already), sync the assignment, catch up on historical requests, watch for
// overdue finalization, and start polling for new chain activity.
func PushLaunch(q *queue.Queue) {
	q.PushSequential(launchEvent{})
}
