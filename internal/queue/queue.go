// Package queue implements the validator's cooperative action scheduler: two
// independent serial lanes (main and state), per-event deduplication keyed
// by (event id, unique key), a live count of actions currently executing in
// parallel, and a "dead pill" shutdown that lets in-flight work drain before
// the process exits.
package queue

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Lane selects which of the two serial lanes an event runs on. Events on
// different lanes may execute concurrently with one another; events on the
// same lane never do.
type Lane int

const (
	// LaneMain carries the bulk of validator lifecycle events (sync,
	// assignment, proposal, voting).
	LaneMain Lane = iota
	// LaneState carries events that observe or mutate locally persisted
	// state outside the main lifecycle (polling, historical validation
	// catch-up).
	LaneState
)

// Event is anything the queue can schedule. EventID groups events by kind
// for logging and the event_id half of the dedup key. UniqueKey returns the
// second half of the dedup key: events tied to a subject (such as a block
// id) return that subject, and events that run as a single instance, like
// Poll, return 0.
type Event interface {
	EventID() uint64
	UniqueKey() uint64
	Lane() Lane
	String() string
}

// Action is one scheduled unit of work: an event to handle, and an optional
// Next action chained to run immediately after this one completes,
// regardless of what the handler itself pushes. This is the queue's
// supplemented "chained follow-up action" feature.
type Action struct {
	Event Event
	Next  *Action
}

// Handler processes a single event. It is invoked with the queue itself so
// it can push further actions.
type Handler func(ctx context.Context, q *Queue, ev Event)

// Queue is the dual-lane scheduler. Zero value is not usable; use New.
type Queue struct {
	handler Handler
	logger  *log.Logger

	main  chan Action
	state chan Action

	mu     sync.Mutex
	active map[[2]uint64]struct{}

	parallel  atomic.Int64
	shutdown  atomic.Bool
	wg        sync.WaitGroup
	drainOnce sync.Once
	drained   chan struct{}
}

// New builds a Queue with the given handler and lane buffer size.
func New(handler Handler, bufSize int, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.Default()
	}
	q := &Queue{
		handler: handler,
		logger:  logger,
		main:    make(chan Action, bufSize),
		state:   make(chan Action, bufSize),
		active:  make(map[[2]uint64]struct{}),
		drained: make(chan struct{}),
	}
	return q
}

// Run starts the two lane consumer loops and blocks until AsyncShutdown has been
// called and every in-flight action (including chained and parallel ones)
// has completed.
func (q *Queue) Run(ctx context.Context) {
	q.wg.Add(2)
	go q.runLane(ctx, q.main)
	go q.runLane(ctx, q.state)
	q.wg.Wait()
	close(q.drained)
}

func (q *Queue) runLane(ctx context.Context, ch chan Action) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-ch:
			if !ok {
				return
			}
			q.execute(ctx, a)
		}
	}
}

func (q *Queue) execute(ctx context.Context, a Action) {
	q.parallel.Add(1)
	defer q.parallel.Add(-1)

	key := dedupKey(a.Event)
	defer q.release(key)

	trace := uuid.New().String()
	q.logger.Printf("queue[%s]: handling %s", trace, a.Event)
	q.handler(ctx, q, a.Event)

	for next := a.Next; next != nil; {
		n := *next
		q.parallel.Add(1)
		nk := dedupKey(n.Event)
		nextTrace := uuid.New().String()
		q.logger.Printf("queue[%s]: handling chained follow-up %s", nextTrace, n.Event)
		q.handler(ctx, q, n.Event)
		q.parallel.Add(-1)
		q.release(nk)
		next = n.Next
	}
}

func dedupKey(ev Event) [2]uint64 {
	return [2]uint64{ev.EventID(), ev.UniqueKey()}
}

// tryAcquire returns true and marks the key in-flight if it was not already
// in-flight; returns false if a matching event is already being handled.
func (q *Queue) tryAcquire(key [2]uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.active[key]; ok {
		return false
	}
	q.active[key] = struct{}{}
	return true
}

func (q *Queue) release(key [2]uint64) {
	q.mu.Lock()
	delete(q.active, key)
	q.mu.Unlock()
}

// PushSequential enqueues ev on its lane, to be handled after everything
// already queued on that lane. A duplicate in-flight (event_id, unique_key)
// pair is silently dropped.
func (q *Queue) PushSequential(ev Event) {
	q.push(ev, nil)
}

// PushWithFollowUp enqueues ev, and once its handler returns, runs next
// immediately before the lane moves on to anything else queued after ev.
func (q *Queue) PushWithFollowUp(ev Event, next Event) {
	q.push(ev, &Action{Event: next})
}

// PushParallel runs ev's handler on its own goroutine rather than waiting
// for its lane, matching the reference implementation's "push_action"
// (fire-and-forget, concurrent with the rest of the lane).
func (q *Queue) PushParallel(ctx context.Context, ev Event) {
	if q.IsShutdown() {
		return
	}
	key := dedupKey(ev)
	if !q.tryAcquire(key) {
		q.logger.Printf("queue: dropping duplicate in-flight event %s", ev)
		return
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.release(key)
		q.parallel.Add(1)
		defer q.parallel.Add(-1)
		q.handler(ctx, q, ev)
	}()
}

func (q *Queue) push(ev Event, next *Action) {
	if q.IsShutdown() {
		q.logger.Printf("queue: shutting down, dropping event %s", ev)
		return
	}
	key := dedupKey(ev)
	if !q.tryAcquire(key) {
		q.logger.Printf("queue: dropping duplicate in-flight event %s", ev)
		return
	}
	a := Action{Event: ev, Next: next}
	ch := q.main
	if ev.Lane() == LaneState {
		ch = q.state
	}
	select {
	case ch <- a:
	default:
		q.release(key)
		q.logger.Printf("queue: lane full, dropping event %s", ev)
	}
}

// ParallelCount returns how many actions (sequential or parallel) are
// currently executing.
func (q *Queue) ParallelCount() int64 {
	return q.parallel.Load()
}

// AsyncShutdown marks the queue as shutting down. Already-queued and
// in-flight actions still run to completion; handlers should check
// IsShutdown to bail out of their own retry loops early, and Run returns
// once both lanes have drained.
func (q *Queue) AsyncShutdown() {
	q.shutdown.Store(true)
	q.drainOnce.Do(func() {
		close(q.main)
		close(q.state)
	})
}

// IsShutdown reports whether AsyncShutdown has been called.
func (q *Queue) IsShutdown() bool {
	return q.shutdown.Load()
}

// Wait blocks until Run has fully drained after a shutdown.
func (q *Queue) Wait() {
	<-q.drained
}
