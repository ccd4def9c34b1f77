package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testEvent struct {
	id   uint64
	key  uint64
	lane Lane
	name string
}

func (e testEvent) EventID() uint64  { return e.id }
func (e testEvent) UniqueKey() uint64 { return e.key }
func (e testEvent) Lane() Lane        { return e.lane }
func (e testEvent) String() string    { return e.name }

func TestQueueRunsEventsAndDrainsOnShutdown(t *testing.T) {
	var count atomic.Int64
	q := New(func(ctx context.Context, q *Queue, ev Event) {
		count.Add(1)
	}, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	q.PushSequential(testEvent{id: 1, key: 0, lane: LaneMain, name: "a"})
	q.PushSequential(testEvent{id: 2, key: 0, lane: LaneState, name: "b"})
	q.AsyncShutdown()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain after shutdown")
	}

	if got := count.Load(); got != 2 {
		t.Fatalf("expected 2 events handled, got %d", got)
	}
}

func TestQueueDeduplicatesInFlightEvents(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var handled atomic.Int64

	q := New(func(ctx context.Context, q *Queue, ev Event) {
		handled.Add(1)
		close(started)
		<-release
	}, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	ev := testEvent{id: 5, key: 0, lane: LaneMain, name: "dup"}
	q.PushSequential(ev)
	<-started

	// A second push with the same (event_id, unique_key) while the first is
	// still executing should be dropped, not queued.
	q.PushSequential(ev)
	close(release)
	q.AsyncShutdown()
	q.Wait()

	if got := handled.Load(); got != 1 {
		t.Fatalf("expected the duplicate in-flight event to be dropped, handled %d times", got)
	}
}

func TestPushWithFollowUpRunsNextImmediately(t *testing.T) {
	var order []string
	var mu sync.Mutex

	q := New(func(ctx context.Context, q *Queue, ev Event) {
		mu.Lock()
		order = append(order, ev.String())
		mu.Unlock()
	}, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.PushWithFollowUp(
		testEvent{id: 1, key: 0, lane: LaneMain, name: "first"},
		testEvent{id: 2, key: 0, lane: LaneMain, name: "second"},
	)
	q.PushSequential(testEvent{id: 3, key: 0, lane: LaneMain, name: "third"})

	q.AsyncShutdown()
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("expected [first second third], got %v", order)
	}
}
