// Package retry implements the validator's counted backoff helper, ported
// from the reference implementation's SyncTrier.
package retry

import (
	"context"
	"time"
)

// Trier counts attempts at a piece of work and sleeps a linearly growing
// backoff between them. It is not goroutine-safe; each call site owns one.
type Trier struct {
	tries       int
	maxTries    int
	backoffBase time.Duration
	maxBackoff  time.Duration
}

// New builds a Trier that gives up after maxTries calls to Iterate, sleeping
// backoffBase*attempt between tries up to maxBackoff.
func New(maxTries int, backoffBase, maxBackoff time.Duration) *Trier {
	return &Trier{maxTries: maxTries, backoffBase: backoffBase, maxBackoff: maxBackoff}
}

// Exceeded reports whether the try budget has been used up.
func (t *Trier) Exceeded() bool {
	return t.tries >= t.maxTries
}

// Reset zeroes the try count so the Trier can be reused for a new unit of work.
func (t *Trier) Reset() {
	t.tries = 0
}

// Tries returns how many times Iterate has been called since the last Reset.
func (t *Trier) Tries() int {
	return t.tries
}

// Iterate advances the try counter and sleeps the current backoff, or until
// ctx is done. It does not check Exceeded; callers do. It returns ctx.Err()
// if the context was cancelled while sleeping.
func (t *Trier) Iterate(ctx context.Context) error {
	t.tries++
	backoff := t.backoffBase * time.Duration(t.tries)
	if backoff > t.maxBackoff {
		backoff = t.maxBackoff
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}
