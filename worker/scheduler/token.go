package scheduler

import (
	"context"
	"errors"
	"sync"
)

// Token is the cancellation signal handed to a job's pipeline. It is polled at
// every progress report and between phases.
type Token struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	// mu is held by the tracker for the length of a status write, so Cancel
	// returns only once no write for the job is in flight.
	mu sync.Mutex
}

func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancelCause(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Context is cancelled together with the token; pass it to blocking calls.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Cancel signals the token. Only the first cause is kept. It waits for a
// status write in progress to finish.
func (t *Token) Cancel(cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel(cause)
}

// Err returns the cancellation cause, or nil while the token is live.
func (t *Token) Err() error {
	if t.ctx.Err() == nil {
		return nil
	}
	return context.Cause(t.ctx)
}

// Cancelled reports whether the job was cancelled by its owner.
func (t *Token) Cancelled() bool {
	return errors.Is(t.Err(), ErrJobCancelled)
}
