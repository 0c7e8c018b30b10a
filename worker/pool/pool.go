package pool

import (
	"context"
	"sync"
)

// Group tracks goroutines so they can be joined at shutdown, and optionally
// bounds how many of them hold a slot at once.
type Group struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewGroup returns a Group; limit <= 0 means Acquire never blocks and never fails.
func NewGroup(limit int) *Group {
	g := &Group{}
	if limit > 0 {
		g.sem = make(chan struct{}, limit)
	}
	return g
}

// Go runs fn on a tracked goroutine.
func (g *Group) Go(fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

// Acquire blocks until a slot is free or ctx is done. The returned release
// func must be called exactly once.
func (g *Group) Acquire(ctx context.Context) (func(), error) {
	if g.sem == nil {
		return func() {}, nil
	}

	select {
	case g.sem <- struct{}{}:
		return func() { <-g.sem }, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// Wait blocks until every goroutine started with Go has returned, or until
// ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
