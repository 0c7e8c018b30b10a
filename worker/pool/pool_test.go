package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGroup_WaitJoinsAll(t *testing.T) {
	g := NewGroup(0)
	var n atomic.Int32

	for i := 0; i < 10; i++ {
		g.Go(func() {
			time.Sleep(5 * time.Millisecond)
			n.Add(1)
		})
	}

	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if n.Load() != 10 {
		t.Errorf("Expected 10 completions, got %d", n.Load())
	}
}

func TestGroup_WaitDeadline(t *testing.T) {
	g := NewGroup(0)
	block := make(chan struct{})
	defer close(block)

	g.Go(func() { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := g.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestGroup_AcquireLimit(t *testing.T) {
	g := NewGroup(2)
	var active, peak atomic.Int32

	for i := 0; i < 6; i++ {
		g.Go(func() {
			release, err := g.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer release()

			cur := active.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			active.Add(-1)
		})
	}

	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("Expected at most 2 concurrent holders, saw %d", peak.Load())
	}
}

func TestGroup_AcquireCancelled(t *testing.T) {
	g := NewGroup(1)
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	cause := errors.New("stop")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)

	if _, err := g.Acquire(ctx); !errors.Is(err, cause) {
		t.Errorf("Expected cancel cause, got %v", err)
	}
}
