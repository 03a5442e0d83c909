package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// kind groups the per-host loops of one status kind. Stopping it raises the
// flag, cancels the command context and waits for every loop to return.
type kind struct {
	name    string
	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
	wg      sync.WaitGroup
}

func newKind(parent context.Context, name string) *kind {
	ctx, cancel := context.WithCancel(parent)
	return &kind{name: name, ctx: ctx, cancel: cancel}
}

// goLoop runs fn on its own goroutine with the kind's context.
func (k *kind) goLoop(fn func(ctx context.Context)) {
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		fn(k.ctx)
	}()
}

func (k *kind) done() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(ch)
	}()
	return ch
}

// stop cancels the loops and waits for them, bounded by ctx and timeout.
func (k *kind) stop(ctx context.Context, clock clockwork.Clock, timeout time.Duration) error {
	k.stopped.Store(true)
	k.cancel()
	select {
	case <-k.done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s loops: %v", ErrStopTimeout, k.name, ctx.Err())
	case <-clock.After(timeout):
		return fmt.Errorf("%w: %s loops after %s", ErrStopTimeout, k.name, timeout)
	}
}

// sleep waits d on clock. It returns false when ctx ended first.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-clock.After(d):
		return true
	}
}
