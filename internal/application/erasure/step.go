package erasure

import (
	"context"
	"sync"

	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// Step is one collection-scoped anonymize-or-delete operation. Run never fails outright:
// every error is logged and folded into StepResult.Failed.
type Step interface {
	Name() string
	Run(ctx context.Context, userID domain.UserID) domain.StepResult
}

// detacher runs best-effort work whose result is not part of the run outcome.
type detacher struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Go runs fn on its own goroutine with a context that ignores the caller's cancellation.
// Once the detacher is closed fn runs on the calling goroutine.
func (d *detacher) Go(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		fn(ctx)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.wg.Done()
		fn(ctx)
	}()
}

// Close stops detaching new work. Wait after Close never races with Go.
func (d *detacher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *detacher) Wait() { d.wg.Wait() }
