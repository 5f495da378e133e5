package notifier

import (
	"context"
	"sync"
	"time"
)

// task runs fn every period until its context is cancelled.
// It can be started again after it finished.
type task struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// start launches the loop unless it is already running and reports whether it did.
func (t *task) start(ctx context.Context, period time.Duration, fn func(context.Context)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runningLocked() {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.cancel = cancel
	t.done = done

	go func() {
		defer close(done)

		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()

	return true
}

// stop cancels the loop and waits for it to return.
func (t *task) stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

func (t *task) running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.runningLocked()
}

func (t *task) runningLocked() bool {
	if t.done == nil {
		return false
	}

	select {
	case <-t.done:
		return false
	default:
		return true
	}
}
