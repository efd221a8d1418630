package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
)

// DefaultInterval is the auto-sync period.
const DefaultInterval = 30 * time.Minute

// Scheduler runs Sync right away and then on a fixed interval.
type Scheduler struct {
	syncer   *Syncer
	interval time.Duration
	onResult func(Result)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a disabled Scheduler. onResult may be nil.
func NewScheduler(s *Syncer, interval time.Duration, onResult func(Result)) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{syncer: s, interval: interval, onResult: onResult}
}

// Enable starts scheduling, replacing an earlier schedule. The new schedule
// starts once the earlier one's run in flight has finished.
func (sc *Scheduler) Enable(ctx context.Context) {
	sc.Disable()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	sc.mu.Lock()
	prev := sc.done
	sc.cancel = cancel
	sc.done = done
	sc.mu.Unlock()

	lifecycle.Go(runCtx, func(ctx context.Context) error {
		defer close(done)
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return nil
			}
		}
		// A run in flight outlives Disable.
		syncCtx := context.WithoutCancel(ctx)

		ticker := time.NewTicker(sc.interval)
		defer ticker.Stop()
		for {
			sc.run(syncCtx)
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			if ctx.Err() != nil {
				return nil
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		sc.syncer.logger.Error("auto-sync stopped", "error", err)
	}))
}

func (sc *Scheduler) run(ctx context.Context) {
	res := sc.syncer.Sync(ctx)
	if sc.onResult != nil {
		sc.onResult(res)
	}
}

// Disable stops future runs. A run in flight completes.
func (sc *Scheduler) Disable() {
	sc.mu.Lock()
	cancel := sc.cancel
	sc.cancel = nil
	sc.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Enabled reports whether runs are scheduled.
func (sc *Scheduler) Enabled() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.cancel != nil
}

// Wait blocks until the schedule loop, including a run in flight, has
// exited after Disable.
func (sc *Scheduler) Wait() {
	sc.mu.Lock()
	done := sc.done
	sc.mu.Unlock()
	if done != nil {
		<-done
	}
}
