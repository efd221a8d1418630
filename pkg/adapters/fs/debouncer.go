package fs

import (
	"sync"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// debouncer coalesces bursts of events per path and delivers only the last
// one once the path has been quiet for delay.
type debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	pending map[string]*pendingEvent
	gen     uint64
	stopped bool
	wg      sync.WaitGroup
}

type pendingEvent struct {
	event core.FileEvent
	timer *time.Timer
	gen   uint64
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, pending: make(map[string]*pendingEvent)}
}

func (d *debouncer) add(ev core.FileEvent, fire func(core.FileEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if p, ok := d.pending[ev.Path]; ok && p.timer.Stop() {
		d.wg.Done()
	}
	d.gen++
	gen := d.gen
	d.wg.Add(1)
	p := &pendingEvent{event: ev, gen: gen}
	p.timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		cur, ok := d.pending[ev.Path]
		if !ok || cur.gen != gen {
			d.mu.Unlock()
			return
		}
		delete(d.pending, ev.Path)
		d.mu.Unlock()
		fire(cur.event)
	})
	d.pending[ev.Path] = p
}

// stopAndWait drops pending events and waits up to timeout for callbacks
// already running.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	for k, p := range d.pending {
		if p.timer.Stop() {
			d.wg.Done()
		}
		delete(d.pending, k)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
