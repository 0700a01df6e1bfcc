// Package timer provides per-room deadlines and countdown tick streams for
// the game engine. Each room holds at most one of each; setting a new one
// replaces the old.
package timer

import (
	"sync"
	"time"
)

type deadline struct {
	timer     *time.Timer
	cancelled bool
}

type tickStream struct {
	stop      chan struct{}
	cancelled bool
}

// Registry tracks the single-shot deadline and the tick stream of every
// room. After Cancel returns no new callback for that room starts; a
// callback already in flight is expected to re-check room state before
// acting.
type Registry struct {
	mu        sync.Mutex
	deadlines map[string]*deadline
	ticks     map[string]*tickStream
	interval  time.Duration
}

// NewRegistry creates a registry emitting ticks every interval (one second
// in production; tests compress it).
func NewRegistry(interval time.Duration) *Registry {
	if interval <= 0 {
		interval = time.Second
	}
	return &Registry{
		deadlines: make(map[string]*deadline),
		ticks:     make(map[string]*tickStream),
		interval:  interval,
	}
}

// Interval returns the tick spacing. The engine derives question deadlines
// from it so one compressed interval compresses the whole phase machine.
func (r *Registry) Interval() time.Duration {
	return r.interval
}

// SetDeadline schedules onFire after d, replacing any deadline the room
// already has.
func (r *Registry) SetDeadline(code string, d time.Duration, onFire func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelDeadlineLocked(code)

	dl := &deadline{}
	dl.timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		if dl.cancelled || r.deadlines[code] != dl {
			r.mu.Unlock()
			return
		}
		delete(r.deadlines, code)
		r.mu.Unlock()
		onFire()
	})
	r.deadlines[code] = dl
}

// StartTicks emits count, count-1, … 0 to onTick, the first immediately and
// the rest one interval apart, then cancels itself. Any running stream for
// the room is replaced.
func (r *Registry) StartTicks(code string, count int, onTick func(n int)) {
	r.mu.Lock()
	r.cancelTicksLocked(code)
	ts := &tickStream{stop: make(chan struct{})}
	r.ticks[code] = ts
	r.mu.Unlock()

	go r.runTicks(code, ts, count, onTick)
}

func (r *Registry) runTicks(code string, ts *tickStream, count int, onTick func(n int)) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for n := count; n >= 0; n-- {
		r.mu.Lock()
		if ts.cancelled {
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		onTick(n)

		if n == 0 {
			break
		}
		select {
		case <-ticker.C:
		case <-ts.stop:
			return
		}
	}

	r.mu.Lock()
	if r.ticks[code] == ts {
		delete(r.ticks, code)
	}
	r.mu.Unlock()
}

// Cancel stops both the deadline and the tick stream of a room.
func (r *Registry) Cancel(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelDeadlineLocked(code)
	r.cancelTicksLocked(code)
}

// CancelAll stops every timer; used on shutdown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for code := range r.deadlines {
		r.cancelDeadlineLocked(code)
	}
	for code := range r.ticks {
		r.cancelTicksLocked(code)
	}
}

// HasDeadline reports whether a deadline is currently registered for code.
func (r *Registry) HasDeadline(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.deadlines[code]
	return ok
}

func (r *Registry) cancelDeadlineLocked(code string) {
	if dl, ok := r.deadlines[code]; ok {
		dl.cancelled = true
		dl.timer.Stop()
		delete(r.deadlines, code)
	}
}

func (r *Registry) cancelTicksLocked(code string) {
	if ts, ok := r.ticks[code]; ok {
		ts.cancelled = true
		close(ts.stop)
		delete(r.ticks, code)
	}
}
