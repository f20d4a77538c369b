package timer

import (
	"sync"
	"time"
)

// TickFunc receives the remaining time once per tick interval.
type TickFunc func(remaining time.Duration)

// ExpireFunc fires exactly once when the countdown reaches zero.
type ExpireFunc func()

// Registry holds at most one live countdown per user. Starting a round for
// a user cancels that user's previous timer first, so there are never
// orphaned schedules or double-counted elapsed time.
//
// Callbacks run on the timer's own goroutine, never under the registry
// lock. A caller that must serialize callbacks against its own update
// handling should re-check its per-user state inside its own lock; after
// Stop returns, no further tick or expire callback is started.
type Registry struct {
	mu       sync.Mutex
	timers   map[int64]*roundTimer
	interval time.Duration
}

type roundTimer struct {
	mu        sync.Mutex
	duration  time.Duration
	remaining time.Duration
	startedAt time.Time
	stopped   bool
	done      chan struct{}
}

func NewRegistry() *Registry {
	return NewRegistryWithInterval(time.Second)
}

// NewRegistryWithInterval sets the tick interval; tests use short ones.
func NewRegistryWithInterval(interval time.Duration) *Registry {
	return &Registry{
		timers:   make(map[int64]*roundTimer),
		interval: interval,
	}
}

// Start begins a countdown for the user, replacing any active one. The
// replaced timer's remaining time is discarded: a new question always
// resets the clock.
func (r *Registry) Start(userID int64, duration time.Duration, onTick TickFunc, onExpire ExpireFunc) {
	t := &roundTimer{
		duration:  duration,
		remaining: duration,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if old, ok := r.timers[userID]; ok {
		old.cancel()
	}
	r.timers[userID] = t
	r.mu.Unlock()

	go r.run(userID, t, onTick, onExpire)
}

// Stop cancels the user's countdown and snapshots the remaining time for
// elapsed-time accounting. It is a no-op when no timer is active; the
// second return value reports whether a live timer was stopped. Every
// tick scheduled after a successful Stop is suppressed.
func (r *Registry) Stop(userID int64) (time.Duration, bool) {
	r.mu.Lock()
	t, ok := r.timers[userID]
	r.mu.Unlock()
	if !ok {
		return 0, false
	}

	t.mu.Lock()
	if t.stopped {
		remaining := t.remaining
		t.mu.Unlock()
		return remaining, false
	}
	t.stopped = true
	close(t.done)
	t.remaining = t.duration - time.Since(t.startedAt)
	if t.remaining < 0 {
		t.remaining = 0
	}
	remaining := t.remaining
	t.mu.Unlock()

	return remaining, true
}

// Remaining reports the stopped timer's snapshot, or the live countdown.
func (r *Registry) Remaining(userID int64) (time.Duration, bool) {
	r.mu.Lock()
	t, ok := r.timers[userID]
	r.mu.Unlock()
	if !ok {
		return 0, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return t.remaining, true
	}
	remaining := t.duration - time.Since(t.startedAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Active reports whether the user has a live (not stopped, not expired)
// countdown.
func (r *Registry) Active(userID int64) bool {
	r.mu.Lock()
	t, ok := r.timers[userID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

// Clear drops the user's timer record, cancelling it if still live.
func (r *Registry) Clear(userID int64) {
	r.mu.Lock()
	t, ok := r.timers[userID]
	delete(r.timers, userID)
	r.mu.Unlock()
	if ok {
		t.cancel()
	}
}

func (t *roundTimer) cancel() {
	t.mu.Lock()
	if !t.stopped {
		t.stopped = true
		close(t.done)
		t.remaining = t.duration - time.Since(t.startedAt)
		if t.remaining < 0 {
			t.remaining = 0
		}
	}
	t.mu.Unlock()
}

func (r *Registry) run(userID int64, t *roundTimer, onTick TickFunc, onExpire ExpireFunc) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.stopped {
				t.mu.Unlock()
				return
			}
			remaining := t.duration - time.Since(t.startedAt)
			if remaining <= 0 {
				t.stopped = true
				close(t.done)
				t.remaining = 0
				t.mu.Unlock()

				r.mu.Lock()
				// A newer timer may already occupy the slot.
				if current, ok := r.timers[userID]; ok && current == t {
					delete(r.timers, userID)
				}
				r.mu.Unlock()

				if onExpire != nil {
					onExpire()
				}
				return
			}
			t.mu.Unlock()

			if onTick != nil {
				onTick(remaining)
			}
		}
	}
}
