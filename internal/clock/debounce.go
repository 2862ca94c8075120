package clock

import (
	"sync"
	"time"
)

// Debouncer keeps at most one pending timer per key. Rescheduling a key
// replaces its timer, so the callback runs once, delay after the last call.
//
// A callback receives the token it was scheduled with and must Claim it
// before acting. Claim fails once the key has been cancelled or rescheduled,
// which covers callbacks that were already running when Cancel was called.
type Debouncer[K comparable] struct {
	clock Clock
	delay time.Duration

	mu      sync.Mutex
	next    uint64
	pending map[K]pendingEntry
}

type pendingEntry struct {
	timer Timer
	token uint64
}

// NewDebouncer creates a debouncer firing delay after the last Schedule.
func NewDebouncer[K comparable](c Clock, delay time.Duration) *Debouncer[K] {
	if c == nil {
		c = Real{}
	}
	return &Debouncer[K]{clock: c, delay: delay, pending: make(map[K]pendingEntry)}
}

// Delay returns the debounce interval.
func (d *Debouncer[K]) Delay() time.Duration { return d.delay }

// Schedule arms key, replacing any pending timer for it.
func (d *Debouncer[K]) Schedule(key K, f func(token uint64)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
	}
	d.next++
	token := d.next
	t := d.clock.AfterFunc(d.delay, func() { f(token) })
	d.pending[key] = pendingEntry{timer: t, token: token}
}

// Claim consumes the pending entry for key if token is still current.
func (d *Debouncer[K]) Claim(key K, token uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.pending[key]
	if !ok || e.token != token {
		return false
	}
	delete(d.pending, key)
	return true
}

// Cancel stops the pending timer for key. It is safe to call for keys with
// nothing pending.
func (d *Debouncer[K]) Cancel(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(d.pending, key)
	return true
}

// CancelAll stops every pending timer.
func (d *Debouncer[K]) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, key)
	}
}

// Pending reports whether key has an armed timer.
func (d *Debouncer[K]) Pending(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Len returns the number of armed timers.
func (d *Debouncer[K]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
