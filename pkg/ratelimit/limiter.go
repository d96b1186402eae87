package ratelimit

import (
	"sync"
	"time"
)

// Limiter defines the interface for rate limit bookkeeping
type Limiter interface {
	// Record counts one request against the current window
	Record()
	// Saturated reports whether the window is full and has not yet elapsed
	Saturated() bool
	// UntilReset returns the time remaining in the current window
	UntilReset() time.Duration
	// Expired reports whether an active window's period has fully elapsed
	Expired() bool
	// Discard abandons the current window so a fresh one starts lazily
	Discard()
}

// Window implements a fixed-length request window. Each method takes the
// internal lock on its own, so a caller's check-then-record sequence is not
// atomic: goroutines racing between Saturated and Record can overshoot
// capacity by at most the number of racers. The configured capacity is kept
// below the upstream hard cap to absorb exactly that.
type Window struct {
	capacity int
	period   time.Duration

	mu    sync.Mutex
	start time.Time
	count int

	now func() time.Time // swapped out in tests
}

// NewWindow creates a window allowing capacity requests per period.
func NewWindow(capacity int, period time.Duration) *Window {
	return &Window{
		capacity: capacity,
		period:   period,
		now:      time.Now,
	}
}

// Record counts one request against the current window, starting a fresh
// window first if none is active.
func (w *Window) Record() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.start.IsZero() {
		w.start = w.now()
	}
	w.count++
}

// Saturated reports whether the window has not yet elapsed and the recorded
// count has reached capacity.
func (w *Window) Saturated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.start.IsZero() {
		return false
	}
	if w.now().Sub(w.start) >= w.period {
		return false
	}
	return w.count >= w.capacity
}

// UntilReset returns the time remaining in the current window. A zero or
// negative value means the window has already elapsed. With no active
// window it returns zero.
func (w *Window) UntilReset() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.start.IsZero() {
		return 0
	}
	return w.period - w.now().Sub(w.start)
}

// Expired reports whether an active window's period has fully elapsed.
func (w *Window) Expired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.start.IsZero() {
		return false
	}
	return w.now().Sub(w.start) >= w.period
}

// Discard abandons the current window. The next Record starts a fresh one.
// Throwing the window away instead of computing a new start precisely
// under-utilizes the budget slightly at period boundaries.
func (w *Window) Discard() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.start = time.Time{}
	w.count = 0
}

// Count returns the number of requests recorded in the current window.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
