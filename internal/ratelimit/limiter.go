// Package ratelimit runs outbound calls under a per-upstream request budget
// with bounded, exponentially backed-off retries.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces two independent constraints on dispatches to one upstream:
// at most limit dispatches in any window, and at least minSpacing between
// consecutive dispatches. Callers over budget are delayed, never rejected.
type Limiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	minSpacing time.Duration
	spacing    *rate.Limiter

	// dispatches holds the most recent limit dispatch times, oldest first.
	// Times may lie in the future for callers still waiting on their slot.
	dispatches []time.Time
	last       time.Time

	now func() time.Time
}

// State is a point-in-time view of a limiter.
type State struct {
	InWindow     int       `json:"inWindow"`
	LastDispatch time.Time `json:"lastDispatch"`
}

// NewLimiter returns a limiter allowing requestsPerWindow dispatches per window
// spaced at least minSpacing apart. A non-positive requestsPerWindow or window
// disables the window cap; a non-positive minSpacing disables spacing.
func NewLimiter(requestsPerWindow int, window, minSpacing time.Duration) *Limiter {
	if window <= 0 {
		requestsPerWindow = 0
	}
	if requestsPerWindow < 0 {
		requestsPerWindow = 0
	}
	return &Limiter{
		limit:      requestsPerWindow,
		window:     window,
		minSpacing: minSpacing,
		spacing:    newSpacingLimiter(minSpacing),
		now:        time.Now,
	}
}

func newSpacingLimiter(minSpacing time.Duration) *rate.Limiter {
	if minSpacing <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(minSpacing), 1)
}

// Wait blocks until the caller may dispatch, or ctx is done. A caller that
// gives up hands its slot back so it does not count against the budget.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := l.reserve()
	delay := s.at.Sub(l.now())
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		l.release(s)
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// slot is one booked dispatch, with what it displaced so it can be undone.
type slot struct {
	at       time.Time
	prevLast time.Time
	evicted  *time.Time
	spacing  *rate.Reservation
}

// reserve claims the earliest dispatch time that satisfies both constraints.
// Reservations are handed out in order, so dispatch times never go backwards.
func (l *Limiter) reserve() slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	at := l.now()
	if at.Before(l.last) {
		at = l.last
	}
	if l.limit > 0 && len(l.dispatches) == l.limit {
		if open := l.dispatches[0].Add(l.window); open.After(at) {
			at = open
		}
	}

	r := l.spacing.ReserveN(at, 1)
	at = at.Add(r.DelayFrom(at))

	s := slot{at: at, prevLast: l.last, spacing: r}
	l.last = at
	if l.limit > 0 {
		if len(l.dispatches) == l.limit {
			oldest := l.dispatches[0]
			s.evicted = &oldest
			l.dispatches = append(l.dispatches[1:], at)
		} else {
			l.dispatches = append(l.dispatches, at)
		}
	}
	return s
}

// release undoes a slot that was never used. Only the newest booking can be
// undone; once a later caller has planned around it the slot stays counted.
func (l *Limiter) release(s slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.Equal(s.at) {
		return
	}
	if n := len(l.dispatches); n > 0 && l.dispatches[n-1].Equal(s.at) {
		l.dispatches = l.dispatches[:n-1]
		if s.evicted != nil {
			l.dispatches = append([]time.Time{*s.evicted}, l.dispatches...)
		}
	}
	l.last = s.prevLast
	s.spacing.CancelAt(l.now())
}

// Snapshot reports how many dispatches fall inside the current window.
func (l *Limiter) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	inWindow := 0
	for _, t := range l.dispatches {
		if t.After(now.Add(-l.window)) {
			inWindow++
		}
	}
	return State{InWindow: inWindow, LastDispatch: l.last}
}

// Reset forgets every past dispatch.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dispatches = nil
	l.last = time.Time{}
	l.spacing = newSpacingLimiter(l.minSpacing)
}
