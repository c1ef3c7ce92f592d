package fetch

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum spacing between requests to one source.
type Throttle struct {
	mu      sync.Mutex
	spacing time.Duration
	last    time.Time
	now     func() time.Time
}

// NewThrottle allows at most requests calls per window, evenly spaced.
// A non-positive window or request count disables throttling. Spacing rounds
// up so requests calls never fit inside less than window.
func NewThrottle(window time.Duration, requests int) *Throttle {
	var spacing time.Duration
	if window > 0 && requests > 0 {
		n := time.Duration(requests)
		spacing = (window + n - 1) / n
	}
	return &Throttle{spacing: spacing, now: time.Now}
}

// Spacing returns the minimum gap between two requests.
func (t *Throttle) Spacing() time.Duration { return t.spacing }

// Wait blocks until the next request slot and reserves it.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	now := t.now()
	next := t.last.Add(t.spacing)
	if next.Before(now) {
		next = now
	}
	t.last = next
	t.mu.Unlock()

	delay := next.Sub(now)
	if delay <= 0 {
		return nil
	}
	return sleep(ctx, delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
