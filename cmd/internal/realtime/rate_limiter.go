package realtime

import (
	"sync"
	"time"
)

// frameLimiter caps inbound frames per connection over a sliding window.
// It keeps the arrival times of the last limit accepted frames in a ring.
type frameLimiter struct {
	mu     sync.Mutex
	ring   []time.Time
	next   int
	filled int
	window time.Duration
}

func newFrameLimiter(limit int, window time.Duration) *frameLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &frameLimiter{
		ring:   make([]time.Time, limit),
		window: window,
	}
}

// Allow records a frame arriving at now and reports whether it is within budget.
// Rejected frames are not recorded.
func (l *frameLimiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.filled == len(l.ring) {
		// ring[next] is the oldest accepted frame.
		if now.Sub(l.ring[l.next]) < l.window {
			return false
		}
	} else {
		l.filled++
	}
	l.ring[l.next] = now
	l.next = (l.next + 1) % len(l.ring)
	return true
}
