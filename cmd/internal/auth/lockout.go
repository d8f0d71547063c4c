package auth

import (
	"sort"
	"sync"
	"time"
)

type lockoutStep struct {
	threshold int
	duration  time.Duration
}

// lockoutSteps returns the configured steps, most severe first.
func (c Config) lockoutSteps() []lockoutStep {
	steps := []lockoutStep{
		{c.LockoutSevereThreshold, c.LockoutSevereDuration},
		{c.LockoutLongThreshold, c.LockoutLongDuration},
		{c.LockoutShortThreshold, c.LockoutShortDuration},
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].threshold > steps[j].threshold })
	return steps
}

// lockoutSweepAt bounds the failure map; above it every check prunes all keys.
const lockoutSweepAt = 10_000

// lockout tracks recent login failures per normalized email in memory.
// A key is locked for the duration of the most severe step whose threshold
// its failure count has reached, measured from the latest failure.
type lockout struct {
	mu       sync.Mutex
	window   time.Duration
	steps    []lockoutStep
	failures map[string][]time.Time
}

func newLockout(cfg Config) *lockout {
	return &lockout{
		window:   cfg.LockoutWindow,
		steps:    cfg.lockoutSteps(),
		failures: make(map[string][]time.Time),
	}
}

// check reports whether key is locked at now and for how much longer.
func (l *lockout) check(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.failures) > lockoutSweepAt {
		for k := range l.failures {
			l.pruneLocked(k, now)
		}
	}

	recent := l.pruneLocked(key, now)
	if len(recent) == 0 {
		return false, 0
	}
	last := recent[len(recent)-1]

	for _, st := range l.steps {
		if st.threshold <= 0 || len(recent) < st.threshold {
			continue
		}
		if until := last.Add(st.duration); now.Before(until) {
			return true, until.Sub(now)
		}
		return false, 0
	}
	return false, 0
}

// fail records one failed attempt.
func (l *lockout) fail(key string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[key] = append(l.pruneLocked(key, now), now)
}

// reset forgets key after a successful login.
func (l *lockout) reset(key string) {
	l.mu.Lock()
	delete(l.failures, key)
	l.mu.Unlock()
}

func (l *lockout) pruneLocked(key string, now time.Time) []time.Time {
	list := l.failures[key]
	cut := now.Add(-l.window)
	i := 0
	for i < len(list) && !list[i].After(cut) {
		i++
	}
	if i == len(list) {
		delete(l.failures, key)
		return nil
	}
	list = list[i:]
	l.failures[key] = list
	return list
}
