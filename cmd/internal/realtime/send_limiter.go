package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrSendDropped is returned when no send slot became free within the timeout.
var ErrSendDropped = errors.New("send dropped: limiter saturated")

// SendFunc performs one outbound send. ctx carries the per-send deadline.
type SendFunc func(ctx context.Context) error

// SendLimiter bounds concurrent outbound sends process-wide.
//
// Each send waits at most timeout for a slot and then gets at most timeout to
// complete. Sends are detached from the caller's cancellation: closing the
// originating connection does not abort sends to other clients.
type SendLimiter struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	metrics *Metrics

	wg sync.WaitGroup
}

// NewSendLimiter constructs a limiter. Non-positive inputs fall back to 10 slots / 2s.
func NewSendLimiter(maxInFlight int, timeout time.Duration, m *Metrics) *SendLimiter {
	if maxInFlight <= 0 {
		maxInFlight = 10
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SendLimiter{
		sem:     semaphore.NewWeighted(int64(maxInFlight)),
		timeout: timeout,
		metrics: m,
	}
}

// Go schedules send without blocking the caller.
func (l *SendLimiter) Go(ctx context.Context, send SendFunc) {
	ctx = context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = l.run(ctx, send)
	}()
}

// Do runs send on the calling goroutine under the same bound.
func (l *SendLimiter) Do(ctx context.Context, send SendFunc) error {
	return l.run(context.WithoutCancel(ctx), send)
}

// Wait blocks until every send scheduled with Go has finished.
func (l *SendLimiter) Wait() {
	l.wg.Wait()
}

func (l *SendLimiter) run(ctx context.Context, send SendFunc) error {
	acquireCtx, cancel := context.WithTimeout(ctx, l.timeout)
	err := l.sem.Acquire(acquireCtx, 1)
	cancel()
	if err != nil {
		l.metrics.send("dropped")
		return ErrSendDropped
	}
	defer l.sem.Release(1)

	sendCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := send(sendCtx); err != nil {
		l.metrics.send("failed")
		return err
	}
	l.metrics.send("sent")
	return nil
}
