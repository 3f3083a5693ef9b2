package resource

import (
	"context"
	"fmt"
	"time"

	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
)

// Limiter bounds concurrent generation calls with a fixed slot count and a
// bounded wait queue. Requests beyond the queue depth, or queued longer than
// the wait budget, fail with a timeout instead of waiting indefinitely.
type Limiter struct {
	slots   chan struct{}
	queue   chan struct{}
	maxWait time.Duration
}

func NewLimiter(slotCount, queueSize, waitSeconds int) *Limiter {
	if slotCount <= 0 {
		slotCount = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if waitSeconds <= 0 {
		waitSeconds = 30
	}
	return &Limiter{
		slots:   make(chan struct{}, slotCount),
		queue:   make(chan struct{}, slotCount+queueSize),
		maxWait: time.Duration(waitSeconds) * time.Second,
	}
}

func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	// Reserve a queue position first; a full queue rejects immediately.
	select {
	case l.queue <- struct{}{}:
	default:
		return nil, fmt.Errorf("%w: generation queue full", appErr.ErrTooMany)
	}

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()
	select {
	case l.slots <- struct{}{}:
		release := func() {
			<-l.slots
			<-l.queue
		}
		return release, nil
	case <-timer.C:
		<-l.queue
		return nil, fmt.Errorf("%w: timed out waiting for a generation slot", appErr.ErrTooMany)
	case <-ctx.Done():
		<-l.queue
		return nil, ctx.Err()
	}
}
