package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket shared by every caller of one endpoint.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter returns a bucket refilled at r tokens per second holding at most b.
// A non-positive burst is raised to one so Wait can ever succeed.
func NewLimiter(r float64, b int) *Limiter {
	if b < 1 {
		b = 1
	}
	return &Limiter{inner: rate.NewLimiter(rate.Limit(r), b)}
}

func (l *Limiter) Allow(n int) bool {
	return l.inner.AllowN(time.Now(), n)
}

// Wait blocks until n tokens are available or ctx ends.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	return l.inner.WaitN(ctx, n)
}

// SetRate changes the refill rate and burst in place.
func (l *Limiter) SetRate(r float64, b int) {
	if b < 1 {
		b = 1
	}
	now := time.Now()
	l.inner.SetLimitAt(now, rate.Limit(r))
	l.inner.SetBurstAt(now, b)
}
