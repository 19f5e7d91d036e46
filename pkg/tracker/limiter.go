package tracker

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces result submissions. Wait is called before a submission
// is sent and Done after the tracker accepted it.
type Limiter interface {
	Wait(ctx context.Context) error
	Done()
}

// IntervalLimiter keeps a fixed pause between the completion of one
// accepted submission and the start of the next.
type IntervalLimiter struct {
	interval time.Duration
	limiter  *rate.Limiter
}

var _ Limiter = (*IntervalLimiter)(nil)

// NewIntervalLimiter returns a limiter that lets the first submission
// through immediately. A zero interval disables throttling.
func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	if interval <= 0 {
		return &IntervalLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}

	return &IntervalLimiter{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Interval returns the configured pause.
func (l *IntervalLimiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until interval has passed since the last Done. It does not
// take the token; Done does.
func (l *IntervalLimiter) Wait(ctx context.Context) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	for {
		missing := 1 - l.limiter.Tokens()
		if missing <= 0 {
			return nil
		}

		timer := time.NewTimer(time.Duration(missing * float64(l.interval)))

		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Done takes the token, so the next Wait blocks for a full interval from
// now.
func (l *IntervalLimiter) Done() {
	if l.interval <= 0 {
		return
	}

	l.limiter.ReserveN(time.Now(), 1)
}
