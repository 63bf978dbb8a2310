package sync

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates every remote call. Wait blocks until a call may proceed or
// ctx is done. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewLimiter returns a token bucket allowing calls requests per interval,
// with bursts of up to calls. A non-positive calls or interval disables limiting.
func NewLimiter(calls int, interval time.Duration) Limiter {
	if calls <= 0 || interval <= 0 {
		return unlimited{}
	}
	return rate.NewLimiter(rate.Every(interval/time.Duration(calls)), calls)
}

type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}
