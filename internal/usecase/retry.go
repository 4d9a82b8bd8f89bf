package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ebook-queue/internal/config"
	"ebook-queue/internal/domain"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy bounds one chunk's Generator calls: Attempts tries, each under its
// own timeout growing by TimeoutMultiplier, separated by an exponential delay.
type RetryPolicy struct {
	Attempts          uint
	BaseTimeout       time.Duration
	TimeoutMultiplier float64
	MaxTimeout        time.Duration
	BaseDelay         time.Duration
	MaxDelay          time.Duration
}

func RetryPolicyFromConfig(g config.GenerationConfig) RetryPolicy {
	return RetryPolicy{
		Attempts:          uint(g.MaxRetries),
		BaseTimeout:       g.BaseTimeout,
		TimeoutMultiplier: g.TimeoutMultiplier,
		MaxTimeout:        g.MaxTimeout,
		BaseDelay:         g.BaseDelay,
		MaxDelay:          g.MaxDelay,
	}
}

// AttemptTimeout is the deadline for 1-based attempt n.
func (p RetryPolicy) AttemptTimeout(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := time.Duration(float64(p.BaseTimeout) * math.Pow(p.TimeoutMultiplier, float64(n-1)))
	if p.MaxTimeout > 0 && (d > p.MaxTimeout || d <= 0) {
		return p.MaxTimeout
	}
	return d
}

// Do runs fn until it succeeds, the attempts run out, ctx ends, or fn returns an
// error wrapping domain.ErrGeneratorUnavailable. onFail, if set, sees every
// failed attempt (including the last) with its 1-based number.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error, onFail func(attempt int, err error)) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	n := 0
	return retry.Do(
		func() error {
			n++
			timeout := p.AttemptTimeout(n)
			actx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := fn(actx, n)
			if err == nil {
				return nil
			}
			if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				err = fmt.Errorf("attempt %d timed out after %s: %w", n, timeout, err)
			}
			if onFail != nil {
				onFail(n, err)
			}
			if errors.Is(err, domain.ErrGeneratorUnavailable) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.BaseDelay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
