package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"binance-setup-scanner/config"
)

// Policy is a bounded retry: MaxAttempts calls in total, Delay between them.
// Multiplier > 1 grows the delay exponentially up to MaxDelay.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration

	// Retryable reports whether err is worth another attempt; nil retries everything
	Retryable func(err error) bool
}

// FromConfig builds a policy from a retry config block
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		Delay:       cfg.Delay,
		Multiplier:  cfg.Multiplier,
		MaxDelay:    cfg.MaxDelay,
	}
}

// Once is a policy that never retries
func Once() Policy {
	return Policy{MaxAttempts: 1}
}

// ExhaustedError is returned when every attempt failed
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Permanent marks err so that Do stops retrying immediately
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.Multiplier <= 1 {
		b = backoff.NewConstantBackOff(p.Delay)
	} else {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.Delay
		exp.Multiplier = p.Multiplier
		exp.RandomizationFactor = 0
		exp.MaxElapsedTime = 0
		if p.MaxDelay > 0 {
			exp.MaxInterval = p.MaxDelay
		}
		exp.Reset()
		b = exp
	}

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Do runs fn until it succeeds, returns a permanent error, the attempts run
// out or ctx is done. The last error is wrapped in *ExhaustedError.
func (p Policy) Do(ctx context.Context, op string, logger zerolog.Logger, fn func(ctx context.Context) error) error {
	attempts := 0
	operation := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(err)
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempts).
			Int("max_attempts", p.MaxAttempts).
			Dur("retry_in", wait).
			Msg("Attempt failed, retrying")
	}

	err := backoff.RetryNotify(operation, p.backOff(ctx), notify)
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return &ExhaustedError{Op: op, Attempts: attempts, Err: err}
}

// Value runs fn under p and returns its result
func Value[T any](ctx context.Context, p Policy, op string, logger zerolog.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, logger, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
