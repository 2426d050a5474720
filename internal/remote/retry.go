package remote

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy bounds how a remote call is retried. Every remote call the
// sync engine makes runs under a policy; attempts are capped so a call
// eventually fails explicitly instead of hanging.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
}

// DefaultRetryPolicy suits a terminal on flaky shop Wi-Fi: three tries,
// short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Do runs fn under the policy, backing off exponentially with jitter
// between attempts.
//
// Errors that retrying cannot fix are returned immediately: a missing
// table stays missing, a constraint violation stays violated, and a
// cancelled context stops the loop.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTableMissing) || errors.Is(err, ErrConstraint) || errors.Is(err, ErrNoRows) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.backoff(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	delay := base << (attempt - 1)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	// Full jitter keeps a fleet of terminals from retrying in lockstep.
	// The cap applies after jitter too, so MaxDelay is a real ceiling.
	jittered := time.Duration(rand.Int63n(int64(delay)) + int64(delay)/2)
	if p.MaxDelay > 0 && jittered > p.MaxDelay {
		jittered = p.MaxDelay
	}
	return jittered
}
