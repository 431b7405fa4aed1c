package session

import (
	"context"
	"time"

	"github.com/petal-labs/mcpchat/core"
)

// AttemptFunc is one try of a retried operation. attempt starts at 1.
type AttemptFunc func(ctx context.Context, attempt int) error

// Retry runs fn until it succeeds, the policy is exhausted or ctx ends.
// The delay between attempts is fixed at policy.Backoff. It returns the
// number of attempts made and the last error.
func Retry(ctx context.Context, policy core.RetryPolicy, fn AttemptFunc) (int, error) {
	normalized := normalizeRetryPolicy(policy)
	var lastErr error

	for attempt := 1; attempt <= normalized.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == normalized.MaxAttempts || normalized.Backoff <= 0 {
			continue
		}

		timer := time.NewTimer(normalized.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return normalized.MaxAttempts, lastErr
}

func normalizeRetryPolicy(policy core.RetryPolicy) core.RetryPolicy {
	out := policy
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 1
	}
	if out.Backoff < 0 {
		out.Backoff = 0
	}
	return out
}
