package scorer

import (
	"context"
	"log/slog"
	"time"

	"github.com/framesift/framesift/internal/gate"
)

// RetryPolicy bounds the conversation with the backend for one frame.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget per frame.
	MaxAttempts int
	// MalformedAttempts is the smaller budget for malformed responses.
	MalformedAttempts int
	// InitialBackoff is the delay before the second attempt; it doubles
	// after each failure.
	InitialBackoff time.Duration
}

// DefaultRetryPolicy returns the repository defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		MalformedAttempts: 2,
		InitialBackoff:    500 * time.Millisecond,
	}
}

// RetryingClient wraps a Scorer with bounded retry, exponential backoff,
// and the shared single-flight gate. Exhausting retries yields a
// KindExhausted error the orchestrator records as a skipped frame.
type RetryingClient struct {
	scorer Scorer
	gate   *gate.Gate
	policy RetryPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryingClient wires a scorer to the job-wide gate.
func NewRetryingClient(s Scorer, g *gate.Gate, policy RetryPolicy, logger *slog.Logger) *RetryingClient {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.MalformedAttempts < 1 {
		policy.MalformedAttempts = 1
	}
	if policy.MalformedAttempts > policy.MaxAttempts {
		policy.MalformedAttempts = policy.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingClient{
		scorer: s,
		gate:   g,
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Call scores one frame, holding the gate only for the duration of each
// attempt so backoff waits never starve other jobs.
func (c *RetryingClient) Call(ctx context.Context, imagePath string) (Result, error) {
	var lastErr error
	attempts := 0
	malformed := 0
	backoff := c.policy.InitialBackoff

	for attempts < c.policy.MaxAttempts {
		if err := c.gate.Acquire(ctx); err != nil {
			return Result{}, err
		}
		result, err := c.scorer.Score(ctx, imagePath)
		c.gate.Release()

		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		kind, ok := KindOf(err)
		if !ok {
			// Unclassified failures (e.g. unreadable frame file) are not
			// worth re-submitting.
			return Result{}, err
		}

		attempts++
		lastErr = err
		if kind == KindMalformed {
			malformed++
			if malformed >= c.policy.MalformedAttempts {
				break
			}
		}
		if attempts >= c.policy.MaxAttempts {
			break
		}

		c.logger.Warn("score attempt failed, retrying",
			"attempt", attempts, "kind", string(kind), "backoff", backoff, "error", err)
		if err := c.sleep(ctx, backoff); err != nil {
			return Result{}, err
		}
		backoff *= 2
	}

	return Result{}, &Error{Kind: KindExhausted, Err: lastErr}
}

// IsExhausted reports whether err marks a permanent per-frame failure.
func IsExhausted(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindExhausted
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
