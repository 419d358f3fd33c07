// Package retry runs a flaky boolean check a bounded number of times.
package retry

import (
	"context"
	"log/slog"
)

// Attempt performs one try. A returned error counts as a failed attempt.
type Attempt func(ctx context.Context) (bool, error)

// Policy configures how an attempt is repeated.
type Policy struct {
	// MaxAttempts is the upper bound on tries. Values below 1 are treated as 1.
	MaxAttempts int

	// Name identifies the operation in log output.
	Name string

	// Logger receives one entry per attempt. Defaults to slog.Default().
	Logger *slog.Logger
}

// WithRetry runs attempt up to maxAttempts times with the default logger and
// reports whether any attempt succeeded.
func WithRetry(ctx context.Context, attempt Attempt, maxAttempts int) bool {
	return Policy{MaxAttempts: maxAttempts}.Run(ctx, attempt)
}

// Run executes attempt until it returns true or the attempts are exhausted.
// The first attempt always runs. Later attempts are skipped once ctx is done.
// Exhaustion is reported only through the false return value.
func (p Policy) Run(ctx context.Context, attempt Attempt) bool {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := p.Name
	if name == "" {
		name = "operation"
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for i := 1; i <= maxAttempts; i++ {
		if i > 1 && ctx.Err() != nil {
			logger.Info("retry_aborted",
				"operation", name,
				"attempt", i,
				"max_attempts", maxAttempts,
				"reason", ctx.Err(),
			)
			return false
		}

		ok, err := attempt(ctx)
		switch {
		case err != nil:
			logger.Warn("retry_attempt_error",
				"operation", name,
				"attempt", i,
				"max_attempts", maxAttempts,
				"error", err,
			)
		case ok:
			logger.Debug("retry_attempt_succeeded",
				"operation", name,
				"attempt", i,
				"max_attempts", maxAttempts,
			)
			return true
		default:
			logger.Info("retry_attempt_failed",
				"operation", name,
				"attempt", i,
				"max_attempts", maxAttempts,
			)
		}
	}

	logger.Info("retry_exhausted", "operation", name, "max_attempts", maxAttempts)
	return false
}
