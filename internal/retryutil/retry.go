// Package retryutil holds retry policies shared by the SQL and Redis backed components.
package retryutil

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// DatabaseOptions returns retry options for transient sqlite lock errors.
// Uses backoff (50ms, 100ms, 200ms) capped at 300ms.
func DatabaseOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(50 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsDatabaseLocked),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
}

// ConflictOptions returns retry options for optimistic transactions that
// lost a race. retryIf decides which errors count as a lost race.
func ConflictOptions(ctx context.Context, attempts uint, retryIf func(error) bool) []retry.Option {
	return []retry.Option{
		retry.Attempts(attempts),
		retry.Delay(5 * time.Millisecond),
		retry.MaxJitter(10 * time.Millisecond),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(retryIf),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
}

// Do executes fn with retry logic. Without options it uses DatabaseOptions.
// Returns the last error if all attempts fail.
func Do(ctx context.Context, fn func() error, opts ...retry.Option) error {
	if len(opts) == 0 {
		opts = DatabaseOptions(ctx)
	}
	return retry.Do(fn, opts...)
}

// IsDatabaseLocked returns true if the error indicates a sqlite lock.
func IsDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
