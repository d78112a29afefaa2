package retry

import (
	"errors"
	"time"
)

// temporary is implemented by errors that know whether they represent
// a transient condition, mirroring the net.Error convention. The
// Database and HttpApi presets use it to build their predicates.
type temporary interface {
	Temporary() bool
}

// nonRetryable is implemented by errors the caller has explicitly
// marked as never worth retrying (validation failures and the like).
type nonRetryable interface {
	Retryable() bool
}

func classify(err error) bool {
	var nr nonRetryable
	if errors.As(err, &nr) {
		return nr.Retryable()
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

// Conservative: 2 retries, fixed 500ms, 10s budget.
func Conservative() Config {
	return Config{
		MaxAttempts:       3, // 1 initial + 2 retries
		InitialDelay:      500 * time.Millisecond,
		MaxTotalRetryTime: 10 * time.Second,
		Strategy:          Fixed,
	}
}

// Aggressive: 5 retries, exp+jitter starting 200ms, 2min budget.
func Aggressive() Config {
	return Config{
		MaxAttempts:       6,
		InitialDelay:      200 * time.Millisecond,
		MaxTotalRetryTime: 2 * time.Minute,
		Strategy:          ExponentialJitter,
	}
}

// Database: 3 retries, exponential starting 1s, 30s budget. Its
// predicate is classify, the same one HttpApi uses: it excludes errors
// that report themselves non-retryable or non-temporary and has no
// datastore-specific rules.
func Database() Config {
	return Config{
		MaxAttempts:       4,
		InitialDelay:      time.Second,
		MaxTotalRetryTime: 30 * time.Second,
		Strategy:          Exponential,
		RetryIf:           classify,
	}
}

// HttpApi: 4 retries, exp+jitter starting 750ms, 45s budget. Its
// predicate is classify, the same one Database uses: it excludes errors
// that report themselves non-retryable or non-temporary and has no
// HTTP-specific rules.
func HttpApi() Config {
	return Config{
		MaxAttempts:       5,
		InitialDelay:      750 * time.Millisecond,
		MaxTotalRetryTime: 45 * time.Second,
		Strategy:          ExponentialJitter,
		RetryIf:           classify,
	}
}
