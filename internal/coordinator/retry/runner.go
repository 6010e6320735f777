package retry

import (
	"context"
	"time"
)

// Run calls fn until it reports that no retry is wanted, the policy is
// exhausted, or ctx is done while waiting between attempts. It returns the
// number of attempts made. fn receives the zero-based attempt number.
func Run(ctx context.Context, p Policy, fn func(attempt int) (retry bool)) int {
	attempts := 0
	for retryCount := 0; ; retryCount++ {
		attempts++
		if !fn(retryCount) {
			return attempts
		}
		if !p.ShouldRetry(retryCount) {
			return attempts
		}
		if err := Sleep(ctx, p.CalculateDelay(retryCount)); err != nil {
			return attempts
		}
	}
}

// Sleep waits for d or until ctx is done, whichever comes first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
