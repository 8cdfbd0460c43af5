package notifykit

import (
	"math"
	"time"
)

// backoffDelay returns the wait before retry attempt n (1-based) under
// the given policy.
//
//	fixed:       baseDelay
//	linear:      baseDelay * n
//	exponential: baseDelay * 2^(n-1)
//
// Delays are capped at 5 minutes to keep a misconfigured policy from
// parking retries indefinitely.
func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	base := policy.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	var delay time.Duration
	switch policy.Backoff {
	case BackoffLinear:
		delay = base * time.Duration(attempt)
	case BackoffExponential:
		delay = time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	default:
		delay = base
	}

	const maxDelay = 5 * time.Minute
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
