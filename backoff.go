package pushsub

import (
	"math"
	"time"
)

// BackoffCalculator returns how long to wait before the next connection attempt,
// given how many consecutive attempts have already been scheduled since the last
// successful open.
type BackoffCalculator func(attempts int) time.Duration

// ExponentialBackoff is the unscaled growth factor 2^attempts.
func ExponentialBackoff(attempts int) float64 {
	return math.Pow(2.0, float64(attempts))
}

// JitteredExponentialBackoff waits random() * 2^attempts * base, where random
// returns a value in [0, 1). There is no cap on the number of attempts; the
// result saturates at the largest representable duration.
func JitteredExponentialBackoff(base time.Duration, random func() float64) BackoffCalculator {
	return func(attempts int) time.Duration {
		wait := random() * ExponentialBackoff(attempts) * float64(base)
		// 0 * +Inf once 2^attempts overflows.
		if math.IsNaN(wait) {
			return 0
		}
		if wait >= math.MaxInt64 {
			return time.Duration(math.MaxInt64)
		}
		if wait < 0 {
			return 0
		}
		return time.Duration(wait)
	}
}
