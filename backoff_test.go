package pushsub

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff(t *testing.T) {
	assert.Equal(t, 1.0, ExponentialBackoff(0))
	assert.Equal(t, 2.0, ExponentialBackoff(1))
	assert.Equal(t, 1024.0, ExponentialBackoff(10))
}

func TestJitteredExponentialBackoff(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Duration
		random   float64
		attempts int
		want     time.Duration
	}{
		{name: "first attempt full jitter", base: time.Second, random: 1, attempts: 0, want: time.Second},
		{name: "first attempt half jitter", base: time.Second, random: 0.5, attempts: 0, want: 500 * time.Millisecond},
		{name: "third attempt", base: time.Second, random: 1, attempts: 3, want: 8 * time.Second},
		{name: "zero jitter", base: time.Second, random: 0, attempts: 5, want: 0},
		{name: "compressed base", base: time.Millisecond, random: 0.25, attempts: 4, want: 4 * time.Millisecond},
		{name: "saturates", base: time.Second, random: 1, attempts: 200, want: time.Duration(math.MaxInt64)},
		{name: "saturates past float range", base: time.Second, random: 1, attempts: 2000, want: time.Duration(math.MaxInt64)},
		{name: "zero jitter past float range", base: time.Second, random: 0, attempts: 2000, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backoff := JitteredExponentialBackoff(tt.base, func() float64 { return tt.random })
			assert.Equal(t, tt.want, backoff(tt.attempts))
		})
	}
}

func TestJitteredExponentialBackoffNonDecreasing(t *testing.T) {
	backoff := JitteredExponentialBackoff(time.Second, func() float64 { return 0.7 })

	prev := time.Duration(0)
	for attempts := 0; attempts < 64; attempts++ {
		d := backoff(attempts)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempts)
		prev = d
	}
}
