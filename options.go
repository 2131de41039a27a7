package pushsub

import (
	"math/rand"
	"time"
)

const (
	DefaultBaseDelay         = time.Second
	DefaultKeepAliveInterval = 45 * time.Second
	recvBufferSize           = 64
)

type options struct {
	baseDelay         time.Duration
	keepAliveInterval time.Duration
	keepAliveMessage  KeepAliveMessageFactory
	backoff           BackoffCalculator
	random            func() float64
	clock             Clock
	intentPolicy      IntentPolicy
	metrics           *Metrics
}

// Option configures a ServerClient.
type Option func(*options)

// WithBaseDelay sets the unit of the reconnection backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.baseDelay = d
		}
	}
}

// WithKeepAliveInterval sets the heartbeat period. It must be shorter than the
// server's idle timeout. A non-positive interval disables the heartbeat.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(o *options) {
		o.keepAliveInterval = d
	}
}

// WithKeepAliveMessage replaces the default Ping heartbeat.
func WithKeepAliveMessage(f KeepAliveMessageFactory) Option {
	return func(o *options) {
		if f != nil {
			o.keepAliveMessage = f
		}
	}
}

// WithBackoff replaces the jittered exponential backoff entirely.
// WithBaseDelay and WithRandom have no effect when it is set.
func WithBackoff(b BackoffCalculator) Option {
	return func(o *options) {
		o.backoff = b
	}
}

// WithRandom sets the jitter source; it must return values in [0, 1).
func WithRandom(random func() float64) Option {
	return func(o *options) {
		if random != nil {
			o.random = random
		}
	}
}

// WithClock replaces the timers behind reconnection and the heartbeat.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithIntentPolicy chooses when a removed handler also drops the server subscription.
func WithIntentPolicy(p IntentPolicy) Option {
	return func(o *options) {
		o.intentPolicy = p
	}
}

// WithMetrics makes the client update m instead of a private, unregistered set.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		baseDelay:         DefaultBaseDelay,
		keepAliveInterval: DefaultKeepAliveInterval,
		keepAliveMessage:  NewKeepAliveMessageFactory(Ping{}),
		random:            rand.Float64,
		clock:             RealClock(),
		intentPolicy:      IntentPerCall,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.backoff == nil {
		o.backoff = JitteredExponentialBackoff(o.baseDelay, o.random)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics("pushsub")
	}
	return o
}
