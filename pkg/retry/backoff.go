// Package retry provides the backoff used when a listener fails to accept
// connections for reasons expected to clear on their own.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines the backoff strategy interface
type BackoffStrategy interface {
	// NextDelay calculates the delay before the given attempt (1-based)
	NextDelay(attempt int) time.Duration
}

// FixedBackoff waits the same delay before every attempt
type FixedBackoff struct {
	delay  time.Duration
	jitter JitterFunc
}

// NewFixedBackoff creates a fixed backoff strategy
func NewFixedBackoff(delay time.Duration, opts ...Option) *FixedBackoff {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &FixedBackoff{delay: delay, jitter: o.jitter}
}

// NextDelay returns the fixed delay
func (b *FixedBackoff) NextDelay(attempt int) time.Duration {
	if b.jitter != nil {
		return b.jitter(b.delay)
	}
	return b.delay
}

// ExponentialBackoff multiplies the delay after every attempt, up to a
// ceiling
type ExponentialBackoff struct {
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
	jitter       JitterFunc
}

// NewExponentialBackoff creates an exponential backoff strategy doubling
// from initialDelay up to one second unless overridden
func NewExponentialBackoff(initialDelay time.Duration, opts ...Option) *ExponentialBackoff {
	o := options{multiplier: 2.0, maxDelay: time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return &ExponentialBackoff{
		initialDelay: initialDelay,
		multiplier:   o.multiplier,
		maxDelay:     o.maxDelay,
		jitter:       o.jitter,
	}
}

// NextDelay calculates the delay for the given attempt
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1))
	if delay > float64(b.maxDelay) || math.IsInf(delay, 1) {
		delay = float64(b.maxDelay)
	}

	d := time.Duration(delay)
	if b.jitter != nil {
		d = b.jitter(d)
	}
	return d
}

// JitterFunc randomizes a delay
type JitterFunc func(time.Duration) time.Duration

// FullJitter returns a random delay in [0, delay)
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(delay)))
}

// EqualJitter returns delay/2 plus a random value in [0, delay/2)
func EqualJitter(delay time.Duration) time.Duration {
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + time.Duration(rand.Int63n(int64(half)))
}

type options struct {
	multiplier float64
	maxDelay   time.Duration
	jitter     JitterFunc
}

// Option configures a backoff strategy
type Option func(*options)

// WithMultiplier sets the growth factor (exponential backoff only)
func WithMultiplier(multiplier float64) Option {
	return func(o *options) { o.multiplier = multiplier }
}

// WithMaxDelay sets the delay ceiling (exponential backoff only)
func WithMaxDelay(maxDelay time.Duration) Option {
	return func(o *options) { o.maxDelay = maxDelay }
}

// WithJitter sets the jitter function
func WithJitter(jitter JitterFunc) Option {
	return func(o *options) { o.jitter = jitter }
}
