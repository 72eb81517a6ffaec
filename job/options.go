package job

import "time"

// Options configures per-job behavior.
type Options struct {
	// MaxAttempts is the ceiling on execution attempts.
	MaxAttempts int

	// Timeout bounds a single attempt. Zero defers to the engine's
	// attempt timeout.
	Timeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{MaxAttempts: 3}
}

// Option is a functional option for configuring a job or definition.
type Option func(*Options)

// WithMaxAttempts sets the maximum number of attempts. Values below one
// are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxAttempts = n
		}
	}
}

// WithTimeout sets the per-attempt deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}
