package mediaq

import "time"

// Backoff strategy names accepted by Config.BackoffStrategy.
const (
	BackoffCappedJitter = "capped-jitter"
	BackoffConstant     = "constant"
	BackoffLinear       = "linear"
	BackoffExponential  = "exponential"
	BackoffFullJitter   = "full-jitter"
)

// Config holds configuration for the queue engine.
type Config struct {
	// Concurrency is the number of worker goroutines executing jobs.
	Concurrency int `json:"concurrency"`

	// QueueSize is the buffer of the pending-work channel. Submissions
	// block once it is full.
	QueueSize int `json:"queue_size"`

	// MaxAttempts is the default attempt ceiling for new jobs.
	MaxAttempts int `json:"max_attempts"`

	// BackoffStrategy selects the retry delay strategy.
	BackoffStrategy string `json:"backoff_strategy"`

	// BackoffInitial is the delay before the first retry.
	BackoffInitial time.Duration `json:"backoff_initial"`

	// BackoffMax caps the exponential part of the retry delay.
	BackoffMax time.Duration `json:"backoff_max"`

	// BackoffJitter is the exclusive upper bound of the random delay
	// added on top of the capped delay.
	BackoffJitter time.Duration `json:"backoff_jitter"`

	// AttemptTimeout bounds a single processor invocation. Zero means
	// no deadline.
	AttemptTimeout time.Duration `json:"attempt_timeout"`

	// ShutdownTimeout is the maximum time to wait for in-flight jobs
	// during graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// SubmitRate limits sustained submissions per second. Zero disables
	// admission limiting.
	SubmitRate float64 `json:"submit_rate"`

	// SubmitBurst is the token bucket size when SubmitRate is set.
	SubmitBurst int `json:"submit_burst"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     4,
		QueueSize:       1024,
		MaxAttempts:     3,
		BackoffStrategy: BackoffCappedJitter,
		BackoffInitial:  1 * time.Second,
		BackoffMax:      30 * time.Second,
		BackoffJitter:   500 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
	}
}
