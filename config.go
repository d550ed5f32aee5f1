package redlock

import "time"

// Defaults for Settings, mirroring the source library's tuning.
const (
	DefaultDriftFactor                 = 0.01
	DefaultRetryCount                  = 10
	DefaultRetryDelay                  = 200 * time.Millisecond
	DefaultRetryJitter                 = 100 * time.Millisecond
	DefaultAutomaticExtensionThreshold = 500 * time.Millisecond
	DefaultDB                          = 0

	// UnboundedRetries, passed as Settings.RetryCount, tells the Retry
	// Engine never to give up on its own; only context cancellation stops
	// it.
	UnboundedRetries = -1
)

// Settings configures the drift adjustment, retry/backoff behavior, and
// target database of a Manager, or overrides it for a single call.
type Settings struct {
	// DriftFactor is the fraction of duration subtracted from the
	// effective expiration to tolerate clock skew and TTL granularity.
	DriftFactor float64

	// RetryCount is the maximum number of additional attempts after the
	// first. UnboundedRetries (-1) means no limit.
	RetryCount int

	// RetryDelay is the base inter-attempt delay.
	RetryDelay time.Duration

	// RetryJitter is the symmetric additive jitter bound applied to
	// RetryDelay.
	RetryJitter time.Duration

	// AutomaticExtensionThreshold is how long before expiration the
	// scoped holder (Use) schedules its next extension attempt.
	AutomaticExtensionThreshold time.Duration

	// DB is the server-side database index. Values outside [0,15] are
	// silently coerced to 0 by the Server Adapter.
	DB int
}

// DefaultSettings returns the library's baseline Settings.
func DefaultSettings() Settings {
	return Settings{
		DriftFactor:                 DefaultDriftFactor,
		RetryCount:                  DefaultRetryCount,
		RetryDelay:                  DefaultRetryDelay,
		RetryJitter:                 DefaultRetryJitter,
		AutomaticExtensionThreshold: DefaultAutomaticExtensionThreshold,
		DB:                          DefaultDB,
	}
}

// Option overrides one field of a Manager's baseline Settings, or of a
// single call's effective Settings. The naming follows the source
// library's own redsync.With* option idiom.
type Option func(*Settings)

// WithDriftFactor overrides Settings.DriftFactor.
func WithDriftFactor(f float64) Option {
	return func(s *Settings) { s.DriftFactor = f }
}

// WithRetryCount overrides Settings.RetryCount.
func WithRetryCount(n int) Option {
	return func(s *Settings) { s.RetryCount = n }
}

// WithRetryDelay overrides Settings.RetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Settings) { s.RetryDelay = d }
}

// WithRetryJitter overrides Settings.RetryJitter.
func WithRetryJitter(d time.Duration) Option {
	return func(s *Settings) { s.RetryJitter = d }
}

// WithAutomaticExtensionThreshold overrides Settings.AutomaticExtensionThreshold.
func WithAutomaticExtensionThreshold(d time.Duration) Option {
	return func(s *Settings) { s.AutomaticExtensionThreshold = d }
}

// WithDB overrides Settings.DB.
func WithDB(db int) Option {
	return func(s *Settings) { s.DB = db }
}

// apply returns a copy of s with every opt applied in order.
func (s Settings) apply(opts ...Option) Settings {
	out := s
	for _, opt := range opts {
		opt(&out)
	}

	return out
}

// maxAttempts returns the total number of attempts the Retry Engine may
// make: the first attempt plus up to RetryCount retries. A negative
// result (only ever exactly -1) means the caller should loop without a
// count-based bound.
func (s Settings) maxAttempts() int {
	if s.RetryCount == UnboundedRetries {
		return -1
	}

	return s.RetryCount + 1
}
