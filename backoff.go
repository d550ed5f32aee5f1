package redlock

import (
	"math/rand/v2"
	"time"
)

// nextDelay samples the Retry Engine's inter-attempt delay: RetryDelay
// plus a symmetric uniform sample in [-RetryJitter, +RetryJitter],
// clamped to zero so a large negative jitter draw never produces a
// negative sleep.
func nextDelay(s Settings) time.Duration {
	if s.RetryJitter <= 0 {
		if s.RetryDelay < 0 {
			return 0
		}

		return s.RetryDelay
	}

	bound := int64(s.RetryJitter)
	jitter := rand.Int64N(2*bound+1) - bound

	d := s.RetryDelay + time.Duration(jitter)
	if d < 0 {
		return 0
	}

	return d
}
