package redlock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSettings_Apply_OverridesInOrder(t *testing.T) {
	t.Parallel()

	s := DefaultSettings().apply(WithRetryCount(2), WithDB(3), WithRetryCount(5))

	assert.Equal(t, 5, s.RetryCount)
	assert.Equal(t, 3, s.DB)
}

func TestSettings_MaxAttempts(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 11, DefaultSettings().maxAttempts())
	assert.Equal(t, 1, DefaultSettings().apply(WithRetryCount(0)).maxAttempts())
	assert.Equal(t, -1, DefaultSettings().apply(WithRetryCount(UnboundedRetries)).maxAttempts())
}

func TestNextDelay_StaysWithinJitterBound(t *testing.T) {
	t.Parallel()

	s := DefaultSettings().apply(WithRetryDelay(100*time.Millisecond), WithRetryJitter(20*time.Millisecond))

	for i := 0; i < 100; i++ {
		d := nextDelay(s)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestNextDelay_NeverNegative(t *testing.T) {
	t.Parallel()

	s := DefaultSettings().apply(WithRetryDelay(5*time.Millisecond), WithRetryJitter(50*time.Millisecond))

	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, nextDelay(s), time.Duration(0))
	}
}

func TestComputeExpiration_AppliesDrift(t *testing.T) {
	t.Parallel()

	start := time.UnixMilli(1_000_000)
	duration := 10 * time.Second

	settings := DefaultSettings()

	exp := computeExpiration(start, duration, settings)

	wantDrift := int64(10_000*settings.DriftFactor+0.5) + 2
	assert.Equal(t, start.Add(duration).UnixMilli()-wantDrift, exp)
	assert.LessOrEqual(t, exp, start.Add(duration).UnixMilli()-2)
}
