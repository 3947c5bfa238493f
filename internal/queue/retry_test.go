package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smilemakc/nodeflow/internal/domain"
)

func TestDelayNoneStrategyIsZero(t *testing.T) {
	p := domain.RetryPolicy{Strategy: domain.RetryNone, InitialDelayMs: 1000}
	assert.Equal(t, int64(0), int64(Delay(p, 1)))
}

func TestDelayExponentialGrowsAndCaps(t *testing.T) {
	p := domain.RetryPolicy{
		Strategy:       domain.RetryExponential,
		InitialDelayMs: 100,
		Multiplier:     2.0,
		MaxDelayMs:     1000,
	}
	for attempt := 1; attempt <= 10; attempt++ {
		d := Delay(p, attempt)
		assert.LessOrEqual(t, d.Milliseconds(), int64(1250)) // cap + 25% jitter
	}
}

func TestIsRetryableAllowDenyLists(t *testing.T) {
	p := domain.RetryPolicy{RetryOn: []string{"timeout"}}
	assert.True(t, IsRetryable(p, "timeout"))
	assert.False(t, IsRetryable(p, "configuration"))

	p2 := domain.RetryPolicy{DoNotRetryOn: []string{"configuration"}}
	assert.False(t, IsRetryable(p2, "configuration"))
	assert.True(t, IsRetryable(p2, "timeout"))
}
