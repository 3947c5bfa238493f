package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAIUsageTrackerAccumulatesAcrossCalls(t *testing.T) {
	tr := NewAIUsageTracker()
	tr.RecordCompletion("gpt-4o-mini", 100, 50, 10*time.Millisecond)
	tr.RecordCompletion("gpt-4o-mini", 200, 100, 30*time.Millisecond)

	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.TotalRequests)
	assert.Equal(t, 300, snap.PromptTokens)
	assert.Equal(t, 150, snap.CompletionTokens)
	assert.Equal(t, 450, snap.TotalTokens)
	assert.Greater(t, snap.EstimatedCostUSD, 0.0)
	assert.Equal(t, 20*time.Millisecond, snap.AverageLatency)
}

func TestAIUsageTrackerUnknownModelFallsBackToDefaultPricing(t *testing.T) {
	tr := NewAIUsageTracker()
	tr.RecordCompletion("some-future-model", 1000, 1000, time.Millisecond)

	known := NewAIUsageTracker()
	known.RecordCompletion("gpt-4o-mini", 1000, 1000, time.Millisecond)

	assert.Equal(t, known.Snapshot().EstimatedCostUSD, tr.Snapshot().EstimatedCostUSD)
}

func TestAIUsageTrackerReset(t *testing.T) {
	tr := NewAIUsageTracker()
	tr.RecordCompletion("gpt-4o-mini", 10, 10, time.Millisecond)
	tr.Reset()
	assert.Equal(t, AIMetrics{}, tr.Snapshot())
}
