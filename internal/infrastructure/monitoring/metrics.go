package monitoring

import (
	"sync"
	"time"
)

// AIUsageTracker accumulates token counts and cost estimates across every
// OpenAI-backed Task node call in a process. It is a distinct concern from
// the Prometheus-backed run/node metrics in infrastructure/metrics: those
// count executions and durations, this prices them.
type AIUsageTracker struct {
	mu      sync.RWMutex
	metrics AIMetrics
}

// AIMetrics is a point-in-time snapshot of accumulated AI API usage.
type AIMetrics struct {
	TotalRequests    int           `json:"total_requests"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
	AverageLatency   time.Duration `json:"average_latency"`
}

// NewAIUsageTracker creates an empty tracker.
func NewAIUsageTracker() *AIUsageTracker {
	return &AIUsageTracker{}
}

// pricePerThousand is a rough per-model price table in USD per 1K tokens,
// prompt and completion priced separately. Models absent from the table
// fall back to the gpt-4o-mini rate rather than recording zero cost.
var pricePerThousand = map[string][2]float64{
	"gpt-4o-mini": {0.00015, 0.0006},
	"gpt-4o":      {0.0025, 0.01},
	"gpt-4":       {0.03, 0.06},
}

// RecordCompletion folds one OpenAI chat completion call into the running
// totals: token counts, a cost estimate from pricePerThousand, and the
// latency average.
func (t *AIUsageTracker) RecordCompletion(model string, promptTokens, completionTokens int, latency time.Duration) {
	prices, ok := pricePerThousand[model]
	if !ok {
		prices = pricePerThousand["gpt-4o-mini"]
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRequests++
	t.metrics.PromptTokens += promptTokens
	t.metrics.CompletionTokens += completionTokens
	t.metrics.TotalTokens += promptTokens + completionTokens
	t.metrics.EstimatedCostUSD += float64(promptTokens)/1000.0*prices[0] + float64(completionTokens)/1000.0*prices[1]

	totalLatency := time.Duration(t.metrics.TotalRequests-1) * t.metrics.AverageLatency
	t.metrics.AverageLatency = (totalLatency + latency) / time.Duration(t.metrics.TotalRequests)
}

// Snapshot returns a copy of the accumulated totals.
func (t *AIUsageTracker) Snapshot() AIMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}

// Reset clears all accumulated totals.
func (t *AIUsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = AIMetrics{}
}
