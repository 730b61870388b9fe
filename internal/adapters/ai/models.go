package ai

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// ModelInfo describes the capabilities and pricing of a model.
type ModelInfo struct {
	Provider        ProviderName
	Name            string  // Provider-specific model identifier
	Family          string  // Family/category name (e.g., "gpt-4o")
	MaxTokens       int     // Maximum context length
	InputCostPer1K  float64 // USD per 1K input tokens
	OutputCostPer1K float64 // USD per 1K output tokens
}

var catalog = []ModelInfo{
	{
		Provider:        ProviderNameOpenAI,
		Name:            ModelGPT4oMini,
		Family:          "gpt-4o",
		MaxTokens:       128000,
		InputCostPer1K:  0.00015,
		OutputCostPer1K: 0.0006,
	},
	{
		Provider:        ProviderNameOpenAI,
		Name:            ModelGPT4o,
		Family:          "gpt-4o",
		MaxTokens:       128000,
		InputCostPer1K:  0.0025,
		OutputCostPer1K: 0.01,
	},
	{
		Provider:        ProviderNameDeepSeek,
		Name:            ModelDeepSeekChat,
		Family:          "deepseek-v3",
		MaxTokens:       64000,
		InputCostPer1K:  0.00027,
		OutputCostPer1K: 0.0011,
	},
}

// LookupModel returns catalog metadata for a model name.
func LookupModel(name string) (ModelInfo, error) {
	for _, m := range catalog {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return ModelInfo{}, errors.Wrapf(errors.ErrNotFound, "model %s not in catalog", name)
}

// ModelFor returns catalog metadata or a zero-cost entry for unknown models,
// so that custom deployments behind AI_BASE_URL still work.
func ModelFor(provider ProviderName, name string) ModelInfo {
	if m, err := LookupModel(name); err == nil {
		return m
	}
	return ModelInfo{Provider: provider, Name: name, Family: name}
}

// ProviderUsage captures usage metrics for a provider.
type ProviderUsage struct {
	Model        string
	Provider     string
	Calls        int64
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// UsageTracker tracks token and cost usage per provider/model.
type UsageTracker struct {
	mu    sync.Mutex
	usage map[string]*ProviderUsage
}

// NewUsageTracker creates a new tracker instance.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{usage: make(map[string]*ProviderUsage)}
}

// Record calculates cost based on model pricing and records the usage.
// It returns the cost of this call alone.
func (t *UsageTracker) Record(model ModelInfo, inputTokens int64, outputTokens int64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := fmt.Sprintf("%s:%s", model.Provider, model.Name)
	entry, ok := t.usage[key]
	if !ok {
		entry = &ProviderUsage{Model: model.Name, Provider: model.Provider.String()}
		t.usage[key] = entry
	}

	cost := calculateCost(model, inputTokens, outputTokens)
	entry.Calls++
	entry.InputTokens += inputTokens
	entry.OutputTokens += outputTokens
	entry.CostUSD += cost

	return cost
}

// Snapshot returns a copy of the current usage map.
func (t *UsageTracker) Snapshot() map[string]ProviderUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	copyMap := make(map[string]ProviderUsage, len(t.usage))
	for k, v := range t.usage {
		copyMap[k] = *v
	}

	return copyMap
}

func calculateCost(model ModelInfo, inputTokens int64, outputTokens int64) float64 {
	return (float64(inputTokens)/1000.0)*model.InputCostPer1K + (float64(outputTokens)/1000.0)*model.OutputCostPer1K
}
