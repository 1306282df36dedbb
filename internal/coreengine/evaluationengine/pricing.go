package evaluationengine

import (
	"time"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/coreengine/vendoradapters"
)

// Baseline heuristic for what the unmodified file would have cost on a
// token-priced model: ~1500 input tokens per MB of audio and 1.5 output
// tokens per word of an assumed 10000-word transcript.
const (
	baselineInputTokensPerMB = 1500.0
	baselineTranscriptWords  = 10000.0
	outputTokensPerWord      = 1.5
)

// CostModel prices transcriptions. Token-reporting backends are priced per
// token; the rest per minute of submitted audio.
type CostModel struct {
	cfg config.PricingConfig
}

// NewCostModel creates a CostModel.
func NewCostModel(cfg config.PricingConfig) CostModel {
	return CostModel{cfg: cfg}
}

// TokenCost prices input and output tokens in USD.
func (c CostModel) TokenCost(inputTokens, outputTokens float64) float64 {
	return inputTokens/1_000_000*c.cfg.InputCostPerM + outputTokens/1_000_000*c.cfg.OutputCostPerM
}

// MinuteCost prices audio by duration in USD.
func (c CostModel) MinuteCost(d time.Duration) float64 {
	return d.Minutes() * c.cfg.CostPerAudioMinute
}

// Actual is the cost of the call that produced t on audio of length processed.
func (c CostModel) Actual(t vendoradapters.Transcription, processed time.Duration) float64 {
	if t.TotalTokens > 0 || t.InputTokens > 0 || t.OutputTokens > 0 {
		return c.TokenCost(float64(t.InputTokens), float64(t.OutputTokens))
	}
	return c.MinuteCost(processed)
}

// Baseline estimates what the original file would have cost with the same
// pricing mode as t.
func (c CostModel) Baseline(t vendoradapters.Transcription, originalBytes int64, original time.Duration) float64 {
	if t.TotalTokens > 0 || t.InputTokens > 0 || t.OutputTokens > 0 {
		mb := float64(originalBytes) / (1024 * 1024)
		return c.TokenCost(mb*baselineInputTokensPerMB, baselineTranscriptWords*outputTokensPerWord)
	}
	return c.MinuteCost(original)
}

// Savings is the percentage saved relative to baseline, 0 when the
// baseline is zero.
func Savings(actual, baseline float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return (1 - actual/baseline) * 100
}
