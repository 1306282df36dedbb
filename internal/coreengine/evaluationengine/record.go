package evaluationengine

import (
	"time"

	"gpt4o-speed-bench/internal/coreengine/metricscalculator"
)

// Status tags the outcome of one (file, speed) combination.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
	// StatusUndefined means transcription worked but the reference is empty
	// after normalization, so no error rate exists.
	StatusUndefined Status = "undefined"
)

// TestRecord is the result of transcribing one file at one speed.
// WER and CER are nil unless Status is StatusOK. Durations are seconds.
type TestRecord struct {
	File   string  `json:"file"`
	Speed  float64 `json:"speed"`
	Status Status  `json:"status"`
	Error  string  `json:"error,omitempty"`

	Hypothesis string `json:"hypothesis"`
	Reference  string `json:"reference"`

	WER            *float64 `json:"wer"`
	CER            *float64 `json:"cer"`
	Substitutions  int      `json:"substitutions"`
	Deletions      int      `json:"deletions"`
	Insertions     int      `json:"insertions"`
	Hits           int      `json:"hits"`
	ReferenceWords int      `json:"reference_words"`

	// ErrorAnalysis lists the substituted, deleted and inserted words of
	// scored records. It is not kept in run history.
	ErrorAnalysis *metricscalculator.ErrorAnalysis `json:"error_analysis,omitempty"`

	OriginalDuration  float64 `json:"original_duration"`
	ProcessedDuration float64 `json:"processed_duration"`
	DurationReduction float64 `json:"duration_reduction"`
	OriginalSize      int64   `json:"original_size"`
	ProcessedSize     int64   `json:"processed_size"`
	ProcessingTime    float64 `json:"processing_time"`

	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost"`
	BaselineCost float64 `json:"baseline_cost"`
	CostSavings  float64 `json:"cost_savings"`

	StartedAt time.Time `json:"started_at"`
}

// Scored reports whether the record carries WER/CER values.
func (r TestRecord) Scored() bool {
	return r.Status == StatusOK && r.WER != nil
}
