package reporting

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/coreengine/evaluationengine"
	"gpt4o-speed-bench/internal/logging"
)

const timestampLayout = "20060102_150405"

// Meta describes the run a report belongs to.
type Meta struct {
	RunID        string
	Backend      string
	Model        string
	Speeds       []float64
	Files        int
	WERThreshold float64
	Pricing      config.PricingConfig
	GeneratedAt  time.Time
}

// Artifacts holds the paths of the files written for one run. Chart is
// empty when visualization is off or the chart could not be drawn.
type Artifacts struct {
	CSV      string `json:"csv"`
	JSON     string `json:"json"`
	Markdown string `json:"markdown"`
	Chart    string `json:"chart,omitempty"`
}

// Map returns kind -> path for every written artifact.
func (a Artifacts) Map() map[string]string {
	m := map[string]string{}
	for kind, p := range map[string]string{"csv": a.CSV, "json": a.JSON, "markdown": a.Markdown, "chart": a.Chart} {
		if p != "" {
			m[kind] = p
		}
	}
	return m
}

// Paths lists the written artifact paths in a stable order.
func (a Artifacts) Paths() []string {
	var paths []string
	for _, p := range []string{a.CSV, a.JSON, a.Markdown, a.Chart} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Writer writes the result files for a run into one directory.
type Writer struct {
	dir       string
	visualize bool
}

// NewWriter creates a Writer for cfg.ResultsDir.
func NewWriter(cfg config.OutputConfig) *Writer {
	return &Writer{dir: cfg.ResultsDir, visualize: cfg.Visualize}
}

// WriteAll writes CSV, JSON and Markdown reports and, when enabled, the
// chart. A chart failure is logged and leaves Artifacts.Chart empty.
func (w *Writer) WriteAll(records []evaluationengine.TestRecord, meta Meta) (Artifacts, error) {
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("failed to create results directory: %w", err)
	}

	ts := meta.GeneratedAt.Format(timestampLayout)
	a := Artifacts{
		CSV:      filepath.Join(w.dir, "test_results_"+ts+".csv"),
		JSON:     filepath.Join(w.dir, "test_results_"+ts+".json"),
		Markdown: filepath.Join(w.dir, "test_report_"+ts+".md"),
	}

	if err := WriteCSV(a.CSV, records); err != nil {
		return Artifacts{}, err
	}
	if err := WriteJSON(a.JSON, records); err != nil {
		return Artifacts{}, err
	}
	if err := WriteMarkdown(a.Markdown, records, meta); err != nil {
		return Artifacts{}, err
	}

	if w.visualize {
		chart := filepath.Join(w.dir, "performance_analysis_"+ts+".png")
		switch err := WriteChart(chart, records); {
		case errors.Is(err, ErrNoChartData):
			logging.LogWarn("Skipping chart", zap.String("reason", err.Error()))
		case err != nil:
			logging.LogError(err, "Failed to create chart")
		default:
			a.Chart = chart
		}
	}

	logging.Logger.Info("Reports written",
		zap.String("component", "reporting"),
		zap.Strings("files", a.Paths()))
	return a, nil
}

var csvHeader = []string{
	"file", "speed", "status", "wer", "cer", "processing_time", "cost",
	"baseline_cost", "cost_savings", "original_duration", "processed_duration",
	"duration_reduction", "original_size", "processed_size", "substitutions",
	"deletions", "insertions", "hits", "reference_words", "input_tokens",
	"output_tokens", "total_tokens", "model", "error", "hypothesis", "reference",
}

// WriteCSV writes one row per record. Missing WER/CER are written as
// "undefined".
func WriteCSV(path string, records []evaluationengine.TestRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.File, formatFloat(r.Speed), string(r.Status), rateOrUndefined(r.WER), rateOrUndefined(r.CER),
			formatFloat(r.ProcessingTime), formatFloat(r.Cost), formatFloat(r.BaselineCost),
			formatFloat(r.CostSavings), formatFloat(r.OriginalDuration), formatFloat(r.ProcessedDuration),
			formatFloat(r.DurationReduction), strconv.FormatInt(r.OriginalSize, 10),
			strconv.FormatInt(r.ProcessedSize, 10), strconv.Itoa(r.Substitutions),
			strconv.Itoa(r.Deletions), strconv.Itoa(r.Insertions), strconv.Itoa(r.Hits),
			strconv.Itoa(r.ReferenceWords), strconv.Itoa(r.InputTokens),
			strconv.Itoa(r.OutputTokens), strconv.Itoa(r.TotalTokens),
			r.Model, r.Error, r.Hypothesis, r.Reference,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", r.File, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return f.Close()
}

// WriteJSON writes the records as an indented JSON array. Missing WER/CER
// are null.
func WriteJSON(path string, records []evaluationengine.TestRecord) error {
	if records == nil {
		records = []evaluationengine.TestRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func rateOrUndefined(v *float64) string {
	if v == nil {
		return "undefined"
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}
