package evaluationengine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/coreengine/audioprocessor"
	"gpt4o-speed-bench/internal/coreengine/metricscalculator"
	"gpt4o-speed-bench/internal/coreengine/vendoradapters"
	"gpt4o-speed-bench/internal/dataset"
	"gpt4o-speed-bench/internal/logging"
)

// AudioProcessor is the part of audioprocessor.Processor the engine needs.
type AudioProcessor interface {
	ChangeSpeed(ctx context.Context, inputPath string, factor float64) (string, error)
	Probe(ctx context.Context, path string) (audioprocessor.AudioInfo, error)
}

// Engine runs (file, speed) combinations one at a time.
type Engine struct {
	transcriber       vendoradapters.Transcriber
	audio             AudioProcessor
	pricing           CostModel
	timeout           time.Duration
	transcodeBaseline bool
	now               func() time.Time
}

// NewEngine creates an Engine from explicit collaborators.
func NewEngine(cfg *config.Config, transcriber vendoradapters.Transcriber, audio AudioProcessor) *Engine {
	return &Engine{
		transcriber:       transcriber,
		audio:             audio,
		pricing:           NewCostModel(cfg.Pricing),
		timeout:           cfg.Transcriber.Timeout,
		transcodeBaseline: cfg.Audio.TranscodeBaseline,
		now:               time.Now,
	}
}

// RunBenchmark runs every item at every speed, sequentially. Failures are
// recorded and the loop continues. Cancelling ctx stops the loop after the
// current combination; records collected so far are returned. onRecord, if
// not nil, is called with each record as soon as it exists.
func (e *Engine) RunBenchmark(ctx context.Context, items []dataset.Item, speeds []float64, onRecord func(TestRecord)) []TestRecord {
	total := len(items) * len(speeds)
	records := make([]TestRecord, 0, total)
	emit := func(r TestRecord) {
		records = append(records, r)
		if onRecord != nil {
			onRecord(r)
		}
		logging.Logger.Info("Progress",
			zap.String("component", "evaluation"),
			zap.Int("done", len(records)),
			zap.Int("total", total))
	}

	logging.Logger.Info("Running tests",
		zap.Int("files", len(items)),
		zap.Float64s("speeds", speeds),
		zap.String("backend", e.transcriber.Name()))

	for _, item := range items {
		reference, err := dataset.LoadTranscript(item.TranscriptPath)
		if err != nil {
			logging.LogError(err, "Failed to load reference transcript", zap.String("file", item.Name))
		}

		for _, speed := range speeds {
			if ctx.Err() != nil {
				logging.LogWarn("Benchmark interrupted",
					zap.Int("completed", len(records)), zap.Int("total", total))
				return records
			}
			if err != nil {
				emit(TestRecord{
					File:      filepath.Base(item.AudioPath),
					Speed:     speed,
					Status:    StatusFailed,
					Error:     fmt.Sprintf("failed to load reference transcript: %v", err),
					StartedAt: e.now(),
				})
				continue
			}
			emit(e.RunSingleTest(ctx, item.AudioPath, reference, speed))
		}
	}

	logging.Logger.Info("Benchmark finished", zap.Int("records", len(records)))
	return records
}

// RunSingleTest processes one audio file at one speed and never returns an
// error: problems become a StatusFailed record carrying whatever was
// measured before the failure.
func (e *Engine) RunSingleTest(ctx context.Context, audioPath, reference string, speed float64) TestRecord {
	file := filepath.Base(audioPath)
	rec := TestRecord{
		File:      file,
		Speed:     speed,
		Reference: reference,
		StartedAt: e.now(),
	}
	fail := func(stage string, err error) TestRecord {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		logging.LogError(err, "Test failed",
			zap.String("file", file), zap.Float64("speed", speed), zap.String("stage", stage))
		return rec
	}

	logging.LogTestCase(file, speed, "start")

	original, err := e.audio.Probe(ctx, audioPath)
	if err != nil {
		return fail("probe", err)
	}
	rec.OriginalDuration = original.Duration.Seconds()
	rec.OriginalSize = original.SizeBytes

	processedPath := audioPath
	if speed != 1.0 || e.transcodeBaseline {
		processedPath, err = e.audio.ChangeSpeed(ctx, audioPath, speed)
		if err != nil {
			return fail("speed_change", err)
		}
	}

	processed := original
	if processedPath != audioPath {
		processed, err = e.audio.Probe(ctx, processedPath)
		if err != nil {
			return fail("probe", err)
		}
	}
	rec.ProcessedDuration = processed.Duration.Seconds()
	rec.ProcessedSize = processed.SizeBytes
	if original.Duration > 0 {
		rec.DurationReduction = (1 - processed.Duration.Seconds()/original.Duration.Seconds()) * 100
	}

	logging.LogTestCase(file, speed, "transcribe", zap.String("audio", filepath.Base(processedPath)))
	tctx, cancel := context.WithTimeout(ctx, e.timeout)
	start := time.Now()
	transcription, err := e.transcriber.Transcribe(tctx, processedPath)
	rec.ProcessingTime = time.Since(start).Seconds()
	cancel()
	if err != nil {
		return fail("transcribe", fmt.Errorf("transcription failed: %w", err))
	}

	rec.Hypothesis = transcription.Text
	rec.Model = transcription.Model
	rec.InputTokens = transcription.InputTokens
	rec.OutputTokens = transcription.OutputTokens
	rec.TotalTokens = transcription.TotalTokens
	rec.Cost = e.pricing.Actual(transcription, processed.Duration)
	rec.BaselineCost = e.pricing.Baseline(transcription, original.SizeBytes, original.Duration)
	rec.CostSavings = Savings(rec.Cost, rec.BaselineCost)

	score, err := metricscalculator.CalculateErrorRates(reference, transcription.Text)
	switch {
	case errors.Is(err, metricscalculator.ErrEmptyReference):
		rec.Status = StatusUndefined
		rec.Error = err.Error()
		logging.LogWarn("Error rate undefined", zap.String("file", file), zap.Float64("speed", speed))
		return rec
	case err != nil:
		return fail("score", err)
	}

	wer, cer := score.WER, score.CER
	rec.Status = StatusOK
	rec.WER = &wer
	rec.CER = &cer
	rec.Substitutions = score.Substitutions
	rec.Deletions = score.Deletions
	rec.Insertions = score.Insertions
	rec.Hits = score.Hits
	rec.ReferenceWords = score.ReferenceLength
	analysis := metricscalculator.AnalyzeErrors(reference, transcription.Text)
	rec.ErrorAnalysis = &analysis

	logging.LogTestCase(file, speed, "done",
		zap.Float64("wer", wer),
		zap.Float64("cer", cer),
		zap.Float64("processing_time", rec.ProcessingTime),
		zap.Float64("cost", rec.Cost))
	return rec
}
