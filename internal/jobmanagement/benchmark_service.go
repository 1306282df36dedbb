package jobmanagement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/coreengine/evaluationengine"
	"gpt4o-speed-bench/internal/dataset"
	"gpt4o-speed-bench/internal/datastore"
	"gpt4o-speed-bench/internal/logging"
	"gpt4o-speed-bench/internal/reporting"
)

// ErrNoRecords is returned when a run finishes without a single test record.
var ErrNoRecords = errors.New("no test results were produced")

// BenchmarkRunner executes the (file, speed) matrix.
type BenchmarkRunner interface {
	RunBenchmark(ctx context.Context, items []dataset.Item, speeds []float64, onRecord func(evaluationengine.TestRecord)) []evaluationengine.TestRecord
}

// ReportWriter turns records into report files.
type ReportWriter interface {
	WriteAll(records []evaluationengine.TestRecord, meta reporting.Meta) (reporting.Artifacts, error)
}

// RunStore is the part of the history database a run needs.
type RunStore interface {
	CreateRun(ctx context.Context, run *datastore.Run) error
	UpdateRunStatus(ctx context.Context, id, status, errMsg string) error
	UpdateRunTimestamps(ctx context.Context, id string, startTime, endTime sql.NullTime) error
	SetRunArtifacts(ctx context.Context, id string, artifacts map[string]string) error
	CreateTestRecord(ctx context.Context, runID string, rec evaluationengine.TestRecord) (int64, error)
}

// ArtifactPublisher uploads report files somewhere shared.
type ArtifactPublisher interface {
	PublishArtifacts(ctx context.Context, runID string, paths []string) (map[string]string, error)
}

// RunRequest describes one benchmark run.
type RunRequest struct {
	Name   string
	Model  string
	Items  []dataset.Item
	Speeds []float64
}

// RunResult is what a finished run produced. Run is populated even when
// history is disabled.
type RunResult struct {
	Run       *datastore.Run
	Records   []evaluationengine.TestRecord
	Artifacts reporting.Artifacts
}

// BenchmarkService drives a run through PENDING -> RUNNING ->
// COMPLETED/FAILED/INTERRUPTED, persisting records as they arrive.
type BenchmarkService struct {
	cfg       *config.Config
	engine    BenchmarkRunner
	reports   ReportWriter
	store     RunStore
	publisher ArtifactPublisher
	cleanup   func()
}

// NewBenchmarkService creates a service without history, publication or
// temp cleanup; add those with the With* methods.
func NewBenchmarkService(cfg *config.Config, engine BenchmarkRunner, reports ReportWriter) *BenchmarkService {
	return &BenchmarkService{cfg: cfg, engine: engine, reports: reports}
}

// WithStore enables run history. Do not pass a typed nil.
func (s *BenchmarkService) WithStore(store RunStore) *BenchmarkService {
	s.store = store
	return s
}

// WithPublisher enables artifact upload after reports are written.
func (s *BenchmarkService) WithPublisher(p ArtifactPublisher) *BenchmarkService {
	s.publisher = p
	return s
}

// WithCleanup sets the temp file cleanup, skipped when KeepTempFiles is set.
func (s *BenchmarkService) WithCleanup(fn func()) *BenchmarkService {
	s.cleanup = fn
	return s
}

// Run executes the benchmark synchronously. Per-file failures are part of
// the result; an error means no usable report was produced.
func (s *BenchmarkService) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	// History writes must still land after Ctrl-C cancels ctx.
	bookkeeping := context.WithoutCancel(ctx)

	run := &datastore.Run{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Backend:   s.cfg.Transcriber.Backend,
		Model:     req.Model,
		Speeds:    req.Speeds,
		Status:    datastore.RunStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if s.store != nil {
		if err := s.store.CreateRun(bookkeeping, run); err != nil {
			return nil, fmt.Errorf("failed to create benchmark run in datastore: %w", err)
		}
	}
	logging.Logger.Info("Benchmark run created", zap.String("run_id", run.ID), zap.String("status", run.Status))

	if err := s.markRunning(bookkeeping, run); err != nil {
		s.finish(bookkeeping, run, datastore.RunStatusFailed, err.Error())
		return &RunResult{Run: run}, fmt.Errorf("failed to update run status to RUNNING: %w", err)
	}

	persisted := 0
	onRecord := func(rec evaluationengine.TestRecord) {
		if s.store == nil {
			return
		}
		if _, err := s.store.CreateTestRecord(bookkeeping, run.ID, rec); err != nil {
			logging.LogError(err, "Failed to persist test record",
				zap.String("run_id", run.ID), zap.String("file", rec.File), zap.Float64("speed", rec.Speed))
			return
		}
		persisted++
	}

	records := s.engine.RunBenchmark(ctx, req.Items, req.Speeds, onRecord)
	result := &RunResult{Run: run, Records: records}

	status := datastore.RunStatusCompleted
	if ctx.Err() != nil {
		status = datastore.RunStatusInterrupted
	}

	if len(records) == 0 {
		if status == datastore.RunStatusInterrupted {
			s.finish(bookkeeping, run, status, ErrNoRecords.Error())
			return result, fmt.Errorf("benchmark interrupted: %w: %w", ErrNoRecords, ctx.Err())
		}
		s.finish(bookkeeping, run, datastore.RunStatusFailed, ErrNoRecords.Error())
		return result, ErrNoRecords
	}

	artifacts, err := s.reports.WriteAll(records, reporting.Meta{
		RunID:        run.ID,
		Backend:      run.Backend,
		Model:        run.Model,
		Speeds:       req.Speeds,
		Files:        len(req.Items),
		WERThreshold: s.cfg.Pricing.WERThreshold,
		Pricing:      s.cfg.Pricing,
	})
	if err != nil {
		s.finish(bookkeeping, run, datastore.RunStatusFailed, err.Error())
		return result, fmt.Errorf("failed to write reports: %w", err)
	}
	result.Artifacts = artifacts
	run.Artifacts = artifacts.Map()

	if s.publisher != nil && status == datastore.RunStatusCompleted {
		s.publish(ctx, run, artifacts)
	}
	if s.store != nil {
		if err := s.store.SetRunArtifacts(bookkeeping, run.ID, run.Artifacts); err != nil {
			logging.LogError(err, "Failed to store run artifacts", zap.String("run_id", run.ID))
		}
	}

	s.finish(bookkeeping, run, status, "")
	logging.Logger.Info("Benchmark run finished",
		zap.String("run_id", run.ID),
		zap.String("status", run.Status),
		zap.Int("records", len(records)),
		zap.Int("persisted", persisted))
	return result, nil
}

func (s *BenchmarkService) markRunning(ctx context.Context, run *datastore.Run) error {
	started := time.Now().UTC()
	run.Status = datastore.RunStatusRunning
	run.StartedAt = &started
	if s.store == nil {
		return nil
	}
	if err := s.store.UpdateRunStatus(ctx, run.ID, datastore.RunStatusRunning, ""); err != nil {
		return err
	}
	if err := s.store.UpdateRunTimestamps(ctx, run.ID, sql.NullTime{Time: started, Valid: true}, sql.NullTime{}); err != nil {
		return fmt.Errorf("failed to update run started_at: %w", err)
	}
	return nil
}

// publish uploads the artifacts and records each object key as
// "<kind>_object". Upload failures are logged; local reports remain.
func (s *BenchmarkService) publish(ctx context.Context, run *datastore.Run, artifacts reporting.Artifacts) {
	published, err := s.publisher.PublishArtifacts(ctx, run.ID, artifacts.Paths())
	if err != nil {
		logging.LogError(err, "Failed to publish artifacts", zap.String("run_id", run.ID))
	}
	for kind, p := range artifacts.Map() {
		if key, ok := published[p]; ok {
			run.Artifacts[kind+"_object"] = key
		}
	}
}

// finish sets the terminal status and completed_at, then removes temp files.
// Store failures here are logged only: the run itself already happened.
func (s *BenchmarkService) finish(ctx context.Context, run *datastore.Run, status, errMsg string) {
	completed := time.Now().UTC()
	run.Status = status
	run.Error = errMsg
	run.CompletedAt = &completed

	if s.cleanup != nil && !s.cfg.Output.KeepTempFiles {
		s.cleanup()
	}

	if s.store == nil {
		return
	}
	if err := s.store.UpdateRunStatus(ctx, run.ID, status, errMsg); err != nil {
		logging.LogError(err, "CRITICAL: failed to update final run status",
			zap.String("run_id", run.ID), zap.String("status", status))
	}
	if err := s.store.UpdateRunTimestamps(ctx, run.ID, sql.NullTime{}, sql.NullTime{Time: completed, Valid: true}); err != nil {
		logging.LogError(err, "CRITICAL: failed to update run completed_at", zap.String("run_id", run.ID))
	}
}
