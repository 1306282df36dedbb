package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/coreengine/evaluationengine"
	"gpt4o-speed-bench/internal/logging"
)

const recordColumns = `file, speed, status, error, hypothesis, reference,
	wer, cer, substitutions, deletions, insertions, hits, reference_words,
	original_duration, processed_duration, duration_reduction, original_size, processed_size, processing_time,
	model, input_tokens, output_tokens, total_tokens, cost, baseline_cost, cost_savings, started_at`

// CreateTestRecord stores one benchmark record under runID and returns its row ID.
func (s *Store) CreateTestRecord(ctx context.Context, runID string, rec evaluationengine.TestRecord) (int64, error) {
	query := s.rebind(`
		INSERT INTO test_records (run_id, ` + recordColumns + `, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		runID, rec.File, rec.Speed, string(rec.Status), nullString(rec.Error), rec.Hypothesis, rec.Reference,
		nullFloat(rec.WER), nullFloat(rec.CER),
		rec.Substitutions, rec.Deletions, rec.Insertions, rec.Hits, rec.ReferenceWords,
		rec.OriginalDuration, rec.ProcessedDuration, rec.DurationReduction,
		rec.OriginalSize, rec.ProcessedSize, rec.ProcessingTime,
		rec.Model, rec.InputTokens, rec.OutputTokens, rec.TotalTokens,
		rec.Cost, rec.BaselineCost, rec.CostSavings,
		rec.StartedAt.UTC(), time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create test record: %w", err)
	}

	logging.LogDatabaseOperation("insert", "test_records",
		zap.String("run_id", runID), zap.String("file", rec.File), zap.Float64("speed", rec.Speed))
	return id, nil
}

// GetTestRecordsForRun returns every record of a run in insertion order.
func (s *Store) GetTestRecordsForRun(ctx context.Context, runID string) ([]evaluationengine.TestRecord, error) {
	query := s.rebind(`SELECT ` + recordColumns + ` FROM test_records WHERE run_id = ? ORDER BY id ASC`)
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query test records for run %s: %w", runID, err)
	}
	defer rows.Close()

	records := []evaluationengine.TestRecord{}
	for rows.Next() {
		var (
			rec      evaluationengine.TestRecord
			status   string
			errMsg   sql.NullString
			wer, cer sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.File, &rec.Speed, &status, &errMsg, &rec.Hypothesis, &rec.Reference,
			&wer, &cer, &rec.Substitutions, &rec.Deletions, &rec.Insertions, &rec.Hits, &rec.ReferenceWords,
			&rec.OriginalDuration, &rec.ProcessedDuration, &rec.DurationReduction,
			&rec.OriginalSize, &rec.ProcessedSize, &rec.ProcessingTime,
			&rec.Model, &rec.InputTokens, &rec.OutputTokens, &rec.TotalTokens,
			&rec.Cost, &rec.BaselineCost, &rec.CostSavings, &rec.StartedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan test record row for run %s: %w", runID, err)
		}
		rec.Status = evaluationengine.Status(status)
		rec.Error = errMsg.String
		if wer.Valid {
			rec.WER = &wer.Float64
		}
		if cer.Valid {
			rec.CER = &cer.Float64
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for test records (run %s): %w", runID, err)
	}
	return records, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
