package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/logging"
)

const runColumns = `id, name, backend, model, speeds, status, error, artifacts, created_at, updated_at, started_at, completed_at`

// CreateRun inserts a new run. An empty ID is filled with a UUID.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = RunStatusPending
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	speeds, err := json.Marshal(run.Speeds)
	if err != nil {
		return fmt.Errorf("failed to encode speeds: %w", err)
	}
	artifacts, err := marshalArtifacts(run.Artifacts)
	if err != nil {
		return err
	}

	query := s.rebind(`
		INSERT INTO benchmark_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.Name, run.Backend, run.Model, string(speeds), run.Status,
		nullString(run.Error), artifacts, run.CreatedAt, run.UpdatedAt,
		nullTime(run.StartedAt), nullTime(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create benchmark run: %w", err)
	}
	logging.LogDatabaseOperation("insert", "benchmark_runs", zap.String("run_id", run.ID))
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	query := s.rebind(`SELECT ` + runColumns + ` FROM benchmark_runs WHERE id = ?`)
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get benchmark run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM benchmark_runs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list benchmark runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan benchmark run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for benchmark runs: %w", err)
	}
	return runs, nil
}

// UpdateRunStatus sets the status and error message of a run.
func (s *Store) UpdateRunStatus(ctx context.Context, id, status, errMsg string) error {
	query := s.rebind(`UPDATE benchmark_runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, status, nullString(errMsg), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update status for run %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

// UpdateRunTimestamps sets started_at and/or completed_at. Invalid
// NullTimes leave the column untouched.
func (s *Store) UpdateRunTimestamps(ctx context.Context, id string, startTime, endTime sql.NullTime) error {
	var setClauses []string
	var args []any

	if startTime.Valid {
		setClauses = append(setClauses, "started_at = ?")
		args = append(args, startTime.Time.UTC())
	}
	if endTime.Valid {
		setClauses = append(setClauses, "completed_at = ?")
		args = append(args, endTime.Time.UTC())
	}
	if len(setClauses) == 0 {
		return errors.New("no timestamps provided for update")
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := s.rebind(fmt.Sprintf("UPDATE benchmark_runs SET %s WHERE id = ?", strings.Join(setClauses, ", ")))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update timestamps for run %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

// SetRunArtifacts records where the run's reports were written or published.
func (s *Store) SetRunArtifacts(ctx context.Context, id string, artifacts map[string]string) error {
	encoded, err := marshalArtifacts(artifacts)
	if err != nil {
		return err
	}
	query := s.rebind(`UPDATE benchmark_runs SET artifacts = ?, updated_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, encoded, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update artifacts for run %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var (
		speeds, artifacts string
		errMsg            sql.NullString
		started, finished sql.NullTime
	)
	if err := row.Scan(
		&run.ID, &run.Name, &run.Backend, &run.Model, &speeds, &run.Status,
		&errMsg, &artifacts, &run.CreatedAt, &run.UpdatedAt, &started, &finished,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(speeds), &run.Speeds); err != nil {
		return nil, fmt.Errorf("failed to decode speeds of run %s: %w", run.ID, err)
	}
	if artifacts != "" && artifacts != "{}" {
		if err := json.Unmarshal([]byte(artifacts), &run.Artifacts); err != nil {
			return nil, fmt.Errorf("failed to decode artifacts of run %s: %w", run.ID, err)
		}
	}
	run.Error = errMsg.String
	if started.Valid {
		t := started.Time
		run.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		run.CompletedAt = &t
	}
	return run, nil
}

func marshalArtifacts(artifacts map[string]string) (string, error) {
	if len(artifacts) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(artifacts)
	if err != nil {
		return "", fmt.Errorf("failed to encode artifacts: %w", err)
	}
	return string(b), nil
}

func expectOneRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
