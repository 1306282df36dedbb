package datastore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/coreengine/evaluationengine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(context.Background(), config.HistoryConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Disabled(t *testing.T) {
	_, err := Open(context.Background(), config.HistoryConfig{Driver: "none"})
	assert.ErrorIs(t, err, ErrHistoryDisabled)

	_, err = Open(context.Background(), config.HistoryConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestOpen_MigrationIsIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "history.db")
	for i := 0; i < 2; i++ {
		s, err := Open(context.Background(), config.HistoryConfig{Driver: "sqlite", DSN: dsn})
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: "postgres"}
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = $3", pg.rebind("UPDATE t SET a = ?, b = ? WHERE id = ?"))

	lite := &Store{driver: "sqlite"}
	assert.Equal(t, "SELECT ? FROM t", lite.rebind("SELECT ? FROM t"))
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run := &Run{Name: "nightly", Backend: "mock", Model: "mock", Speeds: []float64{1, 2.5}}
	require.NoError(t, s.CreateRun(ctx, run))
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusPending, run.Status)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly", got.Name)
	assert.Equal(t, []float64{1, 2.5}, got.Speeds)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.Artifacts)

	started := time.Now()
	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, RunStatusRunning, ""))
	require.NoError(t, s.UpdateRunTimestamps(ctx, run.ID, sql.NullTime{Time: started, Valid: true}, sql.NullTime{}))
	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, RunStatusFailed, "ffmpeg not found"))
	require.NoError(t, s.UpdateRunTimestamps(ctx, run.ID, sql.NullTime{}, sql.NullTime{Time: started.Add(time.Minute), Valid: true}))
	require.NoError(t, s.SetRunArtifacts(ctx, run.ID, map[string]string{"csv": "results/test_results.csv"}))

	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "ffmpeg not found", got.Error)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.WithinDuration(t, started, *got.StartedAt, time.Millisecond)
	assert.WithinDuration(t, started.Add(time.Minute), *got.CompletedAt, time.Millisecond)
	assert.Equal(t, map[string]string{"csv": "results/test_results.csv"}, got.Artifacts)

	assert.Error(t, s.UpdateRunTimestamps(ctx, run.ID, sql.NullTime{}, sql.NullTime{}))
}

func TestRunNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetRun(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.UpdateRunStatus(ctx, "does-not-exist", RunStatusRunning, ""), ErrRunNotFound)
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, s.CreateRun(ctx, &Run{Name: name, Backend: "mock"}))
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "third", runs[0].Name)
	assert.Equal(t, "first", runs[2].Name)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestTestRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run := &Run{Backend: "mock", Speeds: []float64{1}}
	require.NoError(t, s.CreateRun(ctx, run))

	wer, cer := 0.25, 0.1
	started := time.Now()
	records := []evaluationengine.TestRecord{
		{
			File: "a.mp3", Speed: 2, Status: evaluationengine.StatusOK,
			Hypothesis: "the quick fox", Reference: "the quick brown fox",
			WER: &wer, CER: &cer, Deletions: 1, Hits: 3, ReferenceWords: 4,
			OriginalDuration: 60, ProcessedDuration: 30, DurationReduction: 50,
			OriginalSize: 1000, ProcessedSize: 500, ProcessingTime: 1.5,
			Model: "m", InputTokens: 10, OutputTokens: 5, TotalTokens: 15,
			Cost: 0.01, BaselineCost: 0.02, CostSavings: 50, StartedAt: started,
		},
		{File: "b.mp3", Speed: 3, Status: evaluationengine.StatusFailed, Error: "boom", StartedAt: started},
		{File: "c.mp3", Speed: 1, Status: evaluationengine.StatusUndefined, Hypothesis: "x", StartedAt: started},
	}
	for _, r := range records {
		id, err := s.CreateTestRecord(ctx, run.ID, r)
		require.NoError(t, err)
		assert.Positive(t, id)
	}

	got, err := s.GetTestRecordsForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	first := got[0]
	assert.Equal(t, "a.mp3", first.File)
	assert.Equal(t, evaluationengine.StatusOK, first.Status)
	require.NotNil(t, first.WER)
	assert.Equal(t, 0.25, *first.WER)
	assert.Equal(t, 0.1, *first.CER)
	assert.Equal(t, 1, first.Deletions)
	assert.Equal(t, int64(500), first.ProcessedSize)
	assert.Equal(t, 15, first.TotalTokens)
	assert.WithinDuration(t, started, first.StartedAt, time.Millisecond)

	assert.Equal(t, "boom", got[1].Error)
	assert.Nil(t, got[1].WER)
	assert.Equal(t, evaluationengine.StatusUndefined, got[2].Status)
	assert.Nil(t, got[2].CER)

	none, err := s.GetTestRecordsForRun(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCreateTestRecord_UnknownRun(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateTestRecord(context.Background(), "missing", evaluationengine.TestRecord{File: "a", StartedAt: time.Now()})
	assert.Error(t, err, "foreign keys are enforced")
}
