package evaluationengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/coreengine/audioprocessor"
	"gpt4o-speed-bench/internal/coreengine/metricscalculator"
	"gpt4o-speed-bench/internal/coreengine/vendoradapters"
	"gpt4o-speed-bench/internal/dataset"
)

type fakeAudio struct {
	duration   time.Duration
	size       int64
	speedErr   error
	probeErr   error
	changed    []float64
	variants   map[string]float64
	probeCalls int
}

func (f *fakeAudio) ChangeSpeed(_ context.Context, input string, factor float64) (string, error) {
	if f.speedErr != nil {
		return "", f.speedErr
	}
	f.changed = append(f.changed, factor)
	if f.variants == nil {
		f.variants = make(map[string]float64)
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	out := fmt.Sprintf("/tmp/%s_speed_%gx.mp3", stem, factor)
	f.variants[out] = factor
	return out, nil
}

func (f *fakeAudio) Probe(_ context.Context, path string) (audioprocessor.AudioInfo, error) {
	f.probeCalls++
	if f.probeErr != nil {
		return audioprocessor.AudioInfo{}, f.probeErr
	}
	speed := 1.0
	if s, ok := f.variants[path]; ok {
		speed = s
	}
	return audioprocessor.AudioInfo{
		Duration:  time.Duration(float64(f.duration) / speed),
		SizeBytes: int64(float64(f.size) / speed),
	}, nil
}

type fakeTranscriber struct {
	text   map[string]string
	usage  vendoradapters.Transcription
	err    error
	calls  []string
	cancel context.CancelFunc
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (vendoradapters.Transcription, error) {
	f.calls = append(f.calls, path)
	if f.cancel != nil {
		f.cancel()
	}
	if _, ok := ctx.Deadline(); !ok {
		return vendoradapters.Transcription{}, errors.New("expected a deadline")
	}
	if f.err != nil {
		return vendoradapters.Transcription{}, f.err
	}
	t := f.usage
	t.Text = f.text[filepath.Base(path)]
	return t, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Transcriber: config.TranscriberConfig{Timeout: time.Minute},
		Pricing: config.PricingConfig{
			InputCostPerM:      100,
			OutputCostPerM:     200,
			CostPerAudioMinute: 0.006,
		},
	}
}

func TestRunSingleTest_Baseline(t *testing.T) {
	audio := &fakeAudio{duration: time.Minute, size: 1024 * 1024}
	tr := &fakeTranscriber{
		text:  map[string]string{"a.mp3": "the quick fox"},
		usage: vendoradapters.Transcription{Model: "m", InputTokens: 1000, OutputTokens: 10, TotalTokens: 1010},
	}
	e := NewEngine(testConfig(), tr, audio)

	rec := e.RunSingleTest(context.Background(), "a.mp3", "the quick brown fox", 1.0)

	require.Equal(t, StatusOK, rec.Status, rec.Error)
	assert.Empty(t, audio.changed, "baseline is not re-encoded by default")
	assert.Equal(t, []string{"a.mp3"}, tr.calls)
	assert.Equal(t, 1, audio.probeCalls)

	require.NotNil(t, rec.WER)
	assert.InDelta(t, 0.25, *rec.WER, 1e-9)
	assert.NotNil(t, rec.CER)
	assert.Equal(t, 1, rec.Deletions)
	assert.Equal(t, 3, rec.Hits)
	assert.Equal(t, 4, rec.ReferenceWords)
	assert.Equal(t, 60.0, rec.OriginalDuration)
	assert.Equal(t, 60.0, rec.ProcessedDuration)
	assert.Zero(t, rec.DurationReduction)
	assert.Equal(t, "m", rec.Model)
	assert.Equal(t, 1010, rec.TotalTokens)

	// 1000 input tokens at $100/M + 10 output tokens at $200/M
	assert.InDelta(t, 0.1+0.002, rec.Cost, 1e-12)
	// 1 MB * 1500 tokens at $100/M + 15000 tokens at $200/M
	assert.InDelta(t, 0.15+3.0, rec.BaselineCost, 1e-12)
	assert.InDelta(t, (1-0.102/3.15)*100, rec.CostSavings, 1e-9)
}

func TestRunSingleTest_SpedUp(t *testing.T) {
	audio := &fakeAudio{duration: time.Minute, size: 1000}
	tr := &fakeTranscriber{text: map[string]string{"a_speed_2x.mp3": "hello world"}}
	e := NewEngine(testConfig(), tr, audio)

	rec := e.RunSingleTest(context.Background(), "a.mp3", "hello world", 2.0)

	require.Equal(t, StatusOK, rec.Status, rec.Error)
	assert.Equal(t, []float64{2.0}, audio.changed)
	assert.Equal(t, 2, audio.probeCalls)
	assert.Equal(t, 30.0, rec.ProcessedDuration)
	assert.InDelta(t, 50.0, rec.DurationReduction, 1e-9)
	assert.Zero(t, *rec.WER)

	// no tokens reported: priced per minute
	assert.InDelta(t, 0.003, rec.Cost, 1e-12)
	assert.InDelta(t, 0.006, rec.BaselineCost, 1e-12)
	assert.InDelta(t, 50.0, rec.CostSavings, 1e-9)
}

func TestRunSingleTest_TranscodeBaseline(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.TranscodeBaseline = true
	audio := &fakeAudio{duration: time.Minute, size: 1000}
	e := NewEngine(cfg, &fakeTranscriber{}, audio)

	rec := e.RunSingleTest(context.Background(), "a.mp3", "hello", 1.0)
	assert.Equal(t, []float64{1.0}, audio.changed)
	assert.Equal(t, StatusOK, rec.Status)
	assert.InDelta(t, 1.0, *rec.WER, 1e-9)
}

func TestRunSingleTest_Failures(t *testing.T) {
	tests := []struct {
		name  string
		audio *fakeAudio
		tr    *fakeTranscriber
		want  string
	}{
		{
			name:  "probe",
			audio: &fakeAudio{probeErr: errors.New("moov atom not found")},
			tr:    &fakeTranscriber{},
			want:  "moov atom not found",
		},
		{
			name:  "ffmpeg",
			audio: &fakeAudio{duration: time.Second, speedErr: errors.New("ffmpeg exploded")},
			tr:    &fakeTranscriber{},
			want:  "ffmpeg exploded",
		},
		{
			name:  "api",
			audio: &fakeAudio{duration: time.Second},
			tr:    &fakeTranscriber{err: fmt.Errorf("wrapped: %w", vendoradapters.ErrFileTooLarge)},
			want:  "audio file too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(testConfig(), tt.tr, tt.audio)
			rec := e.RunSingleTest(context.Background(), "a.mp3", "reference words", 2.0)

			assert.Equal(t, StatusFailed, rec.Status)
			assert.Contains(t, rec.Error, tt.want)
			assert.Nil(t, rec.WER)
			assert.Nil(t, rec.CER)
			assert.False(t, rec.Scored())
		})
	}
}

func TestRunSingleTest_EmptyReferenceIsUndefined(t *testing.T) {
	audio := &fakeAudio{duration: time.Second}
	tr := &fakeTranscriber{text: map[string]string{"a.mp3": "something"}}
	e := NewEngine(testConfig(), tr, audio)

	rec := e.RunSingleTest(context.Background(), "a.mp3", " ... ", 1.0)
	assert.Equal(t, StatusUndefined, rec.Status)
	assert.Equal(t, "something", rec.Hypothesis)
	assert.Nil(t, rec.WER)
	assert.Nil(t, rec.CER)
	assert.Nil(t, rec.ErrorAnalysis)
}

func TestRunSingleTest_RecordsErrorAnalysis(t *testing.T) {
	audio := &fakeAudio{duration: time.Minute, size: 1000}
	tr := &fakeTranscriber{text: map[string]string{"a.mp3": "the quack brown fox fox"}}
	e := NewEngine(testConfig(), tr, audio)

	rec := e.RunSingleTest(context.Background(), "a.mp3", "The quick brown lazy fox", 1.0)
	require.Equal(t, StatusOK, rec.Status, rec.Error)
	require.NotNil(t, rec.ErrorAnalysis)
	assert.Len(t, rec.ErrorAnalysis.Substitutions, rec.Substitutions)
	assert.Len(t, rec.ErrorAnalysis.Deletions, rec.Deletions)
	assert.Len(t, rec.ErrorAnalysis.Insertions, rec.Insertions)
	assert.Contains(t, rec.ErrorAnalysis.Substitutions, metricscalculator.WordPair{Reference: "quick", Hypothesis: "quack"})
}

func writeItem(t *testing.T, dir, name, transcript string) dataset.Item {
	t.Helper()
	tp := filepath.Join(dir, name+".txt")
	require.NoError(t, os.WriteFile(tp, []byte(transcript), 0o644))
	return dataset.Item{Name: name, AudioPath: name + ".mp3", TranscriptPath: tp}
}

func TestRunBenchmark(t *testing.T) {
	dir := t.TempDir()
	items := []dataset.Item{
		writeItem(t, dir, "a", "hello world"),
		{Name: "b", AudioPath: "b.mp3", TranscriptPath: filepath.Join(dir, "missing.txt")},
	}

	audio := &fakeAudio{duration: time.Minute, size: 1000}
	tr := &fakeTranscriber{text: map[string]string{"a.mp3": "hello world"}}
	e := NewEngine(testConfig(), tr, audio)

	var seen []TestRecord
	records := e.RunBenchmark(context.Background(), items, []float64{1.0, 2.0}, func(r TestRecord) {
		seen = append(seen, r)
	})

	require.Len(t, records, 4)
	assert.Equal(t, records, seen)

	assert.Equal(t, "a.mp3", records[0].File)
	assert.Equal(t, StatusOK, records[0].Status)
	assert.Equal(t, 2.0, records[1].Speed)

	// unreadable transcript fails each speed without calling the backend
	assert.Equal(t, StatusFailed, records[2].Status)
	assert.Equal(t, StatusFailed, records[3].Status)
	assert.Contains(t, records[3].Error, "reference transcript")
	assert.Len(t, tr.calls, 2)
}

func TestRunBenchmark_StopsWhenCancelled(t *testing.T) {
	dir := t.TempDir()
	items := []dataset.Item{writeItem(t, dir, "a", "hello"), writeItem(t, dir, "b", "world")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &fakeTranscriber{cancel: cancel}
	e := NewEngine(testConfig(), tr, &fakeAudio{duration: time.Second})

	records := e.RunBenchmark(ctx, items, []float64{1.0, 2.0, 3.0}, nil)
	require.Len(t, records, 1)
	assert.Len(t, tr.calls, 1)
}

func TestSavings(t *testing.T) {
	assert.Equal(t, 0.0, Savings(1, 0))
	assert.InDelta(t, 75.0, Savings(1, 4), 1e-9)
	assert.InDelta(t, -100.0, Savings(2, 1), 1e-9)
}
