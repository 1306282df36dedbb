package vendoradapters

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/dataset"
)

// speedSuffix matches the "_speed_2.0x" suffix written by the audio processor.
var speedSuffix = regexp.MustCompile(`_speed_(\d+(?:\.\d+)?)x$`)

// MockASRTranscriber answers from the reference transcripts instead of an
// API, dropping more words the faster the variant. It makes full offline
// runs possible and gives reports a plausible accuracy curve.
type MockASRTranscriber struct {
	TranscriptDir string
	MaxFileBytes  int64
	Latency       time.Duration
}

// NewMockASRTranscriber creates the mock backend.
func NewMockASRTranscriber(transcriptDir string, maxFileBytes int64) *MockASRTranscriber {
	return &MockASRTranscriber{TranscriptDir: transcriptDir, MaxFileBytes: maxFileBytes}
}

// Name returns the backend label used in reports.
func (m *MockASRTranscriber) Name() string {
	return config.BackendMock
}

// Transcribe implements Transcriber.
func (m *MockASRTranscriber) Transcribe(ctx context.Context, audioPath string) (Transcription, error) {
	size, err := checkFileSize(audioPath, m.MaxFileBytes)
	if err != nil {
		return Transcription{}, err
	}

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return Transcription{}, ctx.Err()
		}
	}

	name, speed := parseVariantName(audioPath)
	reference, err := m.loadReference(name)
	if err != nil {
		return Transcription{RawResponse: `{"error": "no reference transcript"}`}, err
	}

	words := degrade(strings.Fields(reference), speed)
	text := strings.Join(words, " ")
	t := Transcription{
		Text:         text,
		Model:        config.BackendMock,
		InputTokens:  int(size / 1024),
		OutputTokens: len(words) * 3 / 2,
		RawResponse:  fmt.Sprintf(`{"transcription": %q, "simulated": true}`, text),
	}
	t.TotalTokens = t.InputTokens + t.OutputTokens
	return t, nil
}

func (m *MockASRTranscriber) loadReference(name string) (string, error) {
	p, ok := dataset.FindTranscript(m.TranscriptDir, name)
	if !ok {
		return "", fmt.Errorf("simulated error: no reference transcript for %s", name)
	}
	return dataset.LoadTranscript(p)
}

// parseVariantName splits "chapter1_speed_2.0x.mp3" into ("chapter1", 2.0).
// Files without a speed suffix are treated as 1.0x.
func parseVariantName(path string) (string, float64) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	match := speedSuffix.FindStringSubmatch(stem)
	if match == nil {
		return stem, 1.0
	}
	speed, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return stem, 1.0
	}
	return strings.TrimSuffix(stem, match[0]), speed
}

// degrade drops every n-th word, with n shrinking as speed grows. Speeds at
// or below 1.0 return words unchanged.
func degrade(words []string, speed float64) []string {
	if speed <= 1.0 {
		return words
	}
	every := int(20 / speed)
	if every < 2 {
		every = 2
	}
	out := make([]string, 0, len(words))
	for i, w := range words {
		if (i+1)%every == 0 {
			continue
		}
		out = append(out, w)
	}
	return out
}
