package vendoradapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Transcriber turns one local audio file into text.
type Transcriber interface {
	// Transcribe sends the audio at audioPath to the backend. The context
	// bounds the whole call including upload.
	Transcribe(ctx context.Context, audioPath string) (Transcription, error)
	// Name identifies the backend and model in reports.
	Name() string
}

// Transcription is a backend's answer for one file. Token counts are zero
// for backends that do not report usage.
type Transcription struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	RawResponse  string
}

// ErrFileTooLarge is returned before upload when the audio exceeds the
// configured maximum size.
var ErrFileTooLarge = errors.New("audio file too large")

// checkFileSize stats path and rejects files over maxBytes.
func checkFileSize(path string, maxBytes int64) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat audio file: %w", err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return info.Size(), fmt.Errorf("%w: %.2fMB exceeds maximum of %.2fMB",
			ErrFileTooLarge, megabytes(info.Size()), megabytes(maxBytes))
	}
	return info.Size(), nil
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

// inputAudioFormat maps a file extension to the chat-completions
// input_audio format name. Unknown extensions are sent as mp3.
func inputAudioFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return "wav"
	case ".m4a", ".mp4":
		return "mp4"
	default:
		return "mp3"
	}
}
