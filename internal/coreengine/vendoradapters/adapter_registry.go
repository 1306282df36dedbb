package vendoradapters

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/logging"
)

// ErrUnknownBackend is returned for a backend name with no adapter.
var ErrUnknownBackend = errors.New("unknown transcription backend")

// GetTranscriber selects the Transcriber named by cfg.Transcriber.Backend.
func GetTranscriber(cfg *config.Config) (Transcriber, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	backend := cfg.Transcriber.Backend
	maxBytes := cfg.Dataset.MaxFileBytes
	logging.Logger.Debug("Selecting transcription backend", zap.String("backend", backend))

	switch backend {
	case config.BackendOpenAIAudio:
		return NewOpenAIAudioTranscriber(cfg.Transcriber, maxBytes), nil
	case config.BackendOpenAITranscribe:
		return NewOpenAITranscribeTranscriber(cfg.Transcriber, maxBytes), nil
	case config.BackendGoogle:
		return NewGoogleASRTranscriber(cfg.Transcriber, maxBytes), nil
	case config.BackendMock:
		return NewMockASRTranscriber(cfg.Dataset.TranscriptDir, maxBytes), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
