package vendoradapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/logging"
)

// OpenAITranscribeTranscriber uses the /audio/transcriptions endpoint
// through go-openai. The endpoint does not report token usage.
type OpenAITranscribeTranscriber struct {
	client       *openai.Client
	model        string
	language     string
	maxFileBytes int64
	logger       *zap.Logger
}

// NewOpenAITranscribeTranscriber creates the transcriptions backend.
func NewOpenAITranscribeTranscriber(cfg config.TranscriberConfig, maxFileBytes int64) *OpenAITranscribeTranscriber {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAITranscribeTranscriber{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.TranscribeModel,
		language:     cfg.Language,
		maxFileBytes: maxFileBytes,
		logger:       logging.Logger.With(zap.String("component", "openai-transcribe")),
	}
}

// Name returns the backend label used in reports.
func (t *OpenAITranscribeTranscriber) Name() string {
	return config.BackendOpenAITranscribe + "/" + t.model
}

// Transcribe implements Transcriber.
func (t *OpenAITranscribeTranscriber) Transcribe(ctx context.Context, audioPath string) (Transcription, error) {
	size, err := checkFileSize(audioPath, t.maxFileBytes)
	if err != nil {
		return Transcription{}, err
	}

	t.logger.Info("Transcribing",
		zap.String("file", filepath.Base(audioPath)),
		zap.Float64("size_mb", megabytes(size)),
		zap.String("model", t.model))

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: audioPath,
		Language: t.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return Transcription{}, fmt.Errorf("openai http %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return Transcription{}, fmt.Errorf("createTranscription failed: %w", err)
	}

	return Transcription{
		Text:        strings.TrimSpace(resp.Text),
		Model:       t.model,
		RawResponse: fmt.Sprintf(`{"text": %q}`, resp.Text),
	}, nil
}
