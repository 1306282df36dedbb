package vendoradapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/logging"
)

const (
	transcribePrompt   = "Please transcribe this audio file accurately. Provide only the transcription without any additional commentary."
	audioMaxTokens     = 16384
	chatCompletionPath = "/chat/completions"
)

// OpenAIAudioTranscriber sends base64 audio to an audio-capable chat model
// (input_audio content part) and returns the assistant message as the
// transcript, with token usage.
type OpenAIAudioTranscriber struct {
	APIKey       string
	BaseURL      string
	Model        string
	Language     string
	MaxFileBytes int64
	HTTPClient   *http.Client
	logger       *zap.Logger
}

// NewOpenAIAudioTranscriber creates the chat-completions audio backend.
func NewOpenAIAudioTranscriber(cfg config.TranscriberConfig, maxFileBytes int64) *OpenAIAudioTranscriber {
	return &OpenAIAudioTranscriber{
		APIKey:       cfg.APIKey,
		BaseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		Model:        cfg.AudioModel,
		Language:     cfg.Language,
		MaxFileBytes: maxFileBytes,
		HTTPClient:   &http.Client{Timeout: cfg.Timeout},
		logger:       logging.Logger.With(zap.String("component", "openai-audio")),
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	InputAudio *inputAudio `json:"input_audio,omitempty"`
}

type inputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Name returns the backend label used in reports.
func (a *OpenAIAudioTranscriber) Name() string {
	return config.BackendOpenAIAudio + "/" + a.Model
}

// Transcribe implements Transcriber.
func (a *OpenAIAudioTranscriber) Transcribe(ctx context.Context, audioPath string) (Transcription, error) {
	size, err := checkFileSize(audioPath, a.MaxFileBytes)
	if err != nil {
		return Transcription{}, err
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to read audio file: %w", err)
	}

	prompt := transcribePrompt
	if a.Language != "" {
		prompt += fmt.Sprintf(" The audio is in %s.", a.Language)
	}

	body, err := json.Marshal(chatRequest{
		Model: a.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "input_audio", InputAudio: &inputAudio{
					Data:   base64.StdEncoding.EncodeToString(audio),
					Format: inputAudioFormat(audioPath),
				}},
			},
		}},
		MaxTokens: audioMaxTokens,
	})
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+chatCompletionPath, bytes.NewReader(body))
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	a.logger.Info("Transcribing",
		zap.String("file", filepath.Base(audioPath)),
		zap.Float64("size_mb", megabytes(size)),
		zap.String("model", a.Model))

	start := time.Now()
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return Transcription{}, fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to read chat completion response: %w", err)
	}
	raw := string(respBody)

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return Transcription{RawResponse: raw}, fmt.Errorf("openai http %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return Transcription{RawResponse: raw}, fmt.Errorf("openai http %d: %s", resp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Transcription{RawResponse: raw}, fmt.Errorf("failed to parse chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Transcription{RawResponse: raw}, fmt.Errorf("chat completion returned no choices")
	}

	t := Transcription{
		Text:        strings.TrimSpace(parsed.Choices[0].Message.Content),
		Model:       a.Model,
		RawResponse: raw,
	}
	if parsed.Model != "" {
		t.Model = parsed.Model
	}
	if parsed.Usage != nil {
		t.InputTokens = parsed.Usage.PromptTokens
		t.OutputTokens = parsed.Usage.CompletionTokens
		t.TotalTokens = parsed.Usage.TotalTokens
	}

	a.logger.Info("Transcription completed",
		zap.String("file", filepath.Base(audioPath)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("input_tokens", t.InputTokens),
		zap.Int("output_tokens", t.OutputTokens))
	return t, nil
}
