package vendoradapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/encoding/protojson"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/logging"
)

// GoogleASRTranscriber transcribes with Google Cloud Speech-to-Text using
// inline audio content and a long-running recognize operation.
type GoogleASRTranscriber struct {
	credentialsPath string
	languageCode    string
	maxFileBytes    int64
	logger          *zap.Logger
}

// NewGoogleASRTranscriber creates the Google backend. Without a credentials
// path the client falls back to GOOGLE_APPLICATION_CREDENTIALS.
func NewGoogleASRTranscriber(cfg config.TranscriberConfig, maxFileBytes int64) *GoogleASRTranscriber {
	return &GoogleASRTranscriber{
		credentialsPath: cfg.GoogleCredsPath,
		languageCode:    googleLanguageCode(cfg.Language),
		maxFileBytes:    maxFileBytes,
		logger:          logging.Logger.With(zap.String("component", "google-speech")),
	}
}

// Name returns the backend label used in reports.
func (a *GoogleASRTranscriber) Name() string {
	return config.BackendGoogle + "/" + a.languageCode
}

// Transcribe implements Transcriber.
func (a *GoogleASRTranscriber) Transcribe(ctx context.Context, audioPath string) (Transcription, error) {
	if _, err := checkFileSize(audioPath, a.maxFileBytes); err != nil {
		return Transcription{}, err
	}
	encoding, err := googleEncoding(audioPath)
	if err != nil {
		return Transcription{}, err
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to read audio file: %w", err)
	}

	var opts []option.ClientOption
	if a.credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(a.credentialsPath))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to create Google Speech client: %w", err)
	}
	defer client.Close()

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			LanguageCode:               a.languageCode,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}
	// mp3 carries no sample rate header Google can read.
	if encoding == speechpb.RecognitionConfig_MP3 {
		req.Config.SampleRateHertz = 16000
	}

	a.logger.Info("Sending recognition request", zap.String("file", filepath.Base(audioPath)))
	start := time.Now()
	op, err := client.LongRunningRecognize(ctx, req)
	if err != nil {
		return Transcription{}, fmt.Errorf("Google Speech API recognition failed: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return Transcription{}, fmt.Errorf("Google Speech API recognition failed: %w", err)
	}
	a.logger.Info("Recognition completed",
		zap.String("file", filepath.Base(audioPath)),
		zap.Duration("elapsed", time.Since(start)))

	raw, err := protojson.Marshal(resp)
	if err != nil {
		raw = []byte(fmt.Sprintf(`{"error_marshalling_response": %q}`, err.Error()))
	}

	return Transcription{
		Text:        joinGoogleResults(resp.GetResults()),
		Model:       "google-speech",
		RawResponse: string(raw),
	}, nil
}

func joinGoogleResults(results []*speechpb.SpeechRecognitionResult) string {
	var b strings.Builder
	for _, result := range results {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			b.WriteString(alts[0].GetTranscript())
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

func googleEncoding(path string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		return speechpb.RecognitionConfig_MP3, nil
	case ".wav":
		// LINEAR16 lets the service read rate and channels from the header.
		return speechpb.RecognitionConfig_LINEAR16, nil
	case ".flac":
		return speechpb.RecognitionConfig_FLAC, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED,
			fmt.Errorf("unsupported audio format for google backend: %s (set TRANSCODE_BASELINE=true)", ext)
	}
}

// googleLanguageCode expands a bare language such as "en" to a BCP-47 tag.
func googleLanguageCode(lang string) string {
	if lang == "" || lang == "en" {
		return "en-US"
	}
	return lang
}
