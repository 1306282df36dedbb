package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted by TRANSCRIBE_BACKEND / --backend.
const (
	BackendOpenAIAudio      = "openai-audio"
	BackendOpenAITranscribe = "openai-transcribe"
	BackendGoogle           = "google"
	BackendMock             = "mock"
)

// ErrMissingAPIKey is returned by RequireCredentials when an OpenAI backend
// is selected without OPENAI_API_KEY.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY not found in environment variables")

// Config holds all configuration for a benchmark run. It is built once in
// main and passed down explicitly; nothing below cmd/ reads the environment.
type Config struct {
	Transcriber TranscriberConfig
	Dataset     DatasetConfig
	Audio       AudioConfig
	Pricing     PricingConfig
	Output      OutputConfig
	History     HistoryConfig
	ObjectStore ObjectStoreConfig
	Serve       ServeConfig
	Logging     LoggingConfig

	SpeedFactors []float64
}

// TranscriberConfig selects and configures the speech-to-text backend.
type TranscriberConfig struct {
	Backend         string
	APIKey          string
	BaseURL         string
	AudioModel      string // chat-completions model that accepts input_audio
	TranscribeModel string // /audio/transcriptions model
	Language        string
	Timeout         time.Duration
	GoogleCredsPath string
}

// DatasetConfig points at the paired audio/transcript directories.
type DatasetConfig struct {
	DataDir       string
	AudioDir      string
	TranscriptDir string
	MaxFileBytes  int64
}

// AudioConfig controls the ffmpeg re-encode of sped-up variants.
type AudioConfig struct {
	TempDir           string
	SampleRate        int
	Channels          int
	Bitrate           string
	TranscodeBaseline bool // also re-encode the 1.0x variant
	FFmpegPath        string
	FFprobePath       string
}

// PricingConfig holds the cost model. Token prices are USD per million tokens.
type PricingConfig struct {
	InputCostPerM      float64
	OutputCostPerM     float64
	CostPerAudioMinute float64
	WERThreshold       float64
}

// OutputConfig controls report generation.
type OutputConfig struct {
	ResultsDir    string
	Visualize     bool
	KeepTempFiles bool
}

// HistoryConfig configures the run history database. Driver "none" disables it.
type HistoryConfig struct {
	Driver string // sqlite, postgres, none
	DSN    string
}

// ObjectStoreConfig configures optional MinIO publication of report artifacts.
type ObjectStoreConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	Region          string
}

// Enabled reports whether enough settings are present to publish artifacts.
func (o ObjectStoreConfig) Enabled() bool {
	return o.Endpoint != "" && o.AccessKeyID != "" && o.SecretAccessKey != "" && o.BucketName != ""
}

// ServeConfig configures the history browser started by `speedbench serve`.
type ServeConfig struct {
	Addr  string
	Token string // empty disables the token check
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads .env (when present) and then environment variables with defaults.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	dataDir := getEnvString("DATA_DIR", "data")
	resultsDir := getEnvString("RESULTS_DIR", "results")

	speeds, err := ParseSpeeds(getEnvString("SPEED_FACTORS", "1.0,2.0,3.0"))
	if err != nil {
		return nil, fmt.Errorf("invalid SPEED_FACTORS: %w", err)
	}

	config := &Config{
		Transcriber: TranscriberConfig{
			Backend:         strings.ToLower(getEnvString("TRANSCRIBE_BACKEND", BackendOpenAIAudio)),
			APIKey:          os.Getenv("OPENAI_API_KEY"),
			BaseURL:         getEnvString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			AudioModel:      getEnvString("OPENAI_AUDIO_MODEL", "gpt-4o-audio-preview"),
			TranscribeModel: getEnvString("OPENAI_TRANSCRIBE_MODEL", "gpt-4o-transcribe"),
			Language:        getEnvString("TRANSCRIBE_LANGUAGE", "en"),
			Timeout:         getEnvDuration("TRANSCRIBE_TIMEOUT", 5*time.Minute),
			GoogleCredsPath: os.Getenv("GOOGLE_CREDENTIALS_PATH"),
		},
		Dataset: DatasetConfig{
			DataDir:       dataDir,
			AudioDir:      getEnvString("AUDIO_DIR", filepath.Join(dataDir, "audio")),
			TranscriptDir: getEnvString("TRANSCRIPT_DIR", filepath.Join(dataDir, "transcripts")),
			MaxFileBytes:  int64(getEnvFloat("MAX_FILE_SIZE_MB", 25) * 1024 * 1024),
		},
		Audio: AudioConfig{
			TempDir:           getEnvString("TEMP_DIR", "temp"),
			SampleRate:        getEnvInt("AUDIO_SAMPLE_RATE", 16000),
			Channels:          getEnvInt("AUDIO_CHANNELS", 1),
			Bitrate:           getEnvString("AUDIO_BITRATE", "64k"),
			TranscodeBaseline: getEnvBool("TRANSCODE_BASELINE", false),
			FFmpegPath:        getEnvString("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:       getEnvString("FFPROBE_PATH", "ffprobe"),
		},
		Pricing: PricingConfig{
			InputCostPerM:      getEnvFloat("INPUT_COST_PER_M", 100.0),
			OutputCostPerM:     getEnvFloat("OUTPUT_COST_PER_M", 200.0),
			CostPerAudioMinute: getEnvFloat("COST_PER_AUDIO_MINUTE", 0.006),
			WERThreshold:       getEnvFloat("WER_THRESHOLD", 0.15),
		},
		Output: OutputConfig{
			ResultsDir: resultsDir,
			Visualize:  true,
		},
		History: HistoryConfig{
			Driver: strings.ToLower(getEnvString("HISTORY_DRIVER", "sqlite")),
			DSN:    getEnvString("HISTORY_DSN", filepath.Join(resultsDir, "history.db")),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:        os.Getenv("MINIO_ENDPOINT"),
			AccessKeyID:     os.Getenv("MINIO_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("MINIO_SECRET_ACCESS_KEY"),
			BucketName:      os.Getenv("MINIO_BUCKET_NAME"),
			UseSSL:          getEnvBool("MINIO_USE_SSL", false),
			Region:          getEnvString("MINIO_REGION", "us-east-1"),
		},
		Serve: ServeConfig{
			Addr:  getEnvString("SERVE_ADDR", ":8088"),
			Token: os.Getenv("SERVE_TOKEN"),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "console"),
		},
		SpeedFactors: speeds,
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is usable. It is exported so that
// main can re-check after applying CLI flag overrides.
func (c *Config) Validate() error {
	switch c.Transcriber.Backend {
	case BackendOpenAIAudio, BackendOpenAITranscribe, BackendGoogle, BackendMock:
	default:
		return fmt.Errorf("unknown transcription backend: %q", c.Transcriber.Backend)
	}

	if len(c.SpeedFactors) == 0 {
		return errors.New("at least one speed factor is required")
	}
	for _, s := range c.SpeedFactors {
		if s < 0.5 || s > 100 {
			return fmt.Errorf("speed factor %g out of range [0.5, 100]", s)
		}
	}

	if c.Dataset.MaxFileBytes <= 0 {
		return fmt.Errorf("max file size must be positive: %d", c.Dataset.MaxFileBytes)
	}

	if c.Audio.SampleRate <= 0 || c.Audio.Channels <= 0 {
		return fmt.Errorf("invalid audio format: %d Hz, %d channels", c.Audio.SampleRate, c.Audio.Channels)
	}

	if c.Transcriber.Timeout <= 0 {
		return fmt.Errorf("transcription timeout must be positive: %s", c.Transcriber.Timeout)
	}

	switch c.History.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unknown history driver: %q", c.History.Driver)
	}

	return nil
}

// RequireCredentials is the setup check run before any test: OpenAI backends
// need an API key. It is separate from Validate so that validate/history
// commands work without one.
func (c *Config) RequireCredentials() error {
	switch c.Transcriber.Backend {
	case BackendOpenAIAudio, BackendOpenAITranscribe:
		if c.Transcriber.APIKey == "" {
			return ErrMissingAPIKey
		}
	}
	return nil
}

// ParseSpeeds parses a comma separated list of speed factors such as "1,1.5,2".
func ParseSpeeds(value string) ([]float64, error) {
	var speeds []float64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "x"))
		if part == "" {
			continue
		}
		s, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid speed factor %q: %w", part, err)
		}
		if s <= 0 {
			return nil, fmt.Errorf("speed factor must be positive: %g", s)
		}
		speeds = append(speeds, s)
	}
	return speeds, nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
