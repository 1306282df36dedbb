package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/coreengine/metricscalculator"
)

// AudioExtensions are the audio formats picked up from the audio directory.
var AudioExtensions = []string{".mp3", ".wav", ".m4a"}

// transcriptExtensions in lookup order; .txt wins when both exist.
var transcriptExtensions = []string{".txt", ".json"}

// Item is one audio file paired with its reference transcript.
type Item struct {
	Name           string `json:"name"`
	AudioPath      string `json:"audio_path"`
	TranscriptPath string `json:"transcript_path"`
	AudioSize      int64  `json:"audio_size"`
}

// transcriptFile is the JSON transcript layout: {"text": "...", "metadata": {...}}.
// "transcript" is accepted as an alternative key.
type transcriptFile struct {
	Text       *string         `json:"text"`
	Transcript *string         `json:"transcript"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Manager scans and validates the paired audio/transcript directories.
type Manager struct {
	cfg    config.DatasetConfig
	logger *zap.Logger
}

// NewManager creates a Manager. It does not touch the filesystem.
func NewManager(cfg config.DatasetConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, logger: logger.With(zap.String("component", "dataset"))}
}

// EnsureDirectories creates the audio and transcript directories if missing.
func (m *Manager) EnsureDirectories() error {
	for _, dir := range []string{m.cfg.AudioDir, m.cfg.TranscriptDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create dataset directory %s: %w", dir, err)
		}
	}
	return nil
}

// Items returns every audio file that has a transcript, sorted by name.
// Audio files without a transcript are logged and left out.
func (m *Manager) Items() ([]Item, error) {
	audio, err := m.audioFiles()
	if err != nil {
		return nil, err
	}
	transcripts, err := m.transcriptFiles()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(audio))
	for name := range audio {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]Item, 0, len(names))
	for _, name := range names {
		transcriptPath, ok := transcripts[name]
		if !ok {
			m.logger.Warn("No transcript found", zap.String("audio", filepath.Base(audio[name].path)))
			continue
		}
		items = append(items, Item{
			Name:           name,
			AudioPath:      audio[name].path,
			TranscriptPath: transcriptPath,
			AudioSize:      audio[name].size,
		})
	}

	m.logger.Info("Found complete dataset items", zap.Int("count", len(items)))
	return items, nil
}

// Item returns the pair for a single base name, as used by --single-file.
// name may carry an audio extension.
func (m *Manager) Item(name string) (Item, error) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	items, err := m.Items()
	if err != nil {
		return Item{}, err
	}
	for _, it := range items {
		if it.Name == base {
			return it, nil
		}
	}
	return Item{}, fmt.Errorf("no complete dataset item named %q", base)
}

type audioFile struct {
	path string
	size int64
}

// audioFiles maps base name to audio file. A missing directory is treated as empty.
func (m *Manager) audioFiles() (map[string]audioFile, error) {
	entries, err := os.ReadDir(m.cfg.AudioDir)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]audioFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audio directory %s: %w", m.cfg.AudioDir, err)
	}

	files := make(map[string]audioFile)
	for _, e := range entries {
		if e.IsDir() || !isAudio(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if prev, dup := files[name]; dup {
			m.logger.Warn("Duplicate audio base name, keeping first",
				zap.String("kept", filepath.Base(prev.path)), zap.String("ignored", e.Name()))
			continue
		}
		files[name] = audioFile{path: filepath.Join(m.cfg.AudioDir, e.Name()), size: info.Size()}
	}
	return files, nil
}

// transcriptFiles maps base name to transcript path.
func (m *Manager) transcriptFiles() (map[string]string, error) {
	return scanTranscripts(m.cfg.TranscriptDir)
}

// FindTranscript returns the transcript for base name in dir, using the same
// lookup as Items.
func FindTranscript(dir, name string) (string, bool) {
	files, err := scanTranscripts(dir)
	if err != nil {
		return "", false
	}
	p, ok := files[name]
	return p, ok
}

// scanTranscripts maps base name to transcript path. Extensions match case
// insensitively and .txt wins over .json. A missing directory is treated as empty.
func scanTranscripts(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript directory %s: %w", dir, err)
	}

	files := make(map[string]string)
	rank := make(map[string]int)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		r := transcriptRank(e.Name())
		if r < 0 {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if prev, ok := rank[name]; ok && prev <= r {
			continue
		}
		files[name] = filepath.Join(dir, e.Name())
		rank[name] = r
	}
	return files, nil
}

// transcriptRank is the lookup position of the file's extension, or -1.
func transcriptRank(filename string) int {
	ext := strings.ToLower(filepath.Ext(filename))
	for i, t := range transcriptExtensions {
		if ext == t {
			return i
		}
	}
	return -1
}

func isAudio(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range AudioExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// LoadTranscript reads a .txt or .json transcript and returns its text.
func LoadTranscript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return strings.TrimSpace(string(data)), nil
	case ".json":
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return strings.TrimSpace(s), nil
		}
		var tf transcriptFile
		if err := json.Unmarshal(data, &tf); err != nil {
			return "", fmt.Errorf("unexpected JSON format in %s: %w", path, err)
		}
		switch {
		case tf.Text != nil:
			return strings.TrimSpace(*tf.Text), nil
		case tf.Transcript != nil:
			return strings.TrimSpace(*tf.Transcript), nil
		default:
			return "", fmt.Errorf("JSON transcript %s has no \"text\" field", path)
		}
	default:
		return "", fmt.Errorf("unsupported transcript format: %s", filepath.Ext(path))
	}
}

// Validate checks dataset completeness. Expected problems are collected as
// human readable issues, never returned as errors; the dataset is valid when
// there are no issues.
func (m *Manager) Validate() (bool, []string) {
	var issues []string

	audio, err := m.audioFiles()
	if err != nil {
		return false, []string{err.Error()}
	}

	transcripts, err := m.transcriptFiles()
	if err != nil {
		return false, []string{err.Error()}
	}
	for name, path := range transcripts {
		if _, ok := audio[name]; !ok {
			issues = append(issues, fmt.Sprintf("Audio file missing for transcript: %s", path))
		}
	}

	matched := make(map[string]bool)
	names := make([]string, 0, len(audio))
	for name := range audio {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		a := audio[name]
		transcriptPath, ok := transcripts[name]
		if !ok {
			issues = append(issues, fmt.Sprintf("Transcript missing for audio: %s", a.path))
			continue
		}
		matched[name] = true

		if a.size > m.cfg.MaxFileBytes {
			issues = append(issues, fmt.Sprintf("Audio file too large: %s (%.2f MB exceeds %.2f MB)",
				a.path, float64(a.size)/(1024*1024), float64(m.cfg.MaxFileBytes)/(1024*1024)))
		}

		text, err := LoadTranscript(transcriptPath)
		if err != nil {
			issues = append(issues, fmt.Sprintf("Error loading transcript %s: %v", transcriptPath, err))
			continue
		}
		if len(metricscalculator.Normalize(text)) == 0 {
			issues = append(issues, fmt.Sprintf("Empty transcript: %s", transcriptPath))
		}
	}

	if len(matched) == 0 {
		issues = append(issues, "No dataset items found")
	}

	sort.Strings(issues)
	return len(issues) == 0, issues
}

// Metadata summarises the dataset for dataset_metadata.json.
type Metadata struct {
	AudioDir      string `json:"audio_dir"`
	TranscriptDir string `json:"transcript_dir"`
	Items         []Item `json:"items"`
	TotalBytes    int64  `json:"total_bytes"`
	TotalWords    int    `json:"total_words"`
}

// SaveMetadata writes dataset_metadata.json into the data directory and
// returns its path.
func (m *Manager) SaveMetadata() (string, error) {
	items, err := m.Items()
	if err != nil {
		return "", err
	}

	meta := Metadata{AudioDir: m.cfg.AudioDir, TranscriptDir: m.cfg.TranscriptDir, Items: items}
	for _, it := range items {
		meta.TotalBytes += it.AudioSize
		if text, err := LoadTranscript(it.TranscriptPath); err == nil {
			meta.TotalWords += len(metricscalculator.Normalize(text))
		}
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode dataset metadata: %w", err)
	}
	if err := os.MkdirAll(m.cfg.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(m.cfg.DataDir, "dataset_metadata.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write dataset metadata: %w", err)
	}
	m.logger.Info("Saved dataset metadata", zap.String("path", path))
	return path, nil
}
