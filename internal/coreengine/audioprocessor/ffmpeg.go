package audioprocessor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/logging"
)

// AudioInfo is what the harness needs to know about an audio file.
type AudioInfo struct {
	Duration  time.Duration
	SizeBytes int64
}

// Runner executes an external command and returns its stdout. Stderr is
// folded into the returned error on failure.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with exec.CommandContext.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

// Processor produces sped-up copies of audio files with ffmpeg and probes
// durations with ffprobe.
type Processor struct {
	cfg config.AudioConfig
	run Runner
}

// NewProcessor creates a Processor. A nil runner means ExecRunner.
func NewProcessor(cfg config.AudioConfig, run Runner) *Processor {
	if run == nil {
		run = ExecRunner
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	return &Processor{cfg: cfg, run: run}
}

// CheckTools verifies ffmpeg and ffprobe are on PATH. Missing tools are a
// setup error.
func (p *Processor) CheckTools() error {
	for _, tool := range []string{p.cfg.FFmpegPath, p.cfg.FFprobePath} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%s not found, install ffmpeg: %w", tool, err)
		}
	}
	return nil
}

// OutputPath is where ChangeSpeed writes the variant for inputPath at factor.
func (p *Processor) OutputPath(inputPath string, factor float64) string {
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(p.cfg.TempDir, fmt.Sprintf("%s_speed_%sx.mp3", stem, formatFactor(factor)))
}

// ChangeSpeed re-encodes inputPath at factor times its playback speed to
// a mono mp3 in the temp directory and returns the output path.
//
// ffmpeg -y -i in -filter:a atempo=2.0,atempo=1.5 -acodec libmp3lame -b:a 64k -ac 1 -ar 16000 out
func (p *Processor) ChangeSpeed(ctx context.Context, inputPath string, factor float64) (string, error) {
	if factor <= 0 {
		return "", fmt.Errorf("speed factor must be positive: %g", factor)
	}
	if err := os.MkdirAll(p.cfg.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	out := p.OutputPath(inputPath, factor)
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", inputPath}
	if factor != 1.0 {
		args = append(args, "-filter:a", AtempoFilter(factor))
	}
	args = append(args,
		"-acodec", "libmp3lame",
		"-b:a", p.cfg.Bitrate,
		"-ac", strconv.Itoa(p.cfg.Channels),
		"-ar", strconv.Itoa(p.cfg.SampleRate),
		out,
	)

	logging.LogAudioProcessing(inputPath, "change_speed", zap.Float64("speed", factor), zap.String("output", out))
	if _, err := p.run(ctx, p.cfg.FFmpegPath, args...); err != nil {
		return "", fmt.Errorf("ffmpeg speed change of %s to %gx failed: %w", filepath.Base(inputPath), factor, err)
	}
	return out, nil
}

// AtempoFilter builds an atempo chain for factor. A single atempo stage is
// limited to [0.5, 2.0], so larger or smaller factors are split into stages
// whose product is factor.
func AtempoFilter(factor float64) string {
	var stages []string
	for factor > 2.0 {
		stages = append(stages, "atempo=2.0")
		factor /= 2.0
	}
	for factor < 0.5 {
		stages = append(stages, "atempo=0.5")
		factor /= 0.5
	}
	stages = append(stages, "atempo="+formatFactor(factor))
	return strings.Join(stages, ",")
}

func formatFactor(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe returns the duration and size of an audio file.
func (p *Processor) Probe(ctx context.Context, path string) (AudioInfo, error) {
	out, err := p.run(ctx, p.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration,size",
		"-of", "json",
		path,
	)
	if err != nil {
		return AudioInfo{}, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return AudioInfo{}, fmt.Errorf("failed to parse ffprobe output for %s: %w", filepath.Base(path), err)
	}

	seconds, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return AudioInfo{}, fmt.Errorf("ffprobe returned no duration for %s: %w", filepath.Base(path), err)
	}
	size, err := strconv.ParseInt(parsed.Format.Size, 10, 64)
	if err != nil {
		// Some containers omit size; the file itself is authoritative anyway.
		fi, statErr := os.Stat(path)
		if statErr != nil {
			return AudioInfo{}, fmt.Errorf("failed to stat %s: %w", path, statErr)
		}
		size = fi.Size()
	}

	info := AudioInfo{Duration: time.Duration(seconds * float64(time.Second)), SizeBytes: size}
	logging.LogAudioProcessing(path, "probe", zap.Duration("duration", info.Duration), zap.Int64("size", info.SizeBytes))
	return info, nil
}

// CleanupTempFiles removes every file in the temp directory. Files that
// cannot be removed are logged and skipped.
func (p *Processor) CleanupTempFiles() {
	entries, err := os.ReadDir(p.cfg.TempDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.LogWarn("Could not read temp dir", zap.String("dir", p.cfg.TempDir), zap.Error(err))
		}
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(p.cfg.TempDir, e.Name())
		if err := os.Remove(path); err != nil {
			logging.LogWarn("Could not delete temp file", zap.String("path", path), zap.Error(err))
		}
	}
}
