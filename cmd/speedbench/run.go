package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/coreengine/audioprocessor"
	"gpt4o-speed-bench/internal/coreengine/evaluationengine"
	"gpt4o-speed-bench/internal/coreengine/vendoradapters"
	"gpt4o-speed-bench/internal/dataset"
	"gpt4o-speed-bench/internal/datastore"
	"gpt4o-speed-bench/internal/jobmanagement"
	"gpt4o-speed-bench/internal/logging"
	"gpt4o-speed-bench/internal/objectstore"
	"gpt4o-speed-bench/internal/reporting"
)

// runOptions are the flags of the run command.
type runOptions struct {
	speeds     speedList
	noViz      bool
	singleFile string
	backend    string
	keepTemp   bool
	name       string
}

// parseRunFlags parses run flags. Bare factors after --speeds extend the
// list, so "--speeds 1.0 2.0 3.0" equals "--speeds 1.0,2.0,3.0".
func parseRunFlags(args []string, output io.Writer) (runOptions, error) {
	var opts runOptions
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Var(&opts.speeds, "speeds", "Speed factors, comma separated, space separated or repeated (default SPEED_FACTORS)")
	fs.BoolVar(&opts.noViz, "no-viz", false, "Skip the PNG chart")
	fs.StringVar(&opts.singleFile, "single-file", "", "Only test this audio file (base name)")
	fs.StringVar(&opts.backend, "backend", "", "Transcription backend: openai-audio|openai-transcribe|google|mock")
	fs.BoolVar(&opts.keepTemp, "keep-temp", false, "Keep sped-up audio files in TEMP_DIR")
	fs.StringVar(&opts.name, "name", "", "Label stored with the run in history")

	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return opts, err
		}
		rest = fs.Args()
		if len(rest) == 0 {
			return opts, nil
		}
		if len(opts.speeds) == 0 {
			err := fmt.Errorf("unexpected argument %q", rest[0])
			fmt.Fprintln(output, err)
			fs.Usage()
			return opts, err
		}
		if err := opts.speeds.Set(rest[0]); err != nil {
			err = fmt.Errorf("unexpected argument %q: %w", rest[0], err)
			fmt.Fprintln(output, err)
			fs.Usage()
			return opts, err
		}
		rest = rest[1:]
	}
}

func runCommand(ctx context.Context, cfg *config.Config, args []string) int {
	opts, err := parseRunFlags(args, os.Stderr)
	if err != nil {
		return 2
	}

	if len(opts.speeds) > 0 {
		cfg.SpeedFactors = opts.speeds
	}
	if opts.backend != "" {
		cfg.Transcriber.Backend = strings.ToLower(opts.backend)
	}
	cfg.Output.Visualize = !opts.noViz
	cfg.Output.KeepTempFiles = opts.keepTemp

	if err := cfg.Validate(); err != nil {
		logging.LogError(err, "Invalid configuration")
		return 1
	}
	if err := cfg.RequireCredentials(); err != nil {
		logging.LogError(err, "Setup check failed")
		return 1
	}

	audio := audioprocessor.NewProcessor(cfg.Audio, nil)
	if err := audio.CheckTools(); err != nil {
		logging.LogError(err, "Setup check failed")
		return 1
	}

	items, err := loadItems(cfg, opts.singleFile)
	if err != nil {
		logging.LogError(err, "Setup check failed")
		return 1
	}

	transcriber, err := vendoradapters.GetTranscriber(cfg)
	if err != nil {
		logging.LogError(err, "Failed to create transcriber")
		return 1
	}

	engine := evaluationengine.NewEngine(cfg, transcriber, audio)
	svc := jobmanagement.NewBenchmarkService(cfg, engine, reporting.NewWriter(cfg.Output)).
		WithCleanup(audio.CleanupTempFiles)

	if store := openHistory(ctx, cfg); store != nil {
		defer store.Close()
		svc.WithStore(store)
	}
	if cfg.ObjectStore.Enabled() {
		mc, err := objectstore.NewMinioClient(ctx, cfg.ObjectStore)
		if err != nil {
			logging.LogWarn("Artifact publication disabled", zap.Error(err))
		} else {
			svc.WithPublisher(mc)
		}
	}

	result, err := svc.Run(ctx, jobmanagement.RunRequest{
		Name:   opts.name,
		Model:  transcriber.Name(),
		Items:  items,
		Speeds: cfg.SpeedFactors,
	})
	if err != nil {
		logging.LogError(err, "Benchmark failed")
		return 1
	}

	printSummary(result)
	return 0
}

// errNoItems is a setup failure: nothing in the dataset can be tested.
var errNoItems = errors.New("no audio files with transcripts found")

// loadItems pairs the dataset, or resolves one file for --single-file.
// Validation issues are only logged: the engine records an oversized file as
// failed and an empty reference as undefined, per speed.
func loadItems(cfg *config.Config, singleFile string) ([]dataset.Item, error) {
	mgr := dataset.NewManager(cfg.Dataset, logging.Logger)
	if err := mgr.EnsureDirectories(); err != nil {
		return nil, err
	}
	if singleFile != "" {
		item, err := mgr.Item(singleFile)
		if err != nil {
			return nil, err
		}
		return []dataset.Item{item}, nil
	}

	if _, issues := mgr.Validate(); len(issues) > 0 {
		for _, issue := range issues {
			logging.LogWarn("Dataset issue", zap.String("issue", issue))
		}
	}
	items, err := mgr.Items()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errNoItems
	}
	return items, nil
}

// openHistory returns nil when history is disabled or unavailable; a run
// without history still produces its reports.
func openHistory(ctx context.Context, cfg *config.Config) *datastore.Store {
	store, err := datastore.Open(ctx, cfg.History)
	switch {
	case errors.Is(err, datastore.ErrHistoryDisabled):
		return nil
	case err != nil:
		logging.LogWarn("Run history unavailable", zap.Error(err))
		return nil
	}
	return store
}

func printSummary(result *jobmanagement.RunResult) {
	fmt.Printf("\nRun %s: %s, %d tests\n\n", result.Run.ID, result.Run.Status, len(result.Records))
	fmt.Printf("%-8s %6s %6s %10s %10s %12s\n", "speed", "ok", "failed", "mean WER", "mean CER", "savings")
	for _, s := range reporting.Summarize(result.Records) {
		wer, cer := "undefined", "undefined"
		if s.Scored() {
			wer, cer = fmt.Sprintf("%.4f", s.MeanWER), fmt.Sprintf("%.4f", s.MeanCER)
		}
		fmt.Printf("%-8g %6d %6d %10s %10s %11.1f%%\n", s.Speed, s.OK, s.Failed, wer, cer, s.MeanCostSavings)
	}
	fmt.Println()
	for _, p := range result.Artifacts.Paths() {
		fmt.Println("  " + p)
	}
}
