package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/logging"
)

const usage = `Usage: speedbench [command] [flags]

Commands:
  run        run the speed benchmark (default)
  validate   check the dataset and print issues
  history    list stored benchmark runs
  serve      serve the run history as JSON over HTTP

Run "speedbench <command> -h" for command flags.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	if cmd == "help" {
		fmt.Print(usage)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if err := logging.InitializeWithConfig(logging.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		return 1
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "run":
		return runCommand(ctx, cfg, args)
	case "validate":
		return validateCommand(cfg, args)
	case "history":
		return historyCommand(ctx, cfg, args)
	case "serve":
		return serveCommand(ctx, cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

// speedList is a repeatable, comma separated --speeds flag.
type speedList []float64

func (s *speedList) String() string {
	parts := make([]string, len(*s))
	for i, v := range *s {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}

func (s *speedList) Set(v string) error {
	speeds, err := config.ParseSpeeds(v)
	if err != nil {
		return err
	}
	*s = append(*s, speeds...)
	return nil
}
