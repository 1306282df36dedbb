package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/apigateway"
	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/dataset"
	"gpt4o-speed-bench/internal/datastore"
	"gpt4o-speed-bench/internal/jobmanagement"
	"gpt4o-speed-bench/internal/logging"
	"gpt4o-speed-bench/internal/objectstore"
)

func validateCommand(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	writeMetadata := fs.Bool("write-metadata", false, "Write dataset_metadata.json into DATA_DIR")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	mgr := dataset.NewManager(cfg.Dataset, logging.Logger)
	if err := mgr.EnsureDirectories(); err != nil {
		logging.LogError(err, "Failed to prepare dataset directories")
		return 1
	}
	valid, issues := mgr.Validate()
	for _, issue := range issues {
		fmt.Println("  - " + issue)
	}
	if !valid {
		fmt.Printf("Dataset invalid: %d issue(s)\n", len(issues))
		return 1
	}
	fmt.Println("Dataset valid")

	if *writeMetadata {
		path, err := mgr.SaveMetadata()
		if err != nil {
			logging.LogError(err, "Failed to save dataset metadata")
			return 1
		}
		fmt.Println("Metadata written to " + path)
	}
	return 0
}

func historyCommand(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "Maximum number of runs to list (0 for all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, err := datastore.Open(ctx, cfg.History)
	if err != nil {
		logging.LogError(err, "Failed to open run history")
		return 1
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		logging.LogError(err, "Failed to list runs")
		return 1
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tBACKEND\tMODEL\tSPEEDS\tNAME")
	for _, r := range runs {
		speeds := make([]string, len(r.Speeds))
		for i, s := range r.Speeds {
			speeds[i] = fmt.Sprint(s)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Status, r.Backend, r.Model,
			strings.Join(speeds, ","), r.Name)
	}
	if err := tw.Flush(); err != nil {
		return 1
	}
	return 0
}

func serveCommand(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Serve.Addr, "Listen address (default SERVE_ADDR)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, err := datastore.Open(ctx, cfg.History)
	if err != nil {
		logging.LogError(err, "Failed to open run history")
		return 1
	}
	defer store.Close()

	var objects jobmanagement.ObjectReader
	if cfg.ObjectStore.Enabled() {
		mc, err := objectstore.NewMinioClient(ctx, cfg.ObjectStore)
		if err != nil {
			logging.LogWarn("Published artifacts unavailable", zap.Error(err))
		} else {
			objects = mc
		}
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           apigateway.SetupRouter(jobmanagement.NewRunHandlers(store, objects), cfg.Serve.Token),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logger.Info("Serving run history", zap.String("addr", *addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logging.LogError(err, "Server failed")
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.LogError(err, "Server shutdown failed")
			return 1
		}
		logging.Logger.Info("Server stopped")
	}
	return 0
}
