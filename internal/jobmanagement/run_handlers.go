package jobmanagement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/coreengine/evaluationengine"
	"gpt4o-speed-bench/internal/datastore"
	"gpt4o-speed-bench/internal/logging"
	"gpt4o-speed-bench/internal/objectstore"
)

// HistoryStore is the read side of the run history.
type HistoryStore interface {
	ListRuns(ctx context.Context, limit int) ([]*datastore.Run, error)
	GetRun(ctx context.Context, id string) (*datastore.Run, error)
	GetTestRecordsForRun(ctx context.Context, runID string) ([]evaluationengine.TestRecord, error)
}

// ObjectReader fetches published artifacts.
type ObjectReader interface {
	GetFileReader(ctx context.Context, objectName string) (io.ReadCloser, int64, error)
}

// RunHandlers serves the read-only run history API.
type RunHandlers struct {
	store   HistoryStore
	objects ObjectReader
}

// NewRunHandlers creates the handlers. objects may be nil when MinIO is not
// configured; downloads then only use local files.
func NewRunHandlers(store HistoryStore, objects ObjectReader) *RunHandlers {
	return &RunHandlers{store: store, objects: objects}
}

// ListRunsHandler lists runs, newest first. ?limit=N caps the result.
func (h *RunHandlers) ListRunsHandler(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs: " + err.Error()})
		return
	}
	if runs == nil {
		runs = []*datastore.Run{}
	}
	c.JSON(http.StatusOK, runs)
}

// GetRunHandler returns one run.
func (h *RunHandlers) GetRunHandler(c *gin.Context) {
	run, ok := h.lookupRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetRunRecordsHandler returns every test record of a run.
func (h *RunHandlers) GetRunRecordsHandler(c *gin.Context) {
	run, ok := h.lookupRun(c)
	if !ok {
		return
	}

	records, err := h.store.GetTestRecordsForRun(c.Request.Context(), run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve records for run: " + err.Error()})
		return
	}
	if records == nil {
		records = []evaluationengine.TestRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// DownloadArtifactHandler serves a report file of a run by kind (csv, json,
// markdown, chart). The local file wins; the published copy is the fallback.
func (h *RunHandlers) DownloadArtifactHandler(c *gin.Context) {
	run, ok := h.lookupRun(c)
	if !ok {
		return
	}
	kind := c.Param("kind")

	if local := run.Artifacts[kind]; local != "" {
		if info, err := os.Stat(local); err == nil && !info.IsDir() {
			c.FileAttachment(local, filepath.Base(local))
			return
		}
	}

	key := run.Artifacts[kind+"_object"]
	if key == "" || h.objects == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Artifact %q not available for run %s", kind, run.ID)})
		return
	}

	reader, size, err := h.objects.GetFileReader(c.Request.Context(), key)
	if err != nil {
		logging.LogError(err, "Failed to fetch published artifact", zap.String("run_id", run.ID), zap.String("object", key))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch artifact: " + err.Error()})
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, size, objectstore.ContentType(key), reader, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, path.Base(key)),
	})
}

func (h *RunHandlers) lookupRun(c *gin.Context) (*datastore.Run, bool) {
	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, datastore.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve run: " + err.Error()})
		}
		return nil, false
	}
	return run, true
}
