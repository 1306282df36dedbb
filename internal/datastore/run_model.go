package datastore

import (
	"errors"
	"time"
)

// Run statuses, following the PENDING -> RUNNING -> COMPLETED/FAILED lifecycle.
const (
	RunStatusPending     = "PENDING"
	RunStatusRunning     = "RUNNING"
	RunStatusCompleted   = "COMPLETED"
	RunStatusFailed      = "FAILED"
	RunStatusInterrupted = "INTERRUPTED"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("benchmark run not found")

// Run maps to the benchmark_runs table.
type Run struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Backend     string            `json:"backend"`
	Model       string            `json:"model"`
	Speeds      []float64         `json:"speeds"`
	Status      string            `json:"status"`
	Error       string            `json:"error,omitempty"`
	Artifacts   map[string]string `json:"artifacts,omitempty"` // kind -> path or object key
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}
