package stores

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run, core list or intersection is missing.
var ErrNotFound = errors.New("not found")

// RunStatus represents the status of an enumeration run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// Run represents one enumeration run of a problem
type Run struct {
	ID           string            `json:"id"`
	Problem      string            `json:"problem"`
	Strategy     string            `json:"strategy"`
	Source       string            `json:"source,omitempty"`
	Status       RunStatus         `json:"status"`
	Universe     []string          `json:"universe"`
	Labels       map[string]string `json:"labels,omitempty"`
	CoreCount    int               `json:"core_count"`
	TotalChecks  int64             `json:"total_checks"`
	ActualChecks int64             `json:"actual_checks"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	Error        *string           `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// RunOutcome is what CompleteRun records about a finished run
type RunOutcome struct {
	Status       RunStatus
	CoreCount    int
	TotalChecks  int64
	ActualChecks int64
	Error        *string
}

// Core is a minimal core found during a run. Seq is its discovery order.
type Core struct {
	ID           int64         `json:"id"`
	RunID        string        `json:"run_id"`
	Seq          int           `json:"seq"`
	Elements     []string      `json:"elements"`
	TotalChecks  int64         `json:"total_checks"`
	ActualChecks int64         `json:"actual_checks"`
	Elapsed      time.Duration `json:"elapsed"`
	FoundAt      time.Time     `json:"found_at"`
}

// Intersection is the set of elements common to every core of a run
type Intersection struct {
	RunID        string        `json:"run_id"`
	Elements     []string      `json:"elements"`
	TotalChecks  int64         `json:"total_checks"`
	ActualChecks int64         `json:"actual_checks"`
	Elapsed      time.Duration `json:"elapsed"`
	FoundAt      time.Time     `json:"found_at"`
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Problem string
	Status  RunStatus
	Limit   int
	Offset  int
}

// Store defines the interface for the run history
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, id string, outcome RunOutcome) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Core operations
	AddCore(ctx context.Context, core *Core) error
	ListCores(ctx context.Context, runID string) ([]*Core, error)

	// Intersection operations
	SetIntersection(ctx context.Context, in *Intersection) error
	GetIntersection(ctx context.Context, runID string) (*Intersection, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
