// Package scheduler runs the fleet's jobs: cron-driven sweeps and
// manual triggers, dispatched through named queues with single-flight
// per job and a hard budget per invocation.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Run statuses as persisted in job_runs.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Run triggers.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// DefaultBudget bounds one invocation unless the definition overrides
// it. Kept under a minute so a stuck sweep frees its queue before the
// next tick of a typical one-minute schedule.
const DefaultBudget = 55 * time.Second

// Sentinel errors surfaced to the API layer.
var (
	ErrUnknownJob     = errors.New("unknown job")
	ErrQueueSaturated = errors.New("job queue saturated")
)

// Handler runs one job invocation. The returned metrics are persisted
// on the run and mirrored onto the job row.
type Handler func(ctx context.Context) (map[string]any, error)

// Definition declares one schedulable job.
type Definition struct {
	Module       string
	Name         string
	Queue        string
	Schedule     string // 5-field cron spec, evaluated in UTC; empty means manual-only
	TriggerClass string
	Budget       time.Duration
	Description  string
	Handler      Handler
}

// Run is one job invocation record.
type Run struct {
	ID         uuid.UUID
	Module     string
	Job        string
	Queue      string
	Trigger    string
	EnqueuedAt time.Time
}

// Finished carries the terminal state of a run.
type Finished struct {
	RunID   uuid.UUID
	Module  string
	Job     string
	Status  string
	EndedAt time.Time
	Error   string
	Metrics map[string]any
}

// JobStatus is the operational view of one job, served by the API.
type JobStatus struct {
	Module           string         `json:"module"`
	Name             string         `json:"name"`
	Queue            string         `json:"queue"`
	Schedule         string         `json:"schedule,omitempty"`
	TriggerClass     string         `json:"trigger_class,omitempty"`
	Paused           bool           `json:"paused,omitempty"`
	LastStatus       string         `json:"last_status"`
	LastRunAt        *time.Time     `json:"last_run_at,omitempty"`
	LastSuccessAt    *time.Time     `json:"last_success_at,omitempty"`
	LastErrorAt      *time.Time     `json:"last_error_at,omitempty"`
	LastError        string         `json:"last_error,omitempty"`
	LastMetrics      map[string]any `json:"last_metrics,omitempty"`
	LastRunCreatedAt *time.Time     `json:"last_run_created_at,omitempty"`
}

// runStore persists job metadata and run lifecycle transitions.
type runStore interface {
	SyncJobs(ctx context.Context, defs []Definition) error
	MarkOrphans(ctx context.Context) (int64, error)
	CreateRun(ctx context.Context, run Run) error
	MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFinished(ctx context.Context, fin Finished) error
	JobStatuses(ctx context.Context) ([]JobStatus, error)
}
