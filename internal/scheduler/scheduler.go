// Package scheduler manages cron-triggered recipe executions. The agent
// talks to it through the Scheduler interface; the cron implementation in
// this package drives robfig/cron schedules against a recipe runner.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by Scheduler implementations.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job id already exists")
	ErrNotRunning  = errors.New("job is not currently running")
)

// ScheduledJob is a persistent cron-triggered recipe execution entry.
type ScheduledJob struct {
	ID               string     `json:"id"`
	Source           string     `json:"source"`
	Cron             string     `json:"cron"`
	LastRun          *time.Time `json:"last_run,omitempty"`
	CurrentlyRunning bool       `json:"currently_running"`
	Paused           bool       `json:"paused"`
	CurrentSessionID *string    `json:"current_session_id,omitempty"`
	ProcessStartTime *time.Time `json:"process_start_time,omitempty"`
}

// SessionSummary describes one past run of a scheduled job.
type SessionSummary struct {
	Name         string
	MessageCount int
	WorkingDir   string
}

// Scheduler is the control surface the agent's schedule tool drives.
type Scheduler interface {
	AddScheduledJob(ctx context.Context, job ScheduledJob) error
	ListScheduledJobs(ctx context.Context) ([]ScheduledJob, error)
	RemoveScheduledJob(ctx context.Context, id string) error
	PauseSchedule(ctx context.Context, id string) error
	UnpauseSchedule(ctx context.Context, id string) error

	// RunNow starts the job immediately and returns the session id of the
	// run it launched.
	RunNow(ctx context.Context, id string) (string, error)

	// Sessions lists past runs of a job, most recent first.
	Sessions(ctx context.Context, id string, limit int) ([]SessionSummary, error)

	// UpdateSchedule replaces a job's cron expression.
	UpdateSchedule(ctx context.Context, id string, cron string) error

	// KillRunningJob aborts the job's in-flight run.
	KillRunningJob(ctx context.Context, id string) error

	// GetRunningJobInfo returns the session id and start time of the
	// job's in-flight run, or nil when it is not running.
	GetRunningJobInfo(ctx context.Context, id string) (*RunningJobInfo, error)
}

// RunningJobInfo describes a job's in-flight run.
type RunningJobInfo struct {
	SessionID string
	StartedAt time.Time
}

// jobNotFound wraps ErrJobNotFound with the offending id.
func jobNotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}
