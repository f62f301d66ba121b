package interfaces

import (
	"context"
	"time"
)

// JobStatus represents the current status of a scheduled job
type JobStatus struct {
	Name        string
	Schedule    string
	Description string
	LastRun     *time.Time
	NextRun     *time.Time
	IsRunning   bool
	LastError   string
	Skipped     int // triggers dropped because the previous run was still going
}

// SchedulerService manages cron-based scheduling
type SchedulerService interface {
	// RegisterJob adds a job; handler receives a context cancelled by Stop
	RegisterJob(name, schedule, description string, handler func(ctx context.Context) error) error

	Start() error

	// Stop halts the scheduler and waits for running jobs to return
	Stop() error

	IsRunning() bool

	// TriggerJob runs a job now in the background, subject to the same overlap rule
	TriggerJob(name string) error

	GetJobStatus(name string) (*JobStatus, error)
}
