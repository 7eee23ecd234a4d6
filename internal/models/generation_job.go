package models

import "time"

// JobStatus captures the polling contract states for a generation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusNotFound  JobStatus = "not_found"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobProgress is the snapshot a poller observes for one job key.
type JobProgress struct {
	JobKey     string    `json:"job_key"`
	Progress   float64   `json:"progress"`
	Message    string    `json:"message"`
	Status     JobStatus `json:"status"`
	ScheduleID *string   `json:"schedule_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}
