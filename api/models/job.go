package models

import (
	"time"
)

type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusDownloading JobStatus = "downloading"
	StatusProcessing  JobStatus = "processing"
	StatusMoving      JobStatus = "moving"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusCancelled   JobStatus = "cancelled"
)

const (
	// ProgressIndeterminate is reported while the fetcher does not know the total size.
	ProgressIndeterminate float64 = -1

	AspectRatioUnknown = "Unknown"
)

// TerminalStatuses lists the statuses after which a job accepts no more writes.
var TerminalStatuses = []JobStatus{StatusCompleted, StatusFailed, StatusCancelled}

var forward = map[JobStatus]JobStatus{
	StatusQueued:      StatusDownloading,
	StatusDownloading: StatusProcessing,
	StatusProcessing:  StatusMoving,
	StatusMoving:      StatusCompleted,
}

func (s JobStatus) String() string {
	return string(s)
}

func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether a job in this status may still be running.
func (s JobStatus) IsActive() bool {
	return s == StatusQueued || s == StatusDownloading || s == StatusProcessing || s == StatusMoving
}

func (s JobStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

// CanTransition reports whether a job may move from s to next. Repeating the
// current non-terminal status is allowed so progress updates can be written.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.IsTerminal() || !next.Valid() {
		return false
	}
	if next == s || next == StatusFailed || next == StatusCancelled {
		return true
	}
	return forward[s] == next
}

type Job struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	URL         string    `json:"url"`
	TargetPath  string    `json:"target_path"`
	Status      JobStatus `json:"status"`
	Progress    float64   `json:"progress"`
	AspectRatio *string   `json:"aspect_ratio"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusSnapshot is the lightweight view of a job kept in the status cache.
type StatusSnapshot struct {
	JobID     string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Status    JobStatus `json:"status"`
	Progress  float64   `json:"progress"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobEvent is published on every status transition a job goes through.
type JobEvent struct {
	JobID       string    `json:"job_id"`
	UserID      int64     `json:"user_id"`
	Status      JobStatus `json:"status"`
	Progress    float64   `json:"progress"`
	AspectRatio string    `json:"aspect_ratio,omitempty"`
	At          time.Time `json:"at"`
}
