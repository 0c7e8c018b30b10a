package dto

import (
	"time"

	"mediaDownloader/api/models"
)

type SubmitDownloadsRequest struct {
	URLs        []string `json:"urls"`
	TargetPaths []string `json:"targetPaths"`
}

type SubmitDownloadsResponse struct {
	DownloadIDs []string `json:"download_ids"`
}

type CancelResponse struct {
	Message string `json:"message"`
	// Interrupted is true when a running execution unit was signalled.
	Interrupted bool `json:"interrupted"`
}

type StatusResponse struct {
	ID        string           `json:"id"`
	Status    models.JobStatus `json:"status"`
	Progress  float64          `json:"progress"`
	Active    bool             `json:"active"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	ActiveJobs int    `json:"active_jobs"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
