package models

import "time"

type RunStatus string

const (
	RunStatusOK     RunStatus = "ok"
	RunStatusFailed RunStatus = "failed"
)

// RetrievalRun records one probe of the upstream news listing.
type RetrievalRun struct {
	ID               string
	StartedAt        time.Time
	Duration         time.Duration
	Status           RunStatus
	ReportCount      int
	DroppedRows      int // rows excluded for shape
	DroppedLocations int // rows excluded for a bad location, only when skipping is enabled
	Error            string
	UpstreamStatus   int // HTTP status when the failure was a transport error
}

func (r *RetrievalRun) Failed() bool {
	return r.Status == RunStatusFailed
}
