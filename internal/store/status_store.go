package store

import (
	"context"
	"time"

	"pagehound/internal/models"
)

// JobStatus is the monitor's view of one job: the seed/queued state set
// by the API, then the terminal outcome written by the monitor.
type JobStatus struct {
	Identifier string    `json:"identifier"`
	URL        string    `json:"url"`
	State      string    `json:"state"` // queued | done
	Code       int       `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StatusStore persists per-job status keyed by identifier.
type StatusStore interface {
	SetStatus(ctx context.Context, status JobStatus) error
	GetStatus(ctx context.Context, identifier string) (JobStatus, bool, error)
}

// DoneStatus converts a terminal report into a stored JobStatus.
func DoneStatus(st models.Status) JobStatus {
	return JobStatus{
		Identifier: st.Identifier,
		URL:        st.URL,
		State:      "done",
		Code:       st.Code,
		Message:    st.Message,
		UpdatedAt:  st.ReportedAt,
	}
}
