package models

import "time"

// Terminal status codes for one fetch. The set is closed; the monitor
// treats anything else as a protocol error.
const (
	StatusOK               = 200 // fetched, or unchanged and skipped
	StatusNotAbsolute      = 401 // transport rejected a non-absolute URL
	StatusBadFileType      = 402 // content-type missing or not allowed
	StatusTooLarge         = 403 // content-length over the configured limit
	StatusHostNotFound     = 404 // DNS resolution failed
	StatusTransportError   = 500 // any other transport fault
	StatusCacheUnavailable = 503 // freshness store unreachable
)

// Status is the terminal outcome of one job, reported exactly once.
type Status struct {
	Code       int       `json:"code"`
	Message    string    `json:"message,omitempty"`
	URL        string    `json:"url,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	Host       string    `json:"host,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

// NewStatus builds a Status for a job outcome.
func NewStatus(code int, message string, job *Job) Status {
	st := Status{
		Code:       code,
		Message:    message,
		ReportedAt: time.Now().UTC(),
	}
	if job != nil {
		st.URL = job.URL
		st.Identifier = job.Identifier
		st.Host = job.Host
	}
	return st
}

// Retryable reports whether a later attempt at the same job could
// succeed. Policy skips (bad type, too large) and malformed URLs are
// final; DNS, transport, and cache-store faults are not.
func Retryable(code int) bool {
	switch code {
	case StatusHostNotFound, StatusTransportError, StatusCacheUnavailable:
		return true
	default:
		return false
	}
}
