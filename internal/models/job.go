package models

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidURL is returned when a job URL carries no scheme separator.
var ErrInvalidURL = errors.New("job url must be absolute")

// Job is one crawl target on the frontier.
//
// Identifier is the sha1 hex digest of URL at the time it was last set
// through SetURL. SetURLKeepIdentifier deliberately leaves it alone: after
// a HEAD reveals the canonical post-redirect address, the job keeps its
// original identifier so the freshness cache still finds the prior entry.
// Two jobs with equal Identifier are the same cache entry no matter what
// their URL fields currently say.
type Job struct {
	URL        string    `json:"url"`
	Identifier string    `json:"identifier"`
	Host       string    `json:"host"`
	HostIP     string    `json:"host_ip,omitempty"`
	LastUpdate string    `json:"last_update,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewJob builds a Job for an absolute URL. When host is empty it is
// derived from the URL authority.
func NewJob(rawURL, host string) (*Job, error) {
	if !strings.Contains(rawURL, "://") {
		return nil, ErrInvalidURL
	}
	if host == "" {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return nil, ErrInvalidURL
		}
		host = parsed.Host
	}
	return &Job{
		URL:        rawURL,
		Identifier: ComputeIdentifier(rawURL),
		Host:       host,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// SetURL is the canonical setter: it updates the URL and recomputes the
// identifier.
func (j *Job) SetURL(rawURL string) {
	j.URL = rawURL
	j.Identifier = ComputeIdentifier(rawURL)
}

// SetURLKeepIdentifier updates the URL without touching the identifier.
// Used when the observed address changes (canonical Content-Location,
// aliases) but cache continuity must be preserved.
func (j *Job) SetURLKeepIdentifier(rawURL string) {
	j.URL = rawURL
}

// SetIP records the resolved address for the job's host.
func (j *Job) SetIP(ip string) {
	j.HostIP = ip
}

// SetLastUpdate records the last-modified value confirmed by the
// freshness check.
func (j *Job) SetLastUpdate(lastModified string) {
	j.LastUpdate = lastModified
}

// ComputeIdentifier returns the sha1 hex digest of a URL.
func ComputeIdentifier(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}
