package models

import "time"

// Edge is one discovered page-to-page link, published for the link graph.
type Edge struct {
	FromURL      string    `json:"from_url"`
	ToURL        string    `json:"to_url"`
	ToHost       string    `json:"to_host,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}
