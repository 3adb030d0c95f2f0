package models

// CacheRecord is the persisted freshness entry for one identifier.
// One record per identifier; overwritten on every non-cached check.
type CacheRecord struct {
	Identifier   string `json:"identifier"`
	URL          string `json:"url"`
	LastModified string `json:"last_modified"`
}
