package store

import (
	"context"
	"errors"

	"pagehound/internal/models"
)

// ErrCacheUnavailable wraps any backend fault so callers can tell an
// infrastructure problem apart from a cache miss.
var ErrCacheUnavailable = errors.New("freshness store unavailable")

// UpdateFunc inspects the current record for an identifier (nil when
// absent) and returns the record to write plus whether to write at all.
// It may run more than once when the store retries a contended update,
// so it must be side-effect free apart from captured outputs.
type UpdateFunc func(current *models.CacheRecord) (models.CacheRecord, bool)

// CacheStore persists freshness records keyed by job identifier.
// Update must be atomic per key: two workers racing on the same
// identifier must never both observe the pre-update record and both
// write.
type CacheStore interface {
	Get(ctx context.Context, identifier string) (models.CacheRecord, bool, error)
	Update(ctx context.Context, identifier string, fn UpdateFunc) error
	Close() error
}
