// Package checker decides whether a job's target changed since the last
// crawl, using last-modified markers cached per identifier.
package checker

import (
	"context"

	"pagehound/internal/models"
	"pagehound/internal/store"
)

// Checker runs the freshness check against a CacheStore.
type Checker struct {
	store store.CacheStore
}

func New(s store.CacheStore) *Checker {
	return &Checker{store: s}
}

// Check looks up the job's identifier and compares last-modified values
// as opaque strings. It reports cached only when a record exists for the
// identifier with the same URL and the same last-modified value; in every
// other case the record is (re)written with the job's current URL and the
// response's last-modified. The returned record's URL always reflects the
// job's current URL, never a stale cached one.
//
// The whole decision runs inside one atomic store update, so two workers
// racing on the same identifier cannot both observe not-cached for the
// same freshness state.
func (c *Checker) Check(ctx context.Context, job *models.Job, lastModified string) (bool, models.CacheRecord, error) {
	var (
		cached bool
		out    models.CacheRecord
	)
	err := c.store.Update(ctx, job.Identifier, func(current *models.CacheRecord) (models.CacheRecord, bool) {
		switch {
		case current == nil:
			// first sighting
			cached = false
		case current.URL != job.URL:
			// identifier reuse across different URLs: never trust the
			// timestamp, rebind the record to the observed URL
			cached = false
		case current.LastModified == lastModified:
			cached = true
			out = *current
			return models.CacheRecord{}, false
		default:
			cached = false
		}
		out = models.CacheRecord{
			Identifier:   job.Identifier,
			URL:          job.URL,
			LastModified: lastModified,
		}
		return out, true
	})
	if err != nil {
		return false, models.CacheRecord{}, err
	}
	job.SetLastUpdate(out.LastModified)
	return cached, out, nil
}
