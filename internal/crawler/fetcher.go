package crawler

import (
	"context"
	"errors"
	"log"
	"strconv"

	"pagehound/internal/config"
	"pagehound/internal/httpx"
	"pagehound/internal/models"
	"pagehound/internal/store"
)

// Fetcher runs one job end to end: HEAD probe, content filter, freshness
// check, GET, extraction, persistence hand-off. Each run reports exactly
// one terminal status to the monitor sink, whichever branch terminates
// it.
type Fetcher struct {
	Client    Transport
	Checker   FreshnessChecker
	Extractor *Extractor
	Saver     DocumentSaver
	Monitor   StatusSink
	Params    config.CrawlParams
}

// Run executes the pipeline for a job and reports the outcome. The
// returned status mirrors what was sent to the monitor; the string slice
// holds the URLs accepted during extraction, for diagnostics and the
// link graph.
func (f *Fetcher) Run(ctx context.Context, job *models.Job) (models.Status, []string) {
	status, links := f.crawl(ctx, job)
	if err := f.Monitor.Report(ctx, status); err != nil {
		log.Printf("status report url=%s code=%d: %v", status.URL, status.Code, err)
	}
	return status, links
}

// crawl is the single exit point for outcome classification: every
// return carries the job's one terminal status.
func (f *Fetcher) crawl(ctx context.Context, job *models.Job) (models.Status, []string) {
	head, canonical, err := f.Client.Head(ctx, job.URL)
	if err != nil {
		return f.transportStatus(err, job), nil
	}

	contentType := head.Get("Content-Type")
	if !f.Params.TypeAllowed(contentType) {
		return models.NewStatus(models.StatusBadFileType, "file type is not recognized", job), nil
	}
	if raw := head.Get("Content-Length"); raw != "" {
		if size, perr := strconv.ParseInt(raw, 10, 64); perr == nil && size > f.Params.MaxSize {
			return models.NewStatus(models.StatusTooLarge, "file size is too big", job), nil
		}
	}

	// Keep the original identifier while switching to the canonical
	// address, so the cache lookup finds the entry created for the URL
	// this job was enqueued under.
	job.SetURLKeepIdentifier(canonical)

	cached, record, err := f.Checker.Check(ctx, job, head.Get("Last-Modified"))
	if err != nil {
		if errors.Is(err, store.ErrCacheUnavailable) {
			return models.NewStatus(models.StatusCacheUnavailable, err.Error(), job), nil
		}
		return models.NewStatus(models.StatusCacheUnavailable, "freshness check failed: "+err.Error(), job), nil
	}
	if cached {
		return models.NewStatus(models.StatusOK, "url exists and skipped", job), nil
	}

	getHeader, body, err := f.Client.Get(ctx, job.URL)
	if err != nil {
		return f.transportStatus(err, job), nil
	}

	result, err := f.Extractor.Extract(ctx, body, getHeader.Get("Content-Type"), job.URL)
	switch {
	case err != nil:
		// unparseable for its declared type: the document is still
		// saved, just without new links
		log.Printf("extract url=%s: %v", job.URL, err)
	case !result.Supported:
		log.Printf("extract url=%s type=%s: unsupported document type", job.URL, getHeader.Get("Content-Type"))
	}

	if f.Saver != nil {
		f.Saver.Save(ctx, job, body, getHeader, record)
	}

	return models.NewStatus(models.StatusOK, "", job), result.URLs
}

func (f *Fetcher) transportStatus(err error, job *models.Job) models.Status {
	switch {
	case errors.Is(err, httpx.ErrRelativeURI):
		return models.NewStatus(models.StatusNotAbsolute, "url is not absolute", job)
	case errors.Is(err, httpx.ErrHostUnresolved):
		return models.NewStatus(models.StatusHostNotFound, "host is not found", job)
	default:
		return models.NewStatus(models.StatusTransportError, err.Error(), job)
	}
}
