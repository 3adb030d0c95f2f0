package crawler

import (
	"context"
	"net/http"

	"github.com/segmentio/kafka-go"

	"pagehound/internal/models"
)

// MessageReader abstracts kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter abstracts kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Transport issues the pipeline's HTTP calls. Head returns the response
// headers and the canonical resource URL; Get returns headers and body.
// Implemented by httpx.Client.
type Transport interface {
	Head(ctx context.Context, rawURL string) (http.Header, string, error)
	Get(ctx context.Context, rawURL string) (http.Header, []byte, error)
}

// JobQueue is the shared work queue newly discovered jobs stream into.
// Multi-producer, multi-consumer.
type JobQueue interface {
	Push(ctx context.Context, job *models.Job) error
}

// StatusSink receives exactly one terminal status per job.
// Multi-producer, single-consumer.
type StatusSink interface {
	Report(ctx context.Context, status models.Status) error
}

// DocumentSaver hands fetched documents to persistence. Implementations
// complete asynchronously; the pipeline does not wait for them.
type DocumentSaver interface {
	Save(ctx context.Context, job *models.Job, content []byte, header http.Header, record models.CacheRecord)
}

// FreshnessChecker decides whether a job's target changed since the last
// crawl. Implemented by checker.Checker.
type FreshnessChecker interface {
	Check(ctx context.Context, job *models.Job, lastModified string) (bool, models.CacheRecord, error)
}
