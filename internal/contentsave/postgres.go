// Package contentsave persists fetched documents and crawl statistics to
// PostgreSQL. Saves run asynchronously; the crawl pipeline hands a
// document off and moves on.
package contentsave

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pagehound/internal/models"
)

const saveTimeout = 30 * time.Second

// PostgresSaver implements crawler.DocumentSaver on a pgx pool.
type PostgresSaver struct {
	db  *pgxpool.Pool
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPostgresSaver connects to the database. maxInFlight bounds the
// number of concurrent save goroutines.
func NewPostgresSaver(connStr string, maxInFlight int) (*PostgresSaver, error) {
	db, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if maxInFlight < 1 {
		maxInFlight = 4
	}
	return &PostgresSaver{db: db, sem: make(chan struct{}, maxInFlight)}, nil
}

func (s *PostgresSaver) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Save schedules an asynchronous write of the document and its
// statistics. Errors are logged, never surfaced to the pipeline.
func (s *PostgresSaver) Save(_ context.Context, job *models.Job, content []byte, header http.Header, record models.CacheRecord) {
	s.sem <- struct{}{}
	s.wg.Add(1)
	contentType := header.Get("Content-Type")
	go func() {
		defer func() {
			<-s.sem
			s.wg.Done()
		}()
		// Detached from the job context: the save outlives the report.
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := s.saveDocument(ctx, job, content, contentType, record); err != nil {
			log.Printf("save document url=%s: %v", job.URL, err)
		}
	}()
}

// saveDocument upserts the document and bumps per-host statistics in one
// transaction.
func (s *PostgresSaver) saveDocument(ctx context.Context, job *models.Job, content []byte, contentType string, record models.CacheRecord) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO documents (identifier, url, host, content, content_type, last_modified, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (identifier) DO UPDATE SET
		   url = EXCLUDED.url, content = EXCLUDED.content, content_type = EXCLUDED.content_type,
		   last_modified = EXCLUDED.last_modified, fetched_at = NOW()`,
		record.Identifier, job.URL, job.Host, content, contentType, record.LastModified,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO crawl_stats (host, content_type, pages, bytes, updated_at)
		 VALUES ($1, $2, 1, $3, NOW())
		 ON CONFLICT (host, content_type) DO UPDATE SET
		   pages = crawl_stats.pages + 1, bytes = crawl_stats.bytes + EXCLUDED.bytes, updated_at = NOW()`,
		job.Host, contentType, len(content),
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Close waits for in-flight saves and releases the pool.
func (s *PostgresSaver) Close() {
	s.wg.Wait()
	s.db.Close()
}
