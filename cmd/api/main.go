// The API accepts seed URLs and exposes per-job status lookups.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"pagehound/common"
	pkafka "pagehound/internal/kafka"
	"pagehound/internal/models"
	"pagehound/internal/store"
)

type server struct {
	prod  pkafka.JobProducer
	store store.StatusStore
}

func newServer(prod pkafka.JobProducer, store store.StatusStore) *server {
	return &server{
		prod:  prod,
		store: store,
	}
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	topic := common.GetEnv("KAFKA_FRONTIER_TOPIC", "pagehound.crawl.frontier")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	statusTTL := common.ParseDuration(common.GetEnv("STATUS_TTL", "24h"), 24*time.Hour)
	addr := common.GetEnv("API_ADDR", ":8080")

	prod := pkafka.NewProducer(broker, topic)
	defer func() {
		if err := prod.Close(); err != nil {
			log.Printf("failed to close producer: %v", err)
		}
	}()

	statusStore := store.NewRedisStatusStore(redisAddr, "crawl:status:", statusTTL)
	defer func() {
		if err := statusStore.Close(); err != nil {
			log.Printf("failed to close status store: %v", err)
		}
	}()

	srv := newServer(prod, statusStore)

	mux := http.NewServeMux()
	mux.HandleFunc("/crawl", srv.handleCrawl)
	mux.HandleFunc("/crawl/", srv.handleCrawlStatus)

	log.Printf("api listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

// handleCrawl accepts POST requests to enqueue a crawl job.
//
// Method: POST
// Path:   /crawl?url=...
// Example:
//
//	curl -X POST "http://localhost:8080/crawl?url=https://example.org/"
func (s *server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	seedURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if seedURL == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}

	job, err := models.NewJob(seedURL, "")
	if err != nil {
		if errors.Is(err, models.ErrInvalidURL) {
			http.Error(w, "url must be absolute", http.StatusBadRequest)
			return
		}
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.prod.WriteJob(ctx, job); err != nil {
		http.Error(w, "failed to enqueue job", http.StatusBadGateway)
		return
	}

	queued := store.JobStatus{
		Identifier: job.Identifier,
		URL:        job.URL,
		State:      "queued",
		UpdatedAt:  job.CreatedAt,
	}
	if err := s.store.SetStatus(ctx, queued); err != nil {
		http.Error(w, "failed to persist status", http.StatusBadGateway)
		return
	}

	writeJSON(w, queued, http.StatusAccepted)
}

// handleCrawlStatus returns the latest stored status for a job.
//
// Method: GET
// Path:   /crawl/{identifier}
// Example:
//
//	curl "http://localhost:8080/crawl/356a192b7913b04c54574d18c28d46e6395428ab"
func (s *server) handleCrawlStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identifier := strings.Trim(strings.TrimPrefix(r.URL.Path, "/crawl/"), "/")
	if identifier == "" {
		http.Error(w, "missing identifier", http.StatusBadRequest)
		return
	}

	status, ok, err := s.store.GetStatus(r.Context(), identifier)
	if err != nil {
		http.Error(w, "failed to load status", http.StatusBadGateway)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, status, http.StatusOK)
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
