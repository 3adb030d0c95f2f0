package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Worker metrics exposed on /metrics. Outcome counters are labeled by
// terminal status code so skips and failures can be graphed separately.
var (
	jobsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagehound_worker_jobs_received_total",
		Help: "Jobs pulled from the frontier topic.",
	})
	jobsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagehound_worker_jobs_invalid_total",
		Help: "Frontier messages that failed to decode.",
	})
	jobsOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagehound_worker_jobs_total",
		Help: "Completed jobs by terminal status code.",
	}, []string{"code"})
	jobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagehound_worker_jobs_in_flight",
		Help: "Jobs currently being processed.",
	})
	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagehound_worker_job_duration_seconds",
		Help:    "Full pipeline duration per job.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
	linksDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagehound_worker_links_discovered_total",
		Help: "Links accepted during extraction.",
	})
	commitErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagehound_worker_commit_errors_total",
		Help: "Kafka CommitMessages failures.",
	})
	commitPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagehound_worker_commit_pending",
		Help: "Messages buffered in the coordinator awaiting commit.",
	})
	commitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagehound_worker_commit_latency_seconds",
		Help:    "Kafka commit latency.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown error: %v", err)
		}
	}()

	go func() {
		log.Printf("metrics listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
}
