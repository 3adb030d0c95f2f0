// The monitor is the single consumer of the status topic: every job's
// terminal outcome lands here, updates the job-status store the API
// reads, and feeds the outcome counters.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"pagehound/common"
	"pagehound/internal/crawler"
	"pagehound/internal/models"
	"pagehound/internal/store"
)

var (
	statusReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagehound_monitor_status_received_total",
		Help: "Status reports consumed from the status topic.",
	})
	statusInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagehound_monitor_status_invalid_total",
		Help: "Status messages that failed to decode or carried an unknown code.",
	})
	statusByCode = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagehound_monitor_status_total",
		Help: "Status reports by terminal code and retryability.",
	}, []string{"code", "retryable"})
	storeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagehound_monitor_store_errors_total",
		Help: "Failures writing job status to the store.",
	})
)

type monitor struct {
	store store.StatusStore
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	statusTopic := common.GetEnv("KAFKA_STATUS_TOPIC", "pagehound.crawl.status")
	groupID := common.GetEnv("KAFKA_STATUS_GROUP", "pagehound-monitor")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	statusTTL := common.ParseDuration(common.GetEnv("STATUS_TTL", "24h"), 24*time.Hour)
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9092")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   statusTopic,
		GroupID: groupID,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("status reader close error: %v", err)
		}
	}()

	statusStore := store.NewRedisStatusStore(redisAddr, "crawl:status:", statusTTL)
	defer func() {
		if err := statusStore.Close(); err != nil {
			log.Printf("status store close error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	m := &monitor{store: statusStore}
	log.Printf("monitor consuming topic=%s group=%s broker=%s", statusTopic, groupID, broker)
	m.consume(ctx, reader)
}

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

func (m *monitor) consume(ctx context.Context, reader crawler.MessageReader) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("status fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		statusReceived.Inc()
		if err := m.handleStatus(ctx, msg.Value); err != nil {
			log.Printf("status handle error: %v", err)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("status commit error: %v", err)
		}
	}
}

// handleStatus validates one report against the closed code enumeration
// and persists it.
func (m *monitor) handleStatus(ctx context.Context, payload []byte) error {
	var st models.Status
	if err := json.Unmarshal(payload, &st); err != nil {
		statusInvalid.Inc()
		return err
	}
	if !knownCode(st.Code) {
		statusInvalid.Inc()
		return fmt.Errorf("unknown status code %d for %s", st.Code, st.URL)
	}

	statusByCode.WithLabelValues(strconv.Itoa(st.Code), strconv.FormatBool(models.Retryable(st.Code))).Inc()

	if st.Identifier == "" {
		return nil
	}
	if err := m.store.SetStatus(ctx, store.DoneStatus(st)); err != nil {
		storeErrors.Inc()
		return err
	}
	return nil
}

func knownCode(code int) bool {
	switch code {
	case models.StatusOK, models.StatusNotAbsolute, models.StatusBadFileType,
		models.StatusTooLarge, models.StatusHostNotFound,
		models.StatusTransportError, models.StatusCacheUnavailable:
		return true
	default:
		return false
	}
}
