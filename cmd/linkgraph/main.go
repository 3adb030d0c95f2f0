// The linkgraph writer consumes discovered link edges and materializes
// the page graph in Neo4j.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"pagehound/common"
	"pagehound/internal/crawler"
	"pagehound/internal/graph"
	"pagehound/internal/models"
)

var (
	edgesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagehound_linkgraph_edges_received_total",
		Help: "Edge messages fetched from the links topic.",
	})
	edgesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagehound_linkgraph_edges_written_total",
		Help: "Edges merged into Neo4j.",
	})
	edgesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagehound_linkgraph_edges_failed_total",
		Help: "Edge decode or Neo4j write failures.",
	})
)

type linkGraphWriter struct {
	driver graph.DriverSessioner
}

type neo4jDriver struct {
	driver neo4j.DriverWithContext
}

func (d *neo4jDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) graph.SessionRunner {
	return d.driver.NewSession(ctx, config)
}

func (d *neo4jDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	linksTopic := common.GetEnv("KAFKA_LINKS_TOPIC", "pagehound.crawl.links")
	linksGroup := common.GetEnv("KAFKA_LINKS_GROUP", "pagehound-linkgraph")
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9091")

	neo4jURI := common.GetEnv("NEO4J_URI", "neo4j://localhost:7687")
	neo4jUser := common.GetEnv("NEO4J_USER", "neo4j")
	neo4jPassword := common.GetEnv("NEO4J_PASSWORD", "neo4j")

	driver, err := neo4j.NewDriverWithContext(neo4jURI, neo4j.BasicAuth(neo4jUser, neo4jPassword, ""))
	if err != nil {
		log.Fatalf("neo4j driver error: %v", err)
	}
	defer func() {
		if err := driver.Close(context.Background()); err != nil {
			log.Printf("neo4j close error: %v", err)
		}
	}()

	writer := &linkGraphWriter{driver: &neo4jDriver{driver: driver}}

	edgesReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   linksTopic,
		GroupID: linksGroup,
	})
	defer func() {
		if err := edgesReader.Close(); err != nil {
			log.Printf("edges reader close error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	log.Printf("linkgraph consuming topic=%s group=%s broker=%s", linksTopic, linksGroup, broker)
	consumeEdges(ctx, edgesReader, writer)
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

func consumeEdges(ctx context.Context, reader crawler.MessageReader, writer *linkGraphWriter) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("edges fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		edgesReceived.Inc()
		if err := writer.writeEdge(ctx, msg.Value); err != nil {
			edgesFailed.Inc()
			log.Printf("edges write error: %v", err)
			continue
		}
		edgesWritten.Inc()

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("edges commit error: %v", err)
		}
	}
}

func (w *linkGraphWriter) writeEdge(ctx context.Context, payload []byte) error {
	var edge models.Edge
	if err := json.Unmarshal(payload, &edge); err != nil {
		return err
	}
	if edge.FromURL == "" || edge.ToURL == "" {
		return nil
	}

	query, params := buildEdgeQuery(edge)
	return graph.RunWrite(ctx, w.driver, query, params)
}

// buildEdgeQuery MERGEs both pages and the LINKS_TO relation between
// them, recording the target host and latest sighting on the edge.
func buildEdgeQuery(edge models.Edge) (string, map[string]any) {
	query := "MERGE (from:Page {url: $fromURL}) " +
		"MERGE (to:Page {url: $toURL}) " +
		"SET to.host = coalesce($toHost, to.host) " +
		"MERGE (from)-[r:LINKS_TO]->(to) " +
		"SET r.last_seen = $discoveredAt"

	var toHost any
	if edge.ToHost != "" {
		toHost = edge.ToHost
	}
	params := map[string]any{
		"fromURL":      edge.FromURL,
		"toURL":        edge.ToURL,
		"toHost":       toHost,
		"discoveredAt": edge.DiscoveredAt.UTC().Format(time.RFC3339),
	}
	return query, params
}
