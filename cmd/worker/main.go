package main

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"pagehound/common"
	"pagehound/internal/checker"
	"pagehound/internal/config"
	"pagehound/internal/contentsave"
	"pagehound/internal/crawler"
	"pagehound/internal/dnscache"
	"pagehound/internal/httpx"
	pkafka "pagehound/internal/kafka"
	"pagehound/internal/models"
	"pagehound/internal/store"
)

type messageReader = crawler.MessageReader

type worker struct {
	reader         messageReader
	fetcher        *crawler.Fetcher
	edges          *pkafka.EdgeProducer
	dns            *dnscache.Buffer
	concurrentJobs int
	jobTimeout     time.Duration // per-job deadline so one stuck job can't hold a slot forever
	publishTimeout time.Duration // max time for the edge publish phase so we never block the commit path
	commitCh       chan<- kafka.Message
	sem            chan struct{}
	wg             *sync.WaitGroup
}

func newWorker(
	reader messageReader,
	fetcher *crawler.Fetcher,
	edges *pkafka.EdgeProducer,
	dns *dnscache.Buffer,
	concurrentJobs int,
	jobTimeout time.Duration,
	publishTimeout time.Duration,
	commitCh chan<- kafka.Message,
	wg *sync.WaitGroup,
) *worker {
	if concurrentJobs < 1 {
		concurrentJobs = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	if publishTimeout <= 0 {
		publishTimeout = 90 * time.Second
	}
	// Cap publish timeout so the job context can still cancel the publish phase
	if publishTimeout >= jobTimeout {
		publishTimeout = jobTimeout - time.Minute
		if publishTimeout < 30*time.Second {
			publishTimeout = 30 * time.Second
		}
	}
	return &worker{
		reader:         reader,
		fetcher:        fetcher,
		edges:          edges,
		dns:            dns,
		concurrentJobs: concurrentJobs,
		jobTimeout:     jobTimeout,
		publishTimeout: publishTimeout,
		commitCh:       commitCh,
		sem:            make(chan struct{}, concurrentJobs),
		wg:             wg,
	}
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	frontierTopic := common.GetEnv("KAFKA_FRONTIER_TOPIC", "pagehound.crawl.frontier")
	statusTopic := common.GetEnv("KAFKA_STATUS_TOPIC", "pagehound.crawl.status")
	linksTopic := common.GetEnv("KAFKA_LINKS_TOPIC", "pagehound.crawl.links")
	groupID := common.GetEnv("KAFKA_GROUP_ID", "pagehound-worker")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	cacheTTL := common.ParseDuration(common.GetEnv("CACHE_TTL", "168h"), 168*time.Hour)
	postgresDSN := common.GetEnv("POSTGRES_DSN", "")
	concurrentJobs := common.ParseInt(common.GetEnv("CONCURRENT_JOBS", "5"), 5)
	jobTimeout := common.ParseDuration(common.GetEnv("JOB_TIMEOUT", "5m"), 5*time.Minute)
	publishTimeout := common.ParseDuration(common.GetEnv("PUBLISH_TIMEOUT", "90s"), 90*time.Second)
	dnsTimeout := common.ParseDuration(common.GetEnv("DNS_TIMEOUT", "10s"), 10*time.Second)
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9090")

	params := config.Load()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   frontierTopic,
		GroupID: groupID,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("failed to close reader: %v", err)
		}
	}()

	cacheStore := store.NewRedisCacheStore(redisAddr, "crawl:cache:", cacheTTL)
	defer func() {
		if err := cacheStore.Close(); err != nil {
			log.Printf("failed to close cache store: %v", err)
		}
	}()

	frontier := pkafka.NewProducer(broker, frontierTopic)
	defer func() {
		if err := frontier.Close(); err != nil {
			log.Printf("failed to close frontier producer: %v", err)
		}
	}()

	monitor := pkafka.NewStatusProducer(broker, statusTopic)
	defer func() {
		if err := monitor.Close(); err != nil {
			log.Printf("failed to close status producer: %v", err)
		}
	}()

	edges := pkafka.NewEdgeProducer(broker, linksTopic)
	defer func() {
		if err := edges.Close(); err != nil {
			log.Printf("failed to close edge producer: %v", err)
		}
	}()

	var saver crawler.DocumentSaver
	if postgresDSN != "" {
		pg, err := contentsave.NewPostgresSaver(postgresDSN, concurrentJobs)
		if err != nil {
			log.Fatalf("postgres saver: %v", err)
		}
		defer pg.Close()
		saver = pg
	} else {
		log.Printf("POSTGRES_DSN unset, documents will not be persisted")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	dns := dnscache.NewBuffer(nil, dnsTimeout)
	fetcher := &crawler.Fetcher{
		Client:  httpx.NewClient(nil, params),
		Checker: checker.New(cacheStore),
		Extractor: &crawler.Extractor{
			Works:   frontier,
			DNS:     dns,
			Handler: crawler.DefaultLinkHandler{},
			Params:  params,
		},
		Saver:   saver,
		Monitor: monitor,
		Params:  params,
	}

	commitCh := make(chan kafka.Message, concurrentJobs*2)
	coordinator := newCommitCoordinator(reader, commitCh)
	var coordWg sync.WaitGroup
	coordWg.Add(1)
	go coordinator.run(ctx, &coordWg)

	var wg sync.WaitGroup
	log.Printf("worker consuming topic=%s group=%s broker=%s concurrent_jobs=%d", frontierTopic, groupID, broker, concurrentJobs)
	w := newWorker(reader, fetcher, edges, dns, concurrentJobs, jobTimeout, publishTimeout, commitCh, &wg)
	w.run(ctx)
	wg.Wait()
	close(commitCh)
	coordWg.Wait()
	dns.Wait()
}

// run consumes messages from the frontier topic, dispatches to worker
// goroutines (bounded by semaphore), and routes commits through the
// coordinator.
func (w *worker) run(ctx context.Context) {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := w.dispatchMessage(ctx, msg); err != nil {
			log.Printf("message dispatch error: %v", err)
		}
	}
}

// dispatchMessage decodes the job and picks up any prefetched address for
// its host, then spawns a goroutine for the fetch pipeline.
func (w *worker) dispatchMessage(ctx context.Context, msg kafka.Message) error {
	var job models.Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		jobsInvalid.Inc()
		log.Printf("invalid job payload: %v", err)
		w.commitCh <- msg
		return nil
	}
	if job.URL == "" {
		jobsInvalid.Inc()
		log.Printf("job payload without url partition=%d offset=%d", msg.Partition, msg.Offset)
		w.commitCh <- msg
		return nil
	}
	// Hand-enqueued payloads may omit the identifier.
	if job.Identifier == "" {
		job.Identifier = models.ComputeIdentifier(job.URL)
	}

	jobsReceived.Inc()
	if w.dns != nil && job.Host != "" {
		if addr, state := w.dns.Lookup(job.Host); state == dnscache.StateResolved {
			job.SetIP(addr)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.sem <- struct{}{}:
	}
	jobsInFlight.Inc()
	w.wg.Add(1)
	go w.processJobAsync(ctx, msg, job)
	return nil
}

// processJobAsync runs the pipeline and publishes link edges; runs in a
// worker goroutine. Uses a per-job context with timeout so one stuck job
// can't hold the slot forever. Defers sending msg to commitCh so the
// partition advances even on panic or timeout.
func (w *worker) processJobAsync(ctx context.Context, msg kafka.Message, job models.Job) {
	// Always release the slot and signal commit so one bad job doesn't
	// block the partition.
	defer func() {
		jobsInFlight.Dec()
		<-w.sem
		w.wg.Done()
		w.commitCh <- msg
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	log.Printf("received job url=%s host=%s partition=%d offset=%d", job.URL, job.Host, msg.Partition, msg.Offset)
	start := time.Now()
	status, links := w.fetcher.Run(jobCtx, &job)
	jobDuration.Observe(time.Since(start).Seconds())
	jobsOutcome.WithLabelValues(strconv.Itoa(status.Code)).Inc()
	linksDiscovered.Add(float64(len(links)))

	if len(links) == 0 {
		return
	}

	// Bounded publish phase so a stuck Kafka write never blocks the
	// commit path.
	publishCtx, publishCancel := context.WithTimeout(jobCtx, w.publishTimeout)
	defer publishCancel()
	if err := w.publishEdges(publishCtx, job, links); err != nil {
		log.Printf("edge publish error url=%s: %v", job.URL, err)
	}
	if publishCtx.Err() != nil {
		log.Printf("publish timeout partition=%d offset=%d (advancing to avoid stuck partition)", msg.Partition, msg.Offset)
	}
}

func (w *worker) publishEdges(ctx context.Context, job models.Job, links []string) error {
	if w.edges == nil {
		return nil
	}
	for _, link := range links {
		edge := models.Edge{
			FromURL:      job.URL,
			ToURL:        link,
			ToHost:       hostOf(link),
			DiscoveredAt: time.Now().UTC(),
		}
		if err := w.edges.WriteEdge(ctx, edge); err != nil {
			return err
		}
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
