package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/segmentio/kafka-go"

	"pagehound/internal/checker"
	"pagehound/internal/config"
	"pagehound/internal/crawler"
	"pagehound/internal/dnscache"
	"pagehound/internal/httpx"
	pkafka "pagehound/internal/kafka"
	"pagehound/internal/models"
	"pagehound/internal/store"
	"pagehound/mocks"
)

type sinkFunc func(ctx context.Context, status models.Status) error

func (f sinkFunc) Report(ctx context.Context, status models.Status) error { return f(ctx, status) }

type queueFunc func(ctx context.Context, job *models.Job) error

func (f queueFunc) Push(ctx context.Context, job *models.Job) error { return f(ctx, job) }

func testCrawlParams() config.CrawlParams {
	return config.CrawlParams{
		Filetypes: []string{"text/html", "text/plain", "text/xml"},
		Languages: []string{"en"},
		MaxSize:   10 << 20,
		UserAgent: "pagehound-test",
	}
}

// newTestFetcher builds a pipeline against an httptest server with an
// in-memory freshness store and a recording status sink.
func newTestFetcher(hc *http.Client, statuses *[]models.Status, mu *sync.Mutex) *crawler.Fetcher {
	params := testCrawlParams()
	return &crawler.Fetcher{
		Client:  httpx.NewClient(hc, params),
		Checker: checker.New(store.NewMemoryCacheStore()),
		Extractor: &crawler.Extractor{
			Works:  queueFunc(func(context.Context, *models.Job) error { return nil }),
			Params: params,
		},
		Monitor: sinkFunc(func(_ context.Context, st models.Status) error {
			mu.Lock()
			defer mu.Unlock()
			*statuses = append(*statuses, st)
			return nil
		}),
		Params: params,
	}
}

func TestWorkerDispatchInvalidPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)
	commitCh := make(chan kafka.Message, 10)
	var wg sync.WaitGroup
	w := newWorker(reader, nil, nil, nil, 1, time.Minute, 30*time.Second, commitCh, &wg)

	msg := kafka.Message{Partition: 0, Offset: 7, Value: []byte("{invalid")}
	if err := w.dispatchMessage(context.Background(), msg); err != nil {
		t.Fatalf("dispatchMessage returned error: %v", err)
	}

	select {
	case got := <-commitCh:
		if got.Offset != 7 {
			t.Fatalf("unexpected committed offset: %d", got.Offset)
		}
	case <-time.After(time.Second):
		t.Fatal("invalid payload must still be committed")
	}
}

func TestWorkerDispatchEmptyURL(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)
	commitCh := make(chan kafka.Message, 10)
	var wg sync.WaitGroup
	w := newWorker(reader, nil, nil, nil, 1, time.Minute, 30*time.Second, commitCh, &wg)

	payload, err := json.Marshal(models.Job{})
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	if err := w.dispatchMessage(context.Background(), kafka.Message{Offset: 3, Value: payload}); err != nil {
		t.Fatalf("dispatchMessage returned error: %v", err)
	}

	select {
	case got := <-commitCh:
		if got.Offset != 3 {
			t.Fatalf("unexpected committed offset: %d", got.Offset)
		}
	case <-time.After(time.Second):
		t.Fatal("empty url must still be committed")
	}
}

func TestWorkerDispatchRunsPipeline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte("<html></html>"))
		}
	}))
	defer server.Close()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)
	commitCh := make(chan kafka.Message, 10)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses []models.Status
	)
	fetcher := newTestFetcher(server.Client(), &statuses, &mu)
	w := newWorker(reader, fetcher, nil, nil, 1, time.Minute, 30*time.Second, commitCh, &wg)

	job, err := models.NewJob(server.URL+"/page", "")
	if err != nil {
		t.Fatalf("NewJob returned error: %v", err)
	}
	payload, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}

	if err := w.dispatchMessage(context.Background(), kafka.Message{Offset: 11, Value: payload}); err != nil {
		t.Fatalf("dispatchMessage returned error: %v", err)
	}
	wg.Wait()

	select {
	case got := <-commitCh:
		if got.Offset != 11 {
			t.Fatalf("unexpected committed offset: %d", got.Offset)
		}
	case <-time.After(time.Second):
		t.Fatal("completed job must be committed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 1 {
		t.Fatalf("expected exactly one reported status, got %d", len(statuses))
	}
	if statuses[0].Code != models.StatusOK {
		t.Fatalf("unexpected status: %+v", statuses[0])
	}
}

func TestWorkerDispatchAttachesPrefetchedIP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
	}))
	defer server.Close()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)
	commitCh := make(chan kafka.Message, 10)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses []models.Status
	)

	dns := dnscache.NewBuffer(resolverFunc(func(_ context.Context, host string) ([]string, error) {
		return []string{"10.0.0.1"}, nil
	}), time.Second)
	dns.Submit("prefetched.example")
	dns.Wait()

	fetcher := newTestFetcher(server.Client(), &statuses, &mu)
	w := newWorker(reader, fetcher, nil, dns, 1, time.Minute, 30*time.Second, commitCh, &wg)

	job, err := models.NewJob(server.URL+"/x", "prefetched.example")
	if err != nil {
		t.Fatalf("NewJob returned error: %v", err)
	}
	payload, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	if err := w.dispatchMessage(context.Background(), kafka.Message{Value: payload}); err != nil {
		t.Fatalf("dispatchMessage returned error: %v", err)
	}
	wg.Wait()
	<-commitCh
}

type resolverFunc func(ctx context.Context, host string) ([]string, error)

func (f resolverFunc) LookupHost(ctx context.Context, host string) ([]string, error) {
	return f(ctx, host)
}

func TestPublishEdgesWritesOneMessagePerLink(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	edges := pkafka.NewEdgeProducerWithWriter(writer)

	var got []models.Edge
	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kafka.Message) error {
			for _, m := range msgs {
				var e models.Edge
				if err := json.Unmarshal(m.Value, &e); err != nil {
					t.Fatalf("decode edge: %v", err)
				}
				got = append(got, e)
			}
			return nil
		}).
		Times(2)

	w := &worker{edges: edges}
	job := models.Job{URL: "https://example.org/", Host: "example.org"}
	links := []string{"https://example.org/a", "https://other.example/b"}
	if err := w.publishEdges(context.Background(), job, links); err != nil {
		t.Fatalf("publishEdges returned error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(got))
	}
	if got[0].FromURL != job.URL || got[0].ToURL != links[0] {
		t.Fatalf("unexpected first edge: %+v", got[0])
	}
	if got[1].ToHost != "other.example" {
		t.Fatalf("unexpected target host: %+v", got[1])
	}
}

func TestPublishTimeoutAdvancesCommit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`<a href="https://linked.example/page">x</a>`))
		}
	}))
	defer server.Close()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)
	writer := mocks.NewMockMessageWriter(ctrl)
	// Simulate a stuck edge publish: block until the publish context
	// expires.
	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ ...kafka.Message) error {
			<-ctx.Done()
			return ctx.Err()
		}).
		Times(1)

	commitCh := make(chan kafka.Message, 10)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses []models.Status
	)
	fetcher := newTestFetcher(server.Client(), &statuses, &mu)
	edges := pkafka.NewEdgeProducerWithWriter(writer)
	w := newWorker(reader, fetcher, edges, nil, 1, 5*time.Minute, time.Minute, commitCh, &wg)
	w.publishTimeout = 50 * time.Millisecond

	job, err := models.NewJob(server.URL+"/page", "")
	if err != nil {
		t.Fatalf("NewJob returned error: %v", err)
	}
	payload, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	if err := w.dispatchMessage(context.Background(), kafka.Message{Offset: 42, Value: payload}); err != nil {
		t.Fatalf("dispatchMessage returned error: %v", err)
	}

	select {
	case got := <-commitCh:
		if got.Offset != 42 {
			t.Fatalf("unexpected committed offset: %d", got.Offset)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("publish timeout did not advance the commit path")
	}
	wg.Wait()
}

func TestCommitCoordinatorCommitsInOffsetOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)
	commitCh := make(chan kafka.Message, 4)
	coordinator := newCommitCoordinator(reader, commitCh)

	var (
		mu        sync.Mutex
		committed []int64
	)
	reader.EXPECT().
		CommitMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kafka.Message) error {
			mu.Lock()
			defer mu.Unlock()
			for _, m := range msgs {
				committed = append(committed, m.Offset)
			}
			return nil
		}).
		Times(3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go coordinator.run(ctx, &wg)

	// Completion order 1, 2, 0; commits must come out 0, 1, 2.
	commitCh <- kafka.Message{Partition: 0, Offset: 1}
	commitCh <- kafka.Message{Partition: 0, Offset: 2}
	commitCh <- kafka.Message{Partition: 0, Offset: 0}
	close(commitCh)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(committed) != 3 {
		t.Fatalf("expected 3 commits, got %v", committed)
	}
	for i, off := range []int64{0, 1, 2} {
		if committed[i] != off {
			t.Fatalf("commit %d out of order: got %v", i, committed)
		}
	}
}

func TestCommitCoordinatorRequeuesOnCommitFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)
	commitCh := make(chan kafka.Message, 2)
	coordinator := newCommitCoordinator(reader, commitCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go coordinator.run(ctx, &wg)

	// First commit (offset 0) fails; the coordinator re-queues it and the
	// next drain retries offset 0 before committing offset 1.
	gomock.InOrder(
		reader.EXPECT().CommitMessages(gomock.Any(), gomock.Any()).Return(errors.New("commit failed")),
		reader.EXPECT().CommitMessages(gomock.Any(), gomock.Any()).Return(nil),
		reader.EXPECT().CommitMessages(gomock.Any(), gomock.Any()).Return(nil),
	)

	commitCh <- kafka.Message{Partition: 0, Offset: 0, Value: []byte("a")}
	time.Sleep(50 * time.Millisecond)
	commitCh <- kafka.Message{Partition: 0, Offset: 1, Value: []byte("b")}
	time.Sleep(100 * time.Millisecond)
	close(commitCh)
	wg.Wait()
}

func TestNewWorkerCapsPublishTimeout(t *testing.T) {
	commitCh := make(chan kafka.Message)
	var wg sync.WaitGroup
	w := newWorker(nil, nil, nil, nil, 2, 2*time.Minute, 5*time.Minute, commitCh, &wg)
	if w.publishTimeout >= w.jobTimeout {
		t.Fatalf("publish timeout %v not capped below job timeout %v", w.publishTimeout, w.jobTimeout)
	}
}

func TestHostOf(t *testing.T) {
	if got := hostOf("https://example.org:8080/path"); got != "example.org:8080" {
		t.Fatalf("unexpected host: %q", got)
	}
	if got := hostOf("://bad"); got != "" {
		t.Fatalf("expected empty host for invalid url, got %q", got)
	}
}
