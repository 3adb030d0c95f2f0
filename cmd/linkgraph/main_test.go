package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"pagehound/internal/models"
	"pagehound/mocks"
)

func newWriterWithExecuteCapture(t *testing.T) (*linkGraphWriter, *bool) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	driver := mocks.NewMockDriverSessioner(ctrl)
	session := mocks.NewMockSessionRunner(ctrl)
	called := false

	driver.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(session).AnyTimes()
	session.EXPECT().Close(gomock.Any()).Return(nil).AnyTimes()
	session.EXPECT().ExecuteWrite(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, work neo4j.ManagedTransactionWork, _ ...func(*neo4j.TransactionConfig)) (any, error) {
			called = true
			return nil, nil
		},
	).AnyTimes()

	return &linkGraphWriter{driver: driver}, &called
}

func TestBuildEdgeQuery(t *testing.T) {
	edge := models.Edge{
		FromURL:      "https://example.org/",
		ToURL:        "https://other.example/page",
		ToHost:       "other.example",
		DiscoveredAt: time.Unix(0, 0).UTC(),
	}
	query, params := buildEdgeQuery(edge)

	if !strings.Contains(query, "MERGE (from:Page {url: $fromURL})") {
		t.Fatalf("query missing source merge: %s", query)
	}
	if !strings.Contains(query, "LINKS_TO") {
		t.Fatalf("query missing relation: %s", query)
	}
	if params["fromURL"] != edge.FromURL || params["toURL"] != edge.ToURL {
		t.Fatalf("unexpected params: %+v", params)
	}
	if params["toHost"] != "other.example" {
		t.Fatalf("unexpected toHost: %+v", params["toHost"])
	}
	if params["discoveredAt"] != "1970-01-01T00:00:00Z" {
		t.Fatalf("unexpected discoveredAt: %+v", params["discoveredAt"])
	}
}

func TestBuildEdgeQueryEmptyHost(t *testing.T) {
	edge := models.Edge{FromURL: "https://a.example/", ToURL: "https://b.example/"}
	_, params := buildEdgeQuery(edge)
	if params["toHost"] != nil {
		t.Fatalf("expected nil toHost, got %+v", params["toHost"])
	}
}

func TestWriteEdgeExecutesQuery(t *testing.T) {
	writer, called := newWriterWithExecuteCapture(t)

	edge := models.Edge{
		FromURL:      "https://example.org/",
		ToURL:        "https://example.org/about",
		ToHost:       "example.org",
		DiscoveredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(edge)
	if err != nil {
		t.Fatalf("marshal edge: %v", err)
	}

	if err := writer.writeEdge(context.Background(), payload); err != nil {
		t.Fatalf("writeEdge returned error: %v", err)
	}
	if !*called {
		t.Fatal("expected a Neo4j write")
	}
}

func TestWriteEdgeRejectsMalformedPayload(t *testing.T) {
	writer, called := newWriterWithExecuteCapture(t)
	if err := writer.writeEdge(context.Background(), []byte("{invalid")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if *called {
		t.Fatal("malformed payload must not reach Neo4j")
	}
}

func TestWriteEdgeSkipsIncompleteEdge(t *testing.T) {
	writer, called := newWriterWithExecuteCapture(t)

	payload, err := json.Marshal(models.Edge{FromURL: "https://example.org/"})
	if err != nil {
		t.Fatalf("marshal edge: %v", err)
	}
	if err := writer.writeEdge(context.Background(), payload); err != nil {
		t.Fatalf("writeEdge returned error: %v", err)
	}
	if *called {
		t.Fatal("incomplete edge must not reach Neo4j")
	}
}
