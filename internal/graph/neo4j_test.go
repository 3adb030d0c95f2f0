package graph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"

	"pagehound/internal/graph"
	"pagehound/mocks"
)

func TestRunWriteExecutesInFreshSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	driver := mocks.NewMockDriverSessioner(ctrl)
	session := mocks.NewMockSessionRunner(ctrl)

	driver.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(session)
	session.EXPECT().ExecuteWrite(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	session.EXPECT().Close(gomock.Any()).Return(nil)

	err := graph.RunWrite(context.Background(), driver, "MERGE (p:Page {url: $url})", map[string]any{"url": "https://example.org/"})
	if err != nil {
		t.Fatalf("RunWrite returned error: %v", err)
	}
}

func TestRunWritePropagatesWriteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	driver := mocks.NewMockDriverSessioner(ctrl)
	session := mocks.NewMockSessionRunner(ctrl)

	writeErr := errors.New("neo4j unavailable")
	driver.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(session)
	session.EXPECT().ExecuteWrite(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, writeErr)
	session.EXPECT().Close(gomock.Any()).Return(nil)

	if err := graph.RunWrite(context.Background(), driver, "MERGE (p:Page)", nil); !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
}
