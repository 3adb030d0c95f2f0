package models_test

import (
	"errors"
	"testing"

	"pagehound/internal/models"
)

func TestNewJobDerivesHostAndIdentifier(t *testing.T) {
	job, err := models.NewJob("https://example.org:8080/path?q=1", "")
	if err != nil {
		t.Fatalf("NewJob returned error: %v", err)
	}
	if job.Host != "example.org:8080" {
		t.Fatalf("unexpected host: %q", job.Host)
	}
	if job.Identifier != models.ComputeIdentifier(job.URL) {
		t.Fatalf("identifier does not match url digest: %q", job.Identifier)
	}
	if job.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}
}

func TestNewJobExplicitHostWins(t *testing.T) {
	job, err := models.NewJob("https://example.org/", "mirror.example.org")
	if err != nil {
		t.Fatalf("NewJob returned error: %v", err)
	}
	if job.Host != "mirror.example.org" {
		t.Fatalf("unexpected host: %q", job.Host)
	}
}

func TestNewJobRejectsRelativeURL(t *testing.T) {
	if _, err := models.NewJob("/relative/path", ""); !errors.Is(err, models.ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestIdentifierDeterministic(t *testing.T) {
	a := models.ComputeIdentifier("https://example.org/")
	b := models.ComputeIdentifier("https://example.org/")
	if a != b {
		t.Fatalf("identifier not deterministic: %q vs %q", a, b)
	}
	if len(a) != 40 {
		t.Fatalf("expected 40 hex chars, got %d", len(a))
	}
	if c := models.ComputeIdentifier("https://example.org/other"); c == a {
		t.Fatal("distinct urls produced the same identifier")
	}
}

func TestSetURLRecomputesIdentifier(t *testing.T) {
	job, err := models.NewJob("https://example.org/a", "")
	if err != nil {
		t.Fatalf("NewJob returned error: %v", err)
	}
	before := job.Identifier

	job.SetURL("https://example.org/b")
	if job.URL != "https://example.org/b" {
		t.Fatalf("unexpected url: %q", job.URL)
	}
	if job.Identifier == before {
		t.Fatal("expected SetURL to recompute the identifier")
	}
	if job.Identifier != models.ComputeIdentifier("https://example.org/b") {
		t.Fatalf("identifier does not match new url: %q", job.Identifier)
	}
}

func TestSetURLKeepIdentifier(t *testing.T) {
	job, err := models.NewJob("https://example.org/a", "")
	if err != nil {
		t.Fatalf("NewJob returned error: %v", err)
	}
	before := job.Identifier

	job.SetURLKeepIdentifier("https://example.org/canonical")
	if job.URL != "https://example.org/canonical" {
		t.Fatalf("unexpected url: %q", job.URL)
	}
	if job.Identifier != before {
		t.Fatalf("identifier changed: %q vs %q", job.Identifier, before)
	}
}
