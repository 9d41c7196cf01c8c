package queue

import (
	"testing"
	"time"

	"github.com/studyforge/api/internal/config"
)

func workerConfig(baseURL string) *config.WorkerConfig {
	return &config.WorkerConfig{
		BaseURL:             baseURL,
		TaskSecret:          "secret",
		DispatchDeadlineMin: 15,
	}
}

func TestNewClient_AcceptsBaseAddress(t *testing.T) {
	c, err := NewClient(nil, workerConfig("http://localhost:8080"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Audience() != "http://localhost:8080" {
		t.Errorf("expected audience 'http://localhost:8080', got %q", c.Audience())
	}
	if c.Deadline() != 15*time.Minute {
		t.Errorf("expected 15m deadline, got %v", c.Deadline())
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c, err := NewClient(nil, workerConfig("http://localhost:8080/"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Audience() != "http://localhost:8080" {
		t.Errorf("expected trimmed audience, got %q", c.Audience())
	}
}

func TestNewClient_RejectsSubPathAudience(t *testing.T) {
	_, err := NewClient(nil, workerConfig("http://localhost:8080/tasks/run-analysis"))
	if err == nil {
		t.Fatal("expected rejection of a sub-path audience")
	}
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewClient(nil, workerConfig("localhost:8080/"))
	if err == nil {
		t.Fatal("expected rejection of a non-absolute base URL")
	}
}

func TestNewClient_RejectsMissingBaseURL(t *testing.T) {
	if _, err := NewClient(nil, workerConfig("")); err == nil {
		t.Fatal("expected rejection of an empty base URL")
	}
}

func TestNewClient_RejectsMissingSecret(t *testing.T) {
	cfg := workerConfig("http://localhost:8080")
	cfg.TaskSecret = ""
	if _, err := NewClient(nil, cfg); err == nil {
		t.Fatal("expected rejection of a missing task secret")
	}
}

func TestNewClient_DefaultsDeadline(t *testing.T) {
	cfg := workerConfig("http://localhost:8080")
	cfg.DispatchDeadlineMin = 0
	c, err := NewClient(nil, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Deadline() != 15*time.Minute {
		t.Errorf("expected default 15m deadline, got %v", c.Deadline())
	}
}
