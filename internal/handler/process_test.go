package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/studyforge/api/internal/model"
	"github.com/studyforge/api/internal/queue"
	"github.com/studyforge/api/internal/service"
)

type fakeJobStore struct {
	created int
}

func (f *fakeJobStore) Create(ctx context.Context, userID string, snapshot json.RawMessage, batchID string) (string, error) {
	f.created++
	return fmt.Sprintf("job-%d", f.created), nil
}

func (f *fakeJobStore) Update(ctx context.Context, userID, jobID string, status model.JobStatus, errorMessage string, results json.RawMessage) error {
	return nil
}

type fakeTaskQueue struct {
	err error
}

func (f *fakeTaskQueue) Enqueue(ctx context.Context, userID, jobID string) (*queue.TaskHandle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &queue.TaskHandle{ID: jobID, Queue: queue.QueueAnalysis}, nil
}

func setupApp(t *testing.T, tq *fakeTaskQueue) *fiber.App {
	t.Helper()

	svc := service.NewSubmissionService(&fakeJobStore{}, tq)
	h := NewProcessHandler(svc, validator.New())

	app := fiber.New()
	app.Post("/api/process", h.Process)
	app.Post("/api/process-bulk", h.ProcessBulk)
	return app
}

func doPost(t *testing.T, app *fiber.App, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var parsed map[string]interface{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			t.Fatalf("invalid JSON response %q: %v", data, err)
		}
	}
	return resp, parsed
}

func TestProcess_Accepted(t *testing.T) {
	app := setupApp(t, &fakeTaskQueue{})

	resp, body := doPost(t, app, "/api/process", `{"userId":"user-1","transcript":"lecture text"}`)

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if body["jobId"] == nil || body["jobId"] == "" {
		t.Error("expected jobId in response")
	}
	if body["status"] != "QUEUED" {
		t.Errorf("expected status QUEUED, got %v", body["status"])
	}
}

func TestProcess_RejectsAmbiguousInput(t *testing.T) {
	app := setupApp(t, &fakeTaskQueue{})

	resp, _ := doPost(t, app, "/api/process",
		`{"userId":"user-1","transcript":"text","durationSeconds":300}`)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestProcess_RejectsMissingInput(t *testing.T) {
	app := setupApp(t, &fakeTaskQueue{})

	resp, _ := doPost(t, app, "/api/process", `{"userId":"user-1"}`)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestProcess_RejectsUnknownModel(t *testing.T) {
	app := setupApp(t, &fakeTaskQueue{})

	resp, _ := doPost(t, app, "/api/process",
		`{"userId":"user-1","transcript":"text","modelChoice":"whisper"}`)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestProcess_EnqueueFailureReportsJobID(t *testing.T) {
	app := setupApp(t, &fakeTaskQueue{err: errors.New("queue unreachable")})

	resp, body := doPost(t, app, "/api/process", `{"userId":"user-1","transcript":"text"}`)

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	errObj, _ := body["error"].(map[string]interface{})
	if errObj["code"] != "ENQUEUE_FAILED" {
		t.Errorf("expected code ENQUEUE_FAILED, got %v", errObj["code"])
	}
	details, _ := errObj["details"].(map[string]interface{})
	if details["jobId"] != "job-1" {
		t.Errorf("expected failing job id in details, got %v", details["jobId"])
	}
}

func TestProcessBulk_Accepted(t *testing.T) {
	app := setupApp(t, &fakeTaskQueue{})

	resp, body := doPost(t, app, "/api/process-bulk",
		`{"userId":"user-1","items":[{"transcript":"one"},{"transcript":"two"}]}`)

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if body["batchId"] == nil || body["batchId"] == "" {
		t.Error("expected batchId in response")
	}
	jobs, _ := body["jobs"].([]interface{})
	if len(jobs) != 2 {
		t.Fatalf("expected 2 job outcomes, got %d", len(jobs))
	}
}

func TestProcessBulk_RejectsEmptyItems(t *testing.T) {
	app := setupApp(t, &fakeTaskQueue{})

	resp, _ := doPost(t, app, "/api/process-bulk", `{"userId":"user-1","items":[]}`)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
