package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/studyforge/api/internal/model"
	"github.com/studyforge/api/internal/queue"
)

type createdJob struct {
	userID   string
	snapshot json.RawMessage
	batchID  string
}

type updateCall struct {
	jobID        string
	status       model.JobStatus
	errorMessage string
}

type fakeJobStore struct {
	created []createdJob
	updates []updateCall
	nextID  int
}

func (f *fakeJobStore) Create(ctx context.Context, userID string, snapshot json.RawMessage, batchID string) (string, error) {
	f.nextID++
	f.created = append(f.created, createdJob{userID: userID, snapshot: snapshot, batchID: batchID})
	return fmt.Sprintf("job-%d", f.nextID), nil
}

func (f *fakeJobStore) Update(ctx context.Context, userID, jobID string, status model.JobStatus, errorMessage string, results json.RawMessage) error {
	f.updates = append(f.updates, updateCall{jobID: jobID, status: status, errorMessage: errorMessage})
	return nil
}

type fakeTaskQueue struct {
	enqueued []string
	failOn   map[string]error
}

func (f *fakeTaskQueue) Enqueue(ctx context.Context, userID, jobID string) (*queue.TaskHandle, error) {
	if err, ok := f.failOn[jobID]; ok {
		return nil, err
	}
	f.enqueued = append(f.enqueued, jobID)
	return &queue.TaskHandle{ID: jobID, Queue: queue.QueueAnalysis}, nil
}

func newTestService() (*SubmissionService, *fakeJobStore, *fakeTaskQueue) {
	jobs := &fakeJobStore{}
	tq := &fakeTaskQueue{failOn: map[string]error{}}
	return NewSubmissionService(jobs, tq), jobs, tq
}

func transcriptRequest() *model.AnalyzeRequest {
	return &model.AnalyzeRequest{
		UserID:     "user-1",
		Transcript: "lecture text",
	}
}

func TestSubmit_Success(t *testing.T) {
	svc, jobs, tq := newTestService()

	resp, err := svc.Submit(context.Background(), transcriptRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.JobID != "job-1" {
		t.Errorf("expected job-1, got %q", resp.JobID)
	}
	if resp.Status != model.JobStatusQueued {
		t.Errorf("expected QUEUED, got %s", resp.Status)
	}
	if len(tq.enqueued) != 1 {
		t.Errorf("expected 1 enqueue, got %d", len(tq.enqueued))
	}
	if jobs.created[0].batchID != "" {
		t.Errorf("single submission should carry no batch id, got %q", jobs.created[0].batchID)
	}
}

func TestSubmit_SnapshotCarriesDefaults(t *testing.T) {
	svc, jobs, _ := newTestService()

	if _, err := svc.Submit(context.Background(), transcriptRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var snapshot model.AnalyzeRequest
	if err := json.Unmarshal(jobs.created[0].snapshot, &snapshot); err != nil {
		t.Fatalf("failed to unmarshal snapshot: %v", err)
	}
	if snapshot.ModelChoice != model.SpeechModelUniversal {
		t.Errorf("expected default model 'universal', got %q", snapshot.ModelChoice)
	}
	if snapshot.Config == nil {
		t.Fatal("expected config defaults in snapshot")
	}
	if snapshot.Config.Persona != model.PersonaProfessor {
		t.Errorf("expected default persona 'professor', got %q", snapshot.Config.Persona)
	}
	if snapshot.Config.GenerateQuizzes == nil || !*snapshot.Config.GenerateQuizzes {
		t.Error("expected quizzes enabled by default")
	}
}

func TestSubmit_RejectsZeroInputs(t *testing.T) {
	svc, jobs, _ := newTestService()

	_, err := svc.Submit(context.Background(), &model.AnalyzeRequest{UserID: "user-1"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(jobs.created) != 0 {
		t.Errorf("rejected request must not create a job, created %d", len(jobs.created))
	}
}

func TestSubmit_RejectsMultipleInputs(t *testing.T) {
	svc, jobs, _ := newTestService()

	duration := 300
	_, err := svc.Submit(context.Background(), &model.AnalyzeRequest{
		UserID:          "user-1",
		Transcript:      "text",
		DurationSeconds: &duration,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(jobs.created) != 0 {
		t.Errorf("rejected request must not create a job, created %d", len(jobs.created))
	}
}

func TestSubmit_RejectsUnknownModelChoice(t *testing.T) {
	svc, _, _ := newTestService()

	req := transcriptRequest()
	req.ModelChoice = "whisper-large"

	_, err := svc.Submit(context.Background(), req)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmit_RejectsUnknownPersona(t *testing.T) {
	svc, _, _ := newTestService()

	req := transcriptRequest()
	req.Config = &model.AnalysisConfig{Persona: "pirate"}

	_, err := svc.Submit(context.Background(), req)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmit_EnqueueFailureMarksJobFailed(t *testing.T) {
	svc, jobs, tq := newTestService()
	tq.failOn["job-1"] = queue.ErrEnqueueFailed

	_, err := svc.Submit(context.Background(), transcriptRequest())

	var enqErr *EnqueueError
	if !errors.As(err, &enqErr) {
		t.Fatalf("expected *EnqueueError, got %v", err)
	}
	if enqErr.JobID != "job-1" {
		t.Errorf("expected failing job id in error, got %q", enqErr.JobID)
	}
	if len(jobs.updates) != 1 {
		t.Fatalf("expected 1 status update, got %d", len(jobs.updates))
	}
	if jobs.updates[0].status != model.JobStatusFailed {
		t.Errorf("expected FAILED, got %s", jobs.updates[0].status)
	}
	if jobs.updates[0].errorMessage == "" {
		t.Error("expected a failure reason on the job record")
	}
}

func TestSubmitBulk_SharedBatchAndIsolation(t *testing.T) {
	svc, jobs, tq := newTestService()
	// The second item's job is created but cannot be scheduled.
	tq.failOn["job-2"] = queue.ErrEnqueueFailed

	resp, err := svc.SubmitBulk(context.Background(), &model.BulkAnalyzeRequest{
		UserID: "user-1",
		Items: []model.BulkItem{
			{Transcript: "first", ClientProvidedID: "a"},
			{Transcript: "second", ClientProvidedID: "b"},
			{Transcript: "third", ClientProvidedID: "c"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.BatchID == "" {
		t.Fatal("expected a batch id")
	}
	if len(resp.Jobs) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(resp.Jobs))
	}

	if resp.Jobs[0].Status != model.JobStatusQueued || resp.Jobs[2].Status != model.JobStatusQueued {
		t.Errorf("siblings of a failed item must stay QUEUED, got %s and %s",
			resp.Jobs[0].Status, resp.Jobs[2].Status)
	}
	if resp.Jobs[1].Status != model.JobStatusFailed {
		t.Errorf("expected failed item FAILED, got %s", resp.Jobs[1].Status)
	}
	if resp.Jobs[1].JobID != "job-2" {
		t.Errorf("failed item should still expose its job id, got %q", resp.Jobs[1].JobID)
	}
	if resp.Jobs[1].ClientProvidedID != "b" {
		t.Errorf("expected client id 'b', got %q", resp.Jobs[1].ClientProvidedID)
	}

	// Every created job carries the same batch id.
	for i, c := range jobs.created {
		if c.batchID != resp.BatchID {
			t.Errorf("job %d batch id %q, expected %q", i, c.batchID, resp.BatchID)
		}
	}
}

func TestSubmitBulk_InvalidItemCreatesNoJob(t *testing.T) {
	svc, jobs, _ := newTestService()

	resp, err := svc.SubmitBulk(context.Background(), &model.BulkAnalyzeRequest{
		UserID: "user-1",
		Items: []model.BulkItem{
			{Transcript: "ok"},
			{}, // no input at all
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs.created) != 1 {
		t.Errorf("invalid item must not create a job, created %d", len(jobs.created))
	}
	if resp.Jobs[1].Status != model.JobStatusFailed {
		t.Errorf("expected invalid item FAILED, got %s", resp.Jobs[1].Status)
	}
	if resp.Jobs[1].JobID != "" {
		t.Errorf("invalid item has no job id, got %q", resp.Jobs[1].JobID)
	}
}

func TestSubmitBulk_RejectsEmptyBatch(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.SubmitBulk(context.Background(), &model.BulkAnalyzeRequest{UserID: "user-1"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
