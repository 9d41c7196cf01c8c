package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/studyforge/api/internal/model"
	"github.com/studyforge/api/internal/queue"
)

type memJobStore struct {
	jobs    map[string]*model.Job
	updates []model.JobStatus
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: map[string]*model.Job{}}
}

func (s *memJobStore) put(job *model.Job) {
	s.jobs[job.JobID] = job
}

func (s *memJobStore) Get(ctx context.Context, userID, jobID string) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, errors.New("job not found")
	}
	copied := *job
	return &copied, nil
}

// Update refuses cancelled contexts the way the Redis client does.
func (s *memJobStore) Update(ctx context.Context, userID, jobID string, status model.JobStatus, errorMessage string, results json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.New("job not found")
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = status
	if errorMessage != "" && status == model.JobStatusFailed {
		job.ErrorMessage = &errorMessage
	}
	if results != nil && status == model.JobStatusCompleted {
		job.Results = results
	}
	s.updates = append(s.updates, status)
	return nil
}

type fakePipeline struct {
	runs   int
	result *model.AnalysisResult
	err    error
}

func (p *fakePipeline) Run(ctx context.Context, req *model.AnalyzeRequest) (*model.AnalysisResult, error) {
	p.runs++
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func queuedJob(t *testing.T, jobID string) *model.Job {
	t.Helper()
	snapshot, err := json.Marshal(&model.AnalyzeRequest{
		UserID:     "user-1",
		Transcript: "some text",
	})
	if err != nil {
		t.Fatalf("failed to marshal snapshot: %v", err)
	}
	return &model.Job{
		JobID:       jobID,
		UserID:      "user-1",
		Status:      model.JobStatusQueued,
		RequestData: snapshot,
	}
}

func TestDispatch_Success(t *testing.T) {
	jobs := newMemJobStore()
	jobs.put(queuedJob(t, "job-1"))
	pipe := &fakePipeline{result: &model.AnalysisResult{Summary: "done"}}
	d := NewDispatcher(jobs, pipe, nil, nil)

	if err := d.Dispatch(context.Background(), "user-1", "job-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := jobs.jobs["job-1"]
	if job.Status != model.JobStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", job.Status)
	}
	if job.Results == nil {
		t.Error("expected results persisted on completion")
	}
	if len(jobs.updates) != 2 || jobs.updates[0] != model.JobStatusProcessing {
		t.Errorf("expected PROCESSING then COMPLETED, got %v", jobs.updates)
	}
}

func TestDispatch_TerminalJobIsNoOp(t *testing.T) {
	for _, status := range []model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			jobs := newMemJobStore()
			job := queuedJob(t, "job-1")
			job.Status = status
			jobs.put(job)
			pipe := &fakePipeline{result: &model.AnalysisResult{}}
			d := NewDispatcher(jobs, pipe, nil, nil)

			if err := d.Dispatch(context.Background(), "user-1", "job-1"); err != nil {
				t.Fatalf("duplicate delivery must succeed silently, got %v", err)
			}
			if pipe.runs != 0 {
				t.Errorf("pipeline must not run for a terminal job, ran %d times", pipe.runs)
			}
			if len(jobs.updates) != 0 {
				t.Errorf("terminal job must not be updated, got %v", jobs.updates)
			}
		})
	}
}

func TestDispatch_UnreadableSnapshotFailsJob(t *testing.T) {
	jobs := newMemJobStore()
	job := queuedJob(t, "job-1")
	job.RequestData = json.RawMessage(`{not json`)
	jobs.put(job)
	pipe := &fakePipeline{}
	d := NewDispatcher(jobs, pipe, nil, nil)

	if err := d.Dispatch(context.Background(), "user-1", "job-1"); err != nil {
		t.Fatalf("expected acknowledged failure, got %v", err)
	}

	got := jobs.jobs["job-1"]
	if got.Status != model.JobStatusFailed {
		t.Errorf("expected FAILED, got %s", got.Status)
	}
	if got.ErrorMessage == nil {
		t.Error("expected an error message on the record")
	}
	if pipe.runs != 0 {
		t.Error("pipeline must not run without a readable snapshot")
	}
}

func TestDispatch_PipelineFailureFailsJob(t *testing.T) {
	jobs := newMemJobStore()
	jobs.put(queuedJob(t, "job-1"))
	pipe := &fakePipeline{err: errors.New("llm unavailable")}
	d := NewDispatcher(jobs, pipe, nil, nil)

	if err := d.Dispatch(context.Background(), "user-1", "job-1"); err != nil {
		t.Fatalf("expected acknowledged failure, got %v", err)
	}

	got := jobs.jobs["job-1"]
	if got.Status != model.JobStatusFailed {
		t.Errorf("expected FAILED, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "llm unavailable" {
		t.Errorf("expected pipeline error recorded, got %v", got.ErrorMessage)
	}
}

// expiringPipeline cancels the delivery context while it runs, the shape a
// dispatch-deadline expiry takes from the handler's point of view.
type expiringPipeline struct {
	cancel context.CancelFunc
}

func (p *expiringPipeline) Run(ctx context.Context, req *model.AnalyzeRequest) (*model.AnalysisResult, error) {
	p.cancel()
	return nil, ctx.Err()
}

func TestDispatch_DeadlineExpiryStillFailsJob(t *testing.T) {
	jobs := newMemJobStore()
	jobs.put(queuedJob(t, "job-1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDispatcher(jobs, &expiringPipeline{cancel: cancel}, nil, nil)

	if err := d.Dispatch(ctx, "user-1", "job-1"); err != nil {
		t.Fatalf("expected acknowledged failure, got %v", err)
	}

	got := jobs.jobs["job-1"]
	if got.Status != model.JobStatusFailed {
		t.Errorf("job must not be stranded in %s after deadline expiry, expected FAILED", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage == "" {
		t.Error("expected the expiry reason recorded on the job")
	}
}

func TestDispatch_MissingJobIsRetryable(t *testing.T) {
	jobs := newMemJobStore()
	d := NewDispatcher(jobs, &fakePipeline{}, nil, nil)

	if err := d.Dispatch(context.Background(), "user-1", "nope"); err == nil {
		t.Fatal("expected error for a missing job so delivery is retried")
	}
}

func taskFor(t *testing.T, secret, audience, jobID, credJobID string) *asynq.Task {
	t.Helper()

	signer := queue.NewCredentialSigner(secret, audience)
	credential, err := signer.Mint("user-1", credJobID, 15*time.Minute)
	if err != nil {
		t.Fatalf("failed to mint credential: %v", err)
	}

	payload, err := json.Marshal(&queue.TaskPayload{
		UserID:     "user-1",
		JobID:      jobID,
		Credential: credential,
	})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return asynq.NewTask(queue.TaskTypeAnalysis, payload)
}

func TestProcessTask_ValidCredential(t *testing.T) {
	const secret = "test-secret"
	const audience = "http://localhost:8080"

	jobs := newMemJobStore()
	jobs.put(queuedJob(t, "job-1"))
	pipe := &fakePipeline{result: &model.AnalysisResult{}}
	d := NewDispatcher(jobs, pipe, queue.NewCredentialVerifier(secret, audience), nil)

	task := taskFor(t, secret, audience, "job-1", "job-1")
	if err := d.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobs.jobs["job-1"].Status != model.JobStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", jobs.jobs["job-1"].Status)
	}
}

func TestProcessTask_RejectsForeignCredential(t *testing.T) {
	const audience = "http://localhost:8080"

	jobs := newMemJobStore()
	jobs.put(queuedJob(t, "job-1"))
	pipe := &fakePipeline{}
	d := NewDispatcher(jobs, pipe, queue.NewCredentialVerifier("real-secret", audience), nil)

	task := taskFor(t, "attacker-secret", audience, "job-1", "job-1")
	err := d.ProcessTask(context.Background(), task)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("auth failures must not be retried, got %v", err)
	}
	if pipe.runs != 0 || len(jobs.updates) != 0 {
		t.Error("rejected delivery must not touch job state")
	}
}

func TestProcessTask_RejectsCredentialForOtherJob(t *testing.T) {
	const secret = "test-secret"
	const audience = "http://localhost:8080"

	jobs := newMemJobStore()
	jobs.put(queuedJob(t, "job-1"))
	d := NewDispatcher(jobs, &fakePipeline{}, queue.NewCredentialVerifier(secret, audience), nil)

	task := taskFor(t, secret, audience, "job-1", "job-9")
	err := d.ProcessTask(context.Background(), task)
	if err == nil || !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected non-retryable rejection, got %v", err)
	}
}

func TestProcessTask_MalformedPayload(t *testing.T) {
	d := NewDispatcher(newMemJobStore(), &fakePipeline{}, nil, nil)

	task := asynq.NewTask(queue.TaskTypeAnalysis, []byte("{broken"))
	err := d.ProcessTask(context.Background(), task)
	if err == nil || !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected non-retryable rejection, got %v", err)
	}
}
