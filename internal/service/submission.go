package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/studyforge/api/internal/model"
	"github.com/studyforge/api/internal/queue"
)

// ErrValidation marks submissions rejected before any persistence.
var ErrValidation = errors.New("invalid submission")

// EnqueueError reports a job that was created but could not be scheduled.
// The record is already marked FAILED and stays queryable under JobID.
type EnqueueError struct {
	JobID string
	Err   error
}

func (e *EnqueueError) Error() string {
	return fmt.Sprintf("job %s created but scheduling failed: %v", e.JobID, e.Err)
}

func (e *EnqueueError) Unwrap() error {
	return e.Err
}

// JobStore is the durable job record owner.
type JobStore interface {
	Create(ctx context.Context, userID string, snapshot json.RawMessage, batchID string) (string, error)
	Update(ctx context.Context, userID, jobID string, status model.JobStatus, errorMessage string, results json.RawMessage) error
}

// TaskQueue schedules worker deliveries for persisted jobs.
type TaskQueue interface {
	Enqueue(ctx context.Context, userID, jobID string) (*queue.TaskHandle, error)
}

// SubmissionService validates analysis submissions, persists them as jobs
// and schedules their execution.
type SubmissionService struct {
	jobs  JobStore
	queue TaskQueue
}

func NewSubmissionService(jobs JobStore, taskQueue TaskQueue) *SubmissionService {
	return &SubmissionService{
		jobs:  jobs,
		queue: taskQueue,
	}
}

// Submit validates and schedules a single analysis job. Validation happens
// before any write, so a rejected request leaves no orphan record. When the
// job is persisted but enqueueing fails, the job is marked FAILED and an
// *EnqueueError carrying the job id is returned.
func (s *SubmissionService) Submit(ctx context.Context, req *model.AnalyzeRequest) (*model.SubmitResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	return s.createAndEnqueue(ctx, req, "")
}

// SubmitBulk schedules a batch of independent jobs sharing one batch id.
// Items are processed in isolation: one item's failure never stops the
// rest, and the response enumerates every item's outcome.
func (s *SubmissionService) SubmitBulk(ctx context.Context, req *model.BulkAnalyzeRequest) (*model.BulkSubmitResponse, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: items must not be empty", ErrValidation)
	}
	if err := validateModelChoice(req.ModelChoice); err != nil {
		return nil, err
	}

	batchID := uuid.New().String()
	results := make([]model.BulkJobResult, 0, len(req.Items))

	for i, item := range req.Items {
		itemReq := &model.AnalyzeRequest{
			UserID:      req.UserID,
			Transcript:  item.Transcript,
			StoragePath: item.StoragePath,
			ModelChoice: req.ModelChoice,
			Config:      req.Config,
		}

		if err := validateRequest(itemReq); err != nil {
			results = append(results, model.BulkJobResult{
				Status:           model.JobStatusFailed,
				ClientProvidedID: item.ClientProvidedID,
				Error:            err.Error(),
			})
			continue
		}

		resp, err := s.createAndEnqueue(ctx, itemReq, batchID)
		if err != nil {
			var enqErr *EnqueueError
			result := model.BulkJobResult{
				Status:           model.JobStatusFailed,
				ClientProvidedID: item.ClientProvidedID,
				Error:            err.Error(),
			}
			if errors.As(err, &enqErr) {
				result.JobID = enqErr.JobID
			}
			results = append(results, result)
			log.Printf("Bulk item %d failed: %v", i, err)
			continue
		}

		results = append(results, model.BulkJobResult{
			JobID:            resp.JobID,
			Status:           resp.Status,
			ClientProvidedID: item.ClientProvidedID,
		})
	}

	return &model.BulkSubmitResponse{
		BatchID: batchID,
		Jobs:    results,
		Message: fmt.Sprintf("Accepted %d items for analysis", len(req.Items)),
	}, nil
}

func (s *SubmissionService) createAndEnqueue(ctx context.Context, req *model.AnalyzeRequest, batchID string) (*model.SubmitResponse, error) {
	applyDefaults(req)

	snapshot, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot request: %w", err)
	}

	jobID, err := s.jobs.Create(ctx, req.UserID, snapshot, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, req.UserID, jobID); err != nil {
		reason := fmt.Sprintf("failed to schedule analysis: %v", err)
		if updErr := s.jobs.Update(ctx, req.UserID, jobID, model.JobStatusFailed, reason, nil); updErr != nil {
			log.Printf("Failed to mark job %s as failed: %v", jobID, updErr)
		}
		return nil, &EnqueueError{JobID: jobID, Err: err}
	}

	return &model.SubmitResponse{
		JobID:   jobID,
		Status:  model.JobStatusQueued,
		Message: "Analysis job accepted",
	}, nil
}

func applyDefaults(req *model.AnalyzeRequest) {
	if req.ModelChoice == "" {
		req.ModelChoice = model.SpeechModelUniversal
	}
	if req.Config == nil {
		req.Config = &model.AnalysisConfig{}
	}
	req.Config.ApplyDefaults()
}

// validateRequest enforces the exactly-one-of input rule and the model
// choice before anything is persisted.
func validateRequest(req *model.AnalyzeRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}

	inputs := 0
	if req.Transcript != "" {
		inputs++
	}
	if req.DurationSeconds != nil {
		inputs++
	}
	if req.StoragePath != "" {
		inputs++
	}
	if inputs != 1 {
		return fmt.Errorf("%w: exactly one of transcript, durationSeconds or storagePath must be provided, got %d", ErrValidation, inputs)
	}

	if err := validateModelChoice(req.ModelChoice); err != nil {
		return err
	}

	if req.Config != nil && req.Config.Persona != "" && !req.Config.Persona.Valid() {
		return fmt.Errorf("%w: unknown persona %q", ErrValidation, req.Config.Persona)
	}

	return nil
}

func validateModelChoice(m model.SpeechModel) error {
	if m != "" && !m.Valid() {
		return fmt.Errorf("%w: unknown model choice %q", ErrValidation, m)
	}
	return nil
}
