package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/studyforge/api/internal/model"
	"github.com/studyforge/api/internal/queue"
)

// JobStore is the dispatcher's view of the job records.
type JobStore interface {
	Get(ctx context.Context, userID, jobID string) (*model.Job, error)
	Update(ctx context.Context, userID, jobID string, status model.JobStatus, errorMessage string, results json.RawMessage) error
}

// Pipeline runs the substantive analysis for one request snapshot.
type Pipeline interface {
	Run(ctx context.Context, req *model.AnalyzeRequest) (*model.AnalysisResult, error)
}

// Notifier receives job lifecycle events for live subscribers. Optional.
type Notifier interface {
	NotifyStatus(jobID string, status model.JobStatus, detail string)
	NotifyComplete(jobID string, result interface{})
	NotifyError(jobID, code, message string)
}

// Dispatcher is the worker entry point. Deliveries are at-least-once and
// unordered; the only duplicate defense is the terminal-status check on
// entry, so every terminal outcome must be written before acknowledging.
type Dispatcher struct {
	jobs     JobStore
	pipeline Pipeline
	verifier *queue.CredentialVerifier
	notifier Notifier
}

func NewDispatcher(jobs JobStore, pipeline Pipeline, verifier *queue.CredentialVerifier, notifier Notifier) *Dispatcher {
	return &Dispatcher{
		jobs:     jobs,
		pipeline: pipeline,
		verifier: verifier,
		notifier: notifier,
	}
}

// ProcessTask handles a queue delivery. The credential is verified before
// any state is touched; an untrusted caller is rejected outright and the
// delivery is not retried.
func (d *Dispatcher) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed task payload: %v: %w", err, asynq.SkipRetry)
	}

	if d.verifier != nil {
		claims, err := d.verifier.Verify(payload.Credential)
		if err != nil {
			return fmt.Errorf("task credential rejected: %v: %w", err, asynq.SkipRetry)
		}
		if claims.JobID != payload.JobID {
			return fmt.Errorf("task credential bound to job %s, delivery names %s: %w",
				claims.JobID, payload.JobID, asynq.SkipRetry)
		}
	}

	return d.Dispatch(ctx, payload.UserID, payload.JobID)
}

// Dispatch resolves the job's configuration from the persisted snapshot and
// runs the pipeline. Terminal outcomes are written through the store's
// first-write-wins update, then the delivery is acknowledged; a redelivered
// duplicate finds the terminal status and becomes a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, jobID string) error {
	// Terminal writes must land even when the delivery context has already
	// hit its dispatch deadline; a FAILED write on the cancelled context
	// would be refused and the job would sit in PROCESSING forever once the
	// queue stops redelivering.
	detached := context.WithoutCancel(ctx)

	job, err := d.jobs.Get(ctx, userID, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	if job.Status.Terminal() {
		log.Printf("Job %s already %s, ignoring duplicate delivery", jobID, job.Status)
		return nil
	}

	var req model.AnalyzeRequest
	if err := json.Unmarshal(job.RequestData, &req); err != nil {
		reason := fmt.Sprintf("unable to read job configuration: %v", err)
		if updErr := d.jobs.Update(detached, userID, jobID, model.JobStatusFailed, reason, nil); updErr != nil {
			return fmt.Errorf("failed to record config failure for job %s: %w", jobID, updErr)
		}
		d.notifyError(jobID, "CONFIG_READ_FAILED", reason)
		return nil
	}

	if err := d.jobs.Update(ctx, userID, jobID, model.JobStatusProcessing, "", nil); err != nil {
		return fmt.Errorf("failed to mark job %s processing: %w", jobID, err)
	}
	d.notifyStatus(jobID, model.JobStatusProcessing, "")

	result, err := d.pipeline.Run(ctx, &req)
	if err != nil {
		log.Printf("Job %s pipeline failed: %v", jobID, err)
		if updErr := d.jobs.Update(detached, userID, jobID, model.JobStatusFailed, err.Error(), nil); updErr != nil {
			return fmt.Errorf("failed to record pipeline failure for job %s: %w", jobID, updErr)
		}
		d.notifyError(jobID, "ANALYSIS_FAILED", err.Error())
		return nil
	}

	results, err := json.Marshal(result)
	if err != nil {
		reason := fmt.Sprintf("failed to encode results: %v", err)
		if updErr := d.jobs.Update(detached, userID, jobID, model.JobStatusFailed, reason, nil); updErr != nil {
			return fmt.Errorf("failed to record encode failure for job %s: %w", jobID, updErr)
		}
		d.notifyError(jobID, "ANALYSIS_FAILED", reason)
		return nil
	}

	if err := d.jobs.Update(detached, userID, jobID, model.JobStatusCompleted, "", results); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}
	d.notifyComplete(jobID, result)
	log.Printf("Job %s completed", jobID)
	return nil
}

func (d *Dispatcher) notifyStatus(jobID string, status model.JobStatus, detail string) {
	if d.notifier != nil {
		d.notifier.NotifyStatus(jobID, status, detail)
	}
}

func (d *Dispatcher) notifyComplete(jobID string, result interface{}) {
	if d.notifier != nil {
		d.notifier.NotifyComplete(jobID, result)
	}
}

func (d *Dispatcher) notifyError(jobID, code, message string) {
	if d.notifier != nil {
		d.notifier.NotifyError(jobID, code, message)
	}
}
