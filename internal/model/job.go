package model

import (
	"encoding/json"
	"time"
)

// Job is one unit of requested analysis work. The record is owned by the
// job store, created at submission time and mutated only by the worker
// (or by the submission service when scheduling fails right away).
type Job struct {
	JobID        string          `json:"jobId"`
	UserID       string          `json:"userId"`
	BatchID      string          `json:"batchId,omitempty"`
	Status       JobStatus       `json:"status"`
	RequestData  json.RawMessage `json:"requestData"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
	Results      json.RawMessage `json:"results,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// AnalyzeRequest is the submission payload for a single analysis job.
// Exactly one of Transcript, DurationSeconds or StoragePath must be set.
// The full request is persisted verbatim as the job's RequestData snapshot
// and is the only input the worker reads.
type AnalyzeRequest struct {
	UserID          string          `json:"userId" validate:"required"`
	Transcript      string          `json:"transcript,omitempty"`
	DurationSeconds *int            `json:"durationSeconds,omitempty"`
	StoragePath     string          `json:"storagePath,omitempty"`
	ModelChoice     SpeechModel     `json:"modelChoice,omitempty"`
	Config          *AnalysisConfig `json:"config,omitempty"`
}

// BulkItem is one entry of a bulk submission. Items carry either a
// transcript or a storage pointer, never a duration estimate.
type BulkItem struct {
	Transcript       string `json:"transcript,omitempty"`
	StoragePath      string `json:"storagePath,omitempty"`
	ClientProvidedID string `json:"clientProvidedId,omitempty"`
}

// BulkAnalyzeRequest is the submission payload for a batch of jobs that
// share one batch id but live independent lifecycles.
type BulkAnalyzeRequest struct {
	UserID      string          `json:"userId" validate:"required"`
	Items       []BulkItem      `json:"items" validate:"required,min=1"`
	ModelChoice SpeechModel     `json:"modelChoice,omitempty"`
	Config      *AnalysisConfig `json:"config,omitempty"`
}

// SubmitResponse is returned for an accepted single submission.
type SubmitResponse struct {
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// BulkJobResult reports the outcome of one bulk item.
type BulkJobResult struct {
	JobID            string    `json:"jobId,omitempty"`
	Status           JobStatus `json:"status"`
	ClientProvidedID string    `json:"clientProvidedId,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// BulkSubmitResponse enumerates every item's outcome plus the shared batch id.
type BulkSubmitResponse struct {
	BatchID string          `json:"batchId"`
	Jobs    []BulkJobResult `json:"jobs"`
	Message string          `json:"message"`
}

// JobStatusResponse is the polling view of a job record.
type JobStatusResponse struct {
	JobID        string    `json:"jobId"`
	BatchID      string    `json:"batchId,omitempty"`
	Status       JobStatus `json:"status"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TaskAcknowledgement is returned by the worker entry point once a
// delivery has been accepted for asynchronous execution.
type TaskAcknowledgement struct {
	Status string `json:"status"`
	JobID  string `json:"jobId"`
}
