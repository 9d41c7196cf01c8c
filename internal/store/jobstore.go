package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/studyforge/api/internal/model"
)

var (
	// ErrJobNotFound is returned when no record exists for (user, job id).
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidStatus is returned on an attempt to write an unrecognized
	// status value.
	ErrInvalidStatus = errors.New("invalid job status")
)

// casRetries bounds optimistic-transaction retries on write contention.
const casRetries = 5

// JobStore owns the durable job records, keyed by (user id, job id).
// Records are written with a retention TTL; expiry is the only deletion
// path, the store itself never removes a job.
type JobStore struct {
	redis     *redis.Client
	retention time.Duration
}

func NewJobStore(redisClient *redis.Client, retention time.Duration) *JobStore {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &JobStore{
		redis:     redisClient,
		retention: retention,
	}
}

func jobKey(userID, jobID string) string {
	return fmt.Sprintf("job:%s:%s", userID, jobID)
}

// Create allocates a fresh job id and persists a QUEUED record holding the
// verbatim request snapshot. It does not touch the task queue; scheduling
// is the caller's next step and its failure is recorded via Update.
func (s *JobStore) Create(ctx context.Context, userID string, snapshot json.RawMessage, batchID string) (string, error) {
	jobID := uuid.New().String()
	now := time.Now().UTC()

	job := &model.Job{
		JobID:       jobID,
		UserID:      userID,
		BatchID:     batchID,
		Status:      model.JobStatusQueued,
		RequestData: snapshot,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := s.redis.Set(ctx, jobKey(userID, jobID), data, s.retention).Err(); err != nil {
		return "", fmt.Errorf("failed to save job: %w", err)
	}

	return jobID, nil
}

// Get returns the job record or ErrJobNotFound.
func (s *JobStore) Get(ctx context.Context, userID, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(userID, jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// Update overwrites the mutable fields of a job record. Writes after a
// terminal state are silent no-ops, so the first terminal write always
// sticks even under duplicate concurrent deliveries. The check-and-write
// runs inside a WATCH transaction; contention is retried a bounded number
// of times.
func (s *JobStore) Update(ctx context.Context, userID, jobID string, status model.JobStatus, errorMessage string, results json.RawMessage) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	key := jobKey(userID, jobID)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrJobNotFound
			}
			return err
		}

		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}

		if !CanTransition(job.Status, status) {
			// Already terminal: a later (duplicate or slower) write loses.
			return nil
		}

		job.Status = status
		job.UpdatedAt = time.Now().UTC()
		if errorMessage != "" && status == model.JobStatusFailed {
			job.ErrorMessage = &errorMessage
		}
		if results != nil && status == model.JobStatusCompleted {
			job.Results = results
		}

		updated, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.retention)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < casRetries; i++ {
		err = s.redis.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("failed to update job after %d retries: %w", casRetries, err)
}

// CanTransition is the status transition rule: statuses move strictly
// forward toward a terminal state and never leave one. Repeating the
// current status or regressing to an earlier one is refused.
func CanTransition(from, to model.JobStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return statusRank(to) > statusRank(from)
}

func statusRank(s model.JobStatus) int {
	switch s {
	case model.JobStatusQueued:
		return 0
	case model.JobStatusProcessing:
		return 1
	default: // COMPLETED, FAILED
		return 2
	}
}
