package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/studyforge/api/internal/config"
)

// Task types
const (
	TaskTypeAnalysis = "analysis:run"
	QueueAnalysis    = "analysis"
)

// ErrEnqueueFailed is returned when a task could not be handed to the queue.
// The job record already exists at that point; the caller marks it FAILED.
var ErrEnqueueFailed = errors.New("failed to enqueue task")

// TaskPayload is the delivery body. It carries only the job reference and
// the signed credential; all processing parameters live in the persisted
// job record.
type TaskPayload struct {
	UserID     string `json:"userId"`
	JobID      string `json:"jobId"`
	Credential string `json:"credential"`
}

// TaskHandle identifies an enqueued delivery.
type TaskHandle struct {
	ID    string
	Queue string
}

// Client enqueues analysis task deliveries. Delivery is at-least-once with
// no ordering between distinct jobs; a delivery that exceeds the dispatch
// deadline is redelivered, which the dispatcher's idempotency check absorbs.
type Client struct {
	asynq    *asynq.Client
	signer   *CredentialSigner
	deadline time.Duration
	retention time.Duration
}

// NewClient validates the worker addressing contract and builds the queue
// client. The credential audience must be the worker's base address, not a
// sub-path: an audience mismatch does not corrupt data, it just makes every
// dispatched call fail authentication, so it is caught here once.
func NewClient(asynqClient *asynq.Client, cfg *config.WorkerConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("worker base URL is required")
	}
	if cfg.TaskSecret == "" {
		return nil, fmt.Errorf("worker task secret is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid worker base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("worker base URL must be absolute: %q", cfg.BaseURL)
	}
	if p := strings.TrimSuffix(u.Path, "/"); p != "" {
		return nil, fmt.Errorf("credential audience must be the worker base address, not a sub-path: %q", cfg.BaseURL)
	}

	audience := strings.TrimSuffix(cfg.BaseURL, "/")

	deadline := time.Duration(cfg.DispatchDeadlineMin) * time.Minute
	if deadline <= 0 {
		deadline = 15 * time.Minute
	}
	retention := time.Duration(cfg.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	return &Client{
		asynq:     asynqClient,
		signer:    NewCredentialSigner(cfg.TaskSecret, audience),
		deadline:  deadline,
		retention: retention,
	}, nil
}

// Audience returns the credential audience the client signs for.
func (c *Client) Audience() string {
	return c.signer.audience
}

// Deadline returns the dispatch deadline applied to every delivery.
func (c *Client) Deadline() time.Duration {
	return c.deadline
}

// Enqueue schedules one analysis delivery for an already-persisted job.
func (c *Client) Enqueue(ctx context.Context, userID, jobID string) (*TaskHandle, error) {
	credential, err := c.signer.Mint(userID, jobID, c.deadline)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	payload, err := json.Marshal(&TaskPayload{
		UserID:     userID,
		JobID:      jobID,
		Credential: credential,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	task := asynq.NewTask(TaskTypeAnalysis, payload)
	info, err := c.asynq.EnqueueContext(ctx, task,
		asynq.Queue(QueueAnalysis),
		asynq.Timeout(c.deadline),
		asynq.MaxRetry(5),
		asynq.Retention(c.retention),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	return &TaskHandle{ID: info.ID, Queue: info.Queue}, nil
}
