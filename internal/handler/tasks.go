package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/studyforge/api/internal/model"
	"github.com/studyforge/api/internal/queue"
	"github.com/studyforge/api/internal/worker"
	"github.com/studyforge/api/pkg/response"
)

// TasksHandler is the HTTP push entry point for queue deliveries. The
// caller must present the signed task credential; an untrusted caller is
// rejected before any job state is read or written.
type TasksHandler struct {
	verifier   *queue.CredentialVerifier
	dispatcher *worker.Dispatcher
	runner     *worker.Runner
	deadline   time.Duration
}

func NewTasksHandler(verifier *queue.CredentialVerifier, dispatcher *worker.Dispatcher, runner *worker.Runner, deadline time.Duration) *TasksHandler {
	if deadline <= 0 {
		deadline = 15 * time.Minute
	}
	return &TasksHandler{
		verifier:   verifier,
		dispatcher: dispatcher,
		runner:     runner,
		deadline:   deadline,
	}
}

type runAnalysisRequest struct {
	UserID string `json:"userId"`
	JobID  string `json:"jobId"`
}

// RunAnalysis handles POST /tasks/run-analysis. The delivery is
// acknowledged as soon as it is accepted; the dispatch itself runs on the
// background runner so the queue never waits out a full pipeline.
func (h *TasksHandler) RunAnalysis(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return response.Unauthorized(c, "Missing task credential")
	}

	claims, err := h.verifier.Verify(parts[1])
	if err != nil {
		return response.Unauthorized(c, "Invalid task credential")
	}

	var req runAnalysisRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if req.JobID == "" || req.UserID == "" {
		return response.ValidationError(c, "userId and jobId are required", nil)
	}
	if claims.JobID != req.JobID {
		return response.Unauthorized(c, "Task credential bound to a different job")
	}

	userID, jobID := req.UserID, req.JobID
	taskName := fmt.Sprintf("run-analysis:%s", jobID)
	// Push deliveries honor the same dispatch deadline as queue deliveries.
	if err := h.runner.Submit(taskName, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, h.deadline)
		defer cancel()
		return h.dispatcher.Dispatch(ctx, userID, jobID)
	}); err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.TaskAcknowledgement{
		Status: "acknowledged",
		JobID:  jobID,
	})
}
