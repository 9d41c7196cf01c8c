package handler

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/studyforge/api/internal/middleware"
	"github.com/studyforge/api/internal/model"
	"github.com/studyforge/api/internal/store"
	"github.com/studyforge/api/pkg/response"
)

// JobsHandler serves the polling view of job records.
type JobsHandler struct {
	jobs *store.JobStore
}

func NewJobsHandler(jobs *store.JobStore) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

// GetStatus handles GET /api/jobs/:jobId
func (h *JobsHandler) GetStatus(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	userID := middleware.GetUserID(c)

	job, err := h.jobs.Get(c.Context(), userID, jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to load job")
	}

	return response.OK(c, model.JobStatusResponse{
		JobID:        job.JobID,
		BatchID:      job.BatchID,
		Status:       job.Status,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	})
}

// GetResult handles GET /api/jobs/:jobId/result. Results exist only for
// COMPLETED jobs; anything else reports the current status instead.
func (h *JobsHandler) GetResult(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	userID := middleware.GetUserID(c)

	job, err := h.jobs.Get(c.Context(), userID, jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to load job")
	}

	if job.Status != model.JobStatusCompleted {
		return response.OK(c, fiber.Map{
			"jobId":        job.JobID,
			"status":       job.Status,
			"errorMessage": job.ErrorMessage,
		})
	}

	var result model.AnalysisResult
	if err := json.Unmarshal(job.Results, &result); err != nil {
		return response.ServiceError(c, "Failed to decode job results")
	}

	return response.OK(c, fiber.Map{
		"jobId":  job.JobID,
		"status": job.Status,
		"result": result,
	})
}
