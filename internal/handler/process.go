package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/studyforge/api/internal/middleware"
	"github.com/studyforge/api/internal/model"
	"github.com/studyforge/api/internal/service"
	"github.com/studyforge/api/pkg/response"
)

// ProcessHandler accepts analysis submissions.
type ProcessHandler struct {
	service   *service.SubmissionService
	validator *validator.Validate
}

func NewProcessHandler(svc *service.SubmissionService, v *validator.Validate) *ProcessHandler {
	return &ProcessHandler{
		service:   svc,
		validator: v,
	}
}

// Process handles POST /process. The request must carry exactly one of
// transcript, durationSeconds or storagePath; anything else is rejected
// before a job record exists.
func (h *ProcessHandler) Process(c *fiber.Ctx) error {
	var req model.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if userID := middleware.GetUserID(c); userID != "" {
		req.UserID = userID
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), &req)
	if err != nil {
		return submissionError(c, err)
	}

	return response.Accepted(c, result)
}

// ProcessBulk handles POST /process-bulk. Items share one batch id but are
// scheduled independently; per-item failures are reported in the response
// body, not as a request failure.
func (h *ProcessHandler) ProcessBulk(c *fiber.Ctx) error {
	var req model.BulkAnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if userID := middleware.GetUserID(c); userID != "" {
		req.UserID = userID
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.SubmitBulk(c.Context(), &req)
	if err != nil {
		return submissionError(c, err)
	}

	return response.Accepted(c, result)
}

func submissionError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrValidation) {
		return response.ValidationError(c, err.Error(), nil)
	}

	var enqErr *service.EnqueueError
	if errors.As(err, &enqErr) {
		return response.EnqueueFailed(c, err.Error(), fiber.Map{"jobId": enqErr.JobID})
	}

	return response.ServiceError(c, err.Error())
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
