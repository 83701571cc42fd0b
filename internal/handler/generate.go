package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/storyscroll/api/internal/model"
	"github.com/storyscroll/api/internal/registry"
	"github.com/storyscroll/api/internal/service"
	"github.com/storyscroll/api/pkg/response"
)

type GenerateHandler struct {
	service   *service.GenerateService
	validator *validator.Validate
}

func NewGenerateHandler(svc *service.GenerateService, v *validator.Validate) *GenerateHandler {
	return &GenerateHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/generate
// @Summary      Start video generation
// @Description  Queue a narrated story video job and return its ID immediately
// @Tags         Generate
// @Accept       json
// @Produce      json
// @Param        request body model.GenerateRequest true "Generate request"
// @Success      202 {object} model.GenerateResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      422 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generate [post]
func (h *GenerateHandler) Submit(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.UnprocessableEntity(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(&req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrVideoNotFound), errors.Is(err, service.ErrInvalidPath):
			return response.UnprocessableEntity(c, err.Error(), nil)
		case errors.Is(err, service.ErrShuttingDown):
			return response.ServiceUnavailable(c, "Service is shutting down")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/generate/:jobId/status
// @Summary      Get generation job status
// @Description  Get the current status, step and progress of a generation job
// @Tags         Generate
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.Job
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generate/{jobId}/status [get]
func (h *GenerateHandler) Status(c *fiber.Ctx) error {
	job, err := h.service.Status(c.Params("jobId"))
	if err != nil {
		if errors.Is(err, registry.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// Cancel handles DELETE /api/generate/:jobId
// @Summary      Cancel a generation job
// @Description  Remove the job record and stop its pipeline
// @Tags         Generate
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.CancelResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generate/{jobId} [delete]
func (h *GenerateHandler) Cancel(c *fiber.Ctx) error {
	result, err := h.service.Cancel(c.UserContext(), c.Params("jobId"))
	if err != nil {
		if errors.Is(err, registry.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
