package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/requestr/api/internal/middleware"
	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/internal/service"
	"github.com/requestr/api/pkg/response"
)

type RequestHandler struct {
	service   *service.RequestService
	validator *validator.Validate
}

func NewRequestHandler(svc *service.RequestService, v *validator.Validate) *RequestHandler {
	return &RequestHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/requests
// @Summary      Submit a song request
// @Tags         Requests
// @Accept       json
// @Produce      json
// @Param        request body model.SubmitRequest true "Song request"
// @Success      201 {object} model.Request
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Router       /api/requests [post]
func (h *RequestHandler) Submit(c *fiber.Ctx) error {
	var req model.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	created, err := h.service.Submit(c.UserContext(), &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Created(c, created)
}

// List handles GET /api/requests/:username
// @Summary      List an artist's requests in queue order
// @Tags         Requests
// @Produce      json
// @Param        username path string true "Artist username"
// @Param        status_filter query string false "pending (default), completed, rejected or all"
// @Success      200 {array} model.Request
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/requests/{username} [get]
func (h *RequestHandler) List(c *fiber.Ctx) error {
	requests, err := h.service.List(c.UserContext(), c.Params("username"), c.Query("status_filter"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, requests)
}

// Update handles PUT /api/requests/:id
// @Summary      Change a request's status or queue position
// @Tags         Requests
// @Accept       json
// @Produce      json
// @Param        id path string true "Request ID"
// @Param        request body model.UpdateRequest true "Update"
// @Success      200 {object} model.Request
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/requests/{id} [put]
func (h *RequestHandler) Update(c *fiber.Ctx) error {
	var req model.UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if req.Status == nil && req.QueuePosition == nil {
		return response.ValidationError(c, "Nothing to update", nil)
	}

	ctx := c.UserContext()
	id := c.Params("id")
	username := middleware.GetUsername(c)

	// A status change takes the request out of the queue, so a position
	// in the same body only applies when no status is given.
	if req.Status != nil {
		updated, err := h.service.SetStatus(ctx, id, username, *req.Status)
		if err != nil {
			return writeError(c, err)
		}
		return response.OK(c, updated)
	}

	moved, err := h.service.Move(ctx, id, username, *req.QueuePosition)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, moved)
}

// Delete handles DELETE /api/requests/:id
// @Summary      Delete a request
// @Tags         Requests
// @Produce      json
// @Param        id path string true "Request ID"
// @Success      200 {object} map[string]string
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/requests/{id} [delete]
func (h *RequestHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id"), middleware.GetUsername(c)); err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.Map{"message": "Request deleted successfully"})
}

// Reorder handles PUT /api/requests/reorder
// @Summary      Reorder the caller's pending queue
// @Tags         Requests
// @Accept       json
// @Produce      json
// @Param        request body []model.ReorderItem true "New positions"
// @Success      200 {array} model.Request
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/requests/reorder [put]
func (h *RequestHandler) Reorder(c *fiber.Ctx) error {
	var req model.ReorderRequest
	if err := c.BodyParser(&req.Items); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	queue, err := h.service.Reorder(c.UserContext(), middleware.GetUsername(c), req.Items)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, queue)
}
