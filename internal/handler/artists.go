package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/requestr/api/internal/middleware"
	"github.com/requestr/api/internal/service"
	"github.com/requestr/api/pkg/response"
)

type ArtistHandler struct {
	service *service.ArtistService
}

func NewArtistHandler(svc *service.ArtistService) *ArtistHandler {
	return &ArtistHandler{service: svc}
}

// Profile handles GET /api/artists/:username
func (h *ArtistHandler) Profile(c *fiber.Ctx) error {
	artist, err := h.service.Profile(c.UserContext(), c.Params("username"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, artist)
}

// Exists handles GET /api/artists/:username/exists
func (h *ArtistHandler) Exists(c *fiber.Ctx) error {
	exists, err := h.service.Exists(c.UserContext(), c.Params("username"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.Map{"exists": exists})
}

type setActiveRequest struct {
	IsActive *bool `json:"isActive"`
}

// SetActive handles PUT /api/artists/me/active, which opens or closes the
// caller's queue to new submissions.
func (h *ArtistHandler) SetActive(c *fiber.Ctx) error {
	var req setActiveRequest
	if err := c.BodyParser(&req); err != nil || req.IsActive == nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	username := middleware.GetUsername(c)
	if err := h.service.SetActive(c.UserContext(), username, *req.IsActive); err != nil {
		return writeError(c, err)
	}

	artist, err := h.service.Profile(c.UserContext(), username)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, artist)
}
