package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/requestr/api/internal/client"
	"github.com/requestr/api/internal/service"
	"github.com/requestr/api/pkg/response"
)

type TrackHandler struct {
	service *service.TrackService
}

func NewTrackHandler(svc *service.TrackService) *TrackHandler {
	return &TrackHandler{service: svc}
}

// Search handles GET /api/spotify/search?q=&limit=
// @Summary      Search tracks
// @Tags         Spotify
// @Produce      json
// @Param        q query string true "Search query"
// @Param        limit query int false "1-50, default 20"
// @Success      200 {array} model.Track
// @Failure      400 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Router       /api/spotify/search [get]
func (h *TrackHandler) Search(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", client.DefaultSearchLimit)

	tracks, err := h.service.Search(c.UserContext(), c.Query("q"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, tracks)
}

// GetTrack handles GET /api/spotify/track/:id
// @Summary      Get one track
// @Tags         Spotify
// @Produce      json
// @Param        id path string true "Spotify track ID"
// @Success      200 {object} model.Track
// @Failure      404 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Router       /api/spotify/track/{id} [get]
func (h *TrackHandler) GetTrack(c *fiber.Ctx) error {
	track, err := h.service.GetTrack(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, track)
}
