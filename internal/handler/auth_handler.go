package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/requestr/api/internal/auth"
	"github.com/requestr/api/internal/middleware"
	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/internal/service"
	"github.com/requestr/api/pkg/response"
)

// AuthHandler handles artist registration, login and gateway ForwardAuth checks
type AuthHandler struct {
	artists   *service.ArtistService
	validator *validator.Validate
	verifier  auth.TokenVerifier
	jwtSecret string
}

// NewAuthHandler creates a new auth handler. verifier may be nil.
func NewAuthHandler(artists *service.ArtistService, v *validator.Validate, verifier auth.TokenVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		artists:   artists,
		validator: v,
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// Register handles POST /api/auth/register
// @Summary      Register an artist
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request body model.RegisterRequest true "Registration"
// @Success      201 {object} model.ArtistPublic
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req model.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	artist, err := h.artists.Register(c.UserContext(), &req)
	if err != nil {
		return writeError(c, err)
	}
	return response.Created(c, artist)
}

// Login handles POST /api/auth/login. Accepts a JSON body or an OAuth2
// password form.
// @Summary      Log in
// @Tags         Auth
// @Accept       json,x-www-form-urlencoded
// @Produce      json
// @Param        request body model.LoginRequest true "Credentials"
// @Success      200 {object} model.TokenResponse
// @Failure      401 {object} response.ErrorResponse
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req model.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	token, err := h.artists.Login(c.UserContext(), &req)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, token)
}

// Me handles GET /api/auth/me
// @Summary      Current artist
// @Tags         Auth
// @Produce      json
// @Success      200 {object} model.ArtistPublic
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/auth/me [get]
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	artist, err := h.artists.Profile(c.UserContext(), middleware.GetUsername(c))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, artist)
}

// Verify handles GET /auth/verify, called by the gateway's ForwardAuth.
// Returns 200 with X-User-Id set to the artist username, 401 otherwise.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	tokenString, ok := middleware.BearerToken(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	username := middleware.VerifyToken(h.verifier, h.jwtSecret, tokenString)
	if username == "" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", username)
	return c.SendStatus(fiber.StatusOK)
}
