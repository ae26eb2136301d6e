package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/requestr/api/internal/auth"
	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/pkg/response"
)

const localUsername = "username"

// ArtistLookup resolves the artist behind a verified token
type ArtistLookup interface {
	Lookup(ctx context.Context, username string) (*model.Artist, error)
}

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string // HMAC tokens issued by /api/auth/login
	artists   ArtistLookup
}

// NewAuthMiddleware creates auth middleware. verifier may be nil, in which
// case only HMAC tokens are accepted.
func NewAuthMiddleware(verifier auth.TokenVerifier, jwtSecret string, artists ArtistLookup) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		jwtSecret: jwtSecret,
		artists:   artists,
	}
}

// Authenticate validates the bearer token and requires an active artist
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := BearerToken(c)
		if !ok {
			return response.Unauthorized(c, "Not authenticated")
		}

		username := VerifyToken(m.verifier, m.jwtSecret, tokenString)
		if username == "" {
			return response.Unauthorized(c, "Could not validate credentials")
		}

		return requireArtist(c, m.artists, username, true)
	}
}

// AuthenticateAnyStatus is Authenticate without the active check, for the
// endpoints an inactive artist still needs.
func (m *AuthMiddleware) AuthenticateAnyStatus() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := BearerToken(c)
		if !ok {
			return response.Unauthorized(c, "Not authenticated")
		}

		username := VerifyToken(m.verifier, m.jwtSecret, tokenString)
		if username == "" {
			return response.Unauthorized(c, "Could not validate credentials")
		}

		return requireArtist(c, m.artists, username, false)
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header
func BearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// VerifyToken tries the OIDC verifier first and falls back to HMAC tokens.
// It returns the artist username, or "" if no method accepts the token.
func VerifyToken(verifier auth.TokenVerifier, jwtSecret, tokenString string) string {
	if verifier != nil {
		claims, err := verifier.Validate(tokenString)
		if err == nil {
			return claims.Username()
		}
		slog.Debug("oidc token rejected", "error", err)
	}

	if jwtSecret != "" {
		claims, err := auth.ValidateLegacyToken(tokenString, jwtSecret)
		if err == nil {
			return claims.Username()
		}
		slog.Debug("hmac token rejected", "error", err)
	}

	return ""
}

func requireArtist(c *fiber.Ctx, artists ArtistLookup, username string, active bool) error {
	artist, err := artists.Lookup(c.UserContext(), username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return response.Unauthorized(c, "Could not validate credentials")
		}
		slog.Error("artist lookup failed", "username", username, "error", err)
		return response.Error(c, fiber.StatusServiceUnavailable, string(model.KindStoreUnavailable), model.MessageOf(err), nil)
	}
	if active && !artist.IsActive {
		return response.InactiveArtist(c)
	}

	c.Locals(localUsername, artist.Username)
	return c.Next()
}

// GetUsername returns the authenticated artist's username
func GetUsername(c *fiber.Ctx) string {
	if username, ok := c.Locals(localUsername).(string); ok {
		return username
	}
	return ""
}
