package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/requestr/api/pkg/response"
)

// GatewayAuthMiddleware reads the artist identity from the X-User-Id header
// set by the gateway's ForwardAuth call to /auth/verify. With requireActive
// an inactive artist is rejected.
func GatewayAuthMiddleware(artists ArtistLookup, requireActive bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		username := c.Get("X-User-Id")
		if username == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}
		return requireArtist(c, artists, username, requireActive)
	}
}
