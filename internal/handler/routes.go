package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/requestr/api/internal/middleware"
)

// Routes wires handlers and middleware onto a Fiber app. cmd/server and the
// end-to-end tests share it so both serve the same surface.
type Routes struct {
	Requests *RequestHandler
	Artists  *ArtistHandler
	Auth     *AuthHandler
	Tracks   *TrackHandler

	// RequireArtist admits active artists; RequireAnyArtist also admits inactive ones.
	RequireArtist    fiber.Handler
	RequireAnyArtist fiber.Handler

	Limiter      *middleware.RateLimiter
	SubmitPerMin int
	SearchPerMin int

	Health fiber.Handler
}

// Register mounts every route on app.
func (r *Routes) Register(app *fiber.App) {
	if r.Health != nil {
		app.Get("/health", r.Health)
	}

	// ForwardAuth verification endpoint (internal, called by the gateway)
	app.Get("/auth/verify", r.Auth.Verify)

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", r.Auth.Register)
	authRoutes.Post("/login", r.Auth.Login)
	authRoutes.Get("/me", r.RequireArtist, r.Auth.Me)

	artists := api.Group("/artists")
	artists.Put("/me/active", r.RequireAnyArtist, r.Artists.SetActive)
	artists.Get("/:username", r.Artists.Profile)
	artists.Get("/:username/exists", r.Artists.Exists)

	requests := api.Group("/requests")
	requests.Post("/", r.Limiter.SubmitLimit(r.SubmitPerMin), r.Requests.Submit)
	requests.Get("/:username", r.Requests.List)
	// Must precede /:id so "reorder" is not taken for an id.
	requests.Put("/reorder", r.RequireArtist, r.Requests.Reorder)
	requests.Put("/:id", r.RequireArtist, r.Requests.Update)
	requests.Delete("/:id", r.RequireArtist, r.Requests.Delete)

	spotify := api.Group("/spotify", r.Limiter.SearchLimit(r.SearchPerMin))
	spotify.Get("/search", r.Tracks.Search)
	spotify.Get("/track/:id", r.Tracks.GetTrack)
}
