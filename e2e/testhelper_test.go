package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/requestr/api/internal/auth"
	"github.com/requestr/api/internal/handler"
	"github.com/requestr/api/internal/lock"
	"github.com/requestr/api/internal/middleware"
	"github.com/requestr/api/internal/queue"
	"github.com/requestr/api/internal/service"
	"github.com/requestr/api/internal/store/memstore"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	redis *miniredis.Miniredis
}

type appOptions struct {
	policy       queue.ReorderPolicy
	rejectMode   service.RejectMode
	submitPerMin int
}

// setupApp creates a Fiber app wired like cmd/server, on the in-memory store
// with no track catalog configured.
func setupApp(t *testing.T) *testApp {
	return setupAppWith(t, appOptions{})
}

func setupAppWith(t *testing.T, opts appOptions) *testApp {
	t.Helper()

	if opts.policy == "" {
		opts.policy = queue.ReorderLenient
	}
	if opts.submitPerMin == 0 {
		// Very high so tests don't get blocked
		opts.submitPerMin = 10000
	}

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	store := memstore.New()
	engine := queue.NewEngine(store, lock.NewKeyedMutex(), queue.WithReorderPolicy(opts.policy))

	validate := validator.New()

	artistService := service.NewArtistService(store, testJWTSecret, 30*time.Minute)
	requestService := service.NewRequestService(engine, artistService, nil, opts.rejectMode)
	trackService := service.NewTrackService(nil)

	// Auth middleware, legacy HMAC only
	authMiddleware := middleware.NewAuthMiddleware(nil, testJWTSecret, artistService)

	routes := &handler.Routes{
		Requests:         handler.NewRequestHandler(requestService, validate),
		Artists:          handler.NewArtistHandler(artistService),
		Auth:             handler.NewAuthHandler(artistService, validate, nil, testJWTSecret),
		Tracks:           handler.NewTrackHandler(trackService),
		RequireArtist:    authMiddleware.Authenticate(),
		RequireAnyArtist: authMiddleware.AuthenticateAnyStatus(),
		Limiter:          middleware.NewRateLimiter(redisClient, "e2e"),
		SubmitPerMin:     opts.submitPerMin,
		SearchPerMin:     10000,
		Health: func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"status": "ok",
				"services": fiber.Map{
					"store":   "memory",
					"spotify": false,
				},
			})
		},
	}

	app := fiber.New()
	routes.Register(app)

	return &testApp{app: app, redis: mr}
}

// generateToken creates an HMAC access token for username.
func generateToken(t *testing.T, username string) string {
	t.Helper()
	token, err := auth.IssueToken(username, testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request as the given artist.
func doAuthRequest(t *testing.T, app *fiber.App, username, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, username),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// mustRequest performs an unauthenticated request and fails the test on transport errors.
func mustRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// parseList parses a JSON array of objects.
func parseList(t *testing.T, resp *http.Response) []map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result []map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON array: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertErrorCode checks the error envelope code.
func assertErrorCode(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got %v", result)
	}
	if errObj["code"] != expected {
		t.Errorf("expected error code %s, got %v", expected, errObj["code"])
	}
}

// registerArtist creates an active artist through the API.
func registerArtist(t *testing.T, app *fiber.App, username string) {
	t.Helper()
	body := fmt.Sprintf(`{
		"username": %q,
		"displayName": "The %s",
		"email": "%s@example.com",
		"password": "password1"
	}`, username, username, username)

	resp := mustRequest(t, app, http.MethodPost, "/api/auth/register", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", username, resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()
}

// submitRequest posts a song request and returns its id.
func submitRequest(t *testing.T, app *fiber.App, artist, title string) string {
	t.Helper()
	body := fmt.Sprintf(`{
		"artistUsername": %q,
		"songTitle": %q,
		"songArtist": "Band",
		"requesterName": "fan"
	}`, artist, title)

	resp := mustRequest(t, app, http.MethodPost, "/api/requests", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit %s: expected 201, got %d: %s", title, resp.StatusCode, readBody(t, resp))
	}
	result := parseJSON(t, resp)
	id, _ := result["id"].(string)
	if id == "" {
		t.Fatalf("submit %s: no id in %v", title, result)
	}
	return id
}

// queueOf lists an artist's pending queue as title -> position, in listing order.
func queueOf(t *testing.T, app *fiber.App, artist string) ([]string, map[string]int) {
	t.Helper()
	resp := mustRequest(t, app, http.MethodGet, "/api/requests/"+artist, "")
	assertStatus(t, resp, http.StatusOK)

	var titles []string
	positions := make(map[string]int)
	for _, r := range parseList(t, resp) {
		title := r["songTitle"].(string)
		titles = append(titles, title)
		positions[title] = int(r["queuePosition"].(float64))
	}
	return titles, positions
}
