package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/requestr/api/internal/config"
	"github.com/requestr/api/internal/model"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 50

	// tokenSkew renews the access token this long before Spotify expires it.
	tokenSkew = 60 * time.Second
)

// errTrackNotFound marks a 404 from the tracks endpoint.
var errTrackNotFound = errors.New("track not found")

// SpotifyClient talks to the Spotify Web API with the client credentials flow
type SpotifyClient struct {
	httpClient   *http.Client
	apiURL       string
	accountsURL  string
	clientID     string
	clientSecret string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// spotifyTrack is the subset of the Spotify track object we use
type spotifyTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PreviewURL string `json:"preview_url"`
	DurationMS int    `json:"duration_ms"`
	Popularity int    `json:"popularity"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name        string         `json:"name"`
		ReleaseDate string         `json:"release_date"`
		Images      []spotifyImage `json:"images"`
	} `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type spotifyImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type searchResponse struct {
	Tracks struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// NewSpotifyClient creates a new Spotify API client
func NewSpotifyClient(cfg *config.SpotifyConfig) *SpotifyClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SpotifyClient{
		httpClient:   &http.Client{Timeout: timeout},
		apiURL:       strings.TrimRight(cfg.APIURL, "/"),
		accountsURL:  strings.TrimRight(cfg.AccountsURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
	}
}

// IsConfigured returns true if client credentials are set
func (c *SpotifyClient) IsConfigured() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// Search returns simplified tracks matching query. limit is clamped to 1..50.
func (c *SpotifyClient) Search(ctx context.Context, query string, limit int) ([]model.Track, error) {
	if !c.IsConfigured() {
		return nil, model.E(model.KindUpstreamUnavailable, "Spotify is not configured")
	}
	limit = ClampLimit(limit)

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(limit))

	var resp searchResponse
	if err := c.get(ctx, "/search?"+params.Encode(), &resp); err != nil {
		return nil, model.Wrap(model.KindUpstreamUnavailable, err, "Spotify search failed")
	}

	tracks := make([]model.Track, 0, len(resp.Tracks.Items))
	for i := range resp.Tracks.Items {
		t := simplify(&resp.Tracks.Items[i])
		t.AlbumImage = smallestImage(resp.Tracks.Items[i].Album.Images)
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// GetTrack returns one track, or nil when Spotify does not know the id
func (c *SpotifyClient) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	if !c.IsConfigured() {
		return nil, model.E(model.KindUpstreamUnavailable, "Spotify is not configured")
	}

	var raw spotifyTrack
	if err := c.get(ctx, "/tracks/"+url.PathEscape(id), &raw); err != nil {
		if errors.Is(err, errTrackNotFound) {
			return nil, nil
		}
		return nil, model.Wrap(model.KindUpstreamUnavailable, err, "Spotify track lookup failed")
	}

	t := simplify(&raw)
	t.AlbumImage = mediumImage(raw.Album.Images)
	t.ReleaseDate = raw.Album.ReleaseDate
	return &t, nil
}

// ClampLimit applies the search default and bounds.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

func simplify(s *spotifyTrack) model.Track {
	t := model.Track{
		ID:          s.ID,
		Name:        s.Name,
		Artist:      "Unknown Artist",
		Album:       s.Album.Name,
		ExternalURL: s.ExternalURLs.Spotify,
		DurationMS:  s.DurationMS,
		Popularity:  s.Popularity,
	}
	if len(s.Artists) > 0 {
		t.Artist = s.Artists[0].Name
		names := make([]string, len(s.Artists))
		for i, a := range s.Artists {
			names[i] = a.Name
		}
		t.AllArtists = strings.Join(names, ", ")
	}
	if s.PreviewURL != "" {
		p := s.PreviewURL
		t.PreviewURL = &p
	}
	return t
}

// smallestImage picks the narrowest album image, for result lists.
func smallestImage(images []spotifyImage) *string {
	if len(images) == 0 {
		return nil
	}
	sorted := make([]spotifyImage, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Width < sorted[j].Width })
	u := sorted[0].URL
	return &u
}

// mediumImage picks the first image at least 300px wide, else the first one.
func mediumImage(images []spotifyImage) *string {
	if len(images) == 0 {
		return nil
	}
	for _, img := range images {
		if img.Width >= 300 {
			u := img.URL
			return &u
		}
	}
	u := images[0].URL
	return &u
}

// token returns a cached access token, fetching a new one when it is about to expire
func (c *SpotifyClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("spotify token error (status %d): %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to unmarshal token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("spotify token response has no access_token")
	}

	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl > tokenSkew {
		ttl -= tokenSkew
	}
	c.accessToken = tr.AccessToken
	c.expiresAt = time.Now().Add(ttl)
	return c.accessToken, nil
}

// get sends an authorized GET request and parses the JSON response
func (c *SpotifyClient) get(ctx context.Context, endpoint string, result interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	slog.Debug("spotify request", "method", req.Method, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("spotify request failed", "url", req.URL.String(), "error", err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest && strings.HasPrefix(endpoint, "/tracks/"):
		return errTrackNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		// Token revoked early; drop it so the next call fetches a new one.
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return fmt.Errorf("spotify API error (status %d): %s", resp.StatusCode, string(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		slog.Warn("spotify API error", "status", resp.StatusCode, "url", req.URL.String())
		return fmt.Errorf("spotify API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
