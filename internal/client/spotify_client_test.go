package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestr/api/internal/config"
	"github.com/requestr/api/internal/model"
)

const trackJSON = `{
	"id": "trk1",
	"name": "Nessun Dorma",
	"preview_url": "https://p.scdn.co/trk1.mp3",
	"duration_ms": 180000,
	"popularity": 71,
	"artists": [{"name": "Luciano Pavarotti"}, {"name": "Zubin Mehta"}],
	"album": {
		"name": "Turandot",
		"release_date": "1972-01-01",
		"images": [
			{"url": "https://i.scdn.co/640.jpg", "width": 640, "height": 640},
			{"url": "https://i.scdn.co/300.jpg", "width": 300, "height": 300},
			{"url": "https://i.scdn.co/64.jpg", "width": 64, "height": 64}
		]
	},
	"external_urls": {"spotify": "https://open.spotify.com/track/trk1"}
}`

type fakeSpotify struct {
	*httptest.Server
	tokens   atomic.Int32
	lastAuth atomic.Value
	lastQS   atomic.Value
}

func newFakeSpotify(t *testing.T) *fakeSpotify {
	t.Helper()
	f := &fakeSpotify{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" || r.FormValue("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := f.tokens.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok" + string(rune('0'+n)),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth.Store(r.Header.Get("Authorization"))
		f.lastQS.Store(r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"tracks":{"items":[` + trackJSON + `]}}`))
	})
	mux.HandleFunc("/v1/tracks/", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth.Store(r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/tracks/trk1":
			_, _ = w.Write([]byte(trackJSON))
		case "/v1/tracks/bad":
			w.WriteHeader(http.StatusBadRequest)
		case "/v1/tracks/boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeSpotify) client(id, secret string) *SpotifyClient {
	return NewSpotifyClient(&config.SpotifyConfig{
		ClientID:     id,
		ClientSecret: secret,
		APIURL:       f.URL + "/v1",
		AccountsURL:  f.URL,
		Timeout:      2 * time.Second,
	})
}

func TestSpotifySearch(t *testing.T) {
	f := newFakeSpotify(t)
	c := f.client("id", "secret")

	tracks, err := c.Search(context.Background(), "nessun dorma", 5)
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	tr := tracks[0]
	assert.Equal(t, "trk1", tr.ID)
	assert.Equal(t, "Luciano Pavarotti", tr.Artist)
	assert.Equal(t, "Luciano Pavarotti, Zubin Mehta", tr.AllArtists)
	assert.Equal(t, "Turandot", tr.Album)
	require.NotNil(t, tr.AlbumImage)
	assert.Equal(t, "https://i.scdn.co/64.jpg", *tr.AlbumImage)
	require.NotNil(t, tr.PreviewURL)
	assert.Equal(t, 180000, tr.DurationMS)
	assert.Empty(t, tr.ReleaseDate)

	assert.Equal(t, "Bearer tok1", f.lastAuth.Load())
	assert.Equal(t, "limit=5&q=nessun+dorma&type=track", f.lastQS.Load())
}

func TestSpotifyTokenIsCached(t *testing.T) {
	f := newFakeSpotify(t)
	c := f.client("id", "secret")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Search(ctx, "x", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.tokens.Load())
}

func TestSpotifyGetTrack(t *testing.T) {
	f := newFakeSpotify(t)
	c := f.client("id", "secret")
	ctx := context.Background()

	tr, err := c.GetTrack(ctx, "trk1")
	require.NoError(t, err)
	require.NotNil(t, tr)
	require.NotNil(t, tr.AlbumImage)
	assert.Equal(t, "https://i.scdn.co/640.jpg", *tr.AlbumImage)
	assert.Equal(t, "1972-01-01", tr.ReleaseDate)

	for _, id := range []string{"unknown", "bad"} {
		tr, err = c.GetTrack(ctx, id)
		assert.NoError(t, err, id)
		assert.Nil(t, tr, id)
	}

	_, err = c.GetTrack(ctx, "boom")
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
}

func TestSpotifyBadCredentials(t *testing.T) {
	f := newFakeSpotify(t)
	c := f.client("id", "wrong")

	_, err := c.Search(context.Background(), "x", 1)
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
}

func TestSpotifyNotConfigured(t *testing.T) {
	c := NewSpotifyClient(&config.SpotifyConfig{})
	assert.False(t, c.IsConfigured())

	_, err := c.Search(context.Background(), "x", 1)
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	_, err = c.GetTrack(context.Background(), "trk1")
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultSearchLimit, ClampLimit(0))
	assert.Equal(t, DefaultSearchLimit, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxSearchLimit, ClampLimit(500))
}

func TestImagePicking(t *testing.T) {
	assert.Nil(t, smallestImage(nil))
	assert.Nil(t, mediumImage(nil))

	small := []spotifyImage{{URL: "a", Width: 64}, {URL: "b", Width: 120}}
	assert.Equal(t, "a", *mediumImage(small))
	assert.Equal(t, "a", *smallestImage(small))
}

func TestSimplifyUnknownArtist(t *testing.T) {
	tr := simplify(&spotifyTrack{ID: "x", Name: "Untitled"})
	assert.Equal(t, "Unknown Artist", tr.Artist)
	assert.Empty(t, tr.AllArtists)
	assert.Nil(t, tr.PreviewURL)
}
