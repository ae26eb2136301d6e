package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/requestr/api/internal/lock"
	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/internal/queue"
	"github.com/requestr/api/internal/service"
	"github.com/requestr/api/internal/store/memstore"
)

// fakeCatalog serves tracks from a map and counts lookups.
type fakeCatalog struct {
	mu      sync.Mutex
	tracks  map[string]*model.Track
	err     error
	lookups int
	queries []string
}

func (f *fakeCatalog) Search(ctx context.Context, query string, limit int) ([]model.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Track
	for _, t := range f.tracks {
		if len(out) == limit {
			break
		}
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeCatalog) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	return f.tracks[id], nil
}

func strPtr(s string) *string { return &s }

func newCatalog() *fakeCatalog {
	return &fakeCatalog{tracks: map[string]*model.Track{
		"trk1": {
			ID:          "trk1",
			Name:        "Nessun Dorma",
			Artist:      "Puccini",
			AlbumImage:  strPtr("https://img.example/trk1.jpg"),
			ExternalURL: "https://open.spotify.com/track/trk1",
		},
	}}
}

type fixture struct {
	store    *memstore.Store
	artists  *service.ArtistService
	requests *service.RequestService
	catalog  *fakeCatalog
}

func newFixture(t *testing.T, mode service.RejectMode) *fixture {
	t.Helper()
	store := memstore.New()
	artists := service.NewArtistService(store, "test-secret", time.Hour)
	catalog := newCatalog()
	engine := queue.NewEngine(store, lock.NewKeyedMutex())

	f := &fixture{
		store:    store,
		artists:  artists,
		requests: service.NewRequestService(engine, artists, catalog, mode),
		catalog:  catalog,
	}
	f.register(t, "diva")
	f.register(t, "tenor")
	return f
}

func (f *fixture) register(t *testing.T, username string) {
	t.Helper()
	_, err := f.artists.Register(context.Background(), &model.RegisterRequest{
		Username:    username,
		DisplayName: username,
		Email:       username + "@example.com",
		Password:    "password1",
	})
	require.NoError(t, err)
}

func (f *fixture) submit(t *testing.T, owner, title string) *model.Request {
	t.Helper()
	r, err := f.requests.Submit(context.Background(), &model.SubmitRequest{
		ArtistUsername: owner,
		SongTitle:      title,
		SongArtist:     "Band",
		RequesterName:  "fan",
	})
	require.NoError(t, err)
	return r
}

var errBoom = errors.New("boom")
