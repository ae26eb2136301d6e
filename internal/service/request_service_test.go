package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestr/api/internal/lock"
	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/internal/queue"
	"github.com/requestr/api/internal/service"
)

func TestSubmitAppendsToQueue(t *testing.T) {
	f := newFixture(t, service.RejectSoft)

	a := f.submit(t, "diva", "Casta Diva")
	b := f.submit(t, "diva", "Habanera")
	assert.Equal(t, 1, a.Position)
	assert.Equal(t, 2, b.Position)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Nil(t, a.Track)
}

func TestSubmitOwnerChecks(t *testing.T) {
	f := newFixture(t, service.RejectSoft)
	ctx := context.Background()

	_, err := f.requests.Submit(ctx, &model.SubmitRequest{ArtistUsername: "ghost", SongTitle: "x", SongArtist: "y", RequesterName: "z"})
	assert.ErrorIs(t, err, model.ErrOwnerNotFound)

	require.NoError(t, f.artists.SetActive(ctx, "diva", false))
	_, err = f.requests.Submit(ctx, &model.SubmitRequest{ArtistUsername: "diva", SongTitle: "x", SongArtist: "y", RequesterName: "z"})
	assert.ErrorIs(t, err, model.ErrOwnerInactive)

	list, err := f.requests.List(ctx, "diva", "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmitResolvesTrackFromCatalog(t *testing.T) {
	f := newFixture(t, service.RejectSoft)
	ctx := context.Background()

	r, err := f.requests.Submit(ctx, &model.SubmitRequest{
		ArtistUsername: "diva",
		SongTitle:      "Nessun Dorma",
		SongArtist:     "Puccini",
		RequesterName:  "fan",
		SpotifyTrackID: "trk1",
		AlbumImageURL:  "https://spoofed.example/cover.jpg",
	})
	require.NoError(t, err)
	require.NotNil(t, r.Track)
	assert.Equal(t, "trk1", r.Track.SpotifyTrackID)
	assert.Equal(t, "https://img.example/trk1.jpg", r.Track.AlbumImageURL)
	assert.Equal(t, "https://open.spotify.com/track/trk1", r.Track.SpotifyTrackURL)

	_, err = f.requests.Submit(ctx, &model.SubmitRequest{
		ArtistUsername: "diva", SongTitle: "x", SongArtist: "y", RequesterName: "z",
		SpotifyTrackID: "missing",
	})
	assert.ErrorIs(t, err, model.ErrNotFound)

	f.catalog.err = errBoom
	_, err = f.requests.Submit(ctx, &model.SubmitRequest{
		ArtistUsername: "diva", SongTitle: "x", SongArtist: "y", RequesterName: "z",
		SpotifyTrackID: "trk1",
	})
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)

	// Failed lookups never reach the queue.
	list, err := f.requests.List(ctx, "diva", "")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSubmitKeepsClientTrackWithoutID(t *testing.T) {
	f := newFixture(t, service.RejectSoft)

	r, err := f.requests.Submit(context.Background(), &model.SubmitRequest{
		ArtistUsername: "diva", SongTitle: "x", SongArtist: "y", RequesterName: "z",
		PreviewURL: "https://p.example/preview.mp3",
	})
	require.NoError(t, err)
	require.NotNil(t, r.Track)
	assert.Equal(t, "https://p.example/preview.mp3", r.Track.PreviewURL)
	assert.Zero(t, f.catalog.lookups)
}

func TestListStatusFilter(t *testing.T) {
	f := newFixture(t, service.RejectSoft)
	ctx := context.Background()
	a := f.submit(t, "diva", "A")
	f.submit(t, "diva", "B")
	_, err := f.requests.SetStatus(ctx, a.ID, "diva", model.StatusCompleted)
	require.NoError(t, err)

	pending, err := f.requests.List(ctx, "diva", "")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := f.requests.List(ctx, "diva", "all")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := f.requests.List(ctx, "diva", "completed")
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, a.ID, completed[0].ID)

	_, err = f.requests.List(ctx, "diva", "played")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = f.requests.List(ctx, "ghost", "")
	assert.ErrorIs(t, err, model.ErrOwnerNotFound)
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t, service.RejectSoft)
	ctx := context.Background()
	a := f.submit(t, "diva", "A")
	b := f.submit(t, "diva", "B")

	_, err := f.requests.SetStatus(ctx, a.ID, "tenor", model.StatusCompleted)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.requests.SetStatus(ctx, a.ID, "diva", model.StatusPending)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.requests.SetStatus(ctx, a.ID, "diva", model.Status("played"))
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = f.requests.SetStatus(ctx, "missing", "diva", model.StatusPending)
	assert.ErrorIs(t, err, model.ErrNotFound)

	r, err := f.requests.SetStatus(ctx, a.ID, "diva", model.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, r.Status)

	got, err := f.requests.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Position)

	_, err = f.requests.SetStatus(ctx, a.ID, "diva", model.StatusRejected)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestRejectDeleteMode(t *testing.T) {
	f := newFixture(t, service.RejectDelete)
	ctx := context.Background()
	a := f.submit(t, "diva", "A")
	b := f.submit(t, "diva", "B")

	_, err := f.requests.SetStatus(ctx, a.ID, "tenor", model.StatusRejected)
	assert.ErrorIs(t, err, model.ErrForbidden)

	r, err := f.requests.SetStatus(ctx, a.ID, "diva", model.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, r.Status)

	_, err = f.requests.Get(ctx, a.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	got, err := f.requests.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Position)

	// Completed records are not deleted by a later reject.
	_, err = f.requests.SetStatus(ctx, b.ID, "diva", model.StatusCompleted)
	require.NoError(t, err)
	_, err = f.requests.SetStatus(ctx, b.ID, "diva", model.StatusRejected)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	_, err = f.requests.Get(ctx, b.ID)
	assert.NoError(t, err)
}

func TestDeleteAndMove(t *testing.T) {
	f := newFixture(t, service.RejectSoft)
	ctx := context.Background()
	a := f.submit(t, "diva", "A")
	b := f.submit(t, "diva", "B")
	c := f.submit(t, "diva", "C")

	assert.ErrorIs(t, f.requests.Delete(ctx, a.ID, "tenor"), model.ErrForbidden)
	require.NoError(t, f.requests.Delete(ctx, a.ID, "diva"))
	assert.ErrorIs(t, f.requests.Delete(ctx, a.ID, "diva"), model.ErrNotFound)

	moved, err := f.requests.Move(ctx, c.ID, "diva", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Position)

	got, err := f.requests.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Position)
}

func TestReorder(t *testing.T) {
	f := newFixture(t, service.RejectSoft)
	ctx := context.Background()
	a := f.submit(t, "diva", "A")
	b := f.submit(t, "diva", "B")
	other := f.submit(t, "tenor", "T")

	list, err := f.requests.Reorder(ctx, "diva", []model.ReorderItem{
		{RequestID: a.ID, NewPosition: 2},
		{RequestID: b.ID, NewPosition: 1},
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)

	_, err = f.requests.Reorder(ctx, "diva", []model.ReorderItem{
		{RequestID: a.ID, NewPosition: 1},
		{RequestID: other.ID, NewPosition: 2},
	})
	assert.ErrorIs(t, err, model.ErrForbidden)

	got, err := f.requests.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Position)
}

func TestParseRejectMode(t *testing.T) {
	m, err := service.ParseRejectMode("")
	require.NoError(t, err)
	assert.Equal(t, service.RejectSoft, m)

	m, err = service.ParseRejectMode("delete")
	require.NoError(t, err)
	assert.Equal(t, service.RejectDelete, m)

	_, err = service.ParseRejectMode("hard")
	assert.Error(t, err)
}

// completingLocker completes one request just before the first lock is taken.
type completingLocker struct {
	queue.Locker
	once     sync.Once
	complete func()
}

func (l *completingLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.once.Do(l.complete)
	return l.Locker.Acquire(ctx, key)
}

func TestRejectDeleteDoesNotRemoveConcurrentlyCompleted(t *testing.T) {
	f := newFixture(t, service.RejectDelete)
	ctx := context.Background()
	a := f.submit(t, "diva", "A")
	f.submit(t, "diva", "B")

	locker := &completingLocker{Locker: lock.NewKeyedMutex()}
	locker.complete = func() {
		_, err := f.requests.SetStatus(ctx, a.ID, "diva", model.StatusCompleted)
		require.NoError(t, err)
	}
	requests := service.NewRequestService(queue.NewEngine(f.store, locker), f.artists, f.catalog, service.RejectDelete)

	_, err := requests.SetStatus(ctx, a.ID, "diva", model.StatusRejected)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	got, err := f.requests.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}
