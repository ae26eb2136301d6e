// Package storetest is a conformance suite every queue.Store implementation
// runs from its own tests.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/internal/queue"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) queue.Store

var base = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

// NewRequest builds a pending request with deterministic timestamps.
func NewRequest(id, owner string, position int, offset time.Duration) *model.Request {
	msg := "for " + id
	tip := 2.5
	return &model.Request{
		ID:            id,
		OwnerKey:      owner,
		SongTitle:     "Song " + id,
		SongArtist:    "Band",
		RequesterName: "fan",
		Message:       &msg,
		TipAmount:     &tip,
		Track:         &model.TrackRef{SpotifyTrackID: "trk-" + id},
		Status:        model.StatusPending,
		Position:      position,
		CreatedAt:     base.Add(offset),
		UpdatedAt:     base.Add(offset),
	}
}

// Seed inserts n pending requests for owner with ids prefix1..prefixN at positions 1..n.
func Seed(t *testing.T, s queue.Store, owner, prefix string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		r := NewRequest(fmt.Sprintf("%s%d", prefix, i), owner, i, time.Duration(i)*time.Second)
		require.NoError(t, s.Insert(context.Background(), r))
	}
}

// Positions returns id -> position for the given listing.
func Positions(rs []*model.Request) map[string]int {
	out := make(map[string]int, len(rs))
	for _, r := range rs {
		out[r.ID] = r.Position
	}
	return out
}

// IDs returns the ids of rs in order.
func IDs(rs []*model.Request) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("InsertGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		in := NewRequest("a", "diva", 1, 0)
		require.NoError(t, s.Insert(ctx, in))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "diva", got.OwnerKey)
		assert.Equal(t, model.StatusPending, got.Status)
		assert.Equal(t, 1, got.Position)
		assert.Equal(t, "Song a", got.SongTitle)
		require.NotNil(t, got.Message)
		assert.Equal(t, "for a", *got.Message)
		require.NotNil(t, got.TipAmount)
		assert.InDelta(t, 2.5, *got.TipAmount, 0.0001)
		require.NotNil(t, got.Track)
		assert.Equal(t, "trk-a", got.Track.SpotifyTrackID)
		assert.True(t, got.CreatedAt.Equal(in.CreatedAt))
	})

	t.Run("InsertDuplicateConflicts", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, NewRequest("a", "diva", 1, 0)))
		err := s.Insert(ctx, NewRequest("a", "diva", 2, 0))
		assert.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("UpdateFields", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, NewRequest("a", "diva", 1, 0)))

		done := model.StatusCompleted
		ok, err := s.UpdateFields(ctx, "a", model.Patch{Status: &done})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, got.Status)
		assert.Equal(t, 1, got.Position)
		assert.True(t, got.UpdatedAt.After(got.CreatedAt))

		n, err := s.CountByStatus(ctx, "diva", model.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		ok, err = s.UpdateFields(ctx, "missing", model.Patch{Status: &done})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, NewRequest("a", "diva", 1, 0)))

		ok, err := s.Delete(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Delete(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Get(ctx, "a")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("ShiftPositionsAboveThreshold", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s, "diva", "d", 5)
		Seed(t, s, "tenor", "t", 3)

		n, err := s.ShiftPositions(ctx, queue.Shift{Owner: "diva", Status: model.StatusPending, From: 3, Delta: -1})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		list, err := s.ListOrdered(ctx, "diva", model.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"d1": 1, "d2": 2, "d3": 2, "d4": 3, "d5": 4}, Positions(list))

		other, err := s.ListOrdered(ctx, "tenor", model.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"t1": 1, "t2": 2, "t3": 3}, Positions(other))
	})

	t.Run("ShiftPositionsBoundedRange", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s, "diva", "d", 5)

		n, err := s.ShiftPositions(ctx, queue.Shift{Owner: "diva", Status: model.StatusPending, From: 2, To: 3, Delta: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		list, err := s.ListOrdered(ctx, "diva", model.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"d1": 1, "d2": 3, "d3": 4, "d4": 4, "d5": 5}, Positions(list))
	})

	t.Run("ShiftIgnoresOtherStatuses", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s, "diva", "d", 3)
		done := model.StatusCompleted
		_, err := s.UpdateFields(ctx, "d3", model.Patch{Status: &done})
		require.NoError(t, err)

		n, err := s.ShiftPositions(ctx, queue.Shift{Owner: "diva", Status: model.StatusPending, From: 2, Delta: -1})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.Get(ctx, "d3")
		require.NoError(t, err)
		assert.Equal(t, 3, got.Position)
	})

	t.Run("SetPositions", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s, "diva", "d", 3)

		require.NoError(t, s.SetPositions(ctx, "diva", map[string]int{"d1": 3, "d3": 1}))
		list, err := s.ListOrdered(ctx, "diva", model.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, []string{"d3", "d2", "d1"}, IDs(list))
	})

	t.Run("SetPositionsRejectsForeignIDs", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s, "diva", "d", 2)
		Seed(t, s, "tenor", "t", 1)

		err := s.SetPositions(ctx, "diva", map[string]int{"d1": 2, "t1": 1})
		assert.ErrorIs(t, err, model.ErrNotFound)

		list, err := s.ListOrdered(ctx, "diva", model.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"d1": 1, "d2": 2}, Positions(list))
	})

	t.Run("ListOrderedTieBreak", func(t *testing.T) {
		s := newStore(t)
		// Same position: older createdAt first, then id.
		require.NoError(t, s.Insert(ctx, NewRequest("b", "diva", 1, 2*time.Second)))
		require.NoError(t, s.Insert(ctx, NewRequest("z", "diva", 1, time.Second)))
		require.NoError(t, s.Insert(ctx, NewRequest("a", "diva", 1, 2*time.Second)))
		require.NoError(t, s.Insert(ctx, NewRequest("c", "diva", 0, 5*time.Second)))

		list, err := s.ListOrdered(ctx, "diva", model.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "z", "a", "b"}, IDs(list))
	})

	t.Run("ListOrderedStatusFilter", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s, "diva", "d", 3)
		rejected := model.StatusRejected
		_, err := s.UpdateFields(ctx, "d2", model.Patch{Status: &rejected})
		require.NoError(t, err)

		pending, err := s.ListOrdered(ctx, "diva", model.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, []string{"d1", "d3"}, IDs(pending))

		rej, err := s.ListOrdered(ctx, "diva", model.StatusRejected)
		require.NoError(t, err)
		assert.Equal(t, []string{"d2"}, IDs(rej))

		all, err := s.ListOrdered(ctx, "diva", model.StatusAll)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := s.ListOrdered(ctx, "nobody", model.StatusAll)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("CountByStatus", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s, "diva", "d", 4)
		Seed(t, s, "tenor", "t", 2)

		n, err := s.CountByStatus(ctx, "diva", model.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		n, err = s.CountByStatus(ctx, "diva", model.StatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

// ArtistRepository is the artist half of a backing store.
type ArtistRepository interface {
	CreateArtist(ctx context.Context, a *model.Artist) error
	GetArtist(ctx context.Context, username string) (*model.Artist, error)
	SetArtistActive(ctx context.Context, username string, active bool) error
}

// RunArtists executes the artist repository suite.
func RunArtists(t *testing.T, newRepo func(t *testing.T) ArtistRepository) {
	ctx := context.Background()
	artist := func(username, email string) *model.Artist {
		return &model.Artist{
			Username:     username,
			DisplayName:  "The " + username,
			Email:        email,
			PasswordHash: "hash",
			IsActive:     true,
			CreatedAt:    base,
			UpdatedAt:    base,
		}
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.CreateArtist(ctx, artist("diva", "diva@example.com")))

		got, err := r.GetArtist(ctx, "diva")
		require.NoError(t, err)
		assert.Equal(t, "The diva", got.DisplayName)
		assert.True(t, got.IsActive)

		_, err = r.GetArtist(ctx, "nobody")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("DuplicateUsernameAndEmail", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.CreateArtist(ctx, artist("diva", "diva@example.com")))

		err := r.CreateArtist(ctx, artist("diva", "other@example.com"))
		assert.ErrorIs(t, err, model.ErrConflict)

		err = r.CreateArtist(ctx, artist("tenor", "diva@example.com"))
		assert.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("SetActive", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.CreateArtist(ctx, artist("diva", "diva@example.com")))
		require.NoError(t, r.SetArtistActive(ctx, "diva", false))

		got, err := r.GetArtist(ctx, "diva")
		require.NoError(t, err)
		assert.False(t, got.IsActive)

		assert.ErrorIs(t, r.SetArtistActive(ctx, "nobody", true), model.ErrNotFound)
	})
}
