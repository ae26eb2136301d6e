package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/internal/queue"
	"github.com/requestr/api/internal/store/storetest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "test"), mr
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) queue.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestEngineOnRedis(t *testing.T) {
	storetest.RunEngine(t, func(t *testing.T) queue.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestArtistRepository(t *testing.T) {
	storetest.RunArtists(t, func(t *testing.T) storetest.ArtistRepository {
		s, _ := newTestStore(t)
		return s
	})
}

func TestKeyLayout(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	storetest.Seed(t, s, "diva", "d", 2)

	members, err := mr.ZMembers("test:q:diva:pending")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d1", "d2"}, members)

	done := model.StatusCompleted
	_, err = s.UpdateFields(ctx, "d1", model.Patch{Status: &done})
	require.NoError(t, err)

	members, err = mr.ZMembers("test:q:diva:completed")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, members)

	score, err := mr.ZScore("test:q:diva:pending", "d2")
	require.NoError(t, err)
	assert.Equal(t, float64(2), score)

	ok, err := s.Delete(ctx, "d2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("test:req:d2"))
}

func TestUnavailableStore(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "a")
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)

	_, err = s.CountByStatus(context.Background(), "diva", model.StatusPending)
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
}

// touchingHook rewrites a key from another connection before the next
// `times` transactions execute, invalidating their WATCH.
type touchingHook struct {
	other *redis.Client
	key   string
	times int
}

func (h *touchingHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *touchingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h *touchingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if h.times > 0 {
			h.times--
			val, err := h.other.Get(ctx, h.key).Result()
			if err != nil {
				return err
			}
			if err := h.other.Set(ctx, h.key, val, 0).Err(); err != nil {
				return err
			}
		}
		return next(ctx, cmds)
	}
}

func newRacedStore(t *testing.T, times int) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		other.Close()
	})

	s := New(client, "test")
	require.NoError(t, s.CreateArtist(context.Background(), &model.Artist{
		Username: "diva",
		Email:    "diva@example.com",
		IsActive: true,
	}))
	client.AddHook(&touchingHook{other: other, key: "test:artist:diva", times: times})
	return s
}

func TestSetArtistActiveRetriesWatchConflict(t *testing.T) {
	ctx := context.Background()
	s := newRacedStore(t, 1)

	require.NoError(t, s.SetArtistActive(ctx, "diva", false))

	got, err := s.GetArtist(ctx, "diva")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestSetArtistActiveReportsPersistentConflict(t *testing.T) {
	s := newRacedStore(t, artistTxAttempts)

	err := s.SetArtistActive(context.Background(), "diva", false)
	assert.ErrorIs(t, err, model.ErrConflict)
}
