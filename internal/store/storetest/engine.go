package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestr/api/internal/lock"
	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/internal/queue"
)

// RunEngine replays the queue engine scenarios on top of a store.
func RunEngine(t *testing.T, newStore Factory) {
	ctx := context.Background()

	newEngine := func(t *testing.T) *queue.Engine {
		return queue.NewEngine(newStore(t), lock.NewKeyedMutex())
	}
	submit := func(t *testing.T, e *queue.Engine, owner, id string) *model.Request {
		t.Helper()
		r, err := e.Append(ctx, &model.Request{ID: id, OwnerKey: owner, SongTitle: "Song " + id})
		require.NoError(t, err)
		return r
	}
	pending := func(t *testing.T, e *queue.Engine, owner string) []*model.Request {
		t.Helper()
		list, err := e.List(ctx, owner, model.StatusPending)
		require.NoError(t, err)
		return list
	}

	t.Run("DivaScenario", func(t *testing.T) {
		e := newEngine(t)
		for _, id := range []string{"A", "B", "C", "D"} {
			submit(t, e, "diva", id)
		}

		_, err := e.Retire(ctx, "diva", "C", queue.Retirement{Delete: true})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"A": 1, "B": 2, "D": 3}, Positions(pending(t, e, "diva")))

		assert.Equal(t, 4, submit(t, e, "diva", "E").Position)

		list, err := e.BatchReorder(ctx, "diva", []queue.Assignment{{ID: "E", Position: 1}})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "E", "B", "D"}, IDs(list))

		changed, err := e.Normalize(ctx, "diva")
		require.NoError(t, err)
		assert.Equal(t, 3, changed)
		list = pending(t, e, "diva")
		assert.Equal(t, []string{"A", "E", "B", "D"}, IDs(list))
		assert.True(t, queue.IsDense(list))
	})

	t.Run("RetireAndMove", func(t *testing.T) {
		e := newEngine(t)
		for _, id := range []string{"A", "B", "C", "D"} {
			submit(t, e, "diva", id)
		}
		submit(t, e, "tenor", "T")

		_, err := e.Retire(ctx, "diva", "B", queue.Retirement{Status: model.StatusCompleted})
		require.NoError(t, err)
		_, err = e.Move(ctx, "diva", "D", 1)
		require.NoError(t, err)

		assert.Equal(t, []string{"D", "A", "C"}, IDs(pending(t, e, "diva")))
		assert.True(t, queue.IsDense(pending(t, e, "diva")))
		assert.Equal(t, map[string]int{"T": 1}, Positions(pending(t, e, "tenor")))

		_, err = e.BatchReorder(ctx, "diva", []queue.Assignment{{ID: "A", Position: 1}, {ID: "T", Position: 2}})
		assert.ErrorIs(t, err, model.ErrForbidden)
		assert.Equal(t, []string{"D", "A", "C"}, IDs(pending(t, e, "diva")))
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		e := newEngine(t)

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := e.Append(ctx, &model.Request{ID: fmt.Sprintf("r%02d", i), OwnerKey: "diva"})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		list := pending(t, e, "diva")
		assert.Len(t, list, n)
		assert.True(t, queue.IsDense(list))
	})
}
