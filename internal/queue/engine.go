package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/requestr/api/internal/model"
)

// ReorderPolicy decides how BatchReorder treats the supplied positions.
type ReorderPolicy string

const (
	// ReorderLenient applies positions exactly as given. Overlapping or
	// gapped positions are accepted, so the pending set may stop being dense
	// until the next Move, Normalize or removal; listing stays deterministic
	// through the CreatedAt/ID tie-break.
	ReorderLenient ReorderPolicy = "lenient"

	// ReorderStrict only accepts a complete permutation of 1..n.
	ReorderStrict ReorderPolicy = "strict"
)

// ParseReorderPolicy parses a config value.
func ParseReorderPolicy(v string) (ReorderPolicy, error) {
	switch p := ReorderPolicy(v); p {
	case ReorderLenient, ReorderStrict:
		return p, nil
	case "":
		return ReorderLenient, nil
	}
	return "", fmt.Errorf("unknown reorder policy %q", v)
}

// Retirement describes how a request leaves the pending set: either a
// status transition that keeps the record, or a physical delete.
type Retirement struct {
	Delete bool
	Status model.Status
	// RequirePending makes a deletion fail with InvalidTransition when the
	// request has already left the queue.
	RequirePending bool
}

// Assignment is one requested position for one request id.
type Assignment struct {
	ID       string
	Position int
}

// Engine owns the per-owner position sequence of pending requests.
// Mutations for one owner are serialized through the Locker; reads are lock-free.
type Engine struct {
	store                 Store
	locks                 Locker
	policy                ReorderPolicy
	repairs               RepairScheduler
	normalizeAfterReorder bool
	now                   func() time.Time
	newID                 func() string
}

// Option configures an Engine.
type Option func(*Engine)

func WithReorderPolicy(p ReorderPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithRepairScheduler(s RepairScheduler) Option {
	return func(e *Engine) { e.repairs = s }
}

// WithNormalizeAfterReorder renumbers the queue to 1..n right after a
// lenient reorder, inside the same critical section.
func WithNormalizeAfterReorder(on bool) Option {
	return func(e *Engine) { e.normalizeAfterReorder = on }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// NewEngine creates an engine over the given store and lock strategy.
func NewEngine(store Store, locks Locker, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		locks:  locks,
		policy: ReorderLenient,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the configured reorder policy.
func (e *Engine) Policy() ReorderPolicy {
	return e.policy
}

func (e *Engine) lock(ctx context.Context, owner string) (func(), error) {
	release, err := e.locks.Acquire(ctx, owner)
	if err != nil {
		return nil, model.Wrap(model.KindStoreUnavailable, err, "queue is busy, try again")
	}
	return release, nil
}

// Get returns a single request without locking.
func (e *Engine) Get(ctx context.Context, id string) (*model.Request, error) {
	return e.store.Get(ctx, id)
}

// List returns an owner's requests in queue order without locking.
func (e *Engine) List(ctx context.Context, owner string, status model.Status) ([]*model.Request, error) {
	return e.store.ListOrdered(ctx, owner, status)
}

// Append inserts r at the tail of its owner's pending queue. The count and
// the insert happen under the owner lock, so the new position is always n+1.
func (e *Engine) Append(ctx context.Context, r *model.Request) (*model.Request, error) {
	if r.OwnerKey == "" {
		return nil, model.E(model.KindInvalidArgument, "owner key is required")
	}

	release, err := e.lock(ctx, r.OwnerKey)
	if err != nil {
		return nil, err
	}
	defer release()

	n, err := e.store.CountByStatus(ctx, r.OwnerKey, model.StatusPending)
	if err != nil {
		return nil, err
	}

	rec := r.Clone()
	if rec.ID == "" {
		rec.ID = e.newID()
	}
	now := e.now()
	rec.Status = model.StatusPending
	rec.Position = n + 1
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := e.store.Insert(ctx, rec); err != nil {
		return nil, err
	}

	slog.Debug("request appended", "owner", rec.OwnerKey, "id", rec.ID, "position", rec.Position)
	return rec, nil
}

// Retire takes a request out of owner's queue, by status transition or by
// deletion, and closes the gap it leaves in the pending set. Deleting a
// request that is no longer pending removes it without touching positions,
// unless how.RequirePending is set.
// The returned request is the record as it was after the transition (or
// just before deletion).
func (e *Engine) Retire(ctx context.Context, owner, id string, how Retirement) (*model.Request, error) {
	if !how.Delete && !how.Status.Terminal() {
		return nil, model.E(model.KindInvalidTransition, fmt.Sprintf("cannot transition a request to %q", how.Status))
	}

	release, err := e.lock(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer release()

	r, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.OwnerKey != owner {
		return nil, model.E(model.KindForbidden, "not authorized to modify this request")
	}

	wasPending := r.Status == model.StatusPending
	if (!how.Delete || how.RequirePending) && !wasPending {
		return nil, model.E(model.KindInvalidTransition, fmt.Sprintf("request is already %s", r.Status))
	}

	if how.Delete {
		ok, err := e.store.Delete(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, model.E(model.KindNotFound, "request not found")
		}
	} else {
		status := how.Status
		ok, err := e.store.UpdateFields(ctx, id, model.Patch{Status: &status})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, model.E(model.KindNotFound, "request not found")
		}
		r.Status = status
		r.UpdatedAt = e.now()
	}

	if wasPending {
		if err := e.repair(ctx, owner, r.Position); err != nil {
			return nil, err
		}
	}

	slog.Debug("request retired", "owner", owner, "id", id, "deleted", how.Delete, "status", r.Status)
	return r, nil
}

// repair closes the gap at removed. Must be called with the owner lock held.
func (e *Engine) repair(ctx context.Context, owner string, removed int) error {
	n, err := e.store.ShiftPositions(ctx, Shift{
		Owner:  owner,
		Status: model.StatusPending,
		From:   removed + 1,
		Delta:  -1,
	})
	if err != nil {
		slog.Error("queue repair failed", "owner", owner, "position", removed, "error", err)
		if e.repairs != nil {
			if serr := e.repairs.ScheduleRepair(context.WithoutCancel(ctx), owner); serr != nil {
				slog.Error("failed to schedule queue repair", "owner", owner, "error", serr)
			}
		}
		return err
	}
	slog.Debug("queue repaired", "owner", owner, "position", removed, "shifted", n)
	return nil
}

// BatchReorder assigns new positions to a set of owner's pending requests.
// Every assignment is validated before anything is written; the writes go
// to the store as a single SetPositions call.
func (e *Engine) BatchReorder(ctx context.Context, owner string, items []Assignment) ([]*model.Request, error) {
	if len(items) == 0 {
		return nil, model.E(model.KindInvalidArgument, "no positions to apply")
	}
	positions := make(map[string]int, len(items))
	for _, it := range items {
		if it.ID == "" {
			return nil, model.E(model.KindInvalidArgument, "request id is required")
		}
		if it.Position < 1 {
			return nil, model.E(model.KindInvalidArgument, fmt.Sprintf("invalid position %d for request %s", it.Position, it.ID))
		}
		if _, dup := positions[it.ID]; dup {
			return nil, model.E(model.KindInvalidArgument, "duplicate request id: "+it.ID)
		}
		positions[it.ID] = it.Position
	}

	release, err := e.lock(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer release()

	for _, it := range items {
		r, err := e.store.Get(ctx, it.ID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, model.E(model.KindNotFound, "request not found: "+it.ID)
			}
			return nil, err
		}
		if r.OwnerKey != owner {
			return nil, model.E(model.KindForbidden, "not authorized to reorder these requests")
		}
		if r.Status != model.StatusPending {
			return nil, model.E(model.KindNotFound, "request is not in the pending queue: "+it.ID)
		}
	}

	if e.policy == ReorderStrict {
		if err := e.checkPermutation(ctx, owner, items); err != nil {
			return nil, err
		}
	}

	if err := e.store.SetPositions(ctx, owner, positions); err != nil {
		return nil, err
	}

	if e.policy == ReorderLenient && e.normalizeAfterReorder {
		if _, err := e.normalizeLocked(ctx, owner); err != nil {
			return nil, err
		}
	}

	slog.Debug("queue reordered", "owner", owner, "assignments", len(items), "policy", e.policy)
	return e.store.ListOrdered(ctx, owner, model.StatusPending)
}

func (e *Engine) checkPermutation(ctx context.Context, owner string, items []Assignment) error {
	n, err := e.store.CountByStatus(ctx, owner, model.StatusPending)
	if err != nil {
		return err
	}
	if len(items) != n {
		return model.E(model.KindInvalidPermutation,
			fmt.Sprintf("expected positions for all %d pending requests, got %d", n, len(items)))
	}
	used := make([]bool, n+1)
	for _, it := range items {
		if it.Position > n || used[it.Position] {
			return model.E(model.KindInvalidPermutation,
				fmt.Sprintf("positions must be a permutation of 1..%d", n))
		}
		used[it.Position] = true
	}
	return nil
}

// Move places one pending request at position (clamped to the queue
// length) and renumbers the rest of the queue around it.
func (e *Engine) Move(ctx context.Context, owner, id string, position int) (*model.Request, error) {
	if position < 1 {
		return nil, model.E(model.KindInvalidArgument, "position must be at least 1")
	}

	release, err := e.lock(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer release()

	r, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.OwnerKey != owner {
		return nil, model.E(model.KindForbidden, "not authorized to modify this request")
	}
	if r.Status != model.StatusPending {
		return nil, model.E(model.KindInvalidArgument, "only pending requests have a queue position")
	}

	pending, err := e.store.ListOrdered(ctx, owner, model.StatusPending)
	if err != nil {
		return nil, err
	}

	rest := make([]*model.Request, 0, len(pending))
	for _, p := range pending {
		if p.ID != id {
			rest = append(rest, p)
		}
	}
	if position > len(rest)+1 {
		position = len(rest) + 1
	}

	ordered := make([]*model.Request, 0, len(rest)+1)
	ordered = append(ordered, rest[:position-1]...)
	ordered = append(ordered, r)
	ordered = append(ordered, rest[position-1:]...)

	if err := e.renumber(ctx, owner, ordered); err != nil {
		return nil, err
	}
	return e.store.Get(ctx, id)
}

// Normalize renumbers owner's pending queue to 1..n in its current listing
// order and returns how many records changed.
func (e *Engine) Normalize(ctx context.Context, owner string) (int, error) {
	release, err := e.lock(ctx, owner)
	if err != nil {
		return 0, err
	}
	defer release()

	return e.normalizeLocked(ctx, owner)
}

func (e *Engine) normalizeLocked(ctx context.Context, owner string) (int, error) {
	pending, err := e.store.ListOrdered(ctx, owner, model.StatusPending)
	if err != nil {
		return 0, err
	}
	changed := changedPositions(pending)
	if len(changed) == 0 {
		return 0, nil
	}
	if err := e.store.SetPositions(ctx, owner, changed); err != nil {
		return 0, err
	}
	slog.Info("queue normalized", "owner", owner, "changed", len(changed))
	return len(changed), nil
}

func (e *Engine) renumber(ctx context.Context, owner string, ordered []*model.Request) error {
	changed := changedPositions(ordered)
	if len(changed) == 0 {
		return nil
	}
	return e.store.SetPositions(ctx, owner, changed)
}

// changedPositions maps every request whose position differs from its
// index+1 to that target position.
func changedPositions(ordered []*model.Request) map[string]int {
	changed := make(map[string]int)
	for i, r := range ordered {
		if r.Position != i+1 {
			changed[r.ID] = i + 1
		}
	}
	return changed
}

// IsDense reports whether the positions of rs are exactly {1..len(rs)}.
func IsDense(rs []*model.Request) bool {
	seen := make([]bool, len(rs)+1)
	for _, r := range rs {
		if r.Position < 1 || r.Position > len(rs) || seen[r.Position] {
			return false
		}
		seen[r.Position] = true
	}
	return true
}
