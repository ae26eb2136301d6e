package queue

import (
	"context"

	"github.com/requestr/api/internal/model"
)

// Store is the persistence capability the engine needs. Every method is a
// single atomic operation against the backing store; implementations wrap
// I/O failures with model.KindStoreUnavailable.
type Store interface {
	// Insert adds a new record. Returns model.ErrConflict if the id exists.
	Insert(ctx context.Context, r *model.Request) error

	// Get returns model.ErrNotFound when the id is unknown.
	Get(ctx context.Context, id string) (*model.Request, error)

	// Delete physically removes a record and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// UpdateFields merges patch into the record and stamps UpdatedAt.
	// Returns false if the id does not exist.
	UpdateFields(ctx context.Context, id string, patch model.Patch) (bool, error)

	// ShiftPositions adds s.Delta to the position of every record of s.Owner
	// with status s.Status and position inside [s.From, s.To], as one
	// atomic multi-row update. Returns the number of records shifted.
	ShiftPositions(ctx context.Context, s Shift) (int, error)

	// SetPositions assigns every id its new position in one atomic update.
	// All ids must belong to owner; otherwise nothing is written and
	// model.ErrNotFound is returned.
	SetPositions(ctx context.Context, owner string, positions map[string]int) error

	// ListOrdered returns the owner's records with the given status (or all
	// of them for model.StatusAll) ordered by model.SortByPosition.
	ListOrdered(ctx context.Context, owner string, status model.Status) ([]*model.Request, error)

	// CountByStatus counts the owner's records with the given status.
	CountByStatus(ctx context.Context, owner string, status model.Status) (int, error)
}

// Shift selects a position range of one owner's records. From is inclusive,
// To is inclusive and 0 means unbounded.
type Shift struct {
	Owner  string
	Status model.Status
	From   int
	To     int
	Delta  int
}

// Covers reports whether position p falls inside the shift range.
func (s Shift) Covers(p int) bool {
	if p < s.From {
		return false
	}
	return s.To == 0 || p <= s.To
}

// Locker serializes position-mutating operations per owner key.
type Locker interface {
	// Acquire blocks until the key is held, ctx ends, or the implementation
	// gives up. The returned release func must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RepairScheduler asks for an asynchronous Normalize of an owner's queue.
type RepairScheduler interface {
	ScheduleRepair(ctx context.Context, owner string) error
}
