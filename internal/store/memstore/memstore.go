// Package memstore keeps requests and artists in process memory. It backs
// tests and single-instance development setups.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/internal/queue"
)

// Store is an in-memory queue.Store and artist repository.
type Store struct {
	mu       sync.RWMutex
	requests map[string]*model.Request
	artists  map[string]*model.Artist
	now      func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		requests: make(map[string]*model.Request),
		artists:  make(map[string]*model.Artist),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ queue.Store = (*Store)(nil)

func (s *Store) Insert(ctx context.Context, r *model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[r.ID]; ok {
		return model.E(model.KindConflict, "request already exists")
	}
	s.requests[r.ID] = r.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, model.E(model.KindNotFound, "request not found")
	}
	return r.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[id]; !ok {
		return false, nil
	}
	delete(s.requests, id)
	return true, nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, patch model.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return false, nil
	}
	patch.Apply(r, s.now())
	return true, nil
}

func (s *Store) ShiftPositions(ctx context.Context, sh queue.Shift) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, r := range s.requests {
		if r.OwnerKey != sh.Owner || r.Status != sh.Status || !sh.Covers(r.Position) {
			continue
		}
		r.Position += sh.Delta
		r.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *Store) SetPositions(ctx context.Context, owner string, positions map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range positions {
		r, ok := s.requests[id]
		if !ok || r.OwnerKey != owner {
			return model.E(model.KindNotFound, "request not found: "+id)
		}
	}
	now := s.now()
	for id, p := range positions {
		r := s.requests[id]
		r.Position = p
		r.UpdatedAt = now
	}
	return nil
}

func (s *Store) ListOrdered(ctx context.Context, owner string, status model.Status) ([]*model.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Request, 0)
	for _, r := range s.requests {
		if r.OwnerKey != owner {
			continue
		}
		if status != model.StatusAll && r.Status != status {
			continue
		}
		out = append(out, r.Clone())
	}
	model.SortByPosition(out)
	return out, nil
}

func (s *Store) CountByStatus(ctx context.Context, owner string, status model.Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.requests {
		if r.OwnerKey == owner && r.Status == status {
			n++
		}
	}
	return n, nil
}

// CreateArtist stores a new artist; username and email must both be unused.
func (s *Store) CreateArtist(ctx context.Context, a *model.Artist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artists[a.Username]; ok {
		return model.E(model.KindConflict, "Username already registered")
	}
	for _, other := range s.artists {
		if strings.EqualFold(other.Email, a.Email) {
			return model.E(model.KindConflict, "Email already registered")
		}
	}
	c := *a
	s.artists[a.Username] = &c
	return nil
}

func (s *Store) GetArtist(ctx context.Context, username string) (*model.Artist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artists[username]
	if !ok {
		return nil, model.E(model.KindNotFound, "artist not found")
	}
	c := *a
	return &c, nil
}

// SetArtistActive toggles an artist's active flag.
func (s *Store) SetArtistActive(ctx context.Context, username string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artists[username]
	if !ok {
		return model.E(model.KindNotFound, "artist not found")
	}
	a.IsActive = active
	a.UpdatedAt = s.now()
	return nil
}

func (s *Store) Close() error {
	return nil
}
