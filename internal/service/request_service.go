package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/requestr/api/internal/model"
	"github.com/requestr/api/internal/queue"
)

// OwnerDirectory answers whether a queue owner exists and is active
type OwnerDirectory interface {
	Lookup(ctx context.Context, username string) (*model.Artist, error)
}

// TrackCatalog is the track metadata lookup used to enrich submissions
type TrackCatalog interface {
	Search(ctx context.Context, query string, limit int) ([]model.Track, error)
	GetTrack(ctx context.Context, id string) (*model.Track, error)
}

// RejectMode selects what SetStatus(rejected) does with the record.
type RejectMode string

const (
	// RejectSoft keeps rejected requests for the artist's history.
	RejectSoft RejectMode = "soft"
	// RejectDelete removes rejected requests physically.
	RejectDelete RejectMode = "delete"
)

// ParseRejectMode parses a config value.
func ParseRejectMode(v string) (RejectMode, error) {
	switch m := RejectMode(v); m {
	case RejectSoft, RejectDelete:
		return m, nil
	case "":
		return RejectSoft, nil
	}
	return "", fmt.Errorf("unknown reject mode %q", v)
}

// RequestService manages the lifecycle of song requests on top of the queue engine
type RequestService struct {
	engine     *queue.Engine
	owners     OwnerDirectory
	catalog    TrackCatalog
	rejectMode RejectMode
}

// NewRequestService creates a new request service. catalog may be nil.
func NewRequestService(engine *queue.Engine, owners OwnerDirectory, catalog TrackCatalog, rejectMode RejectMode) *RequestService {
	if rejectMode == "" {
		rejectMode = RejectSoft
	}
	return &RequestService{
		engine:     engine,
		owners:     owners,
		catalog:    catalog,
		rejectMode: rejectMode,
	}
}

// Submit appends a new request to the tail of the artist's pending queue
func (s *RequestService) Submit(ctx context.Context, req *model.SubmitRequest) (*model.Request, error) {
	if err := s.requireActiveOwner(ctx, req.ArtistUsername); err != nil {
		return nil, err
	}

	track, err := s.resolveTrack(ctx, req)
	if err != nil {
		return nil, err
	}

	r := &model.Request{
		OwnerKey:      req.ArtistUsername,
		SongTitle:     req.SongTitle,
		SongArtist:    req.SongArtist,
		RequesterName: req.RequesterName,
		Message:       req.Message,
		TipAmount:     req.TipAmount,
		Track:         track,
	}

	created, err := s.engine.Append(ctx, r)
	if err != nil {
		return nil, err
	}

	slog.Info("request submitted", "owner", created.OwnerKey, "id", created.ID, "position", created.Position)
	return created, nil
}

func (s *RequestService) requireActiveOwner(ctx context.Context, username string) error {
	artist, err := s.owners.Lookup(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.E(model.KindOwnerNotFound, "Artist not found")
		}
		return err
	}
	if !artist.IsActive {
		return model.E(model.KindOwnerInactive, "Artist is not accepting requests")
	}
	return nil
}

// resolveTrack builds the track metadata for a submission. With a catalog
// and a track id the catalog is authoritative; otherwise the client-supplied
// fields are kept as given.
func (s *RequestService) resolveTrack(ctx context.Context, req *model.SubmitRequest) (*model.TrackRef, error) {
	given := model.TrackRef{
		SpotifyTrackID:  req.SpotifyTrackID,
		SpotifyTrackURL: req.SpotifyTrackURL,
		AlbumImageURL:   req.AlbumImageURL,
		PreviewURL:      req.PreviewURL,
	}

	if req.SpotifyTrackID == "" || s.catalog == nil {
		if given.Empty() {
			return nil, nil
		}
		return &given, nil
	}

	t, err := s.catalog.GetTrack(ctx, req.SpotifyTrackID)
	if err != nil {
		if model.KindOf(err) == model.KindUpstreamUnavailable {
			return nil, err
		}
		return nil, model.Wrap(model.KindUpstreamUnavailable, err, "track lookup failed")
	}
	if t == nil {
		return nil, model.E(model.KindNotFound, "Track not found")
	}
	return t.Ref(), nil
}

// List returns an artist's requests in queue order, pending only by default
func (s *RequestService) List(ctx context.Context, owner, statusFilter string) ([]*model.Request, error) {
	status, err := model.ParseStatusFilter(statusFilter)
	if err != nil {
		return nil, err
	}
	if _, err := s.owners.Lookup(ctx, owner); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.E(model.KindOwnerNotFound, "Artist not found")
		}
		return nil, err
	}
	return s.engine.List(ctx, owner, status)
}

// Get returns a single request
func (s *RequestService) Get(ctx context.Context, id string) (*model.Request, error) {
	return s.engine.Get(ctx, id)
}

// SetStatus moves a pending request to completed or rejected. The requester
// must own the request.
func (s *RequestService) SetStatus(ctx context.Context, id, requester string, status model.Status) (*model.Request, error) {
	if !status.Valid() {
		return nil, model.E(model.KindInvalidArgument, fmt.Sprintf("invalid status %q", status))
	}
	if status == model.StatusPending {
		// Ownership still decides between 404/403 and the transition error.
		if _, err := s.owned(ctx, id, requester); err != nil {
			return nil, err
		}
		return nil, model.E(model.KindInvalidTransition, "a request cannot be moved back to pending")
	}

	how := queue.Retirement{Status: status}
	if status == model.StatusRejected && s.rejectMode == RejectDelete {
		how = queue.Retirement{Delete: true, RequirePending: true}
	}

	r, err := s.engine.Retire(ctx, requester, id, how)
	if err != nil {
		return nil, err
	}
	if how.Delete {
		r.Status = model.StatusRejected
	}
	return r, nil
}

// Delete physically removes a request. The requester must own it.
func (s *RequestService) Delete(ctx context.Context, id, requester string) error {
	_, err := s.engine.Retire(ctx, requester, id, queue.Retirement{Delete: true})
	return err
}

// Reorder applies a batch of position assignments to the requester's own
// queue and returns the resulting pending queue.
func (s *RequestService) Reorder(ctx context.Context, requester string, items []model.ReorderItem) ([]*model.Request, error) {
	assignments := make([]queue.Assignment, len(items))
	for i, it := range items {
		assignments[i] = queue.Assignment{ID: it.RequestID, Position: it.NewPosition}
	}
	return s.engine.BatchReorder(ctx, requester, assignments)
}

// Move places one pending request at a new position in the requester's queue
func (s *RequestService) Move(ctx context.Context, id, requester string, position int) (*model.Request, error) {
	return s.engine.Move(ctx, requester, id, position)
}

func (s *RequestService) owned(ctx context.Context, id, requester string) (*model.Request, error) {
	r, err := s.engine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.OwnerKey != requester {
		return nil, model.E(model.KindForbidden, "not authorized to modify this request")
	}
	return r, nil
}
