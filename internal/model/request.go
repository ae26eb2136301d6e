package model

import (
	"sort"
	"time"
)

// Status is the lifecycle state of a song request
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"

	// StatusAll is a listing filter only; no request is ever stored with it.
	StatusAll Status = "all"
)

// Valid reports whether s is a storable status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// ParseStatusFilter parses a listing filter. Empty means pending.
func ParseStatusFilter(v string) (Status, error) {
	if v == "" {
		return StatusPending, nil
	}
	s := Status(v)
	if s == StatusAll || s.Valid() {
		return s, nil
	}
	return "", E(KindInvalidArgument, "invalid status filter: "+v)
}

// Request is one audience song request in an artist's queue
type Request struct {
	ID            string    `json:"id"`
	OwnerKey      string    `json:"artistUsername"`
	SongTitle     string    `json:"songTitle"`
	SongArtist    string    `json:"songArtist"`
	RequesterName string    `json:"requesterName"`
	Message       *string   `json:"message,omitempty"`
	TipAmount     *float64  `json:"tipAmount,omitempty"`
	Track         *TrackRef `json:"track,omitempty"`
	Status        Status    `json:"status"`
	Position      int       `json:"queuePosition"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so store implementations never share mutable state with callers.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.Message != nil {
		m := *r.Message
		c.Message = &m
	}
	if r.TipAmount != nil {
		t := *r.TipAmount
		c.TipAmount = &t
	}
	if r.Track != nil {
		t := *r.Track
		c.Track = &t
	}
	return &c
}

// Patch is the set of mutable fields of a stored request. Nil fields are left unchanged.
type Patch struct {
	Status   *Status
	Position *int
}

// Apply merges the patch into r and stamps UpdatedAt.
func (p Patch) Apply(r *Request, now time.Time) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Position != nil {
		r.Position = *p.Position
	}
	r.UpdatedAt = now
}

// SortByPosition orders requests by position, then creation time, then id.
// The fallbacks only matter when positions collide after a lenient reorder.
func SortByPosition(rs []*Request) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// SubmitRequest is the audience-facing payload for a new song request
type SubmitRequest struct {
	ArtistUsername  string   `json:"artistUsername" validate:"required,min=3,max=30"`
	SongTitle       string   `json:"songTitle" validate:"required,min=1,max=200"`
	SongArtist      string   `json:"songArtist" validate:"required,min=1,max=200"`
	RequesterName   string   `json:"requesterName" validate:"required,min=1,max=100"`
	Message         *string  `json:"message" validate:"omitempty,max=500"`
	TipAmount       *float64 `json:"tipAmount" validate:"omitempty,gte=0"`
	SpotifyTrackID  string   `json:"spotifyTrackId" validate:"omitempty,max=64"`
	SpotifyTrackURL string   `json:"spotifyTrackUrl" validate:"omitempty,url"`
	AlbumImageURL   string   `json:"albumImageUrl" validate:"omitempty,url"`
	PreviewURL      string   `json:"previewUrl" validate:"omitempty,url"`
}

// UpdateRequest is the artist-facing payload for PUT /api/requests/:id
type UpdateRequest struct {
	Status        *Status `json:"status" validate:"omitempty,oneof=pending completed rejected"`
	QueuePosition *int    `json:"queuePosition" validate:"omitempty,min=1"`
}

// ReorderItem assigns a new position to one request
type ReorderItem struct {
	RequestID   string `json:"requestId" validate:"required"`
	NewPosition int    `json:"newPosition" validate:"required,min=1"`
}

// ReorderRequest wraps a reorder batch so it can be validated with dive
type ReorderRequest struct {
	Items []ReorderItem `validate:"required,min=1,dive"`
}
