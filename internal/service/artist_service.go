package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/requestr/api/internal/auth"
	"github.com/requestr/api/internal/model"
)

// ArtistStore persists artist accounts
type ArtistStore interface {
	CreateArtist(ctx context.Context, a *model.Artist) error
	GetArtist(ctx context.Context, username string) (*model.Artist, error)
	SetArtistActive(ctx context.Context, username string, active bool) error
}

// ArtistService handles artist registration, login and profiles
type ArtistService struct {
	store     ArtistStore
	jwtSecret string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewArtistService creates a new artist service
func NewArtistService(store ArtistStore, jwtSecret string, tokenTTL time.Duration) *ArtistService {
	return &ArtistService{
		store:     store,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a new active artist account
func (s *ArtistService) Register(ctx context.Context, req *model.RegisterRequest) (*model.ArtistPublic, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, model.Wrap(model.KindInternal, err, "failed to create artist")
	}

	now := s.now()
	a := &model.Artist{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		Email:        strings.ToLower(req.Email),
		PasswordHash: hash,
		Bio:          req.Bio,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateArtist(ctx, a); err != nil {
		return nil, err
	}

	slog.Info("artist registered", "username", a.Username)
	return a.Public(), nil
}

// Login checks credentials and issues an access token
func (s *ArtistService) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	invalid := model.E(model.KindUnauthorized, "Incorrect username or password")

	a, err := s.store.GetArtist(ctx, req.Username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, invalid
		}
		return nil, err
	}

	ok, err := auth.VerifyPassword(req.Password, a.PasswordHash)
	if err != nil {
		slog.Warn("stored password hash unreadable", "username", a.Username, "error", err)
		return nil, invalid
	}
	if !ok {
		return nil, invalid
	}

	token, err := auth.IssueToken(a.Username, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return nil, model.Wrap(model.KindInternal, err, "failed to issue token")
	}

	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
	}, nil
}

// Lookup returns the full artist record. It backs the queue's owner check
// and the auth middleware.
func (s *ArtistService) Lookup(ctx context.Context, username string) (*model.Artist, error) {
	return s.store.GetArtist(ctx, username)
}

// Profile returns the public view of an artist
func (s *ArtistService) Profile(ctx context.Context, username string) (*model.ArtistPublic, error) {
	a, err := s.store.GetArtist(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.E(model.KindOwnerNotFound, "Artist not found")
		}
		return nil, err
	}
	return a.Public(), nil
}

// Exists reports whether an active artist with username exists
func (s *ArtistService) Exists(ctx context.Context, username string) (bool, error) {
	a, err := s.store.GetArtist(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return a.IsActive, nil
}

// SetActive enables or disables an artist's queue
func (s *ArtistService) SetActive(ctx context.Context, username string, active bool) error {
	if err := s.store.SetArtistActive(ctx, username, active); err != nil {
		return err
	}
	slog.Info("artist active flag changed", "username", username, "active", active)
	return nil
}
