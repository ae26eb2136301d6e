package model

import "time"

// Artist owns one request queue, keyed by Username
type Artist struct {
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Bio          *string   `json:"bio,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Public strips credentials.
func (a *Artist) Public() *ArtistPublic {
	return &ArtistPublic{
		Username:    a.Username,
		DisplayName: a.DisplayName,
		Bio:         a.Bio,
		IsActive:    a.IsActive,
	}
}

// ArtistPublic is the public profile of an artist
type ArtistPublic struct {
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	Bio         *string `json:"bio,omitempty"`
	IsActive    bool    `json:"isActive"`
}

// RegisterRequest is the payload for POST /api/auth/register
type RegisterRequest struct {
	Username    string  `json:"username" validate:"required,min=3,max=30,alphanum"`
	DisplayName string  `json:"displayName" validate:"required,min=1,max=100"`
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required,min=6"`
	Bio         *string `json:"bio" validate:"omitempty,max=500"`
}

// LoginRequest accepts both JSON and OAuth2 password form bodies
type LoginRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

// TokenResponse is returned by a successful login
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}
