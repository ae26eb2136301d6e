package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/requestr/api/internal/config"
)

const (
	discoveryTimeout = 30 * time.Second
	clockSkew        = 30 * time.Second
)

// ErrNoUsername is returned for provider tokens that carry neither
// preferred_username nor sub.
var ErrNoUsername = errors.New("token does not identify a user")

// TokenVerifier defines the interface for JWT token verification
type TokenVerifier interface {
	Validate(tokenString string) (*Claims, error)
	Close() error
}

// Claims represents the JWT claims issued by an external OIDC provider
type Claims struct {
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	jwt.RegisteredClaims
}

// Username maps the token to an artist: preferred_username when the
// provider sends one, the subject otherwise.
func (c *Claims) Username() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Subject
}

// JWKSVerifier checks provider-signed tokens against the key set published
// by the issuer. The key set is refreshed in the background until Close.
type JWKSVerifier struct {
	keys   keyfunc.Keyfunc
	parser *jwt.Parser
	stop   context.CancelFunc
}

// NewJWKSVerifier locates the issuer's key set through OIDC discovery and
// loads it. Tokens must name cfg.Issuer as issuer and, when cfg.ClientID is
// set, list it as an audience.
func NewJWKSVerifier(cfg *config.OIDCConfig) (*JWKSVerifier, error) {
	issuer := strings.TrimSuffix(cfg.Issuer, "/")
	if issuer == "" {
		return nil, fmt.Errorf("oidc issuer is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()

	doc, err := discover(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	refreshCtx, stop := context.WithCancel(context.Background())
	keys, err := keyfunc.NewDefaultCtx(refreshCtx, []string{doc.JWKSURI})
	if err != nil {
		stop()
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", doc.JWKSURI, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"}),
	}
	if cfg.ClientID != "" {
		opts = append(opts, jwt.WithAudience(cfg.ClientID))
	}

	return &JWKSVerifier{
		keys:   keys,
		parser: jwt.NewParser(opts...),
		stop:   stop,
	}, nil
}

type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

func discover(ctx context.Context, issuer string) (*discoveryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return nil, fmt.Errorf("discovery document has no jwks_uri")
	}
	if doc.Issuer != "" && strings.TrimSuffix(doc.Issuer, "/") != issuer {
		return nil, fmt.Errorf("discovery document is for issuer %q", doc.Issuer)
	}
	return &doc, nil
}

// Validate verifies signature, issuer, audience and expiry, and requires
// the token to identify a user.
func (v *JWKSVerifier) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(tokenString, claims, v.keys.Keyfunc); err != nil {
		return nil, err
	}
	if claims.Username() == "" {
		return nil, ErrNoUsername
	}
	return claims, nil
}

// Close stops the background key refresh.
func (v *JWKSVerifier) Close() error {
	v.stop()
	return nil
}
