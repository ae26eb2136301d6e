package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestIssueAndValidateToken(t *testing.T) {
	token, err := IssueToken("diva", testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateLegacyToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "diva", claims.Username())
	assert.Equal(t, tokenIssuer, claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	_, err := IssueToken("diva", "", time.Hour)
	assert.Error(t, err)
}

func TestValidateLegacyTokenRejects(t *testing.T) {
	good, err := IssueToken("diva", testSecret, time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken("diva", testSecret, -time.Minute)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "diva",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
		want   error
	}{
		{"wrong secret", good, "other-secret", jwt.ErrTokenSignatureInvalid},
		{"expired", expired, testSecret, jwt.ErrTokenExpired},
		{"no subject", noSubject, testSecret, jwt.ErrTokenInvalidSubject},
		{"no expiry", noExpiry, testSecret, jwt.ErrTokenRequiredClaimMissing},
		{"garbage", "not.a.jwt", testSecret, jwt.ErrTokenMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateLegacyToken(tt.token, tt.secret)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
