package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{Secret: "  "})
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret:         "super-secret",
		Issuer:         "coursehub",
		AccessTokenTTL: time.Hour,
		Clock:          func() time.Time { return current },
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		UserID:   "user-123",
		Username: "ada",
		Locale:   "fr",
		Audience: []string{"api"},
	})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.UserID)
	require.Equal(t, "ada", claims.Username)
	require.Equal(t, "fr", claims.Locale)
	require.Equal(t, "coursehub", claims.Issuer)
	require.Equal(t, jwt.ClaimStrings{"api"}, claims.Audience)
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(time.Hour)))
}

func TestValidateAccessTokenInvalidSignature(t *testing.T) {
	issuer, err := NewJWTService(JWTConfig{Secret: "issuer-secret"})
	require.NoError(t, err)
	token, err := issuer.GenerateAccessToken(AccessTokenInput{UserID: "user-123"})
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{Secret: "other-secret"})
	require.NoError(t, err)

	_, err = verifier.ValidateAccessToken(token)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestValidateAccessTokenExpired(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret:         "secret",
		AccessTokenTTL: time.Minute,
		Clock:          func() time.Time { return current },
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{UserID: "user-123"})
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateAccessTokenIssuerMismatch(t *testing.T) {
	other, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "elsewhere"})
	require.NoError(t, err)
	token, err := other.GenerateAccessToken(AccessTokenInput{UserID: "u"})
	require.NoError(t, err)

	svc, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "coursehub"})
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(token)
	require.EqualError(t, err, "jwt: invalid issuer")

	_, err = svc.ValidateAccessToken("")
	require.Error(t, err)
}

func TestGenerateAccessTokenRequiresUser(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)
	_, err = svc.GenerateAccessToken(AccessTokenInput{})
	require.Error(t, err)
}
