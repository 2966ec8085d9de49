package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutedeck/commutedeck/internal/auth"
)

func newService(key string) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{SigningKey: key})
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only")

	token, expiresAt, err := svc.IssueToken("ops@example.com", auth.RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateAdmin(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, auth.DefaultIssuer, claims.Issuer)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only")

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestJWTService_WrongSigningKey(t *testing.T) {
	token, _, err := newService("key-one").IssueToken("ops", auth.RoleAdmin)
	require.NoError(t, err)

	_, err = newService("key-two").ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_WrongAudience(t *testing.T) {
	issuer := auth.NewJWTService(auth.JWTConfig{SigningKey: "k", Audience: "someone-else"})
	token, _, err := issuer.IssueToken("ops", auth.RoleAdmin)
	require.NoError(t, err)

	_, err = newService("k").ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_Expired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	issuer := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "k",
		Expiry:     time.Minute,
		Now:        func() time.Time { return issued },
	})
	token, _, err := issuer.IssueToken("ops", auth.RoleAdmin)
	require.NoError(t, err)

	later := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "k",
		Now:        func() time.Time { return issued.Add(2 * time.Minute) },
	})
	_, err = later.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}

func TestJWTService_NonAdminRole(t *testing.T) {
	svc := newService("k")
	token, _, err := svc.IssueToken("dashboard", "viewer")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.NoError(t, err)

	_, err = svc.ValidateAdmin(token)
	assert.ErrorIs(t, err, auth.ErrForbiddenRole)
}

func TestJWTService_Disabled(t *testing.T) {
	svc := newService("")
	assert.False(t, svc.Enabled())

	_, _, err := svc.IssueToken("ops", auth.RoleAdmin)
	assert.ErrorIs(t, err, auth.ErrMissingSigningKey)

	_, err = svc.ValidateToken("anything")
	assert.ErrorIs(t, err, auth.ErrMissingSigningKey)
}
