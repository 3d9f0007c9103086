package jwttoken

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certify/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "certify", "certify-admin")

func Test_GenerateAdminToken(t *testing.T) {
	token, expiresAt, err := jwtService.GenerateAdminToken("admin-1", "registrar", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.AdminID)
	assert.Equal(t, "registrar", claims.Username)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, _, err := jwtService.GenerateAdminToken("admin-1", "registrar", -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token has expired")
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewJWTService("another-key", "certify", "certify-admin")
	token, _, err := other.GenerateAdminToken("admin-1", "registrar", time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTService("test-signing-key", "certify", "someone-else")
	token, _, err := other.GenerateAdminToken("admin-1", "registrar", time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{AdminID: "x", Role: RoleAdmin})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestAdapter_Authenticate(t *testing.T) {
	adapter := NewAdapter(jwtService)
	token, _, err := jwtService.GenerateAdminToken("admin-1", "registrar", time.Hour)
	require.NoError(t, err)

	p, err := adapter.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())
	assert.Equal(t, "admin-1", p.AdminID)

	_, err = adapter.Authenticate(context.Background(), "garbage")
	assert.Error(t, err)
}

func TestToPrincipal_NonAdminRole(t *testing.T) {
	p := ToPrincipal(&Claims{AdminID: "x", Role: "viewer"})
	assert.False(t, p.IsAdmin())
}
