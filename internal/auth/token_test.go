package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/case-triage/internal/domain"
)

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseToken(t *testing.T) {
	tm := NewTokenManager("test-secret")

	token := signToken(t, jwt.SigningMethodHS256, "test-secret", Claims{
		OperatorID:  "op1",
		DisplayName: "Alex",
		Role:        domain.OperatorRoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "op1", claims.OperatorID)
	assert.Equal(t, "Alex", claims.DisplayName)
	assert.Equal(t, domain.OperatorRoleAdmin, claims.Role)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("test-secret")

	token := signToken(t, jwt.SigningMethodHS256, "other-secret", Claims{OperatorID: "op1"})
	_, err := tm.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsWrongMethod(t *testing.T) {
	tm := NewTokenManager("test-secret")

	token := signToken(t, jwt.SigningMethodHS512, "test-secret", Claims{OperatorID: "op1"})
	_, err := tm.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	tm := NewTokenManager("test-secret")

	token := signToken(t, jwt.SigningMethodHS256, "test-secret", Claims{
		OperatorID: "op1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	_, err := tm.ParseToken(token)
	assert.Error(t, err)
}
