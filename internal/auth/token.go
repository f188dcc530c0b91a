package auth

import (
	"errors"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/opsdesk/case-triage/internal/domain"
)

// TokenManager validates operator JWTs issued by the external auth
// collaborator. The engine never issues credentials itself.
type TokenManager struct {
	secret []byte
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// Claims describes the operator JWT payload.
type Claims struct {
	OperatorID  string              `json:"sub"`
	DisplayName string              `json:"name,omitempty"`
	Role        domain.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
