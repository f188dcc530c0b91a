package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/opsdesk/case-triage/internal/domain"
	apperrors "github.com/opsdesk/case-triage/pkg/util"
)

const operatorKey = "auth_operator"

// Middleware validates bearer tokens and loads the operator principal.
type Middleware struct {
	tokens *TokenManager
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager) *Middleware {
	return &Middleware{tokens: tokens}
}

// Handle enforces operator authentication for mutating routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if claims.OperatorID == "" {
		return apperrors.NewUnauthorized("token missing subject")
	}

	operator := &domain.Operator{
		ID:          claims.OperatorID,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
	}
	c.Locals(operatorKey, operator)
	return c.Next()
}

// OperatorFromContext retrieves the authenticated operator.
func OperatorFromContext(c *fiber.Ctx) (*domain.Operator, bool) {
	val := c.Locals(operatorKey)
	if val == nil {
		return nil, false
	}
	operator, ok := val.(*domain.Operator)
	return operator, ok
}
