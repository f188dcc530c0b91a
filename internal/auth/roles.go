package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/opsdesk/case-triage/pkg/util"
)

// RequireOperator ensures any authenticated operator is present. The
// admin gate for forced close-out is payload-dependent, so it lives in
// the transition handler rather than here.
func RequireOperator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := OperatorFromContext(c); !ok {
			return apperrors.NewForbidden("operator required")
		}
		return c.Next()
	}
}
