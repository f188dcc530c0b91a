package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/opsdesk/case-triage/internal/api/http/handlers"
	"github.com/opsdesk/case-triage/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Cases       *handlers.CasesHandler
	Assignments *handlers.AssignmentHandler
	Export      *handlers.ExportHandler
	Auth        *auth.Middleware
}

// RegisterRoutes wires HTTP routes. All case endpoints require an
// authenticated operator; health probes do not.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	protected := app.Group("", cfg.Auth.Handle, auth.RequireOperator())

	protected.Post("/cases", cfg.Cases.CreateCase)
	protected.Get("/cases", cfg.Cases.ListCases)
	// Bulk route registers before the :id routes so "bulk" never
	// resolves as a case ID.
	protected.Post("/cases/bulk/assign", cfg.Assignments.BulkAssign)
	protected.Get("/cases/:id", cfg.Cases.GetCase)
	protected.Post("/cases/:id/transition", cfg.Cases.Transition)
	protected.Post("/cases/:id/assign", cfg.Assignments.Assign)
	protected.Post("/cases/:id/messages", cfg.Cases.AddMessage)

	protected.Get("/queue", cfg.Assignments.Queue)
	protected.Get("/export", cfg.Export.Export)
}
