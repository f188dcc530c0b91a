package handlers

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/opsdesk/case-triage/internal/domain"
	"github.com/opsdesk/case-triage/internal/repository"
	"github.com/opsdesk/case-triage/internal/service"
	apperrors "github.com/opsdesk/case-triage/pkg/util"
)

// ExportHandler streams the audit trail.
type ExportHandler struct {
	export *service.ExportService
	logger *zap.Logger
}

// NewExportHandler constructs handler.
func NewExportHandler(export *service.ExportService, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{export: export, logger: logger}
}

// Export GET /export?filter=&format=csv|json.
func (h *ExportHandler) Export(c *fiber.Ctx) error {
	format := service.ExportFormat(strings.ToLower(c.Query("format", "json")))
	if format != service.ExportCSV && format != service.ExportJSON {
		return apperrors.NewValidationError("format must be csv or json", nil)
	}

	filter := parseAuditQuery(c)
	// The stream writer runs after the handler returns, when the request
	// context is already cancelled. The export paces itself by pages, so
	// detach from the request deadline and cap the stream explicitly.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.UserContext()), 5*time.Minute)

	if format == service.ExportCSV {
		c.Set(fiber.HeaderContentType, "text/csv")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="audit_export.csv"`)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		if err := h.export.Export(ctx, filter, format, w); err != nil {
			// The response is already streaming; all we can do is log.
			h.logger.Error("audit export aborted", zap.Error(err))
		}
		_ = w.Flush()
	})
	return nil
}

func parseAuditQuery(c *fiber.Ctx) repository.AuditFilter {
	filter := repository.AuditFilter{}
	if caseID := c.Query("case_id"); caseID != "" {
		filter.CaseID = &caseID
	}
	if actorID := c.Query("actor_id"); actorID != "" {
		filter.ActorID = &actorID
	}
	if actionStr := c.Query("action"); actionStr != "" {
		for _, part := range strings.Split(actionStr, ",") {
			filter.Actions = append(filter.Actions, domain.AuditAction(strings.TrimSpace(part)))
		}
	}
	if from := parseTime(c.Query("from")); from != nil {
		filter.From = from
	}
	if to := parseTime(c.Query("to")); to != nil {
		filter.To = to
	}
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}
