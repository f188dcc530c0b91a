package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/opsdesk/case-triage/internal/api/dto"
	"github.com/opsdesk/case-triage/internal/auth"
	"github.com/opsdesk/case-triage/internal/service"
	apperrors "github.com/opsdesk/case-triage/pkg/util"
)

// AssignmentHandler manages assignment and queue endpoints.
type AssignmentHandler struct {
	assignments *service.AssignmentService
}

// NewAssignmentHandler constructs handler.
func NewAssignmentHandler(assignments *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

// Assign POST /cases/:id/assign.
func (h *AssignmentHandler) Assign(c *fiber.Ctx) error {
	operator, ok := auth.OperatorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("operator required")
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	updated, entry, err := h.assignments.Assign(c.Context(), service.StaffActor(operator.ID), service.AssignInput{
		CaseID:     c.Params("id"),
		OperatorID: req.OperatorID,
		Reassign:   req.Reassign,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": mutationResponse(updated, entry)})
}

// BulkAssign POST /cases/bulk/assign.
func (h *AssignmentHandler) BulkAssign(c *fiber.Ctx) error {
	operator, ok := auth.OperatorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("operator required")
	}
	var req dto.BulkAssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.CaseIDs) == 0 {
		return apperrors.NewValidationError("case_ids required", nil)
	}

	results := h.assignments.BulkAssign(c.Context(), service.StaffActor(operator.ID), req.CaseIDs, req.OperatorID, req.Reassign)
	items := make([]dto.BulkAssignItem, 0, len(results))
	for _, result := range results {
		item := dto.BulkAssignItem{
			CaseID:    result.CaseID,
			OK:        result.OK,
			ErrorCode: result.ErrorCode,
			Error:     result.Error,
		}
		if result.Case != nil {
			summary := caseSummary(result.Case)
			item.Case = &summary
		}
		items = append(items, item)
	}
	return c.JSON(fiber.Map{"data": items})
}

// Queue GET /queue.
func (h *AssignmentHandler) Queue(c *fiber.Ctx) error {
	limit := parseInt(c.Query("limit"), 100)
	queue, err := h.assignments.Queue(c.Context(), limit)
	if err != nil {
		return err
	}
	items := make([]dto.CaseSummary, 0, len(queue))
	for i := range queue {
		items = append(items, caseSummary(&queue[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
