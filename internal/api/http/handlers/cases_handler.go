package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/opsdesk/case-triage/internal/api/dto"
	"github.com/opsdesk/case-triage/internal/auth"
	"github.com/opsdesk/case-triage/internal/domain"
	"github.com/opsdesk/case-triage/internal/repository"
	"github.com/opsdesk/case-triage/internal/service"
	"github.com/opsdesk/case-triage/internal/workflow"
	apperrors "github.com/opsdesk/case-triage/pkg/util"
)

// CasesHandler manages case intake, listing and workflow endpoints.
type CasesHandler struct {
	cases *service.CaseService
}

// NewCasesHandler constructs handler.
func NewCasesHandler(cases *service.CaseService) *CasesHandler {
	return &CasesHandler{cases: cases}
}

// CreateCase POST /cases.
func (h *CasesHandler) CreateCase(c *fiber.Ctx) error {
	operator, ok := auth.OperatorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("operator required")
	}
	var req dto.CreateCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	actor := service.StaffActor(operator.ID)
	if req.Kind == domain.KindAntiCheatFlag && req.DetectorType != "" {
		actor = service.SystemActor
	}

	created, entry, err := h.cases.CreateCase(c.Context(), actor, service.CreateCaseInput{
		Kind:             req.Kind,
		SubjectUserID:    req.SubjectUserID,
		Title:            req.Title,
		Description:      req.Description,
		Category:         req.Category,
		DeclaredPriority: req.DeclaredPriority,
		DetectorType:     req.DetectorType,
		SignalStrength:   req.SignalStrength,
		Evidence:         evidenceFromDTO(req.Evidence),
		Tags:             req.Tags,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": mutationResponse(created, entry)})
}

// ListCases GET /cases.
func (h *CasesHandler) ListCases(c *fiber.Ctx) error {
	filter := parseCaseQuery(c)
	cases, err := h.cases.ListCases(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.CaseSummary, 0, len(cases))
	for i := range cases {
		items = append(items, caseSummary(&cases[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetCase GET /cases/:id.
func (h *CasesHandler) GetCase(c *fiber.Ctx) error {
	detail, msgs, trail, err := h.cases.GetCase(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	resp := caseDetail(detail, msgs, trail)
	if identity := h.cases.ResolveSubject(c.Context(), detail); identity != nil {
		resp.Subject = &dto.SubjectIdentity{Username: identity.Username, Email: identity.Email}
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Transition POST /cases/:id/transition.
func (h *CasesHandler) Transition(c *fiber.Ctx) error {
	operator, ok := auth.OperatorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("operator required")
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.To == "" {
		return apperrors.NewValidationError("target status required", nil)
	}
	if req.AdminClose && operator.Role != domain.OperatorRoleAdmin {
		return apperrors.NewForbidden("admin role required for administrative close")
	}

	wreq := workflow.Request{
		To:         req.To,
		Resolution: req.Resolution,
		AdminClose: req.AdminClose,
		Reason:     req.Reason,
	}
	if req.Deletion {
		wreq.Tags = append(wreq.Tags, domain.TagDeletion)
	}

	updated, entry, err := h.cases.Transition(c.Context(), service.StaffActor(operator.ID), c.Params("id"), wreq)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": mutationResponse(updated, entry)})
}

// AddMessage POST /cases/:id/messages.
func (h *CasesHandler) AddMessage(c *fiber.Ctx) error {
	operator, ok := auth.OperatorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("operator required")
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperrors.NewValidationError("body required", nil)
	}

	// Staff messages carry the operator identity; the console may also
	// relay the reporting user's replies.
	actor := service.StaffActor(operator.ID)
	if req.Sender == domain.SubjectTypeUser {
		if req.SenderID == nil {
			return apperrors.NewValidationError("sender_id required for user messages", nil)
		}
		actor = service.UserActor(*req.SenderID)
	}

	msg, err := h.cases.AppendMessage(c.Context(), actor, c.Params("id"), req.Body, evidenceFromDTO(req.Attachments))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

func parseCaseQuery(c *fiber.Ctx) repository.CaseFilter {
	filter := repository.CaseFilter{}
	if kindStr := c.Query("kind"); kindStr != "" {
		for _, part := range strings.Split(kindStr, ",") {
			filter.Kinds = append(filter.Kinds, domain.CaseKind(strings.TrimSpace(part)))
		}
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.CaseStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Severities = append(filter.Severities, domain.Severity(strings.TrimSpace(part)))
		}
	}
	if categoryStr := c.Query("category"); categoryStr != "" {
		for _, part := range strings.Split(categoryStr, ",") {
			filter.Categories = append(filter.Categories, domain.Category(strings.TrimSpace(part)))
		}
	}
	if assignee := c.Query("assigned_to"); assignee != "" {
		filter.AssignedTo = &assignee
	}
	if subject := c.Query("subject_user_id"); subject != "" {
		filter.SubjectUserID = &subject
	}
	if tag := c.Query("tag"); tag != "" {
		filter.Tag = &tag
	}
	if q := c.Query("q"); q != "" {
		filter.SearchTerm = &q
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func evidenceFromDTO(refs []dto.AttachmentRef) []domain.EvidenceRef {
	out := make([]domain.EvidenceRef, 0, len(refs))
	for _, ref := range refs {
		out = append(out, domain.EvidenceRef{
			BlobID:    ref.BlobID,
			FileName:  ref.FileName,
			MimeType:  ref.MimeType,
			SizeBytes: ref.SizeBytes,
		})
	}
	return out
}

func evidenceToDTO(refs []domain.EvidenceRef) []dto.AttachmentRef {
	out := make([]dto.AttachmentRef, 0, len(refs))
	for _, ref := range refs {
		out = append(out, dto.AttachmentRef{
			BlobID:    ref.BlobID,
			FileName:  ref.FileName,
			MimeType:  ref.MimeType,
			SizeBytes: ref.SizeBytes,
		})
	}
	return out
}

func caseSummary(c *domain.Case) dto.CaseSummary {
	return dto.CaseSummary{
		ID:            c.ID,
		Key:           c.Key,
		Kind:          c.Kind,
		SubjectUserID: c.SubjectUserID,
		Category:      c.Category,
		Severity:      c.Severity,
		Status:        c.Status,
		AssignedTo:    c.AssignedTo,
		Title:         c.Title,
		Tags:          c.Tags,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func caseDetail(c *domain.Case, messages []domain.Message, trail []domain.AuditEntry) dto.CaseDetailResponse {
	msgs := make([]dto.MessageResponse, 0, len(messages))
	for i := range messages {
		msgs = append(msgs, messageResponse(&messages[i]))
	}
	entries := make([]dto.AuditEntryResponse, 0, len(trail))
	for _, entry := range trail {
		entries = append(entries, dto.AuditEntryResponse{
			ID:          entry.ID,
			ActorType:   entry.ActorType,
			ActorID:     entry.ActorID,
			Action:      entry.Action,
			BeforeState: entry.BeforeState,
			AfterState:  entry.AfterState,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return dto.CaseDetailResponse{
		CaseSummary: caseSummary(c),
		Description: c.Description,
		Resolution:  c.Resolution,
		Evidence:    evidenceToDTO(c.Evidence),
		Messages:    msgs,
		AuditTrail:  entries,
	}
}

func messageResponse(msg *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:          msg.ID,
		Sender:      msg.Sender,
		SenderID:    msg.SenderID,
		Body:        msg.Body,
		Attachments: evidenceToDTO(msg.Attachments),
		CreatedAt:   msg.CreatedAt,
	}
}

func mutationResponse(c *domain.Case, entry *domain.AuditEntry) dto.MutationResponse {
	resp := dto.MutationResponse{Case: caseSummary(c)}
	if entry != nil {
		id := entry.ID
		resp.AuditEntryID = &id
	}
	return resp
}
