// Package workflow enforces the legal status transitions for each case
// kind. It is pure: validation never touches storage.
package workflow

import (
	"strings"

	"github.com/opsdesk/case-triage/internal/domain"
	apperrors "github.com/opsdesk/case-triage/pkg/util"
)

// transitions maps each kind to its legal (from -> to) set. The shared
// spine is new -> open -> investigating -> resolved -> closed; the side
// branch (rejected for disputes/claims, false_positive for anti-cheat
// flags) leaves from open or investigating only. Administrative close
// from any non-closed state is handled separately in Validate.
var transitions = map[domain.CaseKind]map[domain.CaseStatus][]domain.CaseStatus{
	domain.KindDispute: {
		domain.StatusNew:           {domain.StatusOpen},
		domain.StatusOpen:          {domain.StatusInvestigating, domain.StatusRejected},
		domain.StatusInvestigating: {domain.StatusResolved, domain.StatusRejected},
		domain.StatusResolved:      {domain.StatusClosed},
		domain.StatusRejected:      {domain.StatusClosed},
	},
	domain.KindSupportTicket: {
		domain.StatusNew:           {domain.StatusOpen},
		domain.StatusOpen:          {domain.StatusInvestigating},
		domain.StatusInvestigating: {domain.StatusResolved},
		domain.StatusResolved:      {domain.StatusClosed},
	},
	domain.KindClaim: {
		domain.StatusNew:           {domain.StatusOpen},
		domain.StatusOpen:          {domain.StatusInvestigating, domain.StatusRejected},
		domain.StatusInvestigating: {domain.StatusResolved, domain.StatusRejected},
		domain.StatusResolved:      {domain.StatusClosed},
		domain.StatusRejected:      {domain.StatusClosed},
	},
	domain.KindAntiCheatFlag: {
		domain.StatusNew:           {domain.StatusOpen},
		domain.StatusOpen:          {domain.StatusInvestigating, domain.StatusFalsePositive},
		domain.StatusInvestigating: {domain.StatusResolved, domain.StatusFalsePositive},
		domain.StatusResolved:      {domain.StatusClosed},
		domain.StatusFalsePositive: {domain.StatusClosed},
	},
}

// CanTransition reports whether the table permits from -> to for kind.
func CanTransition(kind domain.CaseKind, from, to domain.CaseStatus) bool {
	for _, candidate := range transitions[kind][from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Request describes one attempted transition.
type Request struct {
	To         domain.CaseStatus
	Resolution string
	// AdminClose forces * -> closed; Reason is then required.
	AdminClose bool
	Reason     string
	// Tags are appended on success. A user-facing "delete" is an
	// administrative close carrying the deletion tag.
	Tags []string
}

// Validate checks the request against the current case state and the
// transition table. A request whose target equals the current status is
// reported as a replay, which the caller treats as a no-op.
func Validate(c *domain.Case, req Request) (replay bool, err error) {
	if c.Status == req.To {
		return true, nil
	}
	if c.Status == domain.StatusClosed {
		return false, apperrors.NewCaseClosed(c.ID)
	}

	if req.AdminClose {
		if req.To != domain.StatusClosed {
			return false, apperrors.NewValidationError("administrative close targets CLOSED only", nil)
		}
		if strings.TrimSpace(req.Reason) == "" {
			return false, apperrors.NewValidationError("administrative close requires a reason", nil)
		}
		return false, nil
	}

	if !CanTransition(c.Kind, c.Status, req.To) {
		return false, apperrors.NewInvalidTransition(string(c.Status), string(req.To),
			map[string]any{"case_id": c.ID, "kind": string(c.Kind)})
	}

	switch req.To {
	case domain.StatusInvestigating:
		if c.AssignedTo == nil {
			return false, apperrors.NewValidationError("case must be assigned before investigating",
				map[string]any{"case_id": c.ID})
		}
	case domain.StatusResolved, domain.StatusRejected, domain.StatusFalsePositive:
		if strings.TrimSpace(req.Resolution) == "" && strings.TrimSpace(c.Resolution) == "" {
			return false, apperrors.NewValidationError("resolution text required",
				map[string]any{"case_id": c.ID, "target": string(req.To)})
		}
	}
	return false, nil
}

// Apply mutates the case for a validated request: status, resolution
// and the deletion/administrative tags.
func Apply(c *domain.Case, req Request) {
	if res := strings.TrimSpace(req.Resolution); res != "" {
		c.Resolution = res
	}
	if req.AdminClose && strings.TrimSpace(req.Reason) != "" && c.Resolution == "" {
		c.Resolution = strings.TrimSpace(req.Reason)
	}
	for _, tag := range req.Tags {
		c.AddTag(tag)
	}
	c.Status = req.To
}
