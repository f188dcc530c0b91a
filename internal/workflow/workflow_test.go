package workflow

import (
	"testing"

	"github.com/opsdesk/case-triage/internal/domain"
	apperrors "github.com/opsdesk/case-triage/pkg/util"
)

func strPtr(s string) *string { return &s }

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		kind    domain.CaseKind
		from    domain.CaseStatus
		to      domain.CaseStatus
		allowed bool
	}{
		{name: "new to open", kind: domain.KindDispute, from: domain.StatusNew, to: domain.StatusOpen, allowed: true},
		{name: "open to investigating", kind: domain.KindSupportTicket, from: domain.StatusOpen, to: domain.StatusInvestigating, allowed: true},
		{name: "investigating to resolved", kind: domain.KindClaim, from: domain.StatusInvestigating, to: domain.StatusResolved, allowed: true},
		{name: "resolved to closed", kind: domain.KindDispute, from: domain.StatusResolved, to: domain.StatusClosed, allowed: true},
		{name: "dispute reject from open", kind: domain.KindDispute, from: domain.StatusOpen, to: domain.StatusRejected, allowed: true},
		{name: "dispute reject from investigating", kind: domain.KindDispute, from: domain.StatusInvestigating, to: domain.StatusRejected, allowed: true},
		{name: "flag false positive from investigating", kind: domain.KindAntiCheatFlag, from: domain.StatusInvestigating, to: domain.StatusFalsePositive, allowed: true},
		{name: "support ticket has no rejected", kind: domain.KindSupportTicket, from: domain.StatusInvestigating, to: domain.StatusRejected, allowed: false},
		{name: "support ticket has no false positive", kind: domain.KindSupportTicket, from: domain.StatusOpen, to: domain.StatusFalsePositive, allowed: false},
		{name: "dispute has no false positive", kind: domain.KindDispute, from: domain.StatusOpen, to: domain.StatusFalsePositive, allowed: false},
		{name: "no skip to resolved from open", kind: domain.KindDispute, from: domain.StatusOpen, to: domain.StatusResolved, allowed: false},
		{name: "no reopen from closed", kind: domain.KindClaim, from: domain.StatusClosed, to: domain.StatusOpen, allowed: false},
		{name: "no backward from resolved", kind: domain.KindAntiCheatFlag, from: domain.StatusResolved, to: domain.StatusInvestigating, allowed: false},
		{name: "rejected only closes", kind: domain.KindDispute, from: domain.StatusRejected, to: domain.StatusResolved, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanTransition(tt.kind, tt.from, tt.to)
			if got != tt.allowed {
				t.Fatalf("CanTransition(%s, %s, %s) = %v, expected %v", tt.kind, tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestValidateResolutionRequired(t *testing.T) {
	c := &domain.Case{
		ID:         "c1",
		Kind:       domain.KindSupportTicket,
		Status:     domain.StatusInvestigating,
		AssignedTo: strPtr("op1"),
	}

	_, err := Validate(c, Request{To: domain.StatusResolved})
	if !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}

	replay, err := Validate(c, Request{To: domain.StatusResolved, Resolution: "fixed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replay {
		t.Fatal("expected a real transition, not a replay")
	}
}

func TestValidateInvestigatingNeedsAssignee(t *testing.T) {
	c := &domain.Case{ID: "c1", Kind: domain.KindDispute, Status: domain.StatusOpen}

	_, err := Validate(c, Request{To: domain.StatusInvestigating})
	if !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}

	c.AssignedTo = strPtr("op1")
	if _, err := Validate(c, Request{To: domain.StatusInvestigating}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateReplay(t *testing.T) {
	c := &domain.Case{ID: "c1", Kind: domain.KindClaim, Status: domain.StatusInvestigating, AssignedTo: strPtr("op1")}
	replay, err := Validate(c, Request{To: domain.StatusInvestigating})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !replay {
		t.Fatal("expected replay for same-status transition")
	}
}

func TestValidateClosedIsFinal(t *testing.T) {
	c := &domain.Case{ID: "c1", Kind: domain.KindDispute, Status: domain.StatusClosed}
	_, err := Validate(c, Request{To: domain.StatusOpen})
	if !apperrors.HasCode(err, apperrors.CodeCaseClosed) {
		t.Fatalf("expected CASE_CLOSED, got %v", err)
	}
}

func TestValidateAdminClose(t *testing.T) {
	c := &domain.Case{ID: "c1", Kind: domain.KindSupportTicket, Status: domain.StatusOpen}

	_, err := Validate(c, Request{To: domain.StatusClosed, AdminClose: true})
	if !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED without reason, got %v", err)
	}

	replay, err := Validate(c, Request{To: domain.StatusClosed, AdminClose: true, Reason: "duplicate"})
	if err != nil || replay {
		t.Fatalf("expected valid admin close, got replay=%v err=%v", replay, err)
	}

	// The table alone does not allow open -> closed.
	_, err = Validate(c, Request{To: domain.StatusClosed})
	if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
}

func TestApplySetsResolutionAndTags(t *testing.T) {
	c := &domain.Case{ID: "c1", Kind: domain.KindDispute, Status: domain.StatusInvestigating, AssignedTo: strPtr("op1")}
	Apply(c, Request{To: domain.StatusResolved, Resolution: "refund issued"})
	if c.Status != domain.StatusResolved {
		t.Fatalf("status = %s", c.Status)
	}
	if c.Resolution != "refund issued" {
		t.Fatalf("resolution = %q", c.Resolution)
	}

	Apply(c, Request{To: domain.StatusClosed, AdminClose: true, Reason: "user requested deletion", Tags: []string{domain.TagDeletion}})
	if !c.HasTag(domain.TagDeletion) {
		t.Fatal("expected deletion tag")
	}
	if c.Resolution != "refund issued" {
		t.Fatalf("resolution overwritten: %q", c.Resolution)
	}
}
