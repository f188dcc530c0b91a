package events

import (
	"time"

	"github.com/opsdesk/case-triage/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCaseCreated       EventType = "case_created"
	EventCaseStatusChanged EventType = "case_status_changed"
	EventCaseAssigned      EventType = "case_assigned"
	EventCaseMessageAdded  EventType = "case_message_added"
	EventCaseEscalated     EventType = "case_escalated"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type       domain.SubjectType `json:"type"`
	UserID     *string            `json:"user_id,omitempty"`
	OperatorID *string            `json:"operator_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CaseID    string      `json:"case_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CaseCreatedPayload payload.
type CaseCreatedPayload struct {
	Kind     domain.CaseKind `json:"kind"`
	Category domain.Category `json:"category"`
	Severity domain.Severity `json:"severity"`
	Title    string          `json:"title"`
}

// CaseStatusChangedPayload payload.
type CaseStatusChangedPayload struct {
	OldStatus domain.CaseStatus `json:"old_status"`
	NewStatus domain.CaseStatus `json:"new_status"`
	Reason    string            `json:"reason,omitempty"`
}

// CaseAssignedPayload payload.
type CaseAssignedPayload struct {
	AssignedTo *string `json:"assigned_to,omitempty"`
	Reassigned bool    `json:"reassigned"`
	Bulk       bool    `json:"bulk"`
}

// CaseMessageAddedPayload payload.
type CaseMessageAddedPayload struct {
	MessageID   string             `json:"message_id"`
	Sender      domain.SubjectType `json:"sender"`
	SenderID    *string            `json:"sender_id,omitempty"`
	BodyPreview string             `json:"body_preview"`
}

// CaseEscalatedPayload payload.
type CaseEscalatedPayload struct {
	SubjectUserID   string   `json:"subject_user_id"`
	ClusterCaseIDs  []string `json:"cluster_case_ids"`
	SyntheticCaseID string   `json:"synthetic_case_id"`
}
