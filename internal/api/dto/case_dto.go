package dto

import (
	"time"

	"github.com/opsdesk/case-triage/internal/domain"
)

// AttachmentRef mirrors domain.EvidenceRef on the wire.
type AttachmentRef struct {
	BlobID    string `json:"blob_id"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// CreateCaseRequest is the intake payload.
type CreateCaseRequest struct {
	Kind             domain.CaseKind `json:"kind"`
	SubjectUserID    *string         `json:"subject_user_id,omitempty"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Category         domain.Category `json:"category,omitempty"`
	DeclaredPriority domain.Severity `json:"declared_priority,omitempty"`
	DetectorType     string          `json:"detector_type,omitempty"`
	SignalStrength   float64         `json:"signal_strength,omitempty"`
	Evidence         []AttachmentRef `json:"evidence,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
}

// TransitionRequest asks for a workflow transition.
type TransitionRequest struct {
	To         domain.CaseStatus `json:"to"`
	Resolution string            `json:"resolution,omitempty"`
	AdminClose bool              `json:"admin_close,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Deletion   bool              `json:"deletion,omitempty"`
}

// AssignRequest binds a case to an operator.
type AssignRequest struct {
	OperatorID string `json:"operator_id"`
	Reassign   bool   `json:"reassign,omitempty"`
}

// BulkAssignRequest applies one assignment to many cases.
type BulkAssignRequest struct {
	CaseIDs    []string `json:"case_ids"`
	OperatorID string   `json:"operator_id"`
	Reassign   bool     `json:"reassign,omitempty"`
}

// CreateMessageRequest appends to the case thread.
type CreateMessageRequest struct {
	Sender      domain.SubjectType `json:"sender"`
	SenderID    *string            `json:"sender_id,omitempty"`
	Body        string             `json:"body"`
	Attachments []AttachmentRef    `json:"attachments,omitempty"`
}

// CaseSummary is the list-view projection.
type CaseSummary struct {
	ID            string            `json:"id"`
	Key           string            `json:"key"`
	Kind          domain.CaseKind   `json:"kind"`
	SubjectUserID *string           `json:"subject_user_id,omitempty"`
	Category      domain.Category   `json:"category"`
	Severity      domain.Severity   `json:"severity"`
	Status        domain.CaseStatus `json:"status"`
	AssignedTo    *string           `json:"assigned_to,omitempty"`
	Title         string            `json:"title"`
	Tags          []string          `json:"tags,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// SubjectIdentity carries denormalized display fields for the subject.
type SubjectIdentity struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// CaseDetailResponse includes the thread and audit trail.
type CaseDetailResponse struct {
	CaseSummary
	Subject     *SubjectIdentity     `json:"subject,omitempty"`
	Description string               `json:"description"`
	Resolution  string               `json:"resolution,omitempty"`
	Evidence    []AttachmentRef      `json:"evidence,omitempty"`
	Messages    []MessageResponse    `json:"messages"`
	AuditTrail  []AuditEntryResponse `json:"audit_trail"`
}

// MessageResponse is one thread entry.
type MessageResponse struct {
	ID          string             `json:"id"`
	Sender      domain.SubjectType `json:"sender"`
	SenderID    *string            `json:"sender_id,omitempty"`
	Body        string             `json:"body"`
	Attachments []AttachmentRef    `json:"attachments,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// AuditEntryResponse is one trail entry.
type AuditEntryResponse struct {
	ID          string             `json:"id"`
	ActorType   domain.SubjectType `json:"actor_type"`
	ActorID     *string            `json:"actor_id,omitempty"`
	Action      domain.AuditAction `json:"action"`
	BeforeState map[string]any     `json:"before_state,omitempty"`
	AfterState  map[string]any     `json:"after_state,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// MutationResponse returns the updated case with its new audit entry ID.
type MutationResponse struct {
	Case         CaseSummary `json:"case"`
	AuditEntryID *string     `json:"audit_entry_id,omitempty"`
}

// BulkAssignItem reports one item outcome.
type BulkAssignItem struct {
	CaseID    string       `json:"case_id"`
	OK        bool         `json:"ok"`
	ErrorCode string       `json:"error_code,omitempty"`
	Error     string       `json:"error,omitempty"`
	Case      *CaseSummary `json:"case,omitempty"`
}
