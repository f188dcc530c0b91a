package domain

import "time"

// AuditAction identifies what kind of mutation an AuditEntry records.
type AuditAction string

const (
	AuditCaseCreated   AuditAction = "CASE_CREATED"
	AuditStatusChanged AuditAction = "STATUS_CHANGED"
	AuditAssigned      AuditAction = "ASSIGNED"
	AuditEscalated     AuditAction = "ESCALATED"
)

// AuditEntry records a single mutating operation on a case. Entries are
// immutable once written and are never deleted, only exported.
type AuditEntry struct {
	// Seq is the store-assigned position in the global audit stream,
	// used for keyset-paginated export.
	Seq         int64
	ID          string
	CaseID      string
	ActorType   SubjectType
	ActorID     *string
	Action      AuditAction
	BeforeState map[string]any
	AfterState  map[string]any
	CreatedAt   time.Time
}
