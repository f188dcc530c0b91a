package repository

import (
	"context"
	"errors"
	"time"

	"github.com/opsdesk/case-triage/internal/domain"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("record not found")

// ErrVersionConflict is returned when a case was modified concurrently;
// the caller re-reads and retries.
var ErrVersionConflict = errors.New("case version conflict")

// CaseFilter captures case search parameters.
type CaseFilter struct {
	Kinds         []domain.CaseKind
	Statuses      []domain.CaseStatus
	Severities    []domain.Severity
	Categories    []domain.Category
	AssignedTo    *string
	SubjectUserID *string
	Unassigned    bool
	Tag           *string
	SearchTerm    *string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Limit         int
	Offset        int
}

// CaseRepository persists cases. All writes take the matching audit
// entry, which commits in the same transaction as the case row; the
// audit trail and state never diverge.
type CaseRepository interface {
	CreateWithAudit(ctx context.Context, c *domain.Case, entry *domain.AuditEntry) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	// UpdateWithAudit writes the full case state guarded by its version.
	// A nil entry is allowed for mutations that do not audit (message
	// append bumping updatedAt).
	UpdateWithAudit(ctx context.Context, c *domain.Case, entry *domain.AuditEntry) error
	// UpdateWithMessage writes the case state and appends msg to the
	// thread atomically. The message is durable only when the guarded
	// case write commits, so a closed-out case never gains a message.
	UpdateWithMessage(ctx context.Context, c *domain.Case, entry *domain.AuditEntry, msg *domain.Message) error
	ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.Case, error)
	// ListUnassigned returns the operator queue ordered by
	// (severity desc, createdAt asc), recomputed on every read.
	ListUnassigned(ctx context.Context, limit int) ([]domain.Case, error)
	// ListFlagsBySubject returns anti-cheat flags for a subject created
	// at or after since, oldest first.
	ListFlagsBySubject(ctx context.Context, subjectUserID string, since time.Time) ([]domain.Case, error)
}

// MessageRepository reads case thread messages. Appends happen through
// CaseRepository.UpdateWithMessage so every message rides the guarded
// case write.
type MessageRepository interface {
	ListByCase(ctx context.Context, caseID string) ([]domain.Message, error)
}

// AuditFilter selects audit entries for export.
type AuditFilter struct {
	CaseID  *string
	ActorID *string
	Actions []domain.AuditAction
	From    *time.Time
	To      *time.Time
}

// AuditRepository reads the audit trail. Writes happen exclusively
// through CaseRepository so every entry rides a case mutation.
type AuditRepository interface {
	ListByCase(ctx context.Context, caseID string) ([]domain.AuditEntry, error)
	// ListPage returns entries with sequence greater than afterSeq,
	// ascending, at most limit. The returned cursor feeds the next call.
	ListPage(ctx context.Context, filter AuditFilter, afterSeq int64, limit int) ([]domain.AuditEntry, int64, error)
}
