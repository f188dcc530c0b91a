package domain

import "time"

// SubjectType indicates who is acting: the reporting user, staff, or the
// engine itself (synthetic cases, escalations).
type SubjectType string

const (
	SubjectTypeUser   SubjectType = "USER"
	SubjectTypeStaff  SubjectType = "STAFF"
	SubjectTypeSystem SubjectType = "SYSTEM"
)

// Message is one entry of a case's append-only conversation thread.
// Messages are never edited or deleted.
type Message struct {
	ID          string
	CaseID      string
	Sender      SubjectType
	SenderID    *string
	Body        string
	Attachments []EvidenceRef
	CreatedAt   time.Time
}
