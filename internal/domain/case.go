package domain

import "time"

// CaseKind discriminates the closed set of case variants.
type CaseKind string

const (
	KindDispute       CaseKind = "DISPUTE"
	KindSupportTicket CaseKind = "SUPPORT_TICKET"
	KindClaim         CaseKind = "CLAIM"
	KindAntiCheatFlag CaseKind = "ANTI_CHEAT_FLAG"
)

// ValidKind reports whether k belongs to the closed kind set.
func ValidKind(k CaseKind) bool {
	switch k {
	case KindDispute, KindSupportTicket, KindClaim, KindAntiCheatFlag:
		return true
	}
	return false
}

// CaseStatus enumerates workflow states shared across kinds.
type CaseStatus string

const (
	StatusNew           CaseStatus = "NEW"
	StatusOpen          CaseStatus = "OPEN"
	StatusInvestigating CaseStatus = "INVESTIGATING"
	StatusResolved      CaseStatus = "RESOLVED"
	StatusRejected      CaseStatus = "REJECTED"
	StatusFalsePositive CaseStatus = "FALSE_POSITIVE"
	StatusClosed        CaseStatus = "CLOSED"
)

// Terminal reports whether no further work is expected in this state.
func (s CaseStatus) Terminal() bool {
	switch s {
	case StatusResolved, StatusRejected, StatusFalsePositive, StatusClosed:
		return true
	}
	return false
}

// Severity is the ordered urgency scale.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal position of the severity, low first.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is at or above other on the severity scale.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Category tags a case for routing and reporting.
type Category string

const (
	CategoryPayment    Category = "payment"
	CategoryGameResult Category = "game_result"
	CategoryTechnical  Category = "technical"
	CategoryFraud      Category = "fraud"
	CategoryAccount    Category = "account"
	CategoryGeneral    Category = "general"
)

// ValidCategory reports whether c is a known category tag.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryPayment, CategoryGameResult, CategoryTechnical, CategoryFraud, CategoryAccount, CategoryGeneral:
		return true
	}
	return false
}

// EvidenceRef points at an attachment blob held by the external store.
// Only the reference and metadata live here, never the bytes.
type EvidenceRef struct {
	BlobID    string
	FileName  string
	MimeType  string
	SizeBytes int64
}

// Case is the unified record for disputes, support tickets, claims and
// anti-cheat flags.
type Case struct {
	ID            string
	Key           string
	Kind          CaseKind
	SubjectUserID *string
	Category      Category
	Severity      Severity
	Status        CaseStatus
	AssignedTo    *string
	Title         string
	Description   string
	DetectorType  string
	Resolution    string
	Evidence      []EvidenceRef
	Tags          []string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasTag reports whether the case carries the given label.
func (c *Case) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends the label if not already present.
func (c *Case) AddTag(tag string) {
	if !c.HasTag(tag) {
		c.Tags = append(c.Tags, tag)
	}
}

// Snapshot captures the auditable fields of the case as a flat map,
// used for AuditEntry before/after states.
func (c *Case) Snapshot() map[string]any {
	snap := map[string]any{
		"status":   string(c.Status),
		"severity": string(c.Severity),
		"category": string(c.Category),
	}
	if c.AssignedTo != nil {
		snap["assigned_to"] = *c.AssignedTo
	}
	if c.Resolution != "" {
		snap["resolution"] = c.Resolution
	}
	return snap
}

// Tag values with engine-level meaning.
const (
	TagSynthetic = "synthetic"
	TagDeletion  = "deletion"
	TagEscalated = "escalated"
)

// ClusterTag returns the label binding a synthetic case to the subject
// whose flags it aggregates.
func ClusterTag(subjectUserID string) string {
	return "cluster:" + subjectUserID
}
