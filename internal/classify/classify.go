// Package classify assigns category and severity at intake and decides
// anti-cheat flag cluster escalation.
package classify

import (
	"strings"

	"github.com/opsdesk/case-triage/internal/domain"
)

// Payload carries the intake fields classification looks at.
type Payload struct {
	Category         domain.Category
	DeclaredPriority domain.Severity
	DetectorType     string
	SignalStrength   float64
	Title            string
	Description      string
}

// rule is one declarative classification rule. Rules are evaluated in
// order; the first match fixes the category, and severity ties break
// toward the higher value.
type rule struct {
	kinds    []domain.CaseKind
	keywords []string
	category domain.Category
	severity domain.Severity
}

// Ordered most specific first. A later rule never overrides an earlier
// category match.
var rules = []rule{
	{kinds: []domain.CaseKind{domain.KindDispute, domain.KindClaim},
		keywords: []string{"chargeback", "refund", "deposit", "withdrawal", "payout"},
		category: domain.CategoryPayment, severity: domain.SeverityHigh},
	{kinds: []domain.CaseKind{domain.KindDispute},
		keywords: []string{"match", "result", "score", "game"},
		category: domain.CategoryGameResult, severity: domain.SeverityMedium},
	{kinds: []domain.CaseKind{domain.KindClaim},
		keywords: []string{"fraud", "scam", "stolen", "unauthorized"},
		category: domain.CategoryFraud, severity: domain.SeverityHigh},
	{kinds: []domain.CaseKind{domain.KindSupportTicket},
		keywords: []string{"login", "password", "locked", "account"},
		category: domain.CategoryAccount, severity: domain.SeverityMedium},
	{kinds: []domain.CaseKind{domain.KindSupportTicket},
		keywords: []string{"crash", "bug", "error", "broken"},
		category: domain.CategoryTechnical, severity: domain.SeverityLow},
}

// detectorSeverity is the fixed mapping from anti-cheat detector type to
// baseline severity. Unknown detectors default to medium rather than low
// so a new detector is never silently deprioritized.
var detectorSeverity = map[string]domain.Severity{
	"bot_behavior":      domain.SeverityHigh,
	"pattern_detection": domain.SeverityHigh,
	"suspicious_timing": domain.SeverityMedium,
	"statistical":       domain.SeverityMedium,
	"report_based":      domain.SeverityLow,
}

// Classify derives (category, severity) for a case at intake or update.
// It is pure and total: unmatched input falls back to general/low.
func Classify(kind domain.CaseKind, payload Payload) (domain.Category, domain.Severity) {
	if kind == domain.KindAntiCheatFlag {
		return classifyFlag(payload)
	}

	category := domain.CategoryGeneral
	severity := domain.SeverityLow
	matched := false

	text := strings.ToLower(payload.Title + " " + payload.Description)
	if payload.Category != "" && domain.ValidCategory(payload.Category) {
		category = payload.Category
		matched = true
	}
	for _, r := range rules {
		if !kindIn(kind, r.kinds) {
			continue
		}
		if !matchesKeywords(text, r.keywords) {
			continue
		}
		if !matched {
			category = r.category
			matched = true
		}
		// Ties break upward, never silently downgrade.
		severity = maxSeverity(severity, r.severity)
	}

	severity = maxSeverity(severity, payload.DeclaredPriority)
	return category, severity
}

func classifyFlag(payload Payload) (domain.Category, domain.Severity) {
	severity, ok := detectorSeverity[payload.DetectorType]
	if !ok {
		severity = domain.SeverityMedium
	}
	// Strong detector signal bumps one level, never lowers.
	if payload.SignalStrength >= 0.9 {
		severity = maxSeverity(severity, domain.SeverityHigh)
	}
	return domain.CategoryFraud, severity
}

func kindIn(kind domain.CaseKind, kinds []domain.CaseKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func matchesKeywords(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func maxSeverity(a, b domain.Severity) domain.Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
