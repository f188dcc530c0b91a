package classify

import (
	"testing"

	"github.com/opsdesk/case-triage/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		kind     domain.CaseKind
		payload  Payload
		category domain.Category
		severity domain.Severity
	}{
		{
			name:     "dispute with payment keywords",
			kind:     domain.KindDispute,
			payload:  Payload{Title: "Chargeback on my last deposit"},
			category: domain.CategoryPayment,
			severity: domain.SeverityHigh,
		},
		{
			name:     "dispute about a game result",
			kind:     domain.KindDispute,
			payload:  Payload{Title: "Wrong match score recorded"},
			category: domain.CategoryGameResult,
			severity: domain.SeverityMedium,
		},
		{
			name:     "claim with fraud keywords",
			kind:     domain.KindClaim,
			payload:  Payload{Description: "unauthorized transfer from my wallet"},
			category: domain.CategoryFraud,
			severity: domain.SeverityHigh,
		},
		{
			name:     "support ticket account lockout",
			kind:     domain.KindSupportTicket,
			payload:  Payload{Title: "locked out of my account"},
			category: domain.CategoryAccount,
			severity: domain.SeverityMedium,
		},
		{
			name:     "support ticket technical issue",
			kind:     domain.KindSupportTicket,
			payload:  Payload{Description: "app crash on startup"},
			category: domain.CategoryTechnical,
			severity: domain.SeverityLow,
		},
		{
			name:     "no match falls back to general low",
			kind:     domain.KindSupportTicket,
			payload:  Payload{Title: "quick question"},
			category: domain.CategoryGeneral,
			severity: domain.SeverityLow,
		},
		{
			name:     "declared category wins over keywords",
			kind:     domain.KindSupportTicket,
			payload:  Payload{Category: domain.CategoryAccount, Title: "app keeps crashing"},
			category: domain.CategoryAccount,
			severity: domain.SeverityLow,
		},
		{
			name:     "declared priority never downgraded",
			kind:     domain.KindSupportTicket,
			payload:  Payload{Title: "minor bug", DeclaredPriority: domain.SeverityCritical},
			category: domain.CategoryTechnical,
			severity: domain.SeverityCritical,
		},
		{
			name:     "keyword severity beats lower declared priority",
			kind:     domain.KindClaim,
			payload:  Payload{Title: "stolen funds", DeclaredPriority: domain.SeverityLow},
			category: domain.CategoryFraud,
			severity: domain.SeverityHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, severity := Classify(tt.kind, tt.payload)
			if category != tt.category {
				t.Errorf("category = %s, expected %s", category, tt.category)
			}
			if severity != tt.severity {
				t.Errorf("severity = %s, expected %s", severity, tt.severity)
			}
		})
	}
}

func TestClassifyFlagDetector(t *testing.T) {
	tests := []struct {
		detector string
		signal   float64
		severity domain.Severity
	}{
		{detector: "bot_behavior", severity: domain.SeverityHigh},
		{detector: "pattern_detection", severity: domain.SeverityHigh},
		{detector: "suspicious_timing", severity: domain.SeverityMedium},
		{detector: "statistical", severity: domain.SeverityMedium},
		{detector: "report_based", severity: domain.SeverityLow},
		{detector: "brand_new_detector", severity: domain.SeverityMedium},
		{detector: "report_based", signal: 0.95, severity: domain.SeverityHigh},
		{detector: "bot_behavior", signal: 0.95, severity: domain.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.detector, func(t *testing.T) {
			category, severity := Classify(domain.KindAntiCheatFlag, Payload{
				DetectorType:   tt.detector,
				SignalStrength: tt.signal,
			})
			if category != domain.CategoryFraud {
				t.Errorf("category = %s, expected %s", category, domain.CategoryFraud)
			}
			if severity != tt.severity {
				t.Errorf("severity = %s, expected %s", severity, tt.severity)
			}
		})
	}
}
