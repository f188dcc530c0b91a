package classify

import (
	"sort"
	"time"

	"github.com/opsdesk/case-triage/internal/domain"
)

// Escalator decides when accumulated anti-cheat flags for one subject
// warrant a critical escalation. Thresholds are configuration, not
// constants baked into the rule.
type Escalator struct {
	Threshold int
	Window    time.Duration
}

// NewEscalator applies defaults for non-positive settings.
func NewEscalator(threshold int, window time.Duration) *Escalator {
	if threshold <= 0 {
		threshold = 3
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Escalator{Threshold: threshold, Window: window}
}

// Decision is the outcome of evaluating a subject's flag set.
type Decision struct {
	Escalate bool
	// ClusterCaseIDs are the flags that form the cluster, oldest first.
	ClusterCaseIDs []string
}

// Evaluate inspects the subject's unresolved flags against the rolling
// window ending at now. The decision is a pure function of the flag set,
// so reprocessing the same flags yields the same outcome.
func (e *Escalator) Evaluate(flags []domain.Case, now time.Time) Decision {
	cutoff := now.Add(-e.Window)

	cluster := make([]domain.Case, 0, len(flags))
	for _, f := range flags {
		if f.Kind != domain.KindAntiCheatFlag {
			continue
		}
		if f.Status.Terminal() {
			continue
		}
		if f.HasTag(domain.TagSynthetic) {
			continue
		}
		if !f.Severity.AtLeast(domain.SeverityMedium) {
			continue
		}
		if f.CreatedAt.Before(cutoff) {
			continue
		}
		cluster = append(cluster, f)
	}

	if len(cluster) < e.Threshold {
		return Decision{}
	}

	sort.Slice(cluster, func(i, j int) bool {
		if cluster[i].CreatedAt.Equal(cluster[j].CreatedAt) {
			return cluster[i].ID < cluster[j].ID
		}
		return cluster[i].CreatedAt.Before(cluster[j].CreatedAt)
	})

	ids := make([]string, len(cluster))
	for i, f := range cluster {
		ids[i] = f.ID
	}
	return Decision{Escalate: true, ClusterCaseIDs: ids}
}
