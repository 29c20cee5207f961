package scoring

import (
	"strings"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

const (
	IPStrong   = "Strong"
	IPModerate = "Moderate"
	IPWeak     = "Weak"

	// RecentPriorArtYears marks High-risk prior art as recent.
	RecentPriorArtYears = 5

	recentWeight   = 1.0
	olderWeight    = 0.5
	assigneeWeight = 0.5
	maxIPStrength  = 10.0
)

// AssessIPStrength scores how much room the prior art leaves for protection.
//
//	score = clamp(10 − Σ w − 0.5 × distinct High-risk assignees, 0, 10)
//
// where w is 1.0 for a High-risk document dated within five years of now and
// 0.5 otherwise. Every added High-risk document lowers the score by at least
// 0.5 until the floor, and one from a new assignee by a further 0.5.
func AssessIPStrength(ranked []priorart.ScoredDocument, now time.Time) analysis.IPStrength {
	recentCutoff := now.AddDate(-RecentPriorArtYears, 0, 0)
	var weight float64
	high := 0
	assignees := make(map[string]struct{})
	for _, sd := range ranked {
		if sd.Risk != priorart.RiskHigh {
			continue
		}
		high++
		if sd.Document.Date.Before(recentCutoff) {
			weight += olderWeight
		} else {
			weight += recentWeight
		}
		if a := normalizeAssignee(sd.Document.SourceOrAssignee); a != "" {
			assignees[a] = struct{}{}
		}
	}

	score := round(clamp(maxIPStrength-weight-assigneeWeight*float64(len(assignees)), 0, maxIPStrength), 2)
	return analysis.IPStrength{
		Score:                 score,
		Label:                 IPLabel(score),
		HighRiskCount:         high,
		DistinctHighAssignees: len(assignees),
	}
}

func IPLabel(score float64) string {
	switch {
	case score >= 7:
		return IPStrong
	case score >= 4:
		return IPModerate
	default:
		return IPWeak
	}
}

// normalizeAssignee folds case and whitespace so "ACME  Corp" and "acme corp"
// count once.
func normalizeAssignee(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
