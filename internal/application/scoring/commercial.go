package scoring

import (
	"strings"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

var (
	corporateMarkers = []string{"corp", "inc", "ltd", "llc", "company", "technologies"}
	academicMarkers  = []string{"university", "college", "institute", "school"}
)

// AssessCommercial derives commercial signals from the ranked patents.
func AssessCommercial(patents []priorart.ScoredDocument) analysis.CommercialIndicators {
	return analysis.CommercialIndicators{
		CitationVelocity:    round(CitationVelocity(patents), 3),
		CommercialRatio:     round(CommercialRatio(patents), 3),
		AverageFamilySize:   round(AverageFamilySize(patents), 2),
		GeographicDiversity: round(GeographicDiversity(patents), 3),
	}
}

// CitationVelocity is the mean share of citations received recently.
func CitationVelocity(patents []priorart.ScoredDocument) float64 {
	if len(patents) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range patents {
		sum += float64(p.Document.RecentCitations) / float64(max(1, p.Document.ForwardCitations))
	}
	return sum / float64(len(patents))
}

// CommercialRatio is the share of patents held by companies. Assignees that
// name no academic marker count as corporate; unassigned patents do not.
func CommercialRatio(patents []priorart.ScoredDocument) float64 {
	if len(patents) == 0 {
		return 0
	}
	corporate := 0
	for _, p := range patents {
		a := strings.ToLower(p.Document.SourceOrAssignee)
		switch {
		case containsAny(a, corporateMarkers):
			corporate++
		case containsAny(a, academicMarkers):
		case strings.TrimSpace(a) != "":
			corporate++
		}
	}
	return float64(corporate) / float64(len(patents))
}

// AverageFamilySize averages the positive family sizes, defaulting to 1.
func AverageFamilySize(patents []priorart.ScoredDocument) float64 {
	sum, n := 0, 0
	for _, p := range patents {
		if p.Document.FamilySize > 0 {
			sum += p.Document.FamilySize
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return float64(sum) / float64(n)
}

// GeographicDiversity is distinct countries over ten, capped at 1.
func GeographicDiversity(patents []priorart.ScoredDocument) float64 {
	countries := make(map[string]struct{})
	for _, p := range patents {
		if c := strings.ToUpper(strings.TrimSpace(p.Document.Country)); c != "" {
			countries[c] = struct{}{}
		}
	}
	return clamp(float64(len(countries))/10, 0, 1)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
