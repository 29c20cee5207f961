package scoring

import (
	"sort"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

const (
	IntensityLow    = "Low"
	IntensityMedium = "Medium"
	IntensityHigh   = "High"

	// Distinct-assignee thresholds: up to LowIntensityMax is Low, from
	// HighIntensityMin is High, anything between is Medium.
	LowIntensityMax  = 2
	HighIntensityMin = 6

	// HighSimilarityScore is the strict lower bound counted as a close match
	// when judging market position and threat.
	HighSimilarityScore = 0.8
)

// Intensity classifies the number of distinct competing assignees.
func Intensity(distinctAssignees int) string {
	switch {
	case distinctAssignees <= LowIntensityMax:
		return IntensityLow
	case distinctAssignees >= HighIntensityMin:
		return IntensityHigh
	default:
		return IntensityMedium
	}
}

func MarketPosition(highSimilarityPatents int) string {
	switch {
	case highSimilarityPatents > 10:
		return "Crowded - High Competition"
	case highSimilarityPatents > 5:
		return "Competitive - Moderate Competition"
	case highSimilarityPatents > 0:
		return "Emerging - Some Competition"
	default:
		return "Open - Low Competition"
	}
}

func ThreatLevel(highSimilarityPatents int) string {
	switch {
	case highSimilarityPatents > 5:
		return "High"
	case highSimilarityPatents > 2:
		return "Medium"
	default:
		return "Low"
	}
}

// AssessLandscape counts distinct assignees among Medium and High risk
// documents and summarises the competition they represent.
func AssessLandscape(ranked []priorart.ScoredDocument) analysis.Landscape {
	names := make(map[string]string)
	highPatents := 0
	for _, sd := range ranked {
		if sd.Document.Type == priorart.DocumentTypePatent && sd.Score > HighSimilarityScore {
			highPatents++
		}
		if !sd.Risk.AtLeast(priorart.RiskMedium) {
			continue
		}
		key := normalizeAssignee(sd.Document.SourceOrAssignee)
		if key == "" {
			continue
		}
		if _, ok := names[key]; !ok {
			names[key] = sd.Document.SourceOrAssignee
		}
	}

	assignees := make([]string, 0, len(names))
	for _, display := range names {
		assignees = append(assignees, display)
	}
	sort.Strings(assignees)

	return analysis.Landscape{
		Intensity:             Intensity(len(names)),
		DistinctAssignees:     len(names),
		Assignees:             assignees,
		MarketPosition:        MarketPosition(highPatents),
		ThreatLevel:           ThreatLevel(highPatents),
		HighSimilarityPatents: highPatents,
		Distribution:          Distribution(ranked),
	}
}

// Distribution buckets the ranked scores. An empty input yields zero
// statistics and a favorable trend.
func Distribution(ranked []priorart.ScoredDocument) analysis.SimilarityDistribution {
	var d analysis.SimilarityDistribution
	if len(ranked) == 0 {
		d.Trend = "favorable"
		return d
	}
	sum := 0.0
	d.Max, d.Min = ranked[0].Score, ranked[0].Score
	for _, sd := range ranked {
		s := sd.Score
		sum += s
		if s > d.Max {
			d.Max = s
		}
		if s < d.Min {
			d.Min = s
		}
		switch {
		case s > 0.9:
			d.VeryHigh++
		case s > 0.8:
			d.High++
		case s > 0.6:
			d.Medium++
		default:
			d.Low++
		}
	}
	switch {
	case d.Max > 0.9:
		d.Trend = "concerning"
	case d.Max > 0.8:
		d.Trend = "competitive"
	default:
		d.Trend = "favorable"
	}
	d.Average = round(sum/float64(len(ranked)), 3)
	d.Max = round(d.Max, 3)
	d.Min = round(d.Min, 3)
	return d
}
