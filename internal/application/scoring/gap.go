package scoring

import (
	"strings"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

const (
	GapClear     = "CLEAR_MARKET_GAP_IDENTIFIED"
	GapPotential = "POTENTIAL_MARKET_OPPORTUNITY"
	GapSaturated = "SATURATED_MARKET"
	GapUnclear   = "UNCLEAR_MARKET_NEED"

	// RecentYears is the window, in calendar years, counted as recent.
	RecentYears = 2
)

var (
	needKeywords     = []string{"problem", "challenge", "limitation", "bottleneck", "inefficient"}
	solutionKeywords = []string{"novel", "improved", "optimized", "efficient", "innovative"}
)

// AssessMarketGap compares research momentum with patent density.
func AssessMarketGap(abstract string, patents, publications []priorart.ScoredDocument, now time.Time) analysis.MarketGap {
	recent := 0
	for _, p := range publications {
		if now.Year()-p.Document.Date.Year() <= RecentYears {
			recent++
		}
	}
	momentum := float64(recent) / float64(max(1, len(publications)))
	density := float64(len(patents)) / 100
	need := keywordRatio(abstract, needKeywords)
	solution := keywordRatio(abstract, solutionKeywords)

	gap := analysis.MarketGap{
		PublicationMomentum: round(momentum, 2),
		PatentDensity:       round(density, 2),
		NeedRatio:           round(need, 2),
		SolutionRatio:       round(solution, 2),
	}
	switch {
	case momentum > 0.4 && density < 0.3 && need > 0.2:
		gap.Status, gap.Score = GapClear, 8.5
	case momentum > 0.3 && need > 0.1:
		gap.Status, gap.Score = GapPotential, 6.5
	case density > 0.7:
		gap.Status, gap.Score = GapSaturated, 3.0
	default:
		gap.Status, gap.Score = GapUnclear, 4.0
	}
	return gap
}

func keywordRatio(text string, keywords []string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}
