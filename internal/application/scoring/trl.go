// Package scoring derives the technology assessment of a research profile
// from its text and its ranked prior art. Every sub-score is a pure function;
// Pipeline composes them into an analysis.Result.
package scoring

import (
	"math"
	"strings"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
)

const (
	MinTRL = 1
	MaxTRL = 9
)

// trlPhrases maps each readiness level to the phrases that indicate it.
var trlPhrases = [MaxTRL][]string{
	{"basic principles", "fundamental", "theoretical", "concept"},
	{"technology concept", "application formulated", "practical applications"},
	{"proof of concept", "analytical", "experimental", "critical function"},
	{"laboratory", "component validation", "breadboard"},
	{"component validation", "relevant environment", "breadboard"},
	{"system prototype", "relevant environment", "model demonstration"},
	{"system demonstration", "operational environment", "prototype"},
	{"system complete", "flight qualified", "test demonstration"},
	{"actual system", "flight proven", "successful mission"},
}

var timeToMarket = [MaxTRL]string{
	"10+ years", "8-10 years", "6-8 years",
	"5-7 years", "4-6 years", "3-5 years",
	"2-4 years", "1-2 years", "0-1 years",
}

// FieldMaturityBoost converts the number of similar patents into a TRL
// increment.
//
// The boost measures how mature the surrounding field is, not how far this
// work has progressed: a theoretical abstract in a crowded field still scores
// high. Callers that need the work's own readiness use KeywordLevel.
func FieldMaturityBoost(patentCount int) float64 {
	switch {
	case patentCount > 50:
		return 2
	case patentCount > 20:
		return 1
	case patentCount > 5:
		return 0.5
	default:
		return 0
	}
}

// KeywordLevel picks the level whose phrase list has the highest hit ratio
// in text. Ties go to the lower level; no hits yields level 1.
func KeywordLevel(text string) int {
	lower := strings.ToLower(text)
	best, bestRatio := MinTRL, 0.0
	for i, phrases := range trlPhrases {
		hits := 0
		for _, p := range phrases {
			if strings.Contains(lower, p) {
				hits++
			}
		}
		ratio := float64(hits) / float64(len(phrases))
		if ratio > bestRatio {
			best, bestRatio = i+1, ratio
		}
	}
	return best
}

// AssessTRL estimates readiness from the abstract and the field size.
func AssessTRL(abstract string, patentCount int) analysis.TRLAssessment {
	kw := KeywordLevel(abstract)
	boost := FieldMaturityBoost(patentCount)
	level := clampInt(int(math.Round(float64(kw)+boost)), MinTRL, MaxTRL)
	return analysis.TRLAssessment{
		Level:              level,
		Category:           TRLCategory(level),
		MarketReadiness:    MarketReadiness(level),
		TimeToMarket:       timeToMarket[level-1],
		KeywordLevel:       kw,
		FieldMaturityBoost: boost,
	}
}

func TRLCategory(level int) string {
	switch {
	case level >= 8:
		return "MARKET_READY"
	case level >= 6:
		return "PILOT_DEMONSTRATION"
	case level >= 3:
		return "RESEARCH_DEVELOPMENT"
	default:
		return "FUNDAMENTAL_RESEARCH"
	}
}

func MarketReadiness(level int) string {
	switch {
	case level >= 8:
		return "HIGH - Ready for commercial deployment"
	case level >= 6:
		return "MEDIUM-HIGH - Near market ready, needs validation"
	case level >= 4:
		return "MEDIUM - Significant development still needed"
	default:
		return "LOW - Early stage research"
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
