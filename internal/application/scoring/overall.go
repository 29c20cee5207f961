package scoring

import "github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"

// Overall weights.
const (
	gapWeight        = 0.40
	trlWeight        = 0.35
	commercialWeight = 0.15
	velocityWeight   = 0.10
)

// MarketPotential combines the sub-scores on [0, 10], rounded to two places.
func MarketPotential(gap analysis.MarketGap, trl analysis.TRLAssessment, c analysis.CommercialIndicators) float64 {
	score := gap.Score*gapWeight +
		float64(trl.Level)*trlWeight +
		c.CommercialRatio*10*commercialWeight +
		c.CitationVelocity*10*velocityWeight
	return round(clamp(score, 0, 10), 2)
}

func InvestmentRecommendation(score float64) string {
	switch {
	case score >= 8:
		return "STRONG BUY - High potential, proceed with patent filing and commercialization"
	case score >= 6:
		return "BUY - Good potential, conduct deeper due diligence"
	case score >= 4:
		return "HOLD - Monitor development, reassess in 6-12 months"
	default:
		return "PASS - Insufficient commercial potential at this time"
	}
}

// RiskAssessment counts two risk factors: no clear market gap and a TRL
// below 6.
func RiskAssessment(gap analysis.MarketGap, trl analysis.TRLAssessment) string {
	clearGap := gap.Status == GapClear
	mature := trl.Level >= 6
	switch {
	case clearGap && mature:
		return "LOW RISK - Clear market opportunity with mature technology"
	case clearGap || mature:
		return "MEDIUM RISK - One major risk factor identified"
	default:
		return "HIGH RISK - Multiple risk factors present"
	}
}

// OpportunityScore discounts market potential and readiness by the number
// of similar documents found.
func OpportunityScore(marketPotential float64, trl int, similarCount int) float64 {
	density := clamp(10-float64(similarCount)/10, 0, 10)
	score := (marketPotential*0.4 + float64(trl)*1.1 + density*0.5) / 2
	return round(clamp(score, 0, 10), 1)
}

// AssessOverall builds the overall section.
func AssessOverall(gap analysis.MarketGap, trl analysis.TRLAssessment, c analysis.CommercialIndicators, similarCount int) analysis.OverallAssessment {
	mp := MarketPotential(gap, trl, c)
	return analysis.OverallAssessment{
		MarketPotential:          mp,
		InvestmentRecommendation: InvestmentRecommendation(mp),
		RiskAssessment:           RiskAssessment(gap, trl),
		OpportunityScore:         OpportunityScore(mp, trl.Level, similarCount),
	}
}
