package scoring

// MaxRecommendations caps the advisory list.
const MaxRecommendations = 12

// minRecommendationLen drops fragments that carry no advice.
const minRecommendationLen = 10

// FTOAdvisory is added when weak IP strength meets high competition.
const FTOAdvisory = "Weak IP position in a highly competitive landscape - commission a freedom-to-operate review before further investment"

// RecommendationInputs are the score bands the rule set reads.
type RecommendationInputs struct {
	TRL                 int
	MarketPotential     float64
	PatentCount         int
	HighSimilarityCount int
	IPLabel             string
	Intensity           string
}

// Recommend maps score bands to advisory strings. The output is deduplicated
// in order, and is the same for the same inputs.
func Recommend(in RecommendationInputs) []string {
	var recs []string

	switch {
	case in.TRL <= 3:
		recs = append(recs,
			"Focus on proof-of-concept development and validation",
			"Seek research funding and academic partnerships",
			"Conduct detailed feasibility studies",
		)
	case in.TRL <= 6:
		recs = append(recs,
			"Develop working prototype and conduct pilot testing",
			"File provisional patent applications to secure IP",
			"Validate market demand through customer interviews",
		)
	default:
		recs = append(recs,
			"Prepare for commercialization and scale-up",
			"Develop comprehensive go-to-market strategy",
			"Secure strategic partnerships for market entry",
		)
	}

	switch {
	case in.MarketPotential > 7:
		recs = append(recs, "High market potential - prioritize rapid development and funding")
	case in.MarketPotential > 4:
		recs = append(recs, "Moderate market potential - validate business model thoroughly")
	default:
		recs = append(recs, "Consider market pivot or niche focus for better positioning")
	}

	switch {
	case in.PatentCount > 50:
		recs = append(recs,
			"Crowded patent landscape - conduct detailed freedom-to-operate analysis",
			"Consider design-around strategies or licensing agreements",
		)
	case in.PatentCount > 20:
		recs = append(recs, "Active patent area - file strategic patents to build IP portfolio")
	default:
		recs = append(recs, "Open patent landscape - opportunity for strong IP position")
	}

	if in.HighSimilarityCount > 5 {
		recs = append(recs,
			"Multiple highly similar technologies found - differentiate clearly",
			"Consider collaboration or acquisition opportunities",
		)
	}

	if in.IPLabel == IPWeak && in.Intensity == IntensityHigh {
		recs = append(recs, FTOAdvisory)
	}

	return CleanRecommendations(recs)
}

// CleanRecommendations removes duplicates and short fragments, preserving
// order, and keeps at most MaxRecommendations.
func CleanRecommendations(recs []string) []string {
	out := make([]string, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		if len(r) <= minRecommendationLen {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
		if len(out) == MaxRecommendations {
			break
		}
	}
	return out
}
