package priorart

// RiskLevel is derived from a similarity score and never stored.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Risk boundaries. A score equal to a boundary belongs to the higher level.
const (
	MediumRiskThreshold = 0.6
	HighRiskThreshold   = 0.8
)

// ClassifyRisk maps a similarity score to its risk level.
func ClassifyRisk(score float64) RiskLevel {
	switch {
	case score >= HighRiskThreshold:
		return RiskHigh
	case score >= MediumRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// AtLeast reports whether r is at least as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.rank() >= other.rank()
}

func (r RiskLevel) rank() int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// ScoredDocument pairs a document with its similarity to one profile.
type ScoredDocument struct {
	Document Document  `json:"document"`
	Score    float64   `json:"score"`
	Risk     RiskLevel `json:"risk"`
}

// NewScoredDocument attaches score and its derived risk level to d.
func NewScoredDocument(d Document, score float64) ScoredDocument {
	return ScoredDocument{Document: d, Score: score, Risk: ClassifyRisk(score)}
}

// SplitByType partitions ranked documents into patents and publications,
// preserving order.
func SplitByType(ranked []ScoredDocument) (patents, publications []ScoredDocument) {
	patents = make([]ScoredDocument, 0, len(ranked))
	publications = make([]ScoredDocument, 0, len(ranked))
	for _, sd := range ranked {
		if sd.Document.Type == DocumentTypePatent {
			patents = append(patents, sd)
		} else {
			publications = append(publications, sd)
		}
	}
	return patents, publications
}
