package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

func withSignals(sd priorart.ScoredDocument, country string, family, forward, recent int) priorart.ScoredDocument {
	sd.Document.Country = country
	sd.Document.FamilySize = family
	sd.Document.ForwardCitations = forward
	sd.Document.RecentCitations = recent
	return sd
}

func TestAssessCommercial(t *testing.T) {
	ps := []priorart.ScoredDocument{
		withSignals(patent("US1", "Acme Corp", 0.9), "US", 3, 10, 5),
		withSignals(patent("US2", "Stanford University", 0.8), "us", 0, 0, 0),
		withSignals(patent("EP1", "", 0.7), "EP", 5, 4, 1),
		withSignals(patent("DE1", "Siemens", 0.6), "", 0, 2, 2),
	}
	c := AssessCommercial(ps)
	assert.Equal(t, 0.5, c.CommercialRatio, "Acme and Siemens are corporate; unassigned is not")
	assert.Equal(t, 0.438, c.CitationVelocity)
	assert.Equal(t, 4.0, c.AverageFamilySize)
	assert.Equal(t, 0.2, c.GeographicDiversity)
}

func TestAssessCommercial_Empty(t *testing.T) {
	c := AssessCommercial(nil)
	assert.Zero(t, c.CitationVelocity)
	assert.Zero(t, c.CommercialRatio)
	assert.Equal(t, 1.0, c.AverageFamilySize)
	assert.Zero(t, c.GeographicDiversity)
}

func TestGeographicDiversity_Capped(t *testing.T) {
	var ps []priorart.ScoredDocument
	for _, c := range []string{"US", "EP", "CN", "JP", "KR", "DE", "FR", "GB", "IN", "BR", "CA", "AU"} {
		ps = append(ps, withSignals(patent(c+"1", "", 0.5), c, 1, 0, 0))
	}
	assert.Equal(t, 1.0, GeographicDiversity(ps))
}
