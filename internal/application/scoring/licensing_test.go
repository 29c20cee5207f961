package scoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

func TestClassifyEntity(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Stanford University", EntityUniversity},
		{"Imperial College London", EntityUniversity},
		{"Massachusetts Institute of Technology", EntityUniversity},
		{"Acme Corp.", EntityCompany},
		{"Widget Holdings, Inc.", EntityCompany},
		{"Siemens AG", EntityCompany},
		{"Fraunhofer-Gesellschaft", EntityResearchInstitute},
		{"Princeton Plasma Lab", EntityResearchInstitute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyEntity(tt.name))
		})
	}
}

func TestLicensingValue(t *testing.T) {
	assert.Equal(t, "High ($1M+)", LicensingValue(0.95))
	assert.Equal(t, "Medium ($100K-$1M)", LicensingValue(0.9))
	assert.Equal(t, "Medium ($100K-$1M)", LicensingValue(0.8))
	assert.Equal(t, "Low (<$100K)", LicensingValue(0.75))
}

func TestPotentialLicensees_GroupsCloseMatchesByAssignee(t *testing.T) {
	ls := PotentialLicensees([]priorart.ScoredDocument{
		patent("US1", "Acme Corp", 0.82),
		patent("US2", " acme  corp ", 0.93),
		patent("US3", "Stanford University", 0.93),
		patent("US4", "Below Threshold Inc", 0.69),
		patent("US5", "", 0.99),
		scored(priorart.DocumentTypePublication, "W1", "Journal", 0.95, now),
	})
	require.Len(t, ls, 2)

	assert.Equal(t, "Acme Corp", ls[0].Name, "more matches wins the tie on score")
	assert.Equal(t, EntityCompany, ls[0].EntityType)
	assert.Equal(t, 2, ls[0].Matches)
	assert.Equal(t, 0.93, ls[0].MaxScore)
	assert.Equal(t, []string{"US1", "US2"}, ls[0].Patents)
	assert.Equal(t, "High ($1M+)", ls[0].EstimatedValue)

	assert.Equal(t, "Stanford University", ls[1].Name)
	assert.Equal(t, EntityUniversity, ls[1].EntityType)
	assert.Equal(t, 1, ls[1].Matches)
}

func TestPotentialLicensees_Capped(t *testing.T) {
	var docs []priorart.ScoredDocument
	for i := 0; i < MaxLicensees+5; i++ {
		docs = append(docs, patent(fmt.Sprintf("US%d", i), fmt.Sprintf("Firm %02d Ltd", i), 0.75))
	}
	ls := PotentialLicensees(docs)
	require.Len(t, ls, MaxLicensees)
	assert.Equal(t, "Firm 00 Ltd", ls[0].Name)
}

func TestPotentialLicensees_NoneAboveThreshold(t *testing.T) {
	assert.Nil(t, PotentialLicensees(patents(3, 0.5)))
	assert.Nil(t, PotentialLicensees(nil))
}
