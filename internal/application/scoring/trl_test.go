package scoring

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordLevel(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"no hits defaults to 1", "A new cooking recipe for bread.", 1},
		{"fundamental research", "A theoretical study of fundamental concept limits.", 1},
		{"prototype in relevant environment", "We built a system prototype and ran a model demonstration in a relevant environment.", 6},
		{"tie goes to lower level", "Results from a breadboard build.", 4},
		{"case insensitive", "ACTUAL SYSTEM FLIGHT PROVEN on a SUCCESSFUL MISSION", 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeywordLevel(tt.text))
		})
	}
}

func TestFieldMaturityBoost(t *testing.T) {
	assert.Equal(t, 0.0, FieldMaturityBoost(5))
	assert.Equal(t, 0.5, FieldMaturityBoost(6))
	assert.Equal(t, 0.5, FieldMaturityBoost(20))
	assert.Equal(t, 1.0, FieldMaturityBoost(21))
	assert.Equal(t, 1.0, FieldMaturityBoost(50))
	assert.Equal(t, 2.0, FieldMaturityBoost(51))
}

func TestAssessTRL(t *testing.T) {
	a := AssessTRL("We built a system prototype and ran a model demonstration in a relevant environment.", 60)
	assert.Equal(t, 8, a.Level)
	assert.Equal(t, 6, a.KeywordLevel)
	assert.Equal(t, 2.0, a.FieldMaturityBoost)
	assert.Equal(t, "MARKET_READY", a.Category)
	assert.Equal(t, "1-2 years", a.TimeToMarket)

	// 2 + 0.5 rounds half away from zero.
	half := AssessTRL("Practical applications of the effect.", 10)
	assert.Equal(t, 3, half.Level)
	assert.Equal(t, "RESEARCH_DEVELOPMENT", half.Category)

	capped := AssessTRL("actual system, flight proven", 100)
	assert.Equal(t, MaxTRL, capped.Level)
	assert.Equal(t, "0-1 years", capped.TimeToMarket)
}

// The boost reflects field maturity: purely theoretical work in a crowded
// field is scored as if it were further along.
func TestAssessTRL_BoostReflectsFieldNotWork(t *testing.T) {
	a := AssessTRL("A theoretical treatment of fundamental principles.", 51)
	assert.Equal(t, 1, a.KeywordLevel)
	assert.Equal(t, 3, a.Level)
}

func TestAssessTRL_AlwaysInRange(t *testing.T) {
	var phrases []string
	for _, ps := range trlPhrases {
		phrases = append(phrases, ps...)
	}
	phrases = append(phrases, "noise", "widget", "")

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		var sb strings.Builder
		for j := 0; j < rng.Intn(12); j++ {
			sb.WriteString(phrases[rng.Intn(len(phrases))])
			sb.WriteByte(' ')
		}
		a := AssessTRL(sb.String(), rng.Intn(200))
		assert.GreaterOrEqual(t, a.Level, MinTRL)
		assert.LessOrEqual(t, a.Level, MaxTRL)
		assert.NotEmpty(t, a.TimeToMarket)
	}
}

func TestTRLLabels(t *testing.T) {
	assert.Equal(t, "FUNDAMENTAL_RESEARCH", TRLCategory(2))
	assert.Equal(t, "PILOT_DEMONSTRATION", TRLCategory(6))
	assert.Equal(t, "LOW - Early stage research", MarketReadiness(3))
	assert.Equal(t, "MEDIUM - Significant development still needed", MarketReadiness(4))
	assert.Equal(t, "MEDIUM-HIGH - Near market ready, needs validation", MarketReadiness(7))
	assert.Equal(t, "HIGH - Ready for commercial deployment", MarketReadiness(9))
}
