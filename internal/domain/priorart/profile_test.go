package priorart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

func validProfile() Profile {
	return Profile{
		Title:    "Solid-state battery electrolyte",
		Abstract: "A sulfide electrolyte with improved ionic conductivity at room temperature.",
		Keywords: []string{"battery", "electrolyte"},
	}
}

func TestProfile_Validate_OK(t *testing.T) {
	assert.NoError(t, validProfile().Validate())
}

func TestProfile_Validate_ReportsEveryViolation(t *testing.T) {
	p := Profile{
		Title:    "abc",
		Abstract: "too short",
		Keywords: []string{"ok", "x", "y"},
	}
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	fields := map[string]bool{}
	for _, v := range errors.Violations(err) {
		fields[v.Field] = true
	}
	assert.Equal(t, map[string]bool{
		"title":       true,
		"abstract":    true,
		"keywords[1]": true,
		"keywords[2]": true,
	}, fields)
}

func TestProfile_Validate_Bounds(t *testing.T) {
	p := validProfile()
	p.Title = strings.Repeat("t", TitleMinLen)
	p.Abstract = strings.Repeat("a", AbstractMaxLen)
	assert.NoError(t, p.Validate())

	p.Title = strings.Repeat("t", TitleMaxLen+1)
	assert.Error(t, p.Validate())

	p = validProfile()
	p.Abstract = strings.Repeat("a", AbstractMinLen-1)
	assert.Error(t, p.Validate())

	p = validProfile()
	p.Title = "  ab  "
	assert.Error(t, p.Validate(), "length counts after trimming")
}

func TestProfile_Validate_TooManyKeywords(t *testing.T) {
	p := validProfile()
	p.Keywords = make([]string, MaxKeywords+1)
	for i := range p.Keywords {
		p.Keywords[i] = "kw"
	}
	err := p.Validate()
	require.Error(t, err)
	assert.Equal(t, "keywords", errors.Violations(err)[0].Field)
}

func TestProfile_Validate_MissingFields(t *testing.T) {
	err := Profile{}.Validate()
	require.Error(t, err)
	v := errors.Violations(err)
	require.Len(t, v, 2)
	assert.Equal(t, "is required", v[0].Message)
}

func TestNewProfile_Trims(t *testing.T) {
	p, err := NewProfile("  Solid-state battery  ", " A sulfide electrolyte with high conductivity. ", []string{" ion "})
	require.NoError(t, err)
	assert.Equal(t, "Solid-state battery", p.Title)
	assert.Equal(t, []string{"ion"}, p.Keywords)
}

func TestProfile_Text(t *testing.T) {
	p := validProfile()
	assert.Equal(t, p.Title+" "+p.Abstract, p.Text())
	assert.Equal(t, p.Text()+" battery electrolyte", p.SearchText())
}

func TestProfile_Clone(t *testing.T) {
	p := validProfile()
	c := p.Clone()
	c.Keywords[0] = "changed"
	assert.Equal(t, "battery", p.Keywords[0])
}
