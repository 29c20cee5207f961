package scoring

import (
	"sort"
	"strings"
	"unicode"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

const (
	EntityCompany           = "company"
	EntityUniversity        = "university"
	EntityResearchInstitute = "research_institute"

	// LicensingThreshold is the lowest patent similarity that makes its
	// assignee a potential licensee.
	LicensingThreshold = 0.7
	MaxLicensees       = 10
)

var (
	universityTerms = []string{"university", "universität", "universite", "université", "college", "institute"}
	companyTerms    = map[string]bool{
		"inc": true, "corp": true, "corporation": true, "ltd": true, "llc": true,
		"company": true, "co": true, "gmbh": true, "ag": true, "sa": true, "plc": true,
	}
)

// ClassifyEntity guesses the kind of organisation from its name.
func ClassifyEntity(name string) string {
	lower := strings.ToLower(name)
	for _, t := range universityTerms {
		if strings.Contains(lower, t) {
			return EntityUniversity
		}
	}
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if companyTerms[w] {
			return EntityCompany
		}
	}
	return EntityResearchInstitute
}

// LicensingValue is a coarse value band for a licensee's closest match.
func LicensingValue(maxScore float64) string {
	switch {
	case maxScore > 0.9:
		return "High ($1M+)"
	case maxScore >= HighSimilarityScore:
		return "Medium ($100K-$1M)"
	default:
		return "Low (<$100K)"
	}
}

// PotentialLicensees groups close patents by assignee. Entries are ordered by
// closest match, then by number of matching patents, then by name.
func PotentialLicensees(patents []priorart.ScoredDocument) []analysis.Licensee {
	byKey := make(map[string]*analysis.Licensee)
	for _, sd := range patents {
		if sd.Document.Type != priorart.DocumentTypePatent || sd.Score < LicensingThreshold {
			continue
		}
		key := normalizeAssignee(sd.Document.SourceOrAssignee)
		if key == "" {
			continue
		}
		l, ok := byKey[key]
		if !ok {
			l = &analysis.Licensee{
				Name:       sd.Document.SourceOrAssignee,
				EntityType: ClassifyEntity(sd.Document.SourceOrAssignee),
			}
			byKey[key] = l
		}
		l.Matches++
		l.Patents = append(l.Patents, sd.Document.Identifier)
		if sd.Score > l.MaxScore {
			l.MaxScore = sd.Score
		}
	}
	if len(byKey) == 0 {
		return nil
	}

	out := make([]analysis.Licensee, 0, len(byKey))
	for _, l := range byKey {
		l.MaxScore = round(l.MaxScore, 3)
		l.EstimatedValue = LicensingValue(l.MaxScore)
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MaxScore != out[j].MaxScore {
			return out[i].MaxScore > out[j].MaxScore
		}
		if out[i].Matches != out[j].Matches {
			return out[i].Matches > out[j].Matches
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > MaxLicensees {
		out = out[:MaxLicensees]
	}
	return out
}
