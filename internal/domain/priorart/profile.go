// Package priorart holds the value objects shared by the similarity engine,
// the scoring pipeline and the alert scheduler: the research profile, the
// canonical prior-art document, scored documents and risk levels, together
// with the collaborator ports (embedding and candidate search) and the
// per-source schema mappers that build canonical documents.
package priorart

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// Profile length constraints, counted in characters after trimming.
const (
	TitleMinLen    = 5
	TitleMaxLen    = 500
	AbstractMinLen = 20
	AbstractMaxLen = 5000
	MaxKeywords    = 10
	KeywordMinLen  = 2
)

// Profile is a research description: the query side of every similarity
// comparison.
type Profile struct {
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Keywords []string `json:"keywords,omitempty"`
}

// NewProfile trims its inputs, validates them and returns an independent copy.
func NewProfile(title, abstract string, keywords []string) (Profile, error) {
	p := Profile{
		Title:    strings.TrimSpace(title),
		Abstract: strings.TrimSpace(abstract),
	}
	for _, k := range keywords {
		p.Keywords = append(p.Keywords, strings.TrimSpace(k))
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate reports every violated constraint in a single validation error.
func (p Profile) Validate() error {
	var v []errors.FieldViolation

	title := utf8.RuneCountInString(strings.TrimSpace(p.Title))
	switch {
	case title == 0:
		v = append(v, errors.FieldViolation{Field: "title", Message: "is required"})
	case title < TitleMinLen || title > TitleMaxLen:
		v = append(v, errors.FieldViolation{
			Field:   "title",
			Message: fmt.Sprintf("must be between %d and %d characters, got %d", TitleMinLen, TitleMaxLen, title),
		})
	}

	abstract := utf8.RuneCountInString(strings.TrimSpace(p.Abstract))
	switch {
	case abstract == 0:
		v = append(v, errors.FieldViolation{Field: "abstract", Message: "is required"})
	case abstract < AbstractMinLen || abstract > AbstractMaxLen:
		v = append(v, errors.FieldViolation{
			Field:   "abstract",
			Message: fmt.Sprintf("must be between %d and %d characters, got %d", AbstractMinLen, AbstractMaxLen, abstract),
		})
	}

	if len(p.Keywords) > MaxKeywords {
		v = append(v, errors.FieldViolation{
			Field:   "keywords",
			Message: fmt.Sprintf("at most %d keywords allowed, got %d", MaxKeywords, len(p.Keywords)),
		})
	}
	for i, k := range p.Keywords {
		if utf8.RuneCountInString(strings.TrimSpace(k)) < KeywordMinLen {
			v = append(v, errors.FieldViolation{
				Field:   indexed("keywords", i),
				Message: fmt.Sprintf("must be at least %d characters", KeywordMinLen),
			})
		}
	}

	if len(v) > 0 {
		return errors.NewValidationError("invalid research profile", v)
	}
	return nil
}

// Text is the string embedded for similarity: title and abstract joined by a
// single space.
func (p Profile) Text() string {
	return p.Title + " " + p.Abstract
}

// SearchText adds the keywords to Text, for lexical search and domain matching.
func (p Profile) SearchText() string {
	if len(p.Keywords) == 0 {
		return p.Text()
	}
	return p.Text() + " " + strings.Join(p.Keywords, " ")
}

// Clone returns a copy that shares no memory with p.
func (p Profile) Clone() Profile {
	c := p
	if p.Keywords != nil {
		c.Keywords = append([]string(nil), p.Keywords...)
	}
	return c
}

func indexed(field string, i int) string {
	return fmt.Sprintf("%s[%d]", field, i)
}
