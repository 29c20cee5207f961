package priorart

import (
	"strings"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// DocumentType distinguishes patents from scholarly publications.
type DocumentType string

const (
	DocumentTypePatent      DocumentType = "patent"
	DocumentTypePublication DocumentType = "publication"
)

// IsValid reports whether t is a known document type.
func (t DocumentType) IsValid() bool {
	return t == DocumentTypePatent || t == DocumentTypePublication
}

func (t DocumentType) String() string { return string(t) }

// ParseDocumentTypes converts raw names, rejecting unknown ones.
func ParseDocumentTypes(raw []string) ([]DocumentType, error) {
	out := make([]DocumentType, 0, len(raw))
	var v []errors.FieldViolation
	for i, r := range raw {
		t := DocumentType(strings.ToLower(strings.TrimSpace(r)))
		if !t.IsValid() {
			v = append(v, errors.FieldViolation{Field: indexed("sources", i), Message: "must be patent or publication"})
			continue
		}
		out = append(out, t)
	}
	if len(v) > 0 {
		return nil, errors.NewValidationError("invalid document types", v)
	}
	return out, nil
}

// DocumentKey identifies a document across sources. Identifiers are unique
// within a type only.
type DocumentKey struct {
	Type       DocumentType
	Identifier string
}

func (k DocumentKey) String() string { return string(k.Type) + ":" + k.Identifier }

// Document is the canonical prior-art record. Build it with NewDocument or a
// source mapper; it is not mutated afterwards.
type Document struct {
	Type               DocumentType `json:"type"`
	Identifier         string       `json:"identifier"`
	Title              string       `json:"title"`
	Abstract           string       `json:"abstract"`
	Date               time.Time    `json:"date"`
	AuthorsOrInventors []string     `json:"authors_or_inventors,omitempty"`
	SourceOrAssignee   string       `json:"source_or_assignee,omitempty"`

	Country          string `json:"country,omitempty"`
	FamilySize       int    `json:"family_size,omitempty"`
	ForwardCitations int    `json:"forward_citations,omitempty"`
	RecentCitations  int    `json:"recent_citations,omitempty"`
	URL              string `json:"url,omitempty"`
}

// NewDocument validates d and returns a trimmed copy whose slices are not
// shared with the argument.
func NewDocument(d Document) (Document, error) {
	d.Identifier = strings.TrimSpace(d.Identifier)
	d.Title = strings.TrimSpace(d.Title)
	d.Abstract = strings.TrimSpace(d.Abstract)
	d.SourceOrAssignee = strings.TrimSpace(d.SourceOrAssignee)
	d.Country = strings.ToUpper(strings.TrimSpace(d.Country))
	d.Date = d.Date.UTC()

	if d.AuthorsOrInventors != nil {
		names := make([]string, 0, len(d.AuthorsOrInventors))
		for _, n := range d.AuthorsOrInventors {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		d.AuthorsOrInventors = names
	}

	var v []errors.FieldViolation
	if !d.Type.IsValid() {
		v = append(v, errors.FieldViolation{Field: "type", Message: "must be patent or publication"})
	}
	if d.Identifier == "" {
		v = append(v, errors.FieldViolation{Field: "identifier", Message: "is required"})
	}
	if d.Title == "" {
		v = append(v, errors.FieldViolation{Field: "title", Message: "is required"})
	}
	if d.Date.IsZero() {
		v = append(v, errors.FieldViolation{Field: "date", Message: "is required"})
	}
	if d.FamilySize < 0 || d.ForwardCitations < 0 || d.RecentCitations < 0 {
		v = append(v, errors.FieldViolation{Field: "counts", Message: "must not be negative"})
	}
	if len(v) > 0 {
		ae := errors.New(errors.ErrCodeDocumentInvalid, "invalid prior-art document").WithDetail(d.Identifier)
		ae.Fields = v
		return Document{}, ae
	}
	return d, nil
}

// Key returns the (type, identifier) pair.
func (d Document) Key() DocumentKey {
	return DocumentKey{Type: d.Type, Identifier: d.Identifier}
}

// Text is the string embedded for similarity, built the same way as
// Profile.Text.
func (d Document) Text() string {
	return d.Title + " " + d.Abstract
}

// PublishedSince reports whether d is dated at or after cutoff.
func (d Document) PublishedSince(cutoff time.Time) bool {
	return !d.Date.Before(cutoff)
}

// LookbackCutoff returns now minus days, or the zero time when days ≤ 0.
func LookbackCutoff(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -days)
}

// FilterSince keeps the documents dated at or after cutoff, preserving order.
func FilterSince(docs []Document, cutoff time.Time) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.PublishedSince(cutoff) {
			out = append(out, d)
		}
	}
	return out
}

// FilterTypes keeps documents whose type is listed; an empty list keeps all.
func FilterTypes(docs []Document, types []DocumentType) []Document {
	if len(types) == 0 {
		return docs
	}
	allowed := make(map[DocumentType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if allowed[d.Type] {
			out = append(out, d)
		}
	}
	return out
}
