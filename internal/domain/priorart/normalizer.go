package priorart

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// Schema names an upstream record layout.
type Schema string

const (
	// SchemaLogicMill is the similarity-search response item of the Logic Mill
	// API. It carries both patents and publications, told apart by index.
	SchemaLogicMill Schema = "logic_mill"
	// SchemaOpenAlex is an OpenAlex work.
	SchemaOpenAlex Schema = "openalex"
	// SchemaPatentIndex is the document layout stored in our own OpenSearch
	// index and Milvus collection.
	SchemaPatentIndex Schema = "patent_index"
)

// Normalize maps one raw upstream record to a canonical Document. Malformed
// records fail with ErrCodeDocumentInvalid. Upstream relevance scores are
// discarded; the engine computes its own.
func Normalize(schema Schema, raw json.RawMessage) (Document, error) {
	switch schema {
	case SchemaLogicMill:
		var r LogicMillRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return Document{}, errors.Wrap(err, errors.ErrCodeDocumentInvalid, "malformed logic_mill record")
		}
		return r.ToDocument()
	case SchemaOpenAlex:
		var w OpenAlexWork
		if err := json.Unmarshal(raw, &w); err != nil {
			return Document{}, errors.Wrap(err, errors.ErrCodeDocumentInvalid, "malformed openalex work")
		}
		return w.ToDocument()
	case SchemaPatentIndex:
		var r IndexRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return Document{}, errors.Wrap(err, errors.ErrCodeDocumentInvalid, "malformed patent_index record")
		}
		return r.ToDocument()
	default:
		return Document{}, errors.New(errors.ErrCodeDocumentInvalid, "unknown document schema").WithDetail(string(schema))
	}
}

// NormalizeAll maps every record it can and returns the failures separately,
// so one bad record never discards a batch.
func NormalizeAll(schema Schema, raws []json.RawMessage) ([]Document, []error) {
	docs := make([]Document, 0, len(raws))
	var errs []error
	for i, raw := range raws {
		d, err := Normalize(schema, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		docs = append(docs, d)
	}
	return docs, errs
}

// Logic Mill

// LogicMillRecord is one item of encodeDocumentAndSimilaritySearch.
type LogicMillRecord struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Index string  `json:"index"`

	Document struct {
		Title           string   `json:"title"`
		Abstract        string   `json:"abstract"`
		URL             string   `json:"url"`
		Year            int      `json:"year"`
		PublicationDate string   `json:"publicationDate"`
		Citations       int      `json:"citations"`
		Inventors       []string `json:"inventors"`
		Authors         []string `json:"authors"`
		Assignee        string   `json:"assignee"`
		Country         string   `json:"country"`
	} `json:"document"`
}

func (r LogicMillRecord) ToDocument() (Document, error) {
	var typ DocumentType
	switch r.Index {
	case "patents":
		typ = DocumentTypePatent
	case "publications":
		typ = DocumentTypePublication
	default:
		return Document{}, errors.New(errors.ErrCodeDocumentInvalid, "logic_mill record has unknown index").
			WithDetail(fmt.Sprintf("id=%s index=%q", r.ID, r.Index))
	}

	date, err := parseDate(r.Document.PublicationDate)
	if err != nil {
		return Document{}, errors.Wrap(err, errors.ErrCodeDocumentInvalid, "logic_mill record has bad publicationDate")
	}
	if date.IsZero() && r.Document.Year > 0 {
		date = time.Date(r.Document.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	}

	people := r.Document.Inventors
	if typ == DocumentTypePublication {
		people = r.Document.Authors
	}

	return NewDocument(Document{
		Type:               typ,
		Identifier:         r.ID,
		Title:              r.Document.Title,
		Abstract:           r.Document.Abstract,
		Date:               date,
		AuthorsOrInventors: people,
		SourceOrAssignee:   r.Document.Assignee,
		Country:            r.Document.Country,
		ForwardCitations:   r.Document.Citations,
		URL:                r.Document.URL,
	})
}

// OpenAlex

const openAlexIDPrefix = "https://openalex.org/"

// OpenAlexWork is the subset of an OpenAlex work the engine reads.
type OpenAlexWork struct {
	ID                    string           `json:"id"`
	DOI                   string           `json:"doi"`
	DisplayName           string           `json:"display_name"`
	Title                 string           `json:"title"`
	PublicationDate       string           `json:"publication_date"`
	PublicationYear       int              `json:"publication_year"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	CitedByCount          int              `json:"cited_by_count"`
	CountsByYear          []struct {
		Year         int `json:"year"`
		CitedByCount int `json:"cited_by_count"`
	} `json:"counts_by_year"`
	Authorships []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
		Institutions []struct {
			DisplayName string `json:"display_name"`
			CountryCode string `json:"country_code"`
		} `json:"institutions"`
	} `json:"authorships"`
	PrimaryLocation *struct {
		Source *struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
}

func (w OpenAlexWork) ToDocument() (Document, error) {
	title := w.DisplayName
	if title == "" {
		title = w.Title
	}

	date, err := parseDate(w.PublicationDate)
	if err != nil {
		return Document{}, errors.Wrap(err, errors.ErrCodeDocumentInvalid, "openalex work has bad publication_date")
	}
	if date.IsZero() && w.PublicationYear > 0 {
		date = time.Date(w.PublicationYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	}

	var (
		authors []string
		source  string
		country string
	)
	for _, a := range w.Authorships {
		authors = append(authors, a.Author.DisplayName)
		for _, inst := range a.Institutions {
			if source == "" {
				source = inst.DisplayName
			}
			if country == "" {
				country = inst.CountryCode
			}
		}
	}
	if source == "" && w.PrimaryLocation != nil && w.PrimaryLocation.Source != nil {
		source = w.PrimaryLocation.Source.DisplayName
	}

	url := w.DOI
	if url == "" {
		url = w.ID
	}

	return NewDocument(Document{
		Type:               DocumentTypePublication,
		Identifier:         strings.TrimPrefix(w.ID, openAlexIDPrefix),
		Title:              title,
		Abstract:           ReconstructAbstract(w.AbstractInvertedIndex),
		Date:               date,
		AuthorsOrInventors: authors,
		SourceOrAssignee:   source,
		Country:            country,
		ForwardCitations:   w.CitedByCount,
		RecentCitations:    w.recentCitations(),
		URL:                url,
	})
}

// recentCitations sums the two latest years reported in counts_by_year.
func (w OpenAlexWork) recentCitations() int {
	latest := 0
	for _, c := range w.CountsByYear {
		if c.Year > latest {
			latest = c.Year
		}
	}
	sum := 0
	for _, c := range w.CountsByYear {
		if c.Year >= latest-1 {
			sum += c.CitedByCount
		}
	}
	return sum
}

// ReconstructAbstract rebuilds plain text from an OpenAlex inverted index
// (word → positions).
func ReconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	type slot struct {
		pos  int
		word string
	}
	slots := make([]slot, 0, len(index)*2)
	for word, positions := range index {
		for _, p := range positions {
			slots = append(slots, slot{pos: p, word: word})
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].pos != slots[j].pos {
			return slots[i].pos < slots[j].pos
		}
		return slots[i].word < slots[j].word
	})
	words := make([]string, len(slots))
	for i, s := range slots {
		words[i] = s.word
	}
	return strings.Join(words, " ")
}

// Patent index

// IndexRecord is the stored document layout shared by the OpenSearch index
// and the Milvus collection's scalar fields.
type IndexRecord struct {
	DocType          string   `json:"doc_type"`
	Identifier       string   `json:"identifier"`
	Title            string   `json:"title"`
	Abstract         string   `json:"abstract"`
	PublicationDate  string   `json:"publication_date"`
	Inventors        []string `json:"inventors,omitempty"`
	Assignee         string   `json:"assignee,omitempty"`
	Country          string   `json:"country,omitempty"`
	FamilySize       int      `json:"family_size,omitempty"`
	ForwardCitations int      `json:"forward_citations,omitempty"`
	RecentCitations  int      `json:"recent_citations,omitempty"`
	URL              string   `json:"url,omitempty"`
}

func (r IndexRecord) ToDocument() (Document, error) {
	date, err := parseDate(r.PublicationDate)
	if err != nil {
		return Document{}, errors.Wrap(err, errors.ErrCodeDocumentInvalid, "patent_index record has bad publication_date")
	}
	return NewDocument(Document{
		Type:               DocumentType(strings.ToLower(r.DocType)),
		Identifier:         r.Identifier,
		Title:              r.Title,
		Abstract:           r.Abstract,
		Date:               date,
		AuthorsOrInventors: r.Inventors,
		SourceOrAssignee:   r.Assignee,
		Country:            r.Country,
		FamilySize:         r.FamilySize,
		ForwardCitations:   r.ForwardCitations,
		RecentCitations:    r.RecentCitations,
		URL:                r.URL,
	})
}

// IndexRecordFromDocument is the inverse of IndexRecord.ToDocument.
func IndexRecordFromDocument(d Document) IndexRecord {
	return IndexRecord{
		DocType:          string(d.Type),
		Identifier:       d.Identifier,
		Title:            d.Title,
		Abstract:         d.Abstract,
		PublicationDate:  d.Date.Format(dateLayout),
		Inventors:        append([]string(nil), d.AuthorsOrInventors...),
		Assignee:         d.SourceOrAssignee,
		Country:          d.Country,
		FamilySize:       d.FamilySize,
		ForwardCitations: d.ForwardCitations,
		RecentCitations:  d.RecentCitations,
		URL:              d.URL,
	}
}

const dateLayout = "2006-01-02"

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty input yields the zero time.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
