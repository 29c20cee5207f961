package scoring

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

//go:embed market_domains.yaml
var marketDomainsYAML []byte

// FallbackDomain is used when no domain keyword matches.
const FallbackDomain = "other"

// MarketDomain is one row of the market table.
type MarketDomain struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	TAM      float64  `yaml:"tam"`
	CAGR     float64  `yaml:"cagr"`
	SAMRatio float64  `yaml:"sam_ratio"`
	SOMRatio float64  `yaml:"som_ratio"`
}

type marketTableFile struct {
	Domains []MarketDomain `yaml:"domains"`
}

// MarketTable is an immutable, validated set of domains.
type MarketTable struct {
	domains  []MarketDomain
	fallback MarketDomain
}

// ParseMarketTable decodes and validates a YAML market table.
func ParseMarketTable(data []byte) (*MarketTable, error) {
	var f marketTableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMarketTableInvalid, "failed to decode market table")
	}
	if len(f.Domains) == 0 {
		return nil, errors.New(errors.ErrCodeMarketTableInvalid, "market table has no domains")
	}

	t := &MarketTable{}
	seen := make(map[string]bool, len(f.Domains))
	hasFallback := false
	for i, d := range f.Domains {
		d.Name = strings.TrimSpace(d.Name)
		switch {
		case d.Name == "":
			return nil, invalidDomain(i, "name is required")
		case seen[d.Name]:
			return nil, invalidDomain(i, "duplicate domain "+d.Name)
		case d.TAM <= 0:
			return nil, invalidDomain(i, "tam must be positive")
		case d.SAMRatio <= 0 || d.SAMRatio > 1:
			return nil, invalidDomain(i, "sam_ratio must be in (0, 1]")
		case d.SOMRatio <= 0 || d.SOMRatio > 1:
			return nil, invalidDomain(i, "som_ratio must be in (0, 1]")
		}
		seen[d.Name] = true
		kws := make([]string, 0, len(d.Keywords))
		for _, k := range d.Keywords {
			if k = normalizeText(k); k != "" {
				kws = append(kws, k)
			}
		}
		d.Keywords = kws
		if d.Name == FallbackDomain {
			t.fallback = d
			hasFallback = true
			continue
		}
		t.domains = append(t.domains, d)
	}
	if !hasFallback {
		return nil, errors.New(errors.ErrCodeMarketTableInvalid, "market table requires an \""+FallbackDomain+"\" domain")
	}
	return t, nil
}

func invalidDomain(i int, msg string) error {
	return errors.New(errors.ErrCodeMarketTableInvalid, "invalid market domain").WithDetail(fmt.Sprintf("domains[%d]: %s", i, msg))
}

// LoadMarketTable reads a table from disk.
func LoadMarketTable(path string) (*MarketTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMarketTableInvalid, "failed to read market table")
	}
	return ParseMarketTable(data)
}

// DefaultMarketTable returns the embedded table.
func DefaultMarketTable() *MarketTable {
	t, err := ParseMarketTable(marketDomainsYAML)
	if err != nil {
		panic(fmt.Sprintf("scoring: embedded market table is invalid: %v", err))
	}
	return t
}

// Domains lists the matchable domains followed by the fallback.
func (t *MarketTable) Domains() []MarketDomain {
	out := make([]MarketDomain, 0, len(t.domains)+1)
	out = append(out, t.domains...)
	return append(out, t.fallback)
}

// Match returns the domain with the most keyword hits in text.
func (t *MarketTable) Match(text string) MarketDomain {
	norm := " " + normalizeText(text) + " "
	best, bestHits := t.fallback, 0
	for _, d := range t.domains {
		hits := 0
		for _, k := range d.Keywords {
			if strings.Contains(norm, " "+k+" ") {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = d, hits
		}
	}
	return best
}

// Size matches profile to a domain and derives TAM, SAM and SOM. SOM scales
// with the market gap score and SOM ≤ SAM ≤ TAM always holds.
func (t *MarketTable) Size(profile priorart.Profile, gapScore float64) analysis.MarketSizing {
	d := t.Match(profile.SearchText())
	tam := d.TAM
	sam := tam * d.SAMRatio
	som := sam * d.SOMRatio * (0.5 + clamp(gapScore, 0, 10)/20)

	tam = round(tam, 4)
	sam = clamp(round(sam, 4), 0, tam)
	som = clamp(round(som, 4), 0, sam)
	return analysis.MarketSizing{Domain: d.Name, TAM: tam, SAM: sam, SOM: som, CAGR: d.CAGR}
}

// normalizeText lowercases and reduces every run of non-alphanumeric runes,
// except '-', to a single space.
func normalizeText(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	return strings.Join(fields, " ")
}

// MarketTableStore holds the active table and swaps it atomically.
type MarketTableStore struct {
	current atomic.Pointer[MarketTable]
}

func NewMarketTableStore(t *MarketTable) *MarketTableStore {
	if t == nil {
		t = DefaultMarketTable()
	}
	s := &MarketTableStore{}
	s.current.Store(t)
	return s
}

func (s *MarketTableStore) Table() *MarketTable { return s.current.Load() }

// Replace installs t; a nil table is ignored.
func (s *MarketTableStore) Replace(t *MarketTable) {
	if t != nil {
		s.current.Store(t)
	}
}
