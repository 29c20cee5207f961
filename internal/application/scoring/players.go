package scoring

import (
	"sort"
	"strings"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

const (
	PlayerPerson      = "person"
	PlayerInstitution = "institution"

	minPersonDocuments      = 2
	minInstitutionDocuments = 3
	maxPersons              = 50
	maxInstitutions         = 30
	recentActivityYears     = 2
)

type playerTally struct {
	player analysis.KeyPlayer
	docs   map[priorart.DocumentKey]bool
}

func (t *playerTally) add(d priorart.Document, cutoff time.Time) {
	if t.docs[d.Key()] {
		return
	}
	t.docs[d.Key()] = true
	if d.Type == priorart.DocumentTypePatent {
		t.player.Patents++
	} else {
		t.player.Publications++
	}
	if d.PublishedSince(cutoff) {
		t.player.RecentActivity++
	}
}

func (t *playerTally) total() int { return t.player.Patents + t.player.Publications }

// KeyPlayers lists the authors, inventors and institutions that recur across
// the ranked prior art. People need two documents and institutions three to
// be listed. Each list is ordered by document count, then name, and the two
// are concatenated people first.
func KeyPlayers(ranked []priorart.ScoredDocument, now time.Time) []analysis.KeyPlayer {
	cutoff := now.AddDate(-recentActivityYears, 0, 0)
	persons := make(map[string]*playerTally)
	institutions := make(map[string]*playerTally)

	tally := func(m map[string]*playerTally, name, kind string, d priorart.Document) {
		key := normalizeAssignee(name)
		if key == "" {
			return
		}
		t, ok := m[key]
		if !ok {
			t = &playerTally{
				player: analysis.KeyPlayer{Name: strings.TrimSpace(name), Kind: kind},
				docs:   make(map[priorart.DocumentKey]bool),
			}
			m[key] = t
		}
		t.add(d, cutoff)
	}

	for _, sd := range ranked {
		for _, name := range sd.Document.AuthorsOrInventors {
			tally(persons, name, PlayerPerson, sd.Document)
		}
		tally(institutions, sd.Document.SourceOrAssignee, PlayerInstitution, sd.Document)
	}

	out := topPlayers(persons, minPersonDocuments, maxPersons)
	return append(out, topPlayers(institutions, minInstitutionDocuments, maxInstitutions)...)
}

func topPlayers(m map[string]*playerTally, minDocs, limit int) []analysis.KeyPlayer {
	tallies := make([]*playerTally, 0, len(m))
	for _, t := range m {
		if t.total() >= minDocs {
			tallies = append(tallies, t)
		}
	}
	sort.Slice(tallies, func(i, j int) bool {
		if a, b := tallies[i].total(), tallies[j].total(); a != b {
			return a > b
		}
		return tallies[i].player.Name < tallies[j].player.Name
	})
	if len(tallies) > limit {
		tallies = tallies[:limit]
	}
	out := make([]analysis.KeyPlayer, len(tallies))
	for i, t := range tallies {
		out[i] = t.player
	}
	return out
}
