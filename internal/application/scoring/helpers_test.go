package scoring

import (
	"fmt"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func scored(typ priorart.DocumentType, id, assignee string, score float64, date time.Time) priorart.ScoredDocument {
	return priorart.NewScoredDocument(priorart.Document{
		Type:             typ,
		Identifier:       id,
		Title:            id,
		Date:             date,
		SourceOrAssignee: assignee,
	}, score)
}

func patent(id, assignee string, score float64) priorart.ScoredDocument {
	return scored(priorart.DocumentTypePatent, id, assignee, score, now.AddDate(-1, 0, 0))
}

func publication(id string, date time.Time) priorart.ScoredDocument {
	return scored(priorart.DocumentTypePublication, id, "Journal", 0.5, date)
}

func patents(n int, score float64) []priorart.ScoredDocument {
	out := make([]priorart.ScoredDocument, n)
	for i := range out {
		out[i] = patent(fmt.Sprintf("US%d", i), "", score)
	}
	return out
}
