package similarity

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

var (
	day0    = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	profile = priorart.Profile{
		Title:    "Solid-state battery electrolyte",
		Abstract: "A sulfide solid electrolyte with improved ionic conductivity.",
	}
)

// vectorEmbedder returns a unit vector at the configured cosine to the
// profile vector (1, 0) for each candidate title.
type vectorEmbedder struct {
	scores map[string]float64
	fail   map[string]bool
	dims   map[string]int
	calls  int32
}

func (v *vectorEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&v.calls, 1)
	if text == profile.Text() {
		return []float32{1, 0}, nil
	}
	title := strings.SplitN(text, " ", 2)[0]
	if v.fail[title] {
		return nil, fmt.Errorf("provider error for %s", title)
	}
	if n, ok := v.dims[title]; ok {
		return make([]float32, n), nil
	}
	s := v.scores[title]
	return []float32{float32(s), float32(math.Sqrt(1 - s*s))}, nil
}

func doc(id string, typ priorart.DocumentType, date time.Time) priorart.Document {
	return priorart.Document{Type: typ, Identifier: id, Title: id, Abstract: "abstract of " + id, Date: date}
}

func ids(ranked []priorart.ScoredDocument) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Document.Identifier
	}
	return out
}

func TestRank_EmptyCandidates(t *testing.T) {
	e := NewEngine(&vectorEmbedder{})
	ranked, err := e.Rank(context.Background(), profile, nil)
	require.NoError(t, err)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
}

func TestRank_ThresholdScenario(t *testing.T) {
	emb := &vectorEmbedder{scores: map[string]float64{"A": 0.85, "B": 0.62, "C": 0.30, "D": 0.78, "E": 0.10}}
	cands := []priorart.Document{
		doc("A", priorart.DocumentTypePatent, day0),
		doc("B", priorart.DocumentTypePatent, day0),
		doc("C", priorart.DocumentTypePublication, day0),
		doc("D", priorart.DocumentTypePublication, day0),
		doc("E", priorart.DocumentTypePatent, day0),
	}
	e := NewEngine(emb)

	all, err := e.Rank(context.Background(), profile, cands)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"A", "D", "B", "C", "E"}, ids(all)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, priorart.RiskHigh, all[0].Risk)
	assert.Equal(t, priorart.RiskMedium, all[1].Risk)
	assert.Equal(t, priorart.RiskMedium, all[2].Risk)
	assert.Equal(t, priorart.RiskLow, all[3].Risk)
	assert.InDelta(t, 0.85, all[0].Score, 1e-6)

	cut, err := e.Rank(context.Background(), profile, cands, WithMinScore(0.75))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "D"}, ids(cut))

	top, err := e.Rank(context.Background(), profile, cands, WithLimit(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "D"}, ids(top))
}

func TestRank_DeterministicTieBreaks(t *testing.T) {
	emb := &vectorEmbedder{scores: map[string]float64{"X": 0.7, "Y": 0.7, "Z": 0.7}}
	cands := []priorart.Document{
		doc("Z", priorart.DocumentTypePatent, day0),
		doc("Y", priorart.DocumentTypePatent, day0),
		doc("X", priorart.DocumentTypePatent, day0.AddDate(0, 0, -1)),
		doc("Y", priorart.DocumentTypePublication, day0),
	}
	e := NewEngine(emb, WithConcurrency(2))

	first, err := e.Rank(context.Background(), profile, cands)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Rank(context.Background(), profile, cands)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// Newer first, then identifier, then type.
	assert.Equal(t, []string{"Y", "Y", "Z", "X"}, ids(first))
	assert.Equal(t, priorart.DocumentTypePatent, first[0].Document.Type)
	assert.Equal(t, priorart.DocumentTypePublication, first[1].Document.Type)
}

func TestRank_ProfileEmbeddingFailure(t *testing.T) {
	e := NewEngine(priorart.EmbedderFunc(func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("connection refused")
	}))
	_, err := e.Rank(context.Background(), profile, []priorart.Document{doc("A", priorart.DocumentTypePatent, day0)})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmbeddingUnavailable))
}

func TestRank_DropsFailedAndMismatchedCandidates(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	emb := &vectorEmbedder{
		scores: map[string]float64{"A": 0.9},
		fail:   map[string]bool{"B": true},
		dims:   map[string]int{"C": 3},
	}
	e := NewEngine(emb, WithLogger(logging.NewLoggerFromCore(core)))

	ranked, err := e.Rank(context.Background(), profile, []priorart.Document{
		doc("A", priorart.DocumentTypePatent, day0),
		doc("B", priorart.DocumentTypePatent, day0),
		doc("C", priorart.DocumentTypePatent, day0),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(ranked))

	drops := logs.FilterMessage("dropping candidate").All()
	require.Len(t, drops, 2)
	reasons := []string{drops[0].ContextMap()["reason"].(string), drops[1].ContextMap()["reason"].(string)}
	assert.ElementsMatch(t, []string{"embedding_failed", "dimension_mismatch"}, reasons)
}

func TestRank_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	emb := priorart.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		if text != profile.Text() {
			cancel()
			return nil, ctx.Err()
		}
		return []float32{1, 0}, nil
	})
	_, err := NewEngine(emb, WithConcurrency(1)).Rank(ctx, profile, []priorart.Document{
		doc("A", priorart.DocumentTypePatent, day0),
		doc("B", priorart.DocumentTypePatent, day0),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{-1, 0}), "negative similarity clamps to 0")
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 0}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
	nan := float32(math.NaN())
	assert.Equal(t, 0.0, Cosine([]float32{nan, 1}, []float32{1, 1}))
}
