package scoring

import (
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

// Pipeline composes the sub-scores into a Result. It is safe for concurrent
// use; the market table may be swapped underneath it.
type Pipeline struct {
	market *MarketTableStore
	now    func() time.Time
}

type PipelineOption func(*Pipeline)

// WithClock overrides the time source used for recency.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(market *MarketTableStore, opts ...PipelineOption) *Pipeline {
	if market == nil {
		market = NewMarketTableStore(nil)
	}
	p := &Pipeline{market: market, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Score assesses profile against its ranked prior art.
func (p *Pipeline) Score(jobID string, profile priorart.Profile, ranked []priorart.ScoredDocument) *analysis.Result {
	now := p.now().UTC()
	patents, publications := priorart.SplitByType(ranked)

	trl := AssessTRL(profile.Abstract, len(patents))
	gap := AssessMarketGap(profile.Abstract, patents, publications, now)
	market := p.market.Table().Size(profile, gap.Score)
	ip := AssessIPStrength(ranked, now)
	landscape := AssessLandscape(ranked)
	landscape.PotentialLicensees = PotentialLicensees(patents)
	landscape.KeyPlayers = KeyPlayers(ranked, now)
	novelty := AssessNovelty(patents, publications)
	commercial := AssessCommercial(patents)
	overall := AssessOverall(gap, trl, commercial, len(ranked))

	high := landscape.Distribution.VeryHigh + landscape.Distribution.High
	recs := Recommend(RecommendationInputs{
		TRL:                 trl.Level,
		MarketPotential:     overall.MarketPotential,
		PatentCount:         len(patents),
		HighSimilarityCount: high,
		IPLabel:             ip.Label,
		Intensity:           landscape.Intensity,
	})

	return &analysis.Result{
		JobID:           jobID,
		TRL:             trl,
		MarketGap:       gap,
		Market:          market,
		IPStrength:      ip,
		Landscape:       landscape,
		Commercial:      commercial,
		Novelty:         novelty,
		Overall:         overall,
		Patents:         patents,
		Publications:    publications,
		Recommendations: recs,
		GeneratedAt:     now,
	}
}
