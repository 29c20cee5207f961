package analysis

import (
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

// TRLAssessment is the technology-readiness estimate.
type TRLAssessment struct {
	Level           int    `json:"level"`
	Category        string `json:"category"`
	MarketReadiness string `json:"market_readiness"`
	TimeToMarket    string `json:"time_to_market"`
	// KeywordLevel is the level chosen from the abstract alone, before the
	// field-maturity boost.
	KeywordLevel       int     `json:"keyword_level"`
	FieldMaturityBoost float64 `json:"field_maturity_boost"`
}

// MarketGap describes unmet need relative to existing activity.
type MarketGap struct {
	Status              string  `json:"status"`
	Score               float64 `json:"score"`
	PublicationMomentum float64 `json:"publication_momentum"`
	PatentDensity       float64 `json:"patent_density"`
	NeedRatio           float64 `json:"need_ratio"`
	SolutionRatio       float64 `json:"solution_ratio"`
}

// MarketSizing is expressed in billions of currency units; CAGR in percent.
type MarketSizing struct {
	Domain string  `json:"domain"`
	TAM    float64 `json:"tam"`
	SAM    float64 `json:"sam"`
	SOM    float64 `json:"som"`
	CAGR   float64 `json:"cagr"`
}

// IPStrength scores freedom from blocking prior art on [0, 10].
type IPStrength struct {
	Score                 float64 `json:"score"`
	Label                 string  `json:"label"`
	HighRiskCount         int     `json:"high_risk_count"`
	DistinctHighAssignees int     `json:"distinct_high_assignees"`
}

// SimilarityDistribution summarises the ranked scores.
type SimilarityDistribution struct {
	Average  float64 `json:"average"`
	Max      float64 `json:"max"`
	Min      float64 `json:"min"`
	VeryHigh int     `json:"very_high"`
	High     int     `json:"high"`
	Medium   int     `json:"medium"`
	Low      int     `json:"low"`
	Trend    string  `json:"trend"`
}

// NoveltyAssessment scores how far the profile stands from its closest
// prior art. Score is on [0, 1]; 1 means nothing similar was found.
type NoveltyAssessment struct {
	Score                        float64 `json:"score"`
	Category                     string  `json:"category"`
	Patentability                string  `json:"patentability"`
	PriorArtConflicts            int     `json:"prior_art_conflicts"`
	HighestPatentSimilarity      float64 `json:"highest_patent_similarity"`
	HighestPublicationSimilarity float64 `json:"highest_publication_similarity"`
}

// Licensee is an assignee whose closely matching patents suggest it may need
// a license to the profiled technology.
type Licensee struct {
	Name           string   `json:"name"`
	EntityType     string   `json:"entity_type"`
	Matches        int      `json:"matches"`
	MaxScore       float64  `json:"max_score"`
	EstimatedValue string   `json:"estimated_value"`
	Patents        []string `json:"patents"`
}

// KeyPlayer is an author, inventor or institution active in the ranked
// prior art.
type KeyPlayer struct {
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	Patents        int    `json:"patents"`
	Publications   int    `json:"publications"`
	RecentActivity int    `json:"recent_activity"`
}

// Landscape describes competition around the profile.
type Landscape struct {
	Intensity             string                 `json:"intensity"`
	DistinctAssignees     int                    `json:"distinct_assignees"`
	Assignees             []string               `json:"assignees,omitempty"`
	MarketPosition        string                 `json:"market_position"`
	ThreatLevel           string                 `json:"threat_level"`
	HighSimilarityPatents int                    `json:"high_similarity_patents"`
	Distribution          SimilarityDistribution `json:"distribution"`
	PotentialLicensees    []Licensee             `json:"potential_licensees,omitempty"`
	KeyPlayers            []KeyPlayer            `json:"key_players,omitempty"`
}

// CommercialIndicators are derived from patent metadata.
type CommercialIndicators struct {
	CitationVelocity    float64 `json:"citation_velocity"`
	CommercialRatio     float64 `json:"commercial_ratio"`
	AverageFamilySize   float64 `json:"average_family_size"`
	GeographicDiversity float64 `json:"geographic_diversity"`
}

// OverallAssessment combines the sub-scores.
type OverallAssessment struct {
	MarketPotential          float64 `json:"market_potential"`
	InvestmentRecommendation string  `json:"investment_recommendation"`
	RiskAssessment           string  `json:"risk_assessment"`
	OpportunityScore         float64 `json:"opportunity_score"`
}

// Result is the composite technology assessment. It is immutable once its
// job has completed.
type Result struct {
	JobID           string                    `json:"job_id"`
	TRL             TRLAssessment             `json:"trl"`
	MarketGap       MarketGap                 `json:"market_gap"`
	Market          MarketSizing              `json:"market"`
	IPStrength      IPStrength                `json:"ip_strength"`
	Landscape       Landscape                 `json:"landscape"`
	Commercial      CommercialIndicators      `json:"commercial"`
	Novelty         NoveltyAssessment         `json:"novelty"`
	Overall         OverallAssessment         `json:"overall"`
	Patents         []priorart.ScoredDocument `json:"patents"`
	Publications    []priorart.ScoredDocument `json:"publications"`
	Recommendations []string                  `json:"recommendations"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}
