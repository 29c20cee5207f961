package scoring

import (
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

const (
	NoveltyHighlyNovel     = "Highly Novel"
	NoveltyModeratelyNovel = "Moderately Novel"
	NoveltyIncremental     = "Incremental"
	NoveltyNotNovel        = "Not Novel"

	patentNoveltyWeight      = 0.7
	publicationNoveltyWeight = 0.3
)

// NoveltyCategory buckets a novelty score.
func NoveltyCategory(score float64) string {
	switch {
	case score >= 0.8:
		return NoveltyHighlyNovel
	case score >= 0.6:
		return NoveltyModeratelyNovel
	case score >= 0.3:
		return NoveltyIncremental
	default:
		return NoveltyNotNovel
	}
}

// Patentability maps a novelty score to a likelihood label.
func Patentability(score float64) string {
	switch {
	case score > 0.7:
		return "High"
	case score > 0.4:
		return "Medium"
	default:
		return "Low"
	}
}

// AssessNovelty weighs the closest patent more heavily than the closest
// publication. With no prior art at all the profile is fully novel.
func AssessNovelty(patents, publications []priorart.ScoredDocument) analysis.NoveltyAssessment {
	maxPatent, conflicts := 0.0, 0
	for _, sd := range patents {
		if sd.Score > maxPatent {
			maxPatent = sd.Score
		}
		if sd.Score > HighSimilarityScore {
			conflicts++
		}
	}
	maxPub := 0.0
	for _, sd := range publications {
		if sd.Score > maxPub {
			maxPub = sd.Score
		}
	}

	score := 1.0
	if len(patents)+len(publications) > 0 {
		score = clamp(1-(patentNoveltyWeight*maxPatent+publicationNoveltyWeight*maxPub), 0, 1)
	}
	score = round(score, 3)

	return analysis.NoveltyAssessment{
		Score:                        score,
		Category:                     NoveltyCategory(score),
		Patentability:                Patentability(score),
		PriorArtConflicts:            conflicts,
		HighestPatentSimilarity:      round(maxPatent, 3),
		HighestPublicationSimilarity: round(maxPub, 3),
	}
}
