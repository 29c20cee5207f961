package neo4j

import (
	"context"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

var constraintStatements = []string{
	"CREATE CONSTRAINT analysis_id IF NOT EXISTS FOR (a:Analysis) REQUIRE a.id IS UNIQUE",
	"CREATE CONSTRAINT document_key IF NOT EXISTS FOR (d:Document) REQUIRE d.key IS UNIQUE",
	"CREATE CONSTRAINT assignee_name IF NOT EXISTS FOR (o:Assignee) REQUIRE o.name IS UNIQUE",
}

const (
	cypherUpsertAnalysis = `
MERGE (a:Analysis {id: $jobId})
SET a.owner_id = $ownerId,
    a.title = $title,
    a.opportunity_score = $opportunityScore,
    a.intensity = $intensity,
    a.completed_at = datetime($completedAt)`

	// Re-projecting a job replaces its similarity edges.
	cypherClearSimilarity = `
MATCH (:Analysis {id: $jobId})-[s:SIMILAR_TO]->()
DELETE s`

	cypherProjectDocuments = `
MATCH (a:Analysis {id: $jobId})
UNWIND $docs AS d
MERGE (doc:Document {key: d.key})
SET doc.type = d.type,
    doc.identifier = d.identifier,
    doc.title = d.title,
    doc.published = date(d.published)
MERGE (a)-[s:SIMILAR_TO]->(doc)
SET s.score = d.score, s.risk = d.risk
WITH doc, d
WHERE d.assignee <> ''
MERGE (o:Assignee {name: d.assignee})
MERGE (o)-[:OWNS]->(doc)`
)

// LandscapeProjector writes (Assignee)-[:OWNS]->(Document)<-[:SIMILAR_TO]-(Analysis)
// for every ranked document of a completed job.
type LandscapeProjector struct {
	driver DriverInterface
	logger logging.Logger
}

func NewLandscapeProjector(driver DriverInterface, logger logging.Logger) *LandscapeProjector {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &LandscapeProjector{driver: driver, logger: logger}
}

// EnsureConstraints creates the uniqueness constraints the MERGEs rely on.
func (p *LandscapeProjector) EnsureConstraints(ctx context.Context) error {
	_, err := p.driver.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		for _, stmt := range constraintStatements {
			res, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// Project writes the landscape of job in one transaction. Only completed
// jobs carry a result to project.
func (p *LandscapeProjector) Project(ctx context.Context, job *analysis.Job) error {
	if job == nil || job.Status != analysis.StatusCompleted || job.Result == nil {
		return errors.New(errors.ErrCodeValidation, "only completed jobs can be projected")
	}
	completedAt := job.UpdatedAt
	if job.CompletedAt != nil {
		completedAt = *job.CompletedAt
	}
	analysisParams := map[string]any{
		"jobId":            job.ID,
		"ownerId":          job.OwnerID,
		"title":            job.Profile.Title,
		"opportunityScore": job.Result.Overall.OpportunityScore,
		"intensity":        job.Result.Landscape.Intensity,
		"completedAt":      completedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	docs := documentParams(job.Result)

	_, err := p.driver.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		steps := []struct {
			cypher string
			params map[string]any
		}{
			{cypherUpsertAnalysis, analysisParams},
			{cypherClearSimilarity, map[string]any{"jobId": job.ID}},
			{cypherProjectDocuments, map[string]any{"jobId": job.ID, "docs": docs}},
		}
		for _, s := range steps {
			res, err := tx.Run(ctx, s.cypher, s.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	p.logger.Debug("landscape projected", logging.String("job_id", job.ID), logging.Int("documents", len(docs)))
	return nil
}

func documentParams(r *analysis.Result) []map[string]any {
	all := make([]priorart.ScoredDocument, 0, len(r.Patents)+len(r.Publications))
	all = append(all, r.Patents...)
	all = append(all, r.Publications...)

	out := make([]map[string]any, 0, len(all))
	for _, sd := range all {
		d := sd.Document
		out = append(out, map[string]any{
			"key":        d.Key().String(),
			"type":       string(d.Type),
			"identifier": d.Identifier,
			"title":      d.Title,
			"published":  d.Date.Format("2006-01-02"),
			"score":      sd.Score,
			"risk":       string(sd.Risk),
			"assignee":   d.SourceOrAssignee,
		})
	}
	return out
}
