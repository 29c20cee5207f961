// Package analysis coordinates one-shot technology analyses: it accepts a
// research profile, dispatches the job, runs search → rank → score on a
// worker and exposes the job's status until it expires.
package analysis

import (
	"context"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/application/similarity"
	domainAnalysis "github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	kafkainfra "github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// Scorer turns ranked prior art into a composite result.
type Scorer interface {
	Score(jobID string, profile priorart.Profile, ranked []priorart.ScoredDocument) *domainAnalysis.Result
}

// StatusCache caches StatusViews. Any Get error is treated as a miss.
type StatusCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ResultArchive stores completed results outside the job table.
type ResultArchive interface {
	Archive(ctx context.Context, ownerID string, result *domainAnalysis.Result) error
}

// LandscapeProjector writes the competitive landscape of a completed job to
// the graph store.
type LandscapeProjector interface {
	Project(ctx context.Context, job *domainAnalysis.Job) error
}

// EventPublisher publishes an event payload on topic, keyed by key.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key, eventType string, payload interface{}) error
}

// Dispatcher hands a pending job to whatever will call Process for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *domainAnalysis.Job) error
}

// Config tunes the coordinator.
type Config struct {
	JobTTL           time.Duration
	CandidateLimit   int
	LookbackDays     int
	StatusCacheTTL   time.Duration
	TerminalCacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.JobTTL <= 0 {
		c.JobTTL = 24 * time.Hour
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 100
	}
	if c.StatusCacheTTL <= 0 {
		c.StatusCacheTTL = 5 * time.Second
	}
	if c.TerminalCacheTTL <= 0 {
		c.TerminalCacheTTL = 10 * time.Minute
	}
	return c
}

// StatusView is what a poller sees. Result is set only for completed jobs.
type StatusView struct {
	JobID       string                 `json:"job_id"`
	Status      domainAnalysis.Status  `json:"status"`
	Cause       string                 `json:"cause,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Result      *domainAnalysis.Result `json:"result,omitempty"`
}

func viewOf(j *domainAnalysis.Job) StatusView {
	v := StatusView{
		JobID:       j.ID,
		Status:      j.Status,
		Cause:       j.Cause,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.Status == domainAnalysis.StatusCompleted {
		v.Result = j.Result
	}
	return v
}

// Option configures optional collaborators. All of them are best-effort.
type Option func(*Coordinator)

func WithStatusCache(c StatusCache) Option { return func(co *Coordinator) { co.cache = c } }

func WithArchive(a ResultArchive) Option { return func(co *Coordinator) { co.archive = a } }

func WithProjector(p LandscapeProjector) Option { return func(co *Coordinator) { co.projector = p } }

func WithPublisher(p EventPublisher) Option { return func(co *Coordinator) { co.publisher = p } }

func WithMetrics(m *prometheus.AppMetrics) Option { return func(co *Coordinator) { co.metrics = m } }

func WithClock(now func() time.Time) Option { return func(co *Coordinator) { co.now = now } }

// WithDispatcher sets the dispatcher at construction. Dispatchers that need
// the coordinator itself are attached with SetDispatcher instead.
func WithDispatcher(d Dispatcher) Option { return func(co *Coordinator) { co.dispatcher = d } }

// Coordinator drives analysis jobs through their state machine.
type Coordinator struct {
	repo       domainAnalysis.Repository
	source     priorart.CandidateSource
	ranker     similarity.Ranker
	scorer     Scorer
	config     Config
	logger     logging.Logger
	dispatcher Dispatcher

	cache     StatusCache
	archive   ResultArchive
	projector LandscapeProjector
	publisher EventPublisher
	metrics   *prometheus.AppMetrics
	now       func() time.Time
}

func NewCoordinator(
	repo domainAnalysis.Repository,
	source priorart.CandidateSource,
	ranker similarity.Ranker,
	scorer Scorer,
	cfg Config,
	logger logging.Logger,
	opts ...Option,
) *Coordinator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Coordinator{
		repo:   repo,
		source: source,
		ranker: ranker,
		scorer: scorer,
		config: cfg.withDefaults(),
		logger: logger.Named("analysis"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetDispatcher attaches d. It must be called before the first submission.
func (c *Coordinator) SetDispatcher(d Dispatcher) { c.dispatcher = d }

// SubmitAnalysis validates profile, stores a pending job and dispatches it.
// A job the dispatcher refuses is failed and the refusal returned.
func (c *Coordinator) SubmitAnalysis(ctx context.Context, ownerID string, profile priorart.Profile) (string, error) {
	if c.dispatcher == nil {
		return "", errors.New(errors.ErrCodeInternal, "analysis dispatcher not configured")
	}
	job, err := domainAnalysis.NewJob(ownerID, profile, c.now())
	if err != nil {
		return "", err
	}
	if err := c.repo.Create(ctx, job); err != nil {
		return "", err
	}
	c.cacheView(ctx, job)

	if err := c.dispatcher.Dispatch(ctx, job); err != nil {
		c.logger.Warn("dispatch refused", logging.String("job_id", job.ID), logging.Err(err))
		if failErr := job.Fail(err.Error(), c.now()); failErr == nil {
			if saveErr := c.repo.Save(context.WithoutCancel(ctx), job, domainAnalysis.StatusPending); saveErr != nil {
				c.logger.Error("failed to record refused job", logging.String("job_id", job.ID), logging.Err(saveErr))
			}
			c.cacheView(ctx, job)
		}
		return "", err
	}

	c.logger.Info("analysis submitted", logging.String("job_id", job.ID), logging.String("owner_id", job.OwnerID))
	return job.ID, nil
}

// GetAnalysisStatus returns the job's current view. It never waits for the
// job and never cancels it.
func (c *Coordinator) GetAnalysisStatus(ctx context.Context, jobID string) (StatusView, error) {
	var view StatusView
	if c.cache != nil {
		if err := c.cache.Get(ctx, cacheKey(jobID), &view); err == nil {
			return view, nil
		}
	}

	job, err := c.repo.Get(ctx, jobID)
	if err != nil {
		return StatusView{}, err
	}
	c.cacheView(ctx, job)
	return viewOf(job), nil
}

// Process runs a pending job to a terminal state. Jobs that are no longer
// pending (a redelivered request, or one another worker claimed) are skipped.
// The returned error reports only persistence failures; analysis failures are
// recorded on the job.
func (c *Coordinator) Process(ctx context.Context, jobID string) error {
	job, err := c.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domainAnalysis.StatusPending {
		c.logger.Info("skipping job that is not pending",
			logging.String("job_id", jobID), logging.String("status", string(job.Status)))
		return nil
	}

	start := c.now()
	if err := job.Start(start); err != nil {
		return err
	}
	if err := c.repo.Save(ctx, job, domainAnalysis.StatusPending); err != nil {
		if errors.IsConflict(err) {
			c.logger.Info("job claimed elsewhere", logging.String("job_id", jobID))
			return nil
		}
		return err
	}
	c.cacheView(ctx, job)
	c.metrics.WorkerStarted()
	defer c.metrics.WorkerFinished()

	result, runErr := c.run(ctx, job)

	// The terminal write must land even if ctx was cancelled mid-run.
	saveCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		if err := job.Fail(runErr.Error(), c.now()); err != nil {
			return err
		}
		c.logger.Warn("analysis failed", logging.String("job_id", job.ID), logging.Err(runErr))
	} else if err := job.Complete(result, c.now()); err != nil {
		return err
	}
	if err := c.repo.Save(saveCtx, job, domainAnalysis.StatusProcessing); err != nil {
		return err
	}
	c.cacheView(saveCtx, job)
	c.metrics.RecordJob(string(job.Status), c.now().Sub(start))

	c.afterTerminal(saveCtx, job)
	return nil
}

func (c *Coordinator) run(ctx context.Context, job *domainAnalysis.Job) (*domainAnalysis.Result, error) {
	candidates, err := c.source.SearchCandidates(ctx, job.Profile, nil, c.config.LookbackDays)
	if err != nil {
		return nil, err
	}
	ranked, err := c.ranker.Rank(ctx, job.Profile, candidates, similarity.WithLimit(c.config.CandidateLimit))
	if err != nil {
		return nil, err
	}
	return c.scorer.Score(job.ID, job.Profile, ranked), nil
}

// afterTerminal performs side effects that must never change the job's
// outcome.
func (c *Coordinator) afterTerminal(ctx context.Context, job *domainAnalysis.Job) {
	if job.Status == domainAnalysis.StatusCompleted {
		if c.archive != nil {
			if err := c.archive.Archive(ctx, job.OwnerID, job.Result); err != nil {
				c.sideEffectFailed("archive", job.ID, err)
			}
		}
		if c.projector != nil {
			if err := c.projector.Project(ctx, job); err != nil {
				c.sideEffectFailed("graph", job.ID, err)
			}
		}
	}
	if c.publisher == nil {
		return
	}
	payload := kafkainfra.AnalysisFinishedPayload{
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		Status:     string(job.Status),
		Cause:      job.Cause,
		FinishedAt: c.now().UTC(),
	}
	topic, eventType := kafkainfra.TopicAnalysisFailed, kafkainfra.EventAnalysisFailed
	if job.Result != nil {
		topic, eventType = kafkainfra.TopicAnalysisCompleted, kafkainfra.EventAnalysisCompleted
		payload.OpportunityScore = job.Result.Overall.OpportunityScore
		payload.PatentCount = len(job.Result.Patents)
		payload.PublicationCount = len(job.Result.Publications)
	}
	if err := c.publisher.Publish(ctx, topic, job.ID, eventType, payload); err != nil {
		c.sideEffectFailed("publish", job.ID, err)
	}
}

func (c *Coordinator) sideEffectFailed(kind, jobID string, err error) {
	c.logger.Warn("post-completion step failed",
		logging.String("step", kind), logging.String("job_id", jobID), logging.Err(err))
	c.metrics.RecordError("analysis", kind)
}

// CleanupExpired deletes terminal jobs older than the job TTL.
func (c *Coordinator) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.config.JobTTL)
	n, err := c.repo.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.logger.Info("expired analysis jobs removed", logging.Int64("count", n), logging.Time("cutoff", cutoff))
	}
	return n, nil
}

func (c *Coordinator) cacheView(ctx context.Context, job *domainAnalysis.Job) {
	if c.cache == nil {
		return
	}
	ttl := c.config.StatusCacheTTL
	if job.Status.IsTerminal() {
		ttl = c.config.TerminalCacheTTL
	}
	if err := c.cache.Set(ctx, cacheKey(job.ID), viewOf(job), ttl); err != nil {
		c.logger.Debug("status cache write failed", logging.String("job_id", job.ID), logging.Err(err))
		_ = c.cache.Delete(ctx, cacheKey(job.ID))
	}
}

func cacheKey(jobID string) string { return "analysis:status:" + jobID }
