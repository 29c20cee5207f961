package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/PriorArt-Intelligence/internal/application/similarity"
	domainAlert "github.com/turtacn/PriorArt-Intelligence/internal/domain/alert"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	kafkainfra "github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// EventPublisher publishes an event payload on topic, keyed by key.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key, eventType string, payload interface{}) error
}

// Cleaner removes expired state on the scheduler's cleanup cron.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// SchedulerConfig tunes evaluation passes.
type SchedulerConfig struct {
	Schedule        string
	CleanupSchedule string
	BatchSize       int
	// MaxResults caps the new notifications per alert per pass. Unseen
	// matches beyond it are picked up on later passes.
	MaxResults int
	LockTTL         time.Duration
	// OutboxLimit caps the notifications published per alert per pass.
	OutboxLimit int
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Schedule == "" {
		c.Schedule = "@every 5m"
	}
	if c.CleanupSchedule == "" {
		c.CleanupSchedule = "@every 1h"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.MaxResults <= 0 {
		c.MaxResults = domainAlert.MaxMatchesPerEvaluation
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.OutboxLimit <= 0 {
		c.OutboxLimit = 100
	}
	return c
}

// EvaluationReport summarizes one EvaluateDueAlerts pass.
type EvaluationReport struct {
	Due       int           `json:"due"`
	Evaluated int           `json:"evaluated"`
	Notified  int           `json:"notified"`
	Published int           `json:"published"`
	Conflicts int           `json:"conflicts"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

type outcome int

const (
	outcomeEvaluated outcome = iota
	outcomeConflict
	outcomeFailed
)

type SchedulerOption func(*Scheduler)

func WithPublisher(p EventPublisher) SchedulerOption { return func(s *Scheduler) { s.publisher = p } }

func WithCleaner(c Cleaner) SchedulerOption { return func(s *Scheduler) { s.cleaner = c } }

func WithMetrics(m *prometheus.AppMetrics) SchedulerOption { return func(s *Scheduler) { s.metrics = m } }

func WithClock(now func() time.Time) SchedulerOption { return func(s *Scheduler) { s.now = now } }

// Scheduler re-evaluates due alerts against fresh prior art and records a
// notification for every match the alert has not seen before.
type Scheduler struct {
	alerts        domainAlert.Repository
	notifications domainAlert.NotificationRepository
	source        priorart.CandidateSource
	ranker        similarity.Ranker
	locker        Locker
	config        SchedulerConfig
	logger        logging.Logger

	publisher EventPublisher
	cleaner   Cleaner
	metrics   *prometheus.AppMetrics
	now       func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewScheduler builds a scheduler. A nil locker falls back to a LocalLocker.
func NewScheduler(
	alerts domainAlert.Repository,
	notifications domainAlert.NotificationRepository,
	source priorart.CandidateSource,
	ranker similarity.Ranker,
	locker Locker,
	cfg SchedulerConfig,
	logger logging.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	s := &Scheduler{
		alerts:        alerts,
		notifications: notifications,
		source:        source,
		ranker:        ranker,
		locker:        locker,
		config:        cfg.withDefaults(),
		logger:        logger.Named("scheduler"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EvaluateDueAlerts runs one pass over every due alert, a batch at a time.
// A failing alert is counted and never aborts the others. The error is
// non-nil only when the due list cannot be loaded or ctx ends between
// batches.
func (s *Scheduler) EvaluateDueAlerts(ctx context.Context) (EvaluationReport, error) {
	start := s.now()
	var report EvaluationReport

	due, err := s.alerts.ListDue(ctx, start)
	if err != nil {
		return report, err
	}
	report.Due = len(due)

	var mu sync.Mutex
	for i := 0; i < len(due); i += s.config.BatchSize {
		if err := ctx.Err(); err != nil {
			report.Duration = s.now().Sub(start)
			return report, err
		}
		batch := due[i:min(i+s.config.BatchSize, len(due))]

		var g errgroup.Group
		for _, a := range batch {
			g.Go(func() error {
				res, notified, published := s.evaluate(ctx, a)
				mu.Lock()
				defer mu.Unlock()
				switch res {
				case outcomeEvaluated:
					report.Evaluated++
				case outcomeConflict:
					report.Conflicts++
				default:
					report.Failed++
				}
				report.Notified += notified
				report.Published += published
				return nil
			})
		}
		_ = g.Wait()
	}

	report.Duration = s.now().Sub(start)
	s.metrics.RecordAlertPass(report.Evaluated, report.Conflicts, report.Failed, report.Notified, report.Duration)
	if report.Due > 0 {
		s.logger.Info("alert pass finished",
			logging.Int("due", report.Due),
			logging.Int("evaluated", report.Evaluated),
			logging.Int("notified", report.Notified),
			logging.Int("conflicts", report.Conflicts),
			logging.Int("failed", report.Failed),
			logging.Duration("duration", report.Duration))
	}
	return report, nil
}

// evaluate runs one alert: search and rank without any lock held, then
// record the outcome under the per-alert lock, then flush the outbox.
func (s *Scheduler) evaluate(ctx context.Context, a *domainAlert.Alert) (outcome, int, int) {
	log := s.logger.With(logging.String("alert_id", a.ID))
	now := s.now()
	snapshot := a.LastEvaluatedAt

	matches, err := s.match(ctx, a, now)
	if err != nil {
		log.Warn("alert evaluation failed", logging.Err(err))
		s.metrics.RecordError("alerting", string(errors.GetCode(err)))
		return outcomeFailed, 0, 0
	}

	lockKey := "alert:" + a.ID
	token, ok, err := s.locker.TryLock(ctx, lockKey, s.config.LockTTL)
	if err != nil {
		log.Warn("alert lock unavailable", logging.Err(err))
		return outcomeFailed, 0, 0
	}
	if !ok {
		log.Info("alert locked by another evaluator")
		return outcomeConflict, 0, 0
	}

	created, res := s.record(ctx, a, snapshot, matches, token, now, log)

	if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
		log.Debug("alert lock release failed", logging.Err(err))
	}
	if res != outcomeEvaluated {
		return res, 0, 0
	}
	if len(created) > 0 {
		log.Info("alert notifications created", logging.Int("count", len(created)))
	}
	return res, len(created), s.flushOutbox(ctx, a.ID, log)
}

// match returns every ranked match above the alert's threshold that is
// inside its lookback window and of an allowed type. The per-pass cap is
// applied in record, after seen documents are removed.
func (s *Scheduler) match(ctx context.Context, a *domainAlert.Alert, now time.Time) ([]priorart.ScoredDocument, error) {
	docs, err := s.source.SearchCandidates(ctx, a.Profile, a.Sources, a.LookbackDays)
	if err != nil {
		return nil, err
	}
	docs = priorart.FilterTypes(docs, a.Sources)
	docs = priorart.FilterSince(docs, priorart.LookbackCutoff(now, a.LookbackDays))
	if len(docs) == 0 {
		return nil, nil
	}
	return s.ranker.Rank(ctx, a.Profile, docs, similarity.WithMinScore(a.SimilarityThreshold))
}

func (s *Scheduler) record(
	ctx context.Context,
	a *domainAlert.Alert,
	snapshot *time.Time,
	matches []priorart.ScoredDocument,
	token string,
	now time.Time,
	log logging.Logger,
) ([]*domainAlert.Notification, outcome) {
	seen, err := s.alerts.SeenKeys(ctx, a.ID)
	if err != nil {
		log.Warn("failed to load seen set", logging.Err(err))
		return nil, outcomeFailed
	}

	var candidates []*domainAlert.Notification
	for _, m := range matches {
		if len(candidates) >= s.config.MaxResults {
			break
		}
		key := m.Document.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, domainAlert.NewNotification(a, m, now))
	}

	// The lease may have lapsed while the seen set was read.
	held, err := s.locker.Refresh(ctx, "alert:"+a.ID, token, s.config.LockTTL)
	if err != nil {
		log.Warn("alert lock refresh failed", logging.Err(err))
		return nil, outcomeFailed
	}
	if !held {
		log.Info("alert lock lost before write")
		return nil, outcomeConflict
	}

	created, err := s.alerts.RecordEvaluation(ctx, domainAlert.Evaluation{
		AlertID:             a.ID,
		PreviousEvaluatedAt: snapshot,
		EvaluatedAt:         now,
		Candidates:          candidates,
	})
	switch {
	case errors.IsConflict(err):
		log.Info("alert evaluated concurrently", logging.Err(err))
		return nil, outcomeConflict
	case err != nil:
		log.Warn("failed to record alert evaluation", logging.Err(err))
		return nil, outcomeFailed
	}
	return created, outcomeEvaluated
}

// flushOutbox publishes every undelivered notification of alertID, oldest
// first, and marks the delivered ones. Undelivered rows are retried on the
// alert's next pass.
func (s *Scheduler) flushOutbox(ctx context.Context, alertID string, log logging.Logger) int {
	if s.publisher == nil {
		return 0
	}
	pending, err := s.notifications.ListUnpublished(ctx, alertID, s.config.OutboxLimit)
	if err != nil {
		log.Warn("failed to load notification outbox", logging.Err(err))
		return 0
	}

	delivered := make([]string, 0, len(pending))
	for _, n := range pending {
		payload := kafkainfra.NotificationPayload{
			NotificationID:     n.ID,
			AlertID:            n.AlertID,
			OwnerID:            n.OwnerID,
			DocumentType:       string(n.DocumentType),
			DocumentIdentifier: n.DocumentIdentifier,
			DocumentTitle:      n.DocumentTitle,
			SimilarityScore:    n.SimilarityScore,
			Reason:             n.Reason,
			CreatedAt:          n.CreatedAt,
		}
		if err := s.publisher.Publish(ctx, kafkainfra.TopicAlertNotification, n.AlertID, kafkainfra.EventAlertNotification, payload); err != nil {
			log.Warn("notification publish failed", logging.String("notification_id", n.ID), logging.Err(err))
			break
		}
		delivered = append(delivered, n.ID)
	}
	if len(delivered) == 0 {
		return 0
	}
	if err := s.notifications.MarkPublished(ctx, delivered, s.now()); err != nil {
		log.Warn("failed to mark notifications published", logging.Err(err))
		return 0
	}
	return len(delivered)
}

// Start schedules alert passes and, when a Cleaner is set, expired-job
// cleanup. Overlapping runs of the same job are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New(errors.ErrCodeConflict, "scheduler already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))
	if _, err := c.AddFunc(s.config.Schedule, func() {
		if _, err := s.EvaluateDueAlerts(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("alert pass failed", logging.Err(err))
		}
	}); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid alerting schedule").WithDetail(s.config.Schedule)
	}
	if s.cleaner != nil {
		if _, err := c.AddFunc(s.config.CleanupSchedule, func() {
			if _, err := s.cleaner.CleanupExpired(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("expired job cleanup failed", logging.Err(err))
			}
		}); err != nil {
			return errors.Wrap(err, errors.ErrCodeValidation, "invalid cleanup schedule").WithDetail(s.config.CleanupSchedule)
		}
	}
	c.Start()
	s.cron = c
	s.logger.Info("alert scheduler started",
		logging.String("schedule", s.config.Schedule),
		logging.Int("batch_size", s.config.BatchSize))
	return nil
}

// Stop halts scheduling and waits for a running pass until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	l logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, logging.Any("cron", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, logging.Err(err), logging.Any("cron", keysAndValues))
}
