package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every application metric. All methods are safe on a nil
// receiver, so components can run without metrics wired.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Similarity engine and collaborators
	RankDuration         HistogramVec
	RankCandidates       HistogramVec
	CandidatesDropped    CounterVec
	CollaboratorRetries  CounterVec
	CollaboratorFailures CounterVec
	SourceSearchDuration HistogramVec

	// Analysis jobs
	AnalysisJobsTotal     CounterVec
	AnalysisJobDuration   HistogramVec
	AnalysisQueueDepth    GaugeVec
	AnalysisActiveWorkers GaugeVec

	// Alerts
	AlertEvaluationsTotal   CounterVec
	AlertEvaluationDuration HistogramVec
	AlertNotificationsTotal CounterVec

	// Infrastructure
	EventsPublishedTotal CounterVec
	CacheRequestsTotal   CounterVec
	ErrorsTotal          CounterVec
}

var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultJobDurationBuckets  = []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	DefaultCandidateBuckets    = []float64{0, 5, 10, 25, 50, 100, 250, 500}
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(c MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = c.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "route", "status_code")
	m.HTTPRequestDuration = c.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "route")

	m.RankDuration = c.RegisterHistogram("engine_rank_duration_seconds", "Similarity ranking duration", DefaultHTTPDurationBuckets)
	m.RankCandidates = c.RegisterHistogram("engine_rank_candidates", "Candidates per ranking call", DefaultCandidateBuckets)
	m.CandidatesDropped = c.RegisterCounter("engine_candidates_dropped_total", "Candidates dropped during ranking", "reason")
	m.CollaboratorRetries = c.RegisterCounter("collaborator_retries_total", "Retries of external collaborator calls", "collaborator")
	m.CollaboratorFailures = c.RegisterCounter("collaborator_failures_total", "External collaborator calls that exhausted retries", "collaborator")
	m.SourceSearchDuration = c.RegisterHistogram("source_search_duration_seconds", "Candidate source search duration", DefaultHTTPDurationBuckets, "source")

	m.AnalysisJobsTotal = c.RegisterCounter("analysis_jobs_total", "Analysis jobs by terminal status", "status")
	m.AnalysisJobDuration = c.RegisterHistogram("analysis_job_duration_seconds", "Analysis job processing duration", DefaultJobDurationBuckets)
	m.AnalysisQueueDepth = c.RegisterGauge("analysis_queue_depth", "Jobs waiting in the local dispatcher queue")
	m.AnalysisActiveWorkers = c.RegisterGauge("analysis_active_workers", "Jobs currently processing")

	m.AlertEvaluationsTotal = c.RegisterCounter("alert_evaluations_total", "Alert evaluations by outcome", "outcome")
	m.AlertEvaluationDuration = c.RegisterHistogram("alert_evaluation_pass_duration_seconds", "Duration of a full due-alert pass", DefaultJobDurationBuckets)
	m.AlertNotificationsTotal = c.RegisterCounter("alert_notifications_total", "Notifications created")

	m.EventsPublishedTotal = c.RegisterCounter("events_published_total", "Events published to the bus", "topic", "status")
	m.CacheRequestsTotal = c.RegisterCounter("cache_requests_total", "Cache lookups", "cache", "result")
	m.ErrorsTotal = c.RegisterCounter("errors_total", "Errors by component", "component", "error_type")

	return m
}

func (m *AppMetrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *AppMetrics) RecordRank(candidates int, d time.Duration) {
	if m == nil {
		return
	}
	m.RankCandidates.WithLabelValues().Observe(float64(candidates))
	m.RankDuration.WithLabelValues().Observe(d.Seconds())
}

func (m *AppMetrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.CandidatesDropped.WithLabelValues(reason).Inc()
}

func (m *AppMetrics) RecordRetry(collaborator string) {
	if m == nil {
		return
	}
	m.CollaboratorRetries.WithLabelValues(collaborator).Inc()
}

func (m *AppMetrics) RecordCollaboratorFailure(collaborator string) {
	if m == nil {
		return
	}
	m.CollaboratorFailures.WithLabelValues(collaborator).Inc()
}

func (m *AppMetrics) RecordSourceSearch(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceSearchDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *AppMetrics) RecordJob(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisJobsTotal.WithLabelValues(status).Inc()
	m.AnalysisJobDuration.WithLabelValues().Observe(d.Seconds())
}

func (m *AppMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.AnalysisQueueDepth.WithLabelValues().Set(float64(n))
}

func (m *AppMetrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.AnalysisActiveWorkers.WithLabelValues().Inc()
}

func (m *AppMetrics) WorkerFinished() {
	if m == nil {
		return
	}
	m.AnalysisActiveWorkers.WithLabelValues().Dec()
}

// RecordAlertPass records the outcome counts of one EvaluateDueAlerts pass.
func (m *AppMetrics) RecordAlertPass(evaluated, conflicts, failed, notified int, d time.Duration) {
	if m == nil {
		return
	}
	m.AlertEvaluationsTotal.WithLabelValues("evaluated").Add(float64(evaluated))
	m.AlertEvaluationsTotal.WithLabelValues("conflict").Add(float64(conflicts))
	m.AlertEvaluationsTotal.WithLabelValues("failed").Add(float64(failed))
	m.AlertNotificationsTotal.WithLabelValues().Add(float64(notified))
	m.AlertEvaluationDuration.WithLabelValues().Observe(d.Seconds())
}

func (m *AppMetrics) RecordPublish(topic string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.EventsPublishedTotal.WithLabelValues(topic, status).Inc()
}

func (m *AppMetrics) RecordCacheAccess(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequestsTotal.WithLabelValues(cache, result).Inc()
}

func (m *AppMetrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
