package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAppMetrics(t *testing.T) (*AppMetrics, MetricsCollector) {
	t.Helper()
	c := newTestCollector(t)
	return NewAppMetrics(c), c
}

func TestNewAppMetrics_AllFieldsSet(t *testing.T) {
	m, _ := newTestAppMetrics(t)
	require.NotNil(t, m)
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.RankDuration)
	assert.NotNil(t, m.CandidatesDropped)
	assert.NotNil(t, m.AnalysisQueueDepth)
	assert.NotNil(t, m.AlertEvaluationsTotal)
	assert.NotNil(t, m.EventsPublishedTotal)
	assert.NotNil(t, m.CacheRequestsTotal)
}

func TestRecordHTTPRequest(t *testing.T) {
	m, c := newTestAppMetrics(t)
	m.RecordHTTPRequest("POST", "/api/v1/analyses", 202, 30*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_http_requests_total{method="POST",route="/api/v1/analyses",status_code="202"} 1`)
	assert.Contains(t, out, `test_unit_http_request_duration_seconds_count{method="POST",route="/api/v1/analyses"} 1`)
}

func TestRecordEngineMetrics(t *testing.T) {
	m, c := newTestAppMetrics(t)
	m.RecordRank(12, 40*time.Millisecond)
	m.RecordDropped("embedding_failed")
	m.RecordDropped("embedding_failed")
	m.RecordRetry("embedder")
	m.RecordCollaboratorFailure("opensearch")
	m.RecordSourceSearch("milvus", time.Second)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, "test_unit_engine_rank_candidates_sum 12")
	assert.Contains(t, out, `test_unit_engine_candidates_dropped_total{reason="embedding_failed"} 2`)
	assert.Contains(t, out, `test_unit_collaborator_retries_total{collaborator="embedder"} 1`)
	assert.Contains(t, out, `test_unit_collaborator_failures_total{collaborator="opensearch"} 1`)
	assert.Contains(t, out, `test_unit_source_search_duration_seconds_count{source="milvus"} 1`)
}

func TestRecordJobAndWorkers(t *testing.T) {
	m, c := newTestAppMetrics(t)
	m.RecordJob("completed", 2*time.Second)
	m.SetQueueDepth(3)
	m.WorkerStarted()
	m.WorkerStarted()
	m.WorkerFinished()

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_analysis_jobs_total{status="completed"} 1`)
	assert.Contains(t, out, "test_unit_analysis_queue_depth 3")
	assert.Contains(t, out, "test_unit_analysis_active_workers 1")
}

func TestRecordAlertPass(t *testing.T) {
	m, c := newTestAppMetrics(t)
	m.RecordAlertPass(4, 1, 2, 7, time.Second)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_alert_evaluations_total{outcome="evaluated"} 4`)
	assert.Contains(t, out, `test_unit_alert_evaluations_total{outcome="conflict"} 1`)
	assert.Contains(t, out, `test_unit_alert_evaluations_total{outcome="failed"} 2`)
	assert.Contains(t, out, "test_unit_alert_notifications_total 7")
}

func TestRecordPublishCacheAndErrors(t *testing.T) {
	m, c := newTestAppMetrics(t)
	m.RecordPublish("alert.notification", nil)
	m.RecordPublish("alert.notification", errors.New("broker down"))
	m.RecordCacheAccess("job_status", true)
	m.RecordCacheAccess("job_status", false)
	m.RecordError("scheduler", "search_unavailable")

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_events_published_total{status="success",topic="alert.notification"} 1`)
	assert.Contains(t, out, `test_unit_events_published_total{status="failure",topic="alert.notification"} 1`)
	assert.Contains(t, out, `test_unit_cache_requests_total{cache="job_status",result="hit"} 1`)
	assert.Contains(t, out, `test_unit_cache_requests_total{cache="job_status",result="miss"} 1`)
	assert.Contains(t, out, `test_unit_errors_total{component="scheduler",error_type="search_unavailable"} 1`)
}

func TestAppMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *AppMetrics
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
		m.RecordRank(1, time.Millisecond)
		m.RecordDropped("x")
		m.RecordRetry("x")
		m.RecordCollaboratorFailure("x")
		m.RecordSourceSearch("x", time.Millisecond)
		m.RecordJob("failed", time.Millisecond)
		m.SetQueueDepth(1)
		m.WorkerStarted()
		m.WorkerFinished()
		m.RecordAlertPass(1, 1, 1, 1, time.Millisecond)
		m.RecordPublish("t", nil)
		m.RecordCacheAccess("c", true)
		m.RecordError("c", "e")
	})
}
