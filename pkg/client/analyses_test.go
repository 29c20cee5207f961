package client

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

func TestAnalyses_SubmitSendsProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/analyses", r.URL.Path)
		body := readBody(t, r)
		assert.Equal(t, "Solid-state electrolyte", body["title"])
		assert.Equal(t, []interface{}{"sulfide"}, body["keywords"])
		writeJSON(w, http.StatusAccepted, SubmitResponse{JobID: "job-1", Status: StatusPending})
	})

	resp, err := c.Analyses().Submit(context.Background(), ProfileRequest{
		Title: "Solid-state electrolyte", Abstract: "A sulfide electrolyte.", Keywords: []string{"sulfide"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Status)
}

func TestAnalyses_GetRequiresID(t *testing.T) {
	c, err := NewClient("http://localhost")
	require.NoError(t, err)
	_, err = c.Analyses().Get(context.Background(), "")
	assert.True(t, errors.IsValidation(err))
}

func TestAnalyses_WaitUntilCompleted(t *testing.T) {
	var polls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analyses/job-1", r.URL.Path)
		view := AnalysisStatus{JobID: "job-1", Status: StatusProcessing}
		if atomic.AddInt32(&polls, 1) >= 2 {
			view.Status = StatusCompleted
			view.Result = &AnalysisResult{JobID: "job-1"}
		}
		writeJSON(w, http.StatusOK, view)
	})

	view, err := c.Analyses().Wait(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, view.Status)
	require.NotNil(t, view.Result)
	assert.Equal(t, "job-1", view.Result.JobID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&polls))
}

func TestAnalyses_WaitReturnsFailedJob(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, AnalysisStatus{JobID: "job-2", Status: StatusFailed, Cause: "no candidate documents found"})
	})

	view, err := c.Analyses().Wait(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, view.Status)
	assert.Equal(t, "no candidate documents found", view.Cause)
	assert.Nil(t, view.Result)
}

func TestAnalyses_WaitTimesOut(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, AnalysisStatus{JobID: "job-3", Status: StatusProcessing})
	}, WithWaitTimeout(100*time.Millisecond))

	start := time.Now()
	view, err := c.Analyses().Wait(context.Background(), "job-3")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout))
	require.NotNil(t, view)
	assert.Equal(t, StatusProcessing, view.Status)
}

func TestAnalyses_WaitParentCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, AnalysisStatus{JobID: "job-4", Status: StatusPending})
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err := c.Analyses().Wait(ctx, "job-4")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyses_WaitNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "JOB_001", "message": "analysis job not found"})
	})

	_, err := c.Analyses().Wait(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
}

func TestAnalyses_Run(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusAccepted, SubmitResponse{JobID: "job-5", Status: StatusPending})
			return
		}
		writeJSON(w, http.StatusOK, AnalysisStatus{JobID: "job-5", Status: StatusCompleted, Result: &AnalysisResult{JobID: "job-5"}})
	})

	view, err := c.Analyses().Run(context.Background(), ProfileRequest{Title: "t", Abstract: "a"})
	require.NoError(t, err)
	assert.Equal(t, "job-5", view.JobID)
}
