package client

import (
	"context"
	"net/url"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

const (
	// DefaultWaitTimeout is how long Wait polls before giving up. The job keeps
	// running on the server.
	DefaultWaitTimeout = 30 * time.Second

	defaultPollInterval = 500 * time.Millisecond
	maxPollInterval     = 5 * time.Second
)

type AnalysesClient struct {
	client *Client
}

// Submit queues an analysis and returns its job id.
func (a *AnalysesClient) Submit(ctx context.Context, profile ProfileRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := a.client.post(ctx, "/api/v1/analyses", profile, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *AnalysesClient) Get(ctx context.Context, jobID string) (*AnalysisStatus, error) {
	if jobID == "" {
		return nil, invalidConfig("job_id", "is required")
	}
	var view AnalysisStatus
	if err := a.client.get(ctx, "/api/v1/analyses/"+url.PathEscape(jobID), &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Wait polls until the job is terminal or the caller-side timeout elapses.
// On timeout it returns the last status seen together with a COMMON_009 error;
// the server-side job is not cancelled.
func (a *AnalysesClient) Wait(ctx context.Context, jobID string) (*AnalysisStatus, error) {
	waitCtx, cancel := context.WithTimeout(ctx, a.client.waitTimeout)
	defer cancel()

	interval := defaultPollInterval
	var last *AnalysisStatus
	for {
		view, err := a.Get(waitCtx, jobID)
		switch {
		case err == nil:
			last = view
			if view.Status.IsTerminal() {
				return view, nil
			}
		case waitCtx.Err() == nil:
			return last, err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, errors.Wrap(waitCtx.Err(), errors.ErrCodeTimeout, "timed out waiting for analysis").
				WithDetail("job " + jobID + " is still running on the server")
		case <-time.After(interval):
		}
		interval = min(interval*2, maxPollInterval)
	}
}

// Run submits profile and waits for the outcome.
func (a *AnalysesClient) Run(ctx context.Context, profile ProfileRequest) (*AnalysisStatus, error) {
	sub, err := a.Submit(ctx, profile)
	if err != nil {
		return nil, err
	}
	return a.Wait(ctx, sub.JobID)
}
