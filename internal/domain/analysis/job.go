// Package analysis models one-shot analysis jobs: the pending → processing →
// completed | failed state machine, the composite result a completed job
// carries and the persistence contract for both.
package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// Status of an analysis job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// allowed lists the legal transitions.
var allowed = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from → to is legal.
func CanTransition(from, to Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is an asynchronous analysis of one research profile.
type Job struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"owner_id"`
	Profile     priorart.Profile `json:"profile"`
	Status      Status           `json:"status"`
	Cause       string           `json:"cause,omitempty"`
	Result      *Result          `json:"result,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// NewJob validates profile and returns a pending job holding its own copy.
func NewJob(ownerID string, profile priorart.Profile, now time.Time) (*Job, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Job{
		ID:        uuid.NewString(),
		OwnerID:   strings.TrimSpace(ownerID),
		Profile:   profile.Clone(),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (j *Job) transition(to Status, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return errors.New(errors.ErrCodeJobInvalidTransition, "invalid analysis job transition").
			WithDetail(fmt.Sprintf("job=%s %s -> %s", j.ID, j.Status, to))
	}
	j.Status = to
	j.UpdatedAt = now.UTC()
	return nil
}

// Start moves a pending job to processing.
func (j *Job) Start(now time.Time) error {
	if err := j.transition(StatusProcessing, now); err != nil {
		return err
	}
	t := now.UTC()
	j.StartedAt = &t
	return nil
}

// Complete attaches result and moves a processing job to completed.
func (j *Job) Complete(result *Result, now time.Time) error {
	if result == nil {
		return errors.New(errors.ErrCodeInternal, "completed job requires a result").WithDetail(j.ID)
	}
	if err := j.transition(StatusCompleted, now); err != nil {
		return err
	}
	t := now.UTC()
	j.CompletedAt = &t
	j.Result = result
	return nil
}

// Fail records cause and moves the job to failed. An empty cause is replaced,
// so a failed job always explains itself.
func (j *Job) Fail(cause string, now time.Time) error {
	if err := j.transition(StatusFailed, now); err != nil {
		return err
	}
	if strings.TrimSpace(cause) == "" {
		cause = "analysis failed"
	}
	t := now.UTC()
	j.CompletedAt = &t
	j.Cause = cause
	j.Result = nil
	return nil
}

// ExpiredBy reports whether a terminal job finished before cutoff.
func (j *Job) ExpiredBy(cutoff time.Time) bool {
	return j.Status.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff)
}
