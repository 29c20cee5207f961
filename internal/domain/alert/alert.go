// Package alert models standing prior-art alerts: a persisted research
// profile that is periodically re-evaluated against freshly published
// documents, the notifications it emits and the persistence contract that
// keeps each (alert, document) pair notified at most once.
package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// Frequency is the evaluation cadence of an alert.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Interval returns the minimum time between two evaluations.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

func (f Frequency) IsValid() bool {
	return f == FrequencyDaily || f == FrequencyWeekly || f == FrequencyMonthly
}

// Status of an alert. Only active alerts are evaluated.
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// Defaults and bounds.
const (
	DefaultSimilarityThreshold = 0.75
	MinSimilarityThreshold     = 0.5
	MaxSimilarityThreshold     = 0.95
	DefaultLookbackDays        = 30
	DefaultFrequency           = FrequencyWeekly
	// MaxMatchesPerEvaluation caps the ranked matches considered per pass.
	MaxMatchesPerEvaluation = 20
)

// AllowedLookbackDays lists the accepted lookback windows.
var AllowedLookbackDays = []int{7, 14, 30, 60, 90}

// DefaultSources is used when an alert names no document types.
var DefaultSources = []priorart.DocumentType{priorart.DocumentTypePatent}

// Alert is the aggregate root. It owns an editable copy of its profile.
type Alert struct {
	ID                  string                  `json:"id"`
	OwnerID             string                  `json:"owner_id"`
	Profile             priorart.Profile        `json:"profile"`
	Sources             []priorart.DocumentType `json:"sources"`
	SimilarityThreshold float64                 `json:"similarity_threshold"`
	LookbackDays        int                     `json:"lookback_days"`
	Frequency           Frequency               `json:"frequency"`
	Status              Status                  `json:"status"`
	LastEvaluatedAt     *time.Time              `json:"last_evaluated_at,omitempty"`
	NotificationCount   int                     `json:"notification_count"`
	Version             int64                   `json:"version"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

// CreateInput carries user-supplied fields. Nil or zero fields take defaults.
type CreateInput struct {
	Profile             priorart.Profile
	Sources             []priorart.DocumentType
	SimilarityThreshold *float64
	LookbackDays        int
	Frequency           Frequency
}

// Patch carries optional updates. Nil fields are left unchanged.
type Patch struct {
	Title               *string
	Abstract            *string
	Keywords            *[]string
	Sources             *[]priorart.DocumentType
	SimilarityThreshold *float64
	LookbackDays        *int
	Frequency           *Frequency
}

// NewAlert applies defaults, validates every field and returns an active alert.
func NewAlert(ownerID string, in CreateInput, now time.Time) (*Alert, error) {
	a := &Alert{
		ID:                  uuid.NewString(),
		OwnerID:             strings.TrimSpace(ownerID),
		Profile:             in.Profile.Clone(),
		Sources:             append([]priorart.DocumentType(nil), in.Sources...),
		SimilarityThreshold: DefaultSimilarityThreshold,
		LookbackDays:        in.LookbackDays,
		Frequency:           in.Frequency,
		Status:              StatusActive,
		Version:             1,
		CreatedAt:           now.UTC(),
		UpdatedAt:           now.UTC(),
	}
	if in.SimilarityThreshold != nil {
		a.SimilarityThreshold = *in.SimilarityThreshold
	}
	if a.LookbackDays == 0 {
		a.LookbackDays = DefaultLookbackDays
	}
	if a.Frequency == "" {
		a.Frequency = DefaultFrequency
	}
	if len(a.Sources) == 0 {
		a.Sources = append([]priorart.DocumentType(nil), DefaultSources...)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate reports every violated constraint, profile fields included.
func (a *Alert) Validate() error {
	var v []errors.FieldViolation
	if a.OwnerID == "" {
		v = append(v, errors.FieldViolation{Field: "owner_id", Message: "is required"})
	}
	if err := a.Profile.Validate(); err != nil {
		v = append(v, errors.Violations(err)...)
	}
	if a.SimilarityThreshold < MinSimilarityThreshold || a.SimilarityThreshold > MaxSimilarityThreshold {
		v = append(v, errors.FieldViolation{
			Field:   "similarity_threshold",
			Message: fmt.Sprintf("must be between %.2f and %.2f", MinSimilarityThreshold, MaxSimilarityThreshold),
		})
	}
	if !lookbackAllowed(a.LookbackDays) {
		v = append(v, errors.FieldViolation{
			Field:   "lookback_days",
			Message: fmt.Sprintf("must be one of %v", AllowedLookbackDays),
		})
	}
	if !a.Frequency.IsValid() {
		v = append(v, errors.FieldViolation{Field: "frequency", Message: "must be daily, weekly or monthly"})
	}
	for i, s := range a.Sources {
		if !s.IsValid() {
			v = append(v, errors.FieldViolation{Field: fmt.Sprintf("sources[%d]", i), Message: "must be patent or publication"})
		}
	}
	if len(v) > 0 {
		return errors.NewValidationError("invalid alert", v)
	}
	return nil
}

func lookbackAllowed(days int) bool {
	for _, d := range AllowedLookbackDays {
		if d == days {
			return true
		}
	}
	return false
}

// ApplyPatch updates the alert in place after validating the result as a
// whole. On error the alert is left unchanged.
func (a *Alert) ApplyPatch(p Patch, now time.Time) error {
	next := *a
	next.Profile = a.Profile.Clone()
	next.Sources = append([]priorart.DocumentType(nil), a.Sources...)

	if p.Title != nil {
		next.Profile.Title = strings.TrimSpace(*p.Title)
	}
	if p.Abstract != nil {
		next.Profile.Abstract = strings.TrimSpace(*p.Abstract)
	}
	if p.Keywords != nil {
		next.Profile.Keywords = append([]string(nil), (*p.Keywords)...)
	}
	if p.Sources != nil {
		next.Sources = append([]priorart.DocumentType(nil), (*p.Sources)...)
		if len(next.Sources) == 0 {
			next.Sources = append([]priorart.DocumentType(nil), DefaultSources...)
		}
	}
	if p.SimilarityThreshold != nil {
		next.SimilarityThreshold = *p.SimilarityThreshold
	}
	if p.LookbackDays != nil {
		next.LookbackDays = *p.LookbackDays
	}
	if p.Frequency != nil {
		next.Frequency = *p.Frequency
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = now.UTC()
	*a = next
	return nil
}

// Pause stops evaluation. Pausing a paused alert is a no-op.
func (a *Alert) Pause(now time.Time) {
	if a.Status == StatusPaused {
		return
	}
	a.Status = StatusPaused
	a.UpdatedAt = now.UTC()
}

// Resume re-enables evaluation. LastEvaluatedAt is kept, so a long-paused
// alert is due on the next tick.
func (a *Alert) Resume(now time.Time) {
	if a.Status == StatusActive {
		return
	}
	a.Status = StatusActive
	a.UpdatedAt = now.UTC()
}

// NextEvaluationAt is LastEvaluatedAt plus the frequency interval, or the zero
// time for an alert never evaluated.
func (a *Alert) NextEvaluationAt() time.Time {
	if a.LastEvaluatedAt == nil {
		return time.Time{}
	}
	return a.LastEvaluatedAt.Add(a.Frequency.Interval())
}

// IsDue reports whether an active alert should be evaluated at now.
func (a *Alert) IsDue(now time.Time) bool {
	if a.Status != StatusActive {
		return false
	}
	return !a.NextEvaluationAt().After(now)
}
