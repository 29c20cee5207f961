package client

import (
	"time"

	appanalysis "github.com/turtacn/PriorArt-Intelligence/internal/application/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/alert"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
)

// Wire types shared with the server.
type (
	JobStatus      = analysis.Status
	AnalysisResult = analysis.Result
	AnalysisStatus = appanalysis.StatusView
	ScoredDocument = priorart.ScoredDocument
	Alert          = alert.Alert
	Notification   = alert.Notification
	Frequency      = alert.Frequency
)

const (
	StatusPending    = analysis.StatusPending
	StatusProcessing = analysis.StatusProcessing
	StatusCompleted  = analysis.StatusCompleted
	StatusFailed     = analysis.StatusFailed
)

type ProfileRequest struct {
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Keywords []string `json:"keywords,omitempty"`
}

type SubmitResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

type CreateAlertRequest struct {
	ProfileRequest
	Sources             []string `json:"sources,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	LookbackDays        int      `json:"lookback_days,omitempty"`
	Frequency           string   `json:"frequency,omitempty"`
}

// UpdateAlertRequest is a partial update; nil fields are left unchanged.
type UpdateAlertRequest struct {
	Title               *string   `json:"title,omitempty"`
	Abstract            *string   `json:"abstract,omitempty"`
	Keywords            *[]string `json:"keywords,omitempty"`
	Sources             *[]string `json:"sources,omitempty"`
	SimilarityThreshold *float64  `json:"similarity_threshold,omitempty"`
	LookbackDays        *int      `json:"lookback_days,omitempty"`
	Frequency           *string   `json:"frequency,omitempty"`
}

type AlertView struct {
	*Alert
	NextEvaluationAt *time.Time `json:"next_evaluation_at,omitempty"`
}

type AlertList struct {
	Alerts []AlertView `json:"alerts"`
	Total  int         `json:"total"`
}

type NotificationList struct {
	Notifications []*Notification `json:"notifications"`
	Total         int             `json:"total"`
}

type EvaluationReport struct {
	Due       int           `json:"due"`
	Evaluated int           `json:"evaluated"`
	Notified  int           `json:"notified"`
	Published int           `json:"published"`
	Conflicts int           `json:"conflicts"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}
