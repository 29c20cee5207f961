package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/PriorArt-Intelligence/internal/application/alerting"
	domainAlert "github.com/turtacn/PriorArt-Intelligence/internal/domain/alert"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// Evaluator runs one pass over due alerts.
type Evaluator interface {
	EvaluateDueAlerts(ctx context.Context) (alerting.EvaluationReport, error)
}

// AlertHandler serves /api/v1/alerts and /api/v1/notifications.
type AlertHandler struct {
	svc       alerting.Service
	evaluator Evaluator
	logger    logging.Logger
}

// NewAlertHandler wires the handler. A nil evaluator disables the operator
// trigger, which then answers 503.
func NewAlertHandler(svc alerting.Service, evaluator Evaluator, logger logging.Logger) *AlertHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AlertHandler{svc: svc, evaluator: evaluator, logger: logger}
}

type CreateAlertRequest struct {
	ProfileRequest
	Sources             []string `json:"sources,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	LookbackDays        int      `json:"lookback_days,omitempty"`
	Frequency           string   `json:"frequency,omitempty"`
}

type UpdateAlertRequest struct {
	Title               *string   `json:"title,omitempty"`
	Abstract            *string   `json:"abstract,omitempty"`
	Keywords            *[]string `json:"keywords,omitempty"`
	Sources             *[]string `json:"sources,omitempty"`
	SimilarityThreshold *float64  `json:"similarity_threshold,omitempty"`
	LookbackDays        *int      `json:"lookback_days,omitempty"`
	Frequency           *string   `json:"frequency,omitempty"`
}

// AlertResponse adds the derived next evaluation time. It is omitted for
// alerts never evaluated, which are due immediately.
type AlertResponse struct {
	*domainAlert.Alert
	NextEvaluationAt *time.Time `json:"next_evaluation_at,omitempty"`
}

func alertResponse(a *domainAlert.Alert) AlertResponse {
	resp := AlertResponse{Alert: a}
	if next := a.NextEvaluationAt(); !next.IsZero() {
		resp.NextEvaluationAt = &next
	}
	return resp
}

type ListAlertsResponse struct {
	Alerts []AlertResponse `json:"alerts"`
	Total  int             `json:"total"`
}

type ListNotificationsResponse struct {
	Notifications []*domainAlert.Notification `json:"notifications"`
	Total         int                         `json:"total"`
}

// Create handles POST /api/v1/alerts.
func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwner(r)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	var req CreateAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	sources, err := priorart.ParseDocumentTypes(req.Sources)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	profile, err := req.profile()
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	a, err := h.svc.CreateAlert(r.Context(), owner, domainAlert.CreateInput{
		Profile:             profile,
		Sources:             sources,
		SimilarityThreshold: req.SimilarityThreshold,
		LookbackDays:        req.LookbackDays,
		Frequency:           domainAlert.Frequency(req.Frequency),
	})
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/v1/alerts/"+a.ID)
	writeJSON(w, http.StatusCreated, alertResponse(a))
}

// List handles GET /api/v1/alerts for the calling owner.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwner(r)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	alerts, err := h.svc.ListAlerts(r.Context(), owner)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	resp := ListAlertsResponse{Alerts: make([]AlertResponse, 0, len(alerts)), Total: len(alerts)}
	for _, a := range alerts {
		resp.Alerts = append(resp.Alerts, alertResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, alertResponse(a))
}

// Update handles PATCH /api/v1/alerts/{id}. Absent fields are unchanged.
func (h *AlertHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	patch := domainAlert.Patch{
		Title:               req.Title,
		Abstract:            req.Abstract,
		Keywords:            req.Keywords,
		SimilarityThreshold: req.SimilarityThreshold,
		LookbackDays:        req.LookbackDays,
	}
	if req.Sources != nil {
		sources, err := priorart.ParseDocumentTypes(*req.Sources)
		if err != nil {
			writeAppError(w, h.logger, err)
			return
		}
		patch.Sources = &sources
	}
	if req.Frequency != nil {
		f := domainAlert.Frequency(*req.Frequency)
		patch.Frequency = &f
	}

	a, err := h.svc.UpdateAlert(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, alertResponse(a))
}

func (h *AlertHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAlert(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AlertHandler) Pause(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.PauseAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, alertResponse(a))
}

func (h *AlertHandler) Resume(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.ResumeAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, alertResponse(a))
}

// AlertNotifications handles GET /api/v1/alerts/{id}/notifications?limit=N.
func (h *AlertHandler) AlertNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	items, err := h.svc.ListNotifications(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationsResponse(items))
}

// OwnerNotifications handles GET /api/v1/notifications?unread=true&limit=N.
func (h *AlertHandler) OwnerNotifications(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwner(r)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	unread, err := queryBool(r, "unread")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	items, err := h.svc.ListOwnerNotifications(r.Context(), owner, unread, limit)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationsResponse(items))
}

func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkNotificationRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Evaluate handles POST /api/v1/alerts/evaluate, running one pass inline.
func (h *AlertHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	if h.evaluator == nil {
		writeAppError(w, h.logger, errors.New(errors.ErrCodeServiceUnavailable, "alert scheduler not enabled"))
		return
	}
	report, err := h.evaluator.EvaluateDueAlerts(r.Context())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func notificationsResponse(items []*domainAlert.Notification) ListNotificationsResponse {
	if items == nil {
		items = []*domainAlert.Notification{}
	}
	return ListNotificationsResponse{Notifications: items, Total: len(items)}
}
