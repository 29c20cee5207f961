package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	analysisapp "github.com/turtacn/PriorArt-Intelligence/internal/application/analysis"
	domainAnalysis "github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
)

// AnalysisService is the slice of the coordinator the API needs.
type AnalysisService interface {
	SubmitAnalysis(ctx context.Context, ownerID string, profile priorart.Profile) (string, error)
	GetAnalysisStatus(ctx context.Context, jobID string) (analysisapp.StatusView, error)
}

// AnalysisHandler serves /api/v1/analyses.
type AnalysisHandler struct {
	svc    AnalysisService
	logger logging.Logger
}

func NewAnalysisHandler(svc AnalysisService, logger logging.Logger) *AnalysisHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AnalysisHandler{svc: svc, logger: logger}
}

// ProfileRequest is the research profile as submitted by clients.
type ProfileRequest struct {
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Keywords []string `json:"keywords,omitempty"`
}

// profile trims and validates the request.
func (p ProfileRequest) profile() (priorart.Profile, error) {
	return priorart.NewProfile(p.Title, p.Abstract, p.Keywords)
}

type SubmitAnalysisResponse struct {
	JobID  string                `json:"job_id"`
	Status domainAnalysis.Status `json:"status"`
}

// Submit handles POST /api/v1/analyses. It answers 202 as soon as the job is
// queued; clients poll Get for the outcome.
func (h *AnalysisHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	profile, err := req.profile()
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	jobID, err := h.svc.SubmitAnalysis(r.Context(), ownerFrom(r), profile)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/v1/analyses/"+jobID)
	writeJSON(w, http.StatusAccepted, SubmitAnalysisResponse{JobID: jobID, Status: domainAnalysis.StatusPending})
}

// Get handles GET /api/v1/analyses/{id}.
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetAnalysisStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
