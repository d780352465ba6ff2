package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Silverviles/nexar-hal/internal/domain/model"
	"github.com/Silverviles/nexar-hal/internal/service"
)

// JobHandlers serves the job submission and tracking endpoints.
type JobHandlers struct {
	Admission *service.AdmissionService
	Tracker   *service.TrackerService
}

// codeSubmitRequest is the body for source-code submissions.
type codeSubmitRequest struct {
	Provider           string         `json:"provider"`
	Device             string         `json:"device"`
	Shots              int            `json:"shots"`
	Priority           model.Priority `json:"priority"`
	Strategy           model.Strategy `json:"strategy"`
	Source             string         `json:"source"`
	QueueIfUnavailable bool           `json:"queue_if_unavailable"`
	ScheduledTime      *time.Time     `json:"scheduled_time,omitempty"`
}

// Submit handles POST /api/jobs.
func (h *JobHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.JobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.IsSourceCode = false
	req.Source = ""
	h.admit(w, r, req)
}

// SubmitCode handles POST /api/jobs/code.
func (h *JobHandlers) SubmitCode(w http.ResponseWriter, r *http.Request) {
	var body codeSubmitRequest
	if !DecodeJSON(w, r, &body) {
		return
	}
	h.admit(w, r, model.JobRequest{
		Provider:           body.Provider,
		Device:             body.Device,
		Shots:              body.Shots,
		Priority:           body.Priority,
		Strategy:           body.Strategy,
		Source:             body.Source,
		IsSourceCode:       true,
		QueueIfUnavailable: body.QueueIfUnavailable,
		ScheduledTime:      body.ScheduledTime,
	})
}

func (h *JobHandlers) admit(w http.ResponseWriter, r *http.Request, req model.JobRequest) {
	// Omitted fields default the way the text unmarshalers would.
	if req.Priority == "" {
		req.Priority = model.PriorityStandard
	}
	if req.Strategy == "" {
		req.Strategy = model.StrategyTime
	}

	jobID, err := h.Admission.Submit(r.Context(), req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// Status handles GET /api/jobs/{id}/status.
func (h *JobHandlers) Status(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	status, err := h.Tracker.Status(r.Context(), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "status": status})
}

// Result handles GET /api/jobs/{id}/result.
func (h *JobHandlers) Result(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	result, err := h.Tracker.Result(r.Context(), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "result": json.RawMessage(result)})
}

// Cancel handles POST /api/jobs/{id}/cancel.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := h.Tracker.Cancel(r.Context(), jobID); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "status": model.JobStatusCancelled})
}

// Scheduled handles GET /api/jobs/scheduled.
func (h *JobHandlers) Scheduled(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Tracker.ListScheduled(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"scheduled": jobs})
}
