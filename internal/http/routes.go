// Package httpx provides the HTTP surface of the orchestrator.
package httpx

import (
	"net/http"

	"github.com/Silverviles/nexar-hal/internal/core"
	"github.com/Silverviles/nexar-hal/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Admission *service.AdmissionService
	Tracker   *service.TrackerService
	Registry  *core.ProviderRegistry
	Store     core.JobStore
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Admission: services.Admission, Tracker: services.Tracker}
	providerHandlers := &ProviderHandlers{Registry: services.Registry}
	healthHandlers := &HealthHandlers{Store: services.Store}

	mux.HandleFunc("POST /api/jobs", jobHandlers.Submit)
	mux.HandleFunc("POST /api/jobs/code", jobHandlers.SubmitCode)
	mux.HandleFunc("GET /api/jobs/scheduled", jobHandlers.Scheduled)
	mux.HandleFunc("GET /api/jobs/{id}/status", jobHandlers.Status)
	mux.HandleFunc("GET /api/jobs/{id}/result", jobHandlers.Result)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", jobHandlers.Cancel)

	mux.HandleFunc("GET /api/providers", providerHandlers.List)
	mux.HandleFunc("GET /api/providers/{name}/devices", providerHandlers.Devices)

	mux.HandleFunc("GET /api/health", healthHandlers.Health)
	mux.HandleFunc("HEAD /api/health", healthHandlers.Health)

	return mux
}

// HealthHandlers serves liveness plus the persistence-mode flag.
type HealthHandlers struct {
	Store core.JobStore
}

// Health handles GET /api/health.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	persistence := "durable"
	if h.Store == nil || !h.Store.Durable() {
		persistence = "ephemeral"
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"persistence": persistence,
	})
}
