package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silverviles/nexar-hal/internal/adapters/memstore"
	"github.com/Silverviles/nexar-hal/internal/adapters/provider/sim"
	"github.com/Silverviles/nexar-hal/internal/core"
	"github.com/Silverviles/nexar-hal/internal/domain/batch"
	"github.com/Silverviles/nexar-hal/internal/service"
)

type apiEnv struct {
	handler http.Handler
	sim     *sim.Provider
	store   *memstore.JobStore
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	env := &apiEnv{
		sim:   sim.New(sim.Options{}),
		store: memstore.NewJobStore(),
	}
	registry := core.NewProviderRegistry()
	registry.Register(env.sim)
	queues := batch.NewQueues()

	lifecycle := service.NewLifecycle(service.LifecycleOptions{Store: env.store})
	dispatcher := service.NewDispatchService(service.DispatchServiceOptions{
		Registry:  registry,
		Store:     env.store,
		Lifecycle: lifecycle,
	})
	admission := service.NewAdmissionService(service.AdmissionServiceOptions{
		Registry:   registry,
		Store:      env.store,
		Queues:     queues,
		Lifecycle:  lifecycle,
		Dispatcher: dispatcher,
		Config:     core.DefaultOrchestratorConfig(),
	})
	tracker := service.NewTrackerService(service.TrackerServiceOptions{
		Registry:  registry,
		Store:     env.store,
		Queues:    queues,
		Lifecycle: lifecycle,
	})

	env.handler = NewRouter(RouterServices{
		Admission: admission,
		Tracker:   tracker,
		Registry:  registry,
		Store:     env.store,
	})
	return env
}

func (e *apiEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

const submitBody = `{"provider":"sim","device":"sim-7q","shots":100,"priority":"standard","strategy":"time","payload":{"circuit":"h 0"}}`

func (e *apiEnv) submit(t *testing.T, body string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/jobs", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID, ok := decodeBody(t, rec)["job_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, jobID)
	return jobID
}

func TestSubmitAccepted(t *testing.T) {
	env := newAPIEnv(t)
	jobID := env.submit(t, submitBody)

	rec := env.do(t, http.MethodGet, "/api/jobs/"+jobID+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "queued", decodeBody(t, rec)["status"])
}

func TestSubmitDefaultsPriorityAndStrategy(t *testing.T) {
	env := newAPIEnv(t)
	jobID := env.submit(t, `{"provider":"sim","device":"sim-7q","shots":100,"payload":{}}`)

	sub, err := env.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "standard", string(sub.Request.Priority))
	assert.Equal(t, "time", string(sub.Request.Strategy))
}

func TestSubmitInvalidJSON(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/jobs", `{"provider":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeBody(t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/api/jobs", `{"provider":"sim","bogus":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeBody(t, rec)["error"])
}

func TestSubmitUnknownDevice(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/jobs",
		`{"provider":"sim","device":"nope","shots":100,"payload":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "invalid_request", body["error"])
	assert.Equal(t, "device", body["field"])
}

func TestSubmitShotsOverLimitNamesField(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/jobs",
		`{"provider":"sim","device":"sim-7q","shots":1000000,"payload":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "invalid_request", body["error"])
	assert.Equal(t, "shots", body["field"])
}

func TestSubmitCode(t *testing.T) {
	env := newAPIEnv(t)

	body := `{"provider":"sim","device":"sim-7q","shots":50,"priority":"high","source":"circuit = QuantumCircuit(2)"}`
	rec := env.do(t, http.MethodPost, "/api/jobs/code", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := decodeBody(t, rec)["job_id"].(string)

	rec = env.do(t, http.MethodGet, "/api/jobs/"+jobID+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody(t, rec)["status"])
}

func TestSubmitCodeSandboxViolation(t *testing.T) {
	env := newAPIEnv(t)

	body := `{"provider":"sim","device":"sim-7q","shots":50,"priority":"high","source":"import os"}`
	rec := env.do(t, http.MethodPost, "/api/jobs/code", body)
	// Sandbox rejection surfaces through the job, not the submission response.
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := decodeBody(t, rec)["job_id"].(string)

	rec = env.do(t, http.MethodGet, "/api/jobs/"+jobID+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", decodeBody(t, rec)["status"])
}

func TestResultFlow(t *testing.T) {
	env := newAPIEnv(t)
	high := strings.Replace(submitBody, `"standard"`, `"high"`, 1)
	jobID := env.submit(t, high)

	rec := env.do(t, http.MethodGet, "/api/jobs/"+jobID+"/result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result, ok := decodeBody(t, rec)["result"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, result, "counts")
}

func TestResultNotSubmittedYet(t *testing.T) {
	env := newAPIEnv(t)
	jobID := env.submit(t, submitBody)

	rec := env.do(t, http.MethodGet, "/api/jobs/"+jobID+"/result", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "transient", decodeBody(t, rec)["error"])
}

func TestStatusUnknownJob(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/api/jobs/nope/status", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody(t, rec)["error"])
}

func TestCancelFlow(t *testing.T) {
	env := newAPIEnv(t)
	jobID := env.submit(t, submitBody)

	rec := env.do(t, http.MethodPost, "/api/jobs/"+jobID+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeBody(t, rec)["status"])

	// Cancelling again conflicts.
	rec = env.do(t, http.MethodPost, "/api/jobs/"+jobID+"/cancel", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeBody(t, rec)["error"])
}

func TestScheduledListing(t *testing.T) {
	env := newAPIEnv(t)

	fireAt := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	body := `{"provider":"sim","device":"sim-7q","shots":100,"payload":{},"scheduled_time":"` + fireAt + `"}`
	jobID := env.submit(t, body)

	rec := env.do(t, http.MethodGet, "/api/jobs/scheduled", "")
	require.Equal(t, http.StatusOK, rec.Code)
	scheduled, ok := decodeBody(t, rec)["scheduled"].([]any)
	require.True(t, ok)
	require.Len(t, scheduled, 1)
	entry := scheduled[0].(map[string]any)
	assert.Equal(t, jobID, entry["job_id"])
}

func TestProviderListing(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	providers, ok := decodeBody(t, rec)["providers"].([]any)
	require.True(t, ok)
	require.Len(t, providers, 1)
	entry := providers[0].(map[string]any)
	assert.Equal(t, "sim", entry["name"])
	assert.Equal(t, "quantum", entry["kind"])
}

func TestProviderDevices(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/providers/sim/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	devices, ok := decodeBody(t, rec)["devices"].([]any)
	require.True(t, ok)
	assert.Len(t, devices, 2)

	rec = env.do(t, http.MethodGet, "/api/providers/nope/devices", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ephemeral", body["persistence"])
}
