// Package sim provides the in-process reference provider: a quantum
// simulator backend with deterministic results, used as the default
// registration and by the test suite.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Silverviles/nexar-hal/internal/core"
	"github.com/Silverviles/nexar-hal/internal/domain/model"
	"github.com/Silverviles/nexar-hal/internal/domain/sandbox"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
)

// DefaultName is the registry name of the simulator provider.
const DefaultName = "sim"

// Options configure the simulator provider.
type Options struct {
	Name           string
	Devices        []model.Device
	QueueThreshold int
}

// Provider is an in-memory quantum backend. Jobs complete synchronously on
// submission; batch submissions receive composite ids of the form "base:i".
// It is safe for concurrent use.
type Provider struct {
	name      string
	threshold int

	mu      sync.RWMutex
	devices map[string]*model.Device
	batches map[string]*batchRecord
	// backendRuns counts executed tasks; batchCalls counts accepted
	// submission calls. Exposed for tests asserting what reached the
	// backend and in how many round trips.
	backendRuns int
	batchCalls  int
}

type batchRecord struct {
	statuses []model.JobStatus
	results  []json.RawMessage
	errs     []string
}

// DefaultDevices returns the devices the simulator exposes when none are
// configured.
func DefaultDevices() []model.Device {
	return []model.Device{
		{Name: "sim-7q", Qubits: 7, BasisGates: []string{"h", "x", "cx", "rz"}, Operational: true, Simulator: true, MaxShots: 100000},
		{Name: "sim-30q", Qubits: 30, BasisGates: []string{"h", "x", "cx", "rz"}, Operational: true, Simulator: true, MaxShots: 100000},
	}
}

// New creates a simulator provider.
func New(opts Options) *Provider {
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	devices := opts.Devices
	if len(devices) == 0 {
		devices = DefaultDevices()
	}
	threshold := opts.QueueThreshold
	if threshold <= 0 {
		threshold = 20
	}
	p := &Provider{
		name:      name,
		threshold: threshold,
		devices:   make(map[string]*model.Device, len(devices)),
		batches:   make(map[string]*batchRecord),
	}
	for i := range devices {
		d := devices[i]
		p.devices[d.Name] = &d
	}
	return p
}

// Name implements core.Provider.
func (p *Provider) Name() string { return p.name }

// Kind implements core.Provider.
func (p *Provider) Kind() core.ProviderKind { return core.ProviderKindQuantum }

// ListDevices implements core.Provider.
func (p *Provider) ListDevices(_ context.Context) ([]model.Device, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Device, 0, len(p.devices))
	for _, d := range p.devices {
		out = append(out, *d)
	}
	return out, nil
}

// CheckAvailability implements core.Provider. Reads may be stale by design.
func (p *Provider) CheckAvailability(_ context.Context, device string) (model.DeviceAvailability, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.devices[device]
	if !ok {
		return model.DeviceAvailability{}, apperrors.InvalidRequestf("unknown device %q", device)
	}
	return model.DeviceAvailability{
		Device:      d.Name,
		Operational: d.Operational,
		PendingJobs: d.PendingJobs,
		Threshold:   p.threshold,
	}, nil
}

// SetOperational flips a device's operational flag. Test hook and admin use.
func (p *Provider) SetOperational(device string, operational bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.devices[device]; ok {
		d.Operational = operational
	}
}

// SetPendingJobs overrides a device's pending counter. Test hook.
func (p *Provider) SetPendingJobs(device string, pending int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.devices[device]; ok {
		d.PendingJobs = pending
	}
}

// BackendRuns reports how many executions reached the simulated backend.
func (p *Provider) BackendRuns() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.backendRuns
}

// BatchCalls reports how many submission calls the backend accepted,
// regardless of how many tasks each carried.
func (p *Provider) BatchCalls() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.batchCalls
}

func (p *Provider) validateSubmit(device string, shots int) (*model.Device, error) {
	d, ok := p.devices[device]
	if !ok {
		return nil, apperrors.InvalidRequestf("unknown device %q", device)
	}
	if !d.Operational {
		return nil, apperrors.Unavailablef("device %q is not operational", device)
	}
	if shots < 1 || (d.MaxShots > 0 && shots > d.MaxShots) {
		return nil, apperrors.InvalidRequestf("shots %d outside device limits", shots)
	}
	return d, nil
}

// ExecuteBatch implements core.Provider. The returned ids are composite
// "base:i" handles, order-preserving over the input tasks.
func (p *Provider) ExecuteBatch(_ context.Context, params core.ExecuteBatchParams) ([]string, error) {
	if len(params.Tasks) == 0 {
		return nil, apperrors.InvalidRequest("task list cannot be empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.validateSubmit(params.Device, params.Shots); err != nil {
		return nil, err
	}

	p.batchCalls++
	base := uuid.NewString()
	rec := &batchRecord{
		statuses: make([]model.JobStatus, len(params.Tasks)),
		results:  make([]json.RawMessage, len(params.Tasks)),
		errs:     make([]string, len(params.Tasks)),
	}
	ids := make([]string, len(params.Tasks))
	for i, task := range params.Tasks {
		p.backendRuns++
		rec.statuses[i] = model.JobStatusCompleted
		rec.results[i] = simulatedResult(task, params.Shots)
		ids[i] = model.ComposeProviderJobID(base, i)
	}
	p.batches[base] = rec
	return ids, nil
}

// ExecuteCode implements core.CodeExecutor: the source runs in the sandbox,
// must bind "circuit", and executes as a single submission.
func (p *Provider) ExecuteCode(_ context.Context, params core.ExecuteCodeParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, err := p.validateSubmit(params.Device, params.Shots)
	if err != nil {
		return "", err
	}

	env := sandbox.NewEnv(circuitPrimitives(d.Qubits))
	obj, err := sandbox.Run(params.Source, env)
	if err != nil {
		return "", err
	}
	circuit, ok := obj.(*Circuit)
	if !ok {
		return "", apperrors.InvalidRequestf("%q is not a circuit", sandbox.CircuitSymbol)
	}

	p.batchCalls++
	p.backendRuns++
	base := uuid.NewString()
	p.batches[base] = &batchRecord{
		statuses: []model.JobStatus{model.JobStatusCompleted},
		results:  []json.RawMessage{circuitResult(circuit, params.Shots)},
		errs:     []string{""},
	}
	return base, nil
}

func (p *Provider) record(providerJobID string) (*batchRecord, int, error) {
	base, index, composite := model.SplitProviderJobID(providerJobID)
	if !composite {
		base, index = providerJobID, 0
	}
	rec, ok := p.batches[base]
	if !ok {
		return nil, 0, apperrors.NotFoundf("provider job %s not found", providerJobID)
	}
	if index >= len(rec.statuses) {
		return nil, 0, apperrors.InvalidRequestf("batch index %d out of range", index)
	}
	return rec, index, nil
}

// GetStatus implements core.Provider; composite ids are split on lookup.
func (p *Provider) GetStatus(_ context.Context, providerJobID string) (model.JobStatus, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, index, err := p.record(providerJobID)
	if err != nil {
		return model.JobStatusUnknown, err
	}
	return rec.statuses[index], nil
}

// GetResult implements core.Provider. Results are only defined for completed
// members.
func (p *Provider) GetResult(_ context.Context, providerJobID string) (json.RawMessage, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, index, err := p.record(providerJobID)
	if err != nil {
		return nil, err
	}
	if rec.statuses[index] != model.JobStatusCompleted {
		return nil, apperrors.Transientf("provider job %s not completed", providerJobID)
	}
	return rec.results[index], nil
}

// Cancel implements core.Canceller. Completed members stay completed.
func (p *Provider) Cancel(_ context.Context, providerJobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, index, err := p.record(providerJobID)
	if err != nil {
		return err
	}
	if rec.statuses[index].Terminal() {
		return apperrors.Conflictf("provider job %s already terminal", providerJobID)
	}
	rec.statuses[index] = model.JobStatusCancelled
	return nil
}

// simulatedResult produces a deterministic counts payload for an opaque task.
func simulatedResult(task json.RawMessage, shots int) json.RawMessage {
	digest := 0
	for _, b := range task {
		digest = (digest*31 + int(b)) % 1024
	}
	out, _ := json.Marshal(map[string]any{
		"counts": map[string]int{"0": shots},
		"shots":  shots,
		"digest": digest,
	})
	return out
}

// circuitResult produces a counts payload keyed by the measured register.
func circuitResult(c *Circuit, shots int) json.RawMessage {
	width := len(c.Measured)
	if width == 0 {
		width = c.Qubits
	}
	key := strings.Repeat("0", width)
	out, _ := json.Marshal(map[string]any{
		"counts": map[string]int{key: shots},
		"shots":  shots,
		"depth":  len(c.Ops),
		"qubits": c.Qubits,
	})
	return out
}

var (
	_ core.Provider     = (*Provider)(nil)
	_ core.CodeExecutor = (*Provider)(nil)
	_ core.Canceller    = (*Provider)(nil)
)

// String aids debugging.
func (p *Provider) String() string {
	return fmt.Sprintf("sim provider %q (%d devices)", p.name, len(p.devices))
}
