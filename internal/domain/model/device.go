package model

// Device describes one backend device as reported by a provider.
type Device struct {
	Name        string   `json:"name"`
	Qubits      int      `json:"qubits,omitempty"`
	BasisGates  []string `json:"basis_gates,omitempty"`
	Coupling    [][2]int `json:"coupling,omitempty"`
	Operational bool     `json:"operational"`
	PendingJobs int      `json:"pending_jobs"`
	Simulator   bool     `json:"simulator"`
	MaxShots    int      `json:"max_shots,omitempty"`
}

// DeviceAvailability is an ephemeral snapshot recomputed on every check.
type DeviceAvailability struct {
	Device      string `json:"device"`
	Operational bool   `json:"operational"`
	PendingJobs int    `json:"pending_jobs"`
	Threshold   int    `json:"threshold"`
}

// Available reports whether the device accepts work: operational and with a
// pending queue below the configured threshold.
func (a DeviceAvailability) Available() bool {
	return a.Operational && a.PendingJobs < a.Threshold
}
