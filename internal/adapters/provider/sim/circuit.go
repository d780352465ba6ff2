package sim

import (
	"github.com/Silverviles/nexar-hal/internal/domain/sandbox"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
)

// Circuit is the value sandboxed source builds through the QuantumCircuit
// primitive. The simulator does not model amplitudes; it tracks structure so
// results stay deterministic and validation stays meaningful.
type Circuit struct {
	Qubits   int
	Clbits   int
	Ops      []GateOp
	Measured []int
}

// GateOp records one applied gate.
type GateOp struct {
	Name   string
	Qubits []int
	Params []float64
}

// singleQubitGates and twoQubitGates are the gate vocabulary the builder
// accepts; rotation gates additionally take one angle parameter.
var (
	singleQubitGates = map[string]bool{"h": true, "x": true, "y": true, "z": true, "s": true, "t": true}
	rotationGates    = map[string]bool{"rx": true, "ry": true, "rz": true}
	twoQubitGates    = map[string]bool{"cx": true, "cz": true, "swap": true}
)

// Attr implements sandbox.Object, exposing gate methods and measurement.
func (c *Circuit) Attr(name string) (sandbox.Value, error) {
	switch {
	case singleQubitGates[name]:
		return c.gateBuiltin(name, 1, 0), nil
	case rotationGates[name]:
		return c.gateBuiltin(name, 1, 1), nil
	case twoQubitGates[name]:
		return c.gateBuiltin(name, 2, 0), nil
	case name == "measure":
		return c.measureBuiltin(), nil
	case name == "measure_all":
		return &sandbox.Builtin{Name: "measure_all", Fn: func(args []sandbox.Value) (sandbox.Value, error) {
			if len(args) != 0 {
				return nil, apperrors.Sandbox("measure_all takes no arguments")
			}
			c.Measured = c.Measured[:0]
			for q := 0; q < c.Qubits; q++ {
				c.Measured = append(c.Measured, q)
			}
			return nil, nil
		}}, nil
	case name == "barrier":
		return &sandbox.Builtin{Name: "barrier", Fn: func([]sandbox.Value) (sandbox.Value, error) {
			return nil, nil
		}}, nil
	case name == "num_qubits":
		return int64(c.Qubits), nil
	case name == "depth":
		return int64(len(c.Ops)), nil
	default:
		return nil, apperrors.Sandboxf("unknown circuit attribute: %q", name)
	}
}

func (c *Circuit) gateBuiltin(name string, qubits, params int) *sandbox.Builtin {
	return &sandbox.Builtin{Name: name, Fn: func(args []sandbox.Value) (sandbox.Value, error) {
		if len(args) != qubits+params {
			return nil, apperrors.Sandboxf("%s expects %d arguments", name, qubits+params)
		}
		op := GateOp{Name: name}
		for _, arg := range args[:params] {
			f, err := asFloat(arg)
			if err != nil {
				return nil, apperrors.Sandboxf("%s: angle must be a number", name)
			}
			op.Params = append(op.Params, f)
		}
		for _, arg := range args[params:] {
			q, ok := arg.(int64)
			if !ok {
				return nil, apperrors.Sandboxf("%s: qubit index must be an integer", name)
			}
			if q < 0 || q >= int64(c.Qubits) {
				return nil, apperrors.Sandboxf("%s: qubit %d out of range", name, q)
			}
			op.Qubits = append(op.Qubits, int(q))
		}
		c.Ops = append(c.Ops, op)
		return nil, nil
	}}
}

func (c *Circuit) measureBuiltin() *sandbox.Builtin {
	return &sandbox.Builtin{Name: "measure", Fn: func(args []sandbox.Value) (sandbox.Value, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, apperrors.Sandbox("measure expects a qubit and optional clbit")
		}
		q, ok := args[0].(int64)
		if !ok || q < 0 || q >= int64(c.Qubits) {
			return nil, apperrors.Sandbox("measure: qubit index out of range")
		}
		c.Measured = append(c.Measured, int(q))
		return nil, nil
	}}
}

func asFloat(v sandbox.Value) (float64, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, apperrors.Sandbox("expected a number")
}

// circuitPrimitives returns the constructor environment handed to the sandbox
// for a device with the given qubit capacity.
func circuitPrimitives(maxQubits int) map[string]sandbox.Value {
	return map[string]sandbox.Value{
		"QuantumCircuit": &sandbox.Builtin{Name: "QuantumCircuit", Fn: func(args []sandbox.Value) (sandbox.Value, error) {
			if len(args) < 1 || len(args) > 2 {
				return nil, apperrors.Sandbox("QuantumCircuit expects 1 or 2 arguments")
			}
			n, ok := args[0].(int64)
			if !ok || n < 1 {
				return nil, apperrors.Sandbox("QuantumCircuit: qubit count must be a positive integer")
			}
			if n > int64(maxQubits) {
				return nil, apperrors.Sandboxf("QuantumCircuit: %d qubits exceeds device capacity %d", n, maxQubits)
			}
			clbits := int(n)
			if len(args) == 2 {
				c, ok := args[1].(int64)
				if !ok || c < 0 {
					return nil, apperrors.Sandbox("QuantumCircuit: clbit count must be a non-negative integer")
				}
				clbits = int(c)
			}
			return &Circuit{Qubits: int(n), Clbits: clbits}, nil
		}},
	}
}
