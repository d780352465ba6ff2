// Package sandbox evaluates circuit-builder source under a strict safelist.
//
// The accepted language is a small statement/expression subset: assignments,
// expression statements, arithmetic, comparisons, calls, attribute calls,
// list literals and for-range loops. Name resolution goes only through the
// safelist; there is no filesystem, network, import or dynamic evaluation
// surface. The program must bind the well-known symbol "circuit".
package sandbox

import (
	"fmt"
	"math"

	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
)

// CircuitSymbol is the well-known name the source must bind.
const CircuitSymbol = "circuit"

// Value is any sandbox runtime value: int64, float64, string, bool,
// []Value, *Builtin or Object.
type Value any

// Builtin is a callable exposed to sandboxed code.
type Builtin struct {
	Name string
	Fn   func(args []Value) (Value, error)
}

// Object is a sandbox value exposing callable attributes, e.g. a circuit
// under construction with its gate methods.
type Object interface {
	Attr(name string) (Value, error)
}

// Env is the name environment for one evaluation. Lookups fall back to the
// safelisted defaults; anything unresolved is a sandbox error.
type Env struct {
	vars map[string]Value
}

// NewEnv builds an environment holding the safelisted builtins, the math
// names, and the provider-supplied circuit primitives.
func NewEnv(primitives map[string]Value) *Env {
	env := &Env{vars: make(map[string]Value, len(primitives)+24)}
	for name, fn := range defaultBuiltins() {
		env.vars[name] = fn
	}
	env.vars["pi"] = math.Pi
	env.vars["sqrt"] = mathBuiltin("sqrt", math.Sqrt)
	env.vars["sin"] = mathBuiltin("sin", math.Sin)
	env.vars["cos"] = mathBuiltin("cos", math.Cos)
	env.vars["exp"] = mathBuiltin("exp", math.Exp)
	env.vars["log"] = mathBuiltin("log", math.Log)
	for name, v := range primitives {
		env.vars[name] = v
	}
	return env
}

func (e *Env) lookup(name string) (Value, error) {
	if v, ok := e.vars[name]; ok {
		return v, nil
	}
	return nil, apperrors.Sandboxf("disallowed name: %q", name)
}

func (e *Env) set(name string, v Value) {
	e.vars[name] = v
}

// Run parses and evaluates source in env and returns the bound circuit value.
// A missing or non-Object "circuit" binding is an invalid-request error; all
// language violations are sandbox errors naming the offending construct.
func Run(source string, env *Env) (Object, error) {
	prog, err := parse(source)
	if err != nil {
		return nil, err
	}
	if err := evalBlock(prog, env); err != nil {
		return nil, err
	}
	bound, ok := env.vars[CircuitSymbol]
	if !ok {
		return nil, apperrors.InvalidRequestf("source must define %q", CircuitSymbol)
	}
	circuit, ok := bound.(Object)
	if !ok {
		return nil, apperrors.InvalidRequestf("%q is not a circuit", CircuitSymbol)
	}
	return circuit, nil
}

func mathBuiltin(name string, fn func(float64) float64) *Builtin {
	return &Builtin{Name: name, Fn: func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, apperrors.Sandboxf("%s expects 1 argument", name)
		}
		f, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return fn(f), nil
	}}
}

func defaultBuiltins() map[string]*Builtin {
	b := map[string]*Builtin{}
	b["print"] = &Builtin{Name: "print", Fn: func(args []Value) (Value, error) {
		// Output is intentionally discarded; print exists so example
		// sources run unmodified.
		return nil, nil
	}}
	b["len"] = &Builtin{Name: "len", Fn: func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, apperrors.Sandbox("len expects 1 argument")
		}
		switch v := args[0].(type) {
		case string:
			return int64(len(v)), nil
		case []Value:
			return int64(len(v)), nil
		}
		return nil, apperrors.Sandbox("len: unsupported type")
	}}
	b["abs"] = &Builtin{Name: "abs", Fn: func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, apperrors.Sandbox("abs expects 1 argument")
		}
		if n, ok := args[0].(int64); ok {
			if n < 0 {
				return -n, nil
			}
			return n, nil
		}
		f, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return math.Abs(f), nil
	}}
	b["range"] = &Builtin{Name: "range", Fn: builtinRange}
	b["sum"] = &Builtin{Name: "sum", Fn: reduceBuiltin("sum")}
	b["min"] = &Builtin{Name: "min", Fn: reduceBuiltin("min")}
	b["max"] = &Builtin{Name: "max", Fn: reduceBuiltin("max")}
	b["int"] = &Builtin{Name: "int", Fn: func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, apperrors.Sandbox("int expects 1 argument")
		}
		f, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return int64(f), nil
	}}
	b["float"] = &Builtin{Name: "float", Fn: func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, apperrors.Sandbox("float expects 1 argument")
		}
		return toFloat(args[0])
	}}
	b["str"] = &Builtin{Name: "str", Fn: func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, apperrors.Sandbox("str expects 1 argument")
		}
		return fmt.Sprintf("%v", args[0]), nil
	}}
	b["bool"] = &Builtin{Name: "bool", Fn: func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, apperrors.Sandbox("bool expects 1 argument")
		}
		return truthy(args[0]), nil
	}}
	b["list"] = &Builtin{Name: "list", Fn: func(args []Value) (Value, error) {
		if len(args) == 0 {
			return []Value{}, nil
		}
		if lst, ok := args[0].([]Value); ok {
			out := make([]Value, len(lst))
			copy(out, lst)
			return out, nil
		}
		return nil, apperrors.Sandbox("list: unsupported type")
	}}
	b["enumerate"] = &Builtin{Name: "enumerate", Fn: func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, apperrors.Sandbox("enumerate expects 1 argument")
		}
		lst, ok := args[0].([]Value)
		if !ok {
			return nil, apperrors.Sandbox("enumerate: unsupported type")
		}
		out := make([]Value, len(lst))
		for i, v := range lst {
			out[i] = []Value{int64(i), v}
		}
		return out, nil
	}}
	b["zip"] = &Builtin{Name: "zip", Fn: func(args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, apperrors.Sandbox("zip expects 2 arguments")
		}
		a, okA := args[0].([]Value)
		bb, okB := args[1].([]Value)
		if !okA || !okB {
			return nil, apperrors.Sandbox("zip: unsupported type")
		}
		n := len(a)
		if len(bb) < n {
			n = len(bb)
		}
		out := make([]Value, n)
		for i := 0; i < n; i++ {
			out[i] = []Value{a[i], bb[i]}
		}
		return out, nil
	}}
	return b
}

func builtinRange(args []Value) (Value, error) {
	var start, stop, step int64 = 0, 0, 1
	ints := make([]int64, 0, 3)
	for _, a := range args {
		n, ok := a.(int64)
		if !ok {
			return nil, apperrors.Sandbox("range expects integer arguments")
		}
		ints = append(ints, n)
	}
	switch len(ints) {
	case 1:
		stop = ints[0]
	case 2:
		start, stop = ints[0], ints[1]
	case 3:
		start, stop, step = ints[0], ints[1], ints[2]
	default:
		return nil, apperrors.Sandbox("range expects 1 to 3 arguments")
	}
	if step == 0 {
		return nil, apperrors.Sandbox("range step must not be zero")
	}
	var out []Value
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}

func reduceBuiltin(name string) func(args []Value) (Value, error) {
	return func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, apperrors.Sandboxf("%s expects 1 argument", name)
		}
		lst, ok := args[0].([]Value)
		if !ok {
			return nil, apperrors.Sandboxf("%s: unsupported type", name)
		}
		if len(lst) == 0 {
			if name == "sum" {
				return int64(0), nil
			}
			return nil, apperrors.Sandboxf("%s of empty sequence", name)
		}
		acc, err := toFloat(lst[0])
		if err != nil {
			return nil, err
		}
		allInt := isInt(lst[0])
		for _, v := range lst[1:] {
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			allInt = allInt && isInt(v)
			switch name {
			case "sum":
				acc += f
			case "min":
				if f < acc {
					acc = f
				}
			case "max":
				if f > acc {
					acc = f
				}
			}
		}
		if allInt {
			return int64(acc), nil
		}
		return acc, nil
	}
}

func isInt(v Value) bool {
	_, ok := v.(int64)
	return ok
}

func toFloat(v Value) (float64, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return 0, apperrors.Sandboxf("expected a number, got %T", v)
}

func truthy(v Value) bool {
	switch n := v.(type) {
	case nil:
		return false
	case bool:
		return n
	case int64:
		return n != 0
	case float64:
		return n != 0
	case string:
		return n != ""
	case []Value:
		return len(n) > 0
	}
	return true
}
