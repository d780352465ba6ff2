package sandbox

import (
	"math"

	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
)

// maxLoopIterations bounds total loop work so hostile sources cannot spin the
// dispatcher worker.
const maxLoopIterations = 1_000_000

type evalState struct {
	env        *Env
	iterations int
}

func evalBlock(block []stmt, env *Env) error {
	st := &evalState{env: env}
	return st.runBlock(block)
}

func (st *evalState) runBlock(block []stmt) error {
	for _, s := range block {
		if err := st.runStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (st *evalState) runStmt(s stmt) error {
	switch node := s.(type) {
	case *assignStmt:
		v, err := st.eval(node.value)
		if err != nil {
			return err
		}
		return st.bind(node.targets, v)
	case *exprStmt:
		_, err := st.eval(node.value)
		return err
	case *forStmt:
		return st.runFor(node)
	default:
		return apperrors.Sandbox("unsupported statement")
	}
}

func (st *evalState) runFor(node *forStmt) error {
	iter, err := st.eval(node.iter)
	if err != nil {
		return err
	}
	items, ok := iter.([]Value)
	if !ok {
		return apperrors.Sandbox("for loop requires an iterable")
	}
	for _, item := range items {
		st.iterations++
		if st.iterations > maxLoopIterations {
			return apperrors.Sandbox("loop iteration limit exceeded")
		}
		if err := st.bind(node.targets, item); err != nil {
			return err
		}
		if err := st.runBlock(node.body); err != nil {
			return err
		}
	}
	return nil
}

func (st *evalState) bind(targets []string, v Value) error {
	if len(targets) == 1 {
		st.env.set(targets[0], v)
		return nil
	}
	pair, ok := v.([]Value)
	if !ok || len(pair) != len(targets) {
		return apperrors.Sandboxf("cannot unpack value into %d names", len(targets))
	}
	for i, name := range targets {
		st.env.set(name, pair[i])
	}
	return nil
}

func (st *evalState) eval(e expr) (Value, error) {
	switch node := e.(type) {
	case *numberLit:
		return node.value, nil
	case *stringLit:
		return node.value, nil
	case *nameRef:
		return st.env.lookup(node.name)
	case *listLit:
		items := make([]Value, len(node.items))
		for i, item := range node.items {
			v, err := st.eval(item)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	case *unaryOp:
		return st.evalUnary(node)
	case *binaryOp:
		return st.evalBinary(node)
	case *callExpr:
		return st.evalCall(node)
	case *attrExpr:
		return st.evalAttr(node)
	case *indexExpr:
		return st.evalIndex(node)
	default:
		return nil, apperrors.Sandbox("unsupported expression")
	}
}

func (st *evalState) evalUnary(node *unaryOp) (Value, error) {
	v, err := st.eval(node.operand)
	if err != nil {
		return nil, err
	}
	switch n := v.(type) {
	case int64:
		return -n, nil
	case float64:
		return -n, nil
	}
	return nil, apperrors.Sandbox("unary minus requires a number")
}

func (st *evalState) evalBinary(node *binaryOp) (Value, error) {
	left, err := st.eval(node.left)
	if err != nil {
		return nil, err
	}
	right, err := st.eval(node.right)
	if err != nil {
		return nil, err
	}

	// String and list concatenation.
	if node.op == "+" {
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
		if ll, ok := left.([]Value); ok {
			if rl, ok := right.([]Value); ok {
				out := make([]Value, 0, len(ll)+len(rl))
				out = append(out, ll...)
				return append(out, rl...), nil
			}
		}
	}

	li, lInt := left.(int64)
	ri, rInt := right.(int64)
	if lInt && rInt {
		switch node.op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "//":
			if ri == 0 {
				return nil, apperrors.Sandbox("integer division by zero")
			}
			return li / ri, nil
		case "%":
			if ri == 0 {
				return nil, apperrors.Sandbox("integer modulo by zero")
			}
			return li % ri, nil
		}
	}

	lf, err := toFloat(left)
	if err != nil {
		return nil, err
	}
	rf, err := toFloat(right)
	if err != nil {
		return nil, err
	}
	switch node.op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, apperrors.Sandbox("division by zero")
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, apperrors.Sandbox("division by zero")
		}
		return math.Floor(lf / rf), nil
	case "%":
		if rf == 0 {
			return nil, apperrors.Sandbox("modulo by zero")
		}
		return math.Mod(lf, rf), nil
	case "**":
		return math.Pow(lf, rf), nil
	case "<":
		return lf < rf, nil
	case ">":
		return lf > rf, nil
	case "<=":
		return lf <= rf, nil
	case ">=":
		return lf >= rf, nil
	case "==":
		return lf == rf, nil
	case "!=":
		return lf != rf, nil
	}
	return nil, apperrors.Sandboxf("unsupported operator %q", node.op)
}

func (st *evalState) evalCall(node *callExpr) (Value, error) {
	fn, err := st.eval(node.fn)
	if err != nil {
		return nil, err
	}
	args := make([]Value, len(node.args))
	for i, arg := range node.args {
		v, err := st.eval(arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	builtin, ok := fn.(*Builtin)
	if !ok {
		return nil, apperrors.Sandbox("value is not callable")
	}
	return builtin.Fn(args)
}

func (st *evalState) evalAttr(node *attrExpr) (Value, error) {
	target, err := st.eval(node.target)
	if err != nil {
		return nil, err
	}
	obj, ok := target.(Object)
	if !ok {
		return nil, apperrors.Sandboxf("attribute access on non-object value")
	}
	return obj.Attr(node.name)
}

func (st *evalState) evalIndex(node *indexExpr) (Value, error) {
	target, err := st.eval(node.target)
	if err != nil {
		return nil, err
	}
	idx, err := st.eval(node.index)
	if err != nil {
		return nil, err
	}
	n, ok := idx.(int64)
	if !ok {
		return nil, apperrors.Sandbox("index must be an integer")
	}
	lst, ok := target.([]Value)
	if !ok {
		return nil, apperrors.Sandbox("indexing requires a list")
	}
	if n < 0 {
		n += int64(len(lst))
	}
	if n < 0 || n >= int64(len(lst)) {
		return nil, apperrors.Sandbox("list index out of range")
	}
	return lst[n], nil
}
