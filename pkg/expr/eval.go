package expr

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Program is a parsed expression ready for validation and evaluation.
type Program struct {
	Source string
	Root   *Node
}

// Compile parses src into a Program.
func Compile(src string) (*Program, error) {
	root, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return &Program{Source: src, Root: root}, nil
}

// Eval computes the expression against vars, resolving calls through reg.
// Every failure is returned as a *EvaluationError; nothing panics out.
func (p *Program) Eval(vars map[string]any, reg *FunctionRegistry) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &EvaluationError{Expr: p.Source, Msg: fmt.Sprintf("panic: %v", r)}
		}
	}()
	ev := &evaluator{src: p.Source, vars: vars, reg: reg}
	return ev.eval(p.Root)
}

// EvalBool evaluates and applies truthiness to the result.
func (p *Program) EvalBool(vars map[string]any, reg *FunctionRegistry) (bool, error) {
	v, err := p.Eval(vars, reg)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

type evaluator struct {
	src  string
	vars map[string]any
	reg  *FunctionRegistry
}

func (e *evaluator) fail(format string, args ...any) error {
	return &EvaluationError{Expr: e.src, Msg: fmt.Sprintf(format, args...)}
}

func (e *evaluator) eval(n *Node) (any, error) {
	switch n.Kind {
	case KindLiteral:
		return n.Value, nil
	case KindIdentifier:
		v, ok := e.vars[n.Name]
		if !ok {
			return nil, e.fail("name %q is not defined", n.Name)
		}
		return normalize(v), nil
	case KindUnaryOp:
		return e.unary(n)
	case KindBinaryOp:
		return e.binary(n)
	case KindCompare:
		return e.compare(n)
	case KindCall:
		return e.call(n)
	}
	return nil, e.fail("unsupported node kind %s", n.Kind)
}

func (e *evaluator) unary(n *Node) (any, error) {
	v, err := e.eval(n.Operands[0])
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "not":
		return !Truthy(v), nil
	case "-", "+":
		num, ok := numeric(v)
		if !ok {
			return nil, e.fail("bad operand type for unary %s: '%s'", n.Op, typeName(v))
		}
		if n.Op == "+" {
			return num, nil
		}
		if i, isInt := num.(int64); isInt {
			return -i, nil
		}
		return -num.(float64), nil
	}
	return nil, e.fail("operator %q is not allowed", n.Op)
}

func (e *evaluator) binary(n *Node) (any, error) {
	left, err := e.eval(n.Operands[0])
	if err != nil {
		return nil, err
	}
	// and/or short-circuit and yield the deciding operand.
	switch n.Op {
	case "and":
		if !Truthy(left) {
			return left, nil
		}
		return e.eval(n.Operands[1])
	case "or":
		if Truthy(left) {
			return left, nil
		}
		return e.eval(n.Operands[1])
	}

	right, err := e.eval(n.Operands[1])
	if err != nil {
		return nil, err
	}
	return e.arith(n.Op, left, right)
}

func (e *evaluator) arith(op string, left, right any) (any, error) {
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok && op == "+" {
			return ls + rs, nil
		}
	}

	ln, lok := numeric(left)
	rn, rok := numeric(right)
	if !lok || !rok {
		return nil, e.fail("unsupported operand types for %s: '%s' and '%s'", op, typeName(left), typeName(right))
	}

	li, lInt := ln.(int64)
	ri, rInt := rn.(int64)
	if lInt && rInt {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, e.fail("division by zero")
			}
			return float64(li) / float64(ri), nil
		case "%":
			if ri == 0 {
				return nil, e.fail("integer modulo by zero")
			}
			m := li % ri
			if m != 0 && (m < 0) != (ri < 0) {
				m += ri
			}
			return m, nil
		}
		return nil, e.fail("operator %q is not allowed", op)
	}

	lf, rf := toFloat(ln), toFloat(rn)
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, e.fail("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, e.fail("float modulo by zero")
		}
		m := math.Mod(lf, rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		return m, nil
	}
	return nil, e.fail("operator %q is not allowed", op)
}

// compare evaluates a chain like a < b <= c as (a < b) and (b <= c),
// evaluating each operand at most once.
func (e *evaluator) compare(n *Node) (any, error) {
	left, err := e.eval(n.Operands[0])
	if err != nil {
		return nil, err
	}
	for i, op := range n.Ops {
		right, err := e.eval(n.Operands[i+1])
		if err != nil {
			return nil, err
		}
		ok, err := e.compareOne(op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func (e *evaluator) compareOne(op string, left, right any) (bool, error) {
	ln, lok := numeric(left)
	rn, rok := numeric(right)

	// Booleans compare as 0/1, so true == 1 holds.
	if lok && rok {
		var c int
		li, lInt := ln.(int64)
		ri, rInt := rn.(int64)
		if lInt && rInt {
			c = cmpOrdered(li, ri)
		} else {
			lf, rf := toFloat(ln), toFloat(rn)
			if math.IsNaN(lf) || math.IsNaN(rf) {
				return op == "!=", nil
			}
			c = cmpOrdered(lf, rf)
		}
		return applyCmp(op, c), nil
	}

	ls, lStr := left.(string)
	rs, rStr := right.(string)
	if lStr && rStr {
		return applyCmp(op, strings.Compare(ls, rs)), nil
	}

	switch op {
	case "==":
		return reflect.DeepEqual(left, right), nil
	case "!=":
		return !reflect.DeepEqual(left, right), nil
	}
	return false, e.fail("'%s' not supported between instances of '%s' and '%s'", op, typeName(left), typeName(right))
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func applyCmp(op string, c int) bool {
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	case "==":
		return c == 0
	case "!=":
		return c != 0
	}
	return false
}

func (e *evaluator) call(n *Node) (any, error) {
	if e.reg == nil {
		return nil, e.fail("unknown function %q", n.Name)
	}
	fn, ok := e.reg.Lookup(n.Name)
	if !ok {
		return nil, e.fail("unknown function %q", n.Name)
	}
	args := make([]any, len(n.Operands))
	for i, a := range n.Operands {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	out, err := fn(args...)
	if err != nil {
		return nil, &EvaluationError{Expr: e.src, Msg: fmt.Sprintf("%s()", n.Name), Err: err}
	}
	return normalize(out), nil
}
