package expr

import "sort"

// Validate walks the tree without executing anything. Every operator must be
// on the allow-list, every identifier must be in allowedVars (unless
// allowedVars is nil) and every call must resolve in reg.
func (p *Program) Validate(allowedVars map[string]bool, reg *FunctionRegistry) error {
	var err error
	Walk(p.Root, func(n *Node) bool {
		if err != nil {
			return false
		}
		switch n.Kind {
		case KindLiteral:
		case KindIdentifier:
			if allowedVars != nil && !allowedVars[n.Name] {
				err = &ValidationError{Expr: p.Source, Name: n.Name, Msg: "unknown variable"}
			}
		case KindUnaryOp:
			if !unaryOps[n.Op] {
				err = &ValidationError{Expr: p.Source, Name: n.Op, Msg: "operator not allowed"}
			}
		case KindBinaryOp:
			if !binaryOps[n.Op] {
				err = &ValidationError{Expr: p.Source, Name: n.Op, Msg: "operator not allowed"}
			}
		case KindCompare:
			for _, op := range n.Ops {
				if !compareOps[op] {
					err = &ValidationError{Expr: p.Source, Name: op, Msg: "operator not allowed"}
				}
			}
		case KindCall:
			if reg == nil || !reg.Has(n.Name) {
				err = &ValidationError{Expr: p.Source, Name: n.Name, Msg: "unknown function"}
			}
		default:
			err = &ValidationError{Expr: p.Source, Name: n.Kind.String(), Msg: "node kind not allowed"}
		}
		return err == nil
	})
	return err
}

// Identifiers returns the distinct variable names the expression reads.
func (p *Program) Identifiers() []string {
	return p.collect(KindIdentifier)
}

// Functions returns the distinct function names the expression calls.
func (p *Program) Functions() []string {
	return p.collect(KindCall)
}

func (p *Program) collect(kind NodeKind) []string {
	seen := make(map[string]bool)
	Walk(p.Root, func(n *Node) bool {
		if n.Kind == kind {
			seen[n.Name] = true
		}
		return true
	})
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
