package expr

// NodeKind enumerates the closed set of expression tree nodes.
type NodeKind int

const (
	KindLiteral NodeKind = iota
	KindIdentifier
	KindUnaryOp
	KindBinaryOp
	KindCompare
	KindCall
)

func (k NodeKind) String() string {
	switch k {
	case KindLiteral:
		return "Literal"
	case KindIdentifier:
		return "Identifier"
	case KindUnaryOp:
		return "UnaryOp"
	case KindBinaryOp:
		return "BinaryOp"
	case KindCompare:
		return "Compare"
	case KindCall:
		return "Call"
	}
	return "Unknown"
}

// Node is one expression tree node. Which fields are set depends on Kind:
//
//	Literal:    Value
//	Identifier: Name
//	UnaryOp:    Op, Operands[0]
//	BinaryOp:   Op, Operands[0], Operands[1]   (arithmetic and boolean and/or)
//	Compare:    Ops[i] between Operands[i] and Operands[i+1] (chained)
//	Call:       Name, Operands as arguments
type Node struct {
	Kind     NodeKind
	Pos      int
	Value    any
	Name     string
	Op       string
	Ops      []string
	Operands []*Node
}

// Allowed operators. Anything else is rejected during parsing and validation.
var (
	unaryOps   = map[string]bool{"-": true, "+": true, "not": true}
	binaryOps  = map[string]bool{"+": true, "-": true, "*": true, "/": true, "%": true, "and": true, "or": true}
	compareOps = map[string]bool{"<": true, "<=": true, ">": true, ">=": true, "==": true, "!=": true}
)

// Walk visits n and its descendants depth-first. Returning false stops descent.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Operands {
		Walk(c, fn)
	}
}
