/*
Package expr implements the restricted expression language used by routing conditions.

Expressions are parsed into a small tree with a closed set of node kinds
(Literal, Identifier, UnaryOp, BinaryOp, Compare, Call) and evaluated by walking
that tree. There is no general-purpose eval: attribute access, subscripts,
bitwise operators, exponentiation and assignment are rejected by the lexer, and
calls resolve only against an explicit FunctionRegistry.

Supported syntax:

	amount > 50000 and region == 'EU'
	not (retries >= 3) or priority == "high"
	round(score * 100, 1) >= 87.5
	1 < child_count <= 10

Two error classes are reported to callers: *SyntaxError for malformed input and
*EvaluationError for runtime failures (undefined variable, unknown function,
type mismatch, division by zero). Validation (*ValidationError) walks the same
tree without executing it.
*/
package expr
