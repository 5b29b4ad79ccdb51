package java

import (
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/flow"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/tree"
)

// visitExpr dispatches on cst_type with a switch on the type string, the
// same way visitStatement does.
func (b *builder) visitExpr(id tree.NodeID) {
	switch nodeType(b.t, id) {
	case "assignment_expression":
		b.visitAssignment(id)

	case "binary_expression":
		b.visitBinary(id)

	case "method_invocation":
		b.visitMethodInvocation(id)

	case "array_access", "array_creation_expression", "array_initializer",
		"cast_expression", "parenthesized_expression":
		b.visitTransparentWrapper(id)

	case "template_expression":
		b.visitTemplateExpression(id)

	case "identifier":
		b.visitIdentifier(id)

	case "literal", "lambda_expression", "method_reference",
		"field_access", "object_creation_expression":
		// No-ops: documented simplifications (§4.3). A field_access's
		// receiver is deliberately not visited as an identifier occurrence
		// here, since it plays a qualifier role, not a value-bearing one.

	default:
		// Unknown/unmodeled expression kinds are no-ops.
	}
}

// visitAssignment: visit RHS, emit ASSIGNMENT(lhs -> rhs), update
// currentDefinition, clear taint. Compound assignment (+=, etc.) is
// simplified as a pure assignment.
func (b *builder) visitAssignment(id tree.NodeID) {
	left, hasLeft := fieldChild(b.t, id, "left")
	right, hasRight := fieldChild(b.t, id, "right")
	if !hasRight {
		return
	}
	b.visitExpr(right)
	if hasLeft {
		b.graph.AddEdge(left, right, flow.Assignment)
		if nodeType(b.t, left) == "identifier" {
			b.currentDef[text(b.t, left)] = left
		}
	}
	b.clearTaint()
}

// visitBinary: only ADD propagates taint (accommodates string
// concatenation). Both operands are still visited (so identifier
// dependence edges are recorded) regardless of operator.
func (b *builder) visitBinary(id tree.NodeID) {
	right, hasRight := fieldChild(b.t, id, "right")
	left, hasLeft := fieldChild(b.t, id, "left")
	isAdd := binaryOperatorText(b.t, id) == "+"

	if hasRight {
		b.visitExpr(right)
		if isAdd {
			b.propagateLastTaint(id)
		}
	}
	if hasLeft {
		b.visitExpr(left)
		if isAdd {
			b.propagateLastTaint(id)
		}
	}
}

func binaryOperatorText(t *tree.Tree, id tree.NodeID) string {
	if op, ok := fieldChild(t, id, "operator"); ok {
		return text(t, op)
	}
	// Fallback: first unnamed (token) child between left and right.
	children, err := t.Children(id)
	if err != nil {
		return ""
	}
	for _, c := range children {
		n, ok := t.Node(c)
		if ok && !n.IsNamed {
			return text(t, c)
		}
	}
	return ""
}

// visitMethodInvocation: if the receiver is an identifier, visit it and
// propagate taint to the call; visit the argument list; propagate taint of
// any tainted argument to the call. The single-slot lastTaintSource lets an
// earlier tainted argument's taint "leak" forward across later siblings and
// into the call (see the Open Question in DESIGN.md) — intentional.
func (b *builder) visitMethodInvocation(id tree.NodeID) {
	if obj, ok := fieldChild(b.t, id, "object"); ok && nodeType(b.t, obj) == "identifier" {
		b.visitExpr(obj)
		b.propagateLastTaint(id)
	}
	args, ok := fieldChild(b.t, id, "arguments")
	if !ok {
		return
	}
	for _, arg := range namedChildren(b.t, args) {
		b.visitExpr(arg)
		b.propagateLastTaint(id)
	}
}

// visitTransparentWrapper handles array_access / array_creation_expression /
// array_initializer / cast_expression / parenthesized_expression: recurse
// into the meaningful child(ren), propagating taint upward to the enclosing
// node.
func (b *builder) visitTransparentWrapper(id tree.NodeID) {
	for _, child := range namedChildren(b.t, id) {
		b.visitExpr(child)
		b.propagateLastTaint(id)
	}
}

// visitTemplateExpression handles Java string templates (STR."...\{expr}...").
// Only the STR and FMT processors are parsed; interpolated sub-expressions
// are visited. The grammar nests each interpolation arbitrarily deep inside
// the template string, so this walks the full subtree rather than assuming
// a fixed field shape, skipping the processor identifier itself.
func (b *builder) visitTemplateExpression(id tree.NodeID) {
	processor, hasProcessor := fieldChild(b.t, id, "processor")
	if hasProcessor {
		name := text(b.t, processor)
		if name != "STR" && name != "FMT" {
			return
		}
	}
	for _, child := range templateInterpolations(b.t, id, processor) {
		b.visitExpr(child)
		b.propagateLastTaint(id)
	}
}

// templateInterpolations collects every identifier/expression occurrence
// nested under id, other than the processor node itself, in document order.
func templateInterpolations(t *tree.Tree, id, processor tree.NodeID) []tree.NodeID {
	var out []tree.NodeID
	var walk func(tree.NodeID, int)
	walk = func(n tree.NodeID, depth int) {
		if n == processor {
			return
		}
		children, err := t.Children(n)
		if err != nil {
			return
		}
		for _, c := range children {
			cn, ok := t.Node(c)
			if !ok || c == processor {
				continue
			}
			if cn.IsNamed && cn.Type == "identifier" && depth > 0 {
				out = append(out, c)
				continue
			}
			walk(c, depth+1)
		}
	}
	walk(id, 0)
	return out
}

// visitIdentifier: if the text is present in currentDefinition, emit
// DEPENDENCE(this -> current_def). Whether found or not, mark this node as
// lastTaintSource. Callers must only invoke this in value-bearing contexts
// (not, e.g., a receiver in a qualified name) — visitExpr's dispatch for
// field_access/method_reference already enforces that by never recursing
// into their qualifier.
func (b *builder) visitIdentifier(id tree.NodeID) {
	name := text(b.t, id)
	if def, ok := b.currentDef[name]; ok {
		b.graph.AddEdge(id, def, flow.Dependence)
	}
	b.setTaint(id)
}
