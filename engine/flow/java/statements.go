package java

import (
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/flow"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/tree"
)

// visitBlock visits a block's children as a statement list (§4.3 Block).
// Scoping simplification: names bound inside the block remain visible after
// the block exits — currentDef is never snapshotted/restored here.
func (b *builder) visitBlock(id tree.NodeID) cut {
	return b.visitExprStmtList(namedChildren(b.t, id))
}

// visitExprStmtList visits statements in order; a break/throw/continue cuts
// the sequence, and return/yield propagate their last taint into the
// enclosing ancestor before cutting.
func (b *builder) visitExprStmtList(stmts []tree.NodeID) cut {
	for _, s := range stmts {
		if b.visitStatement(s) == cutsFlow {
			return cutsFlow
		}
	}
	return fallsThrough
}

// visitStatement dispatches on cst_type with a single switch on the node's
// type string; grammar symbols are not interned, so each dispatch compares
// strings.
func (b *builder) visitStatement(id tree.NodeID) cut {
	switch nodeType(b.t, id) {
	case "block":
		return b.visitBlock(id)

	case "local_variable_declaration":
		b.visitLocalVariableDeclaration(id)
		return fallsThrough

	case "expression_statement":
		b.visitExprStatement(id)
		return fallsThrough

	case "if_statement":
		b.visitIfStatement(id)
		return fallsThrough

	case "for_statement", "enhanced_for_statement", "while_statement", "do_statement":
		b.visitLoop(id)
		return fallsThrough

	case "try_statement", "try_with_resources_statement":
		b.visitTry(id)
		return fallsThrough

	case "switch_expression", "switch_statement":
		b.visitSwitch(id)
		return fallsThrough

	case "synchronized_statement", "labeled_statement":
		b.visitWrapperStatement(id)
		return fallsThrough

	case "return_statement", "yield_statement":
		b.visitReturnOrYield(id)
		return cutsFlow

	case "break_statement", "throw_statement", "continue_statement":
		return cutsFlow

	default:
		// Unrecognized statement kinds (assert, block comments, declarations
		// without a dataflow-relevant shape) are no-ops: they neither
		// produce edges nor cut the sequence.
		return fallsThrough
	}
}

// visitLocalVariableDeclaration: for each declarator with a value, visit the
// RHS, emit ASSIGNMENT(lhs -> rhs), record lhs in currentDefinition, clear
// lastTaintSource.
func (b *builder) visitLocalVariableDeclaration(id tree.NodeID) {
	for _, child := range namedChildren(b.t, id) {
		if nodeType(b.t, child) != "variable_declarator" {
			continue
		}
		name, hasName := fieldChild(b.t, child, "name")
		value, hasValue := fieldChild(b.t, child, "value")
		if !hasName || !hasValue {
			continue
		}
		b.visitExpr(value)
		b.graph.AddEdge(name, value, flow.Assignment)
		b.currentDef[text(b.t, name)] = name
		b.clearTaint()
	}
}

// visitExprStatement visits the inner expression, then clears taint.
func (b *builder) visitExprStatement(id tree.NodeID) {
	for _, child := range namedChildren(b.t, id) {
		b.visitExpr(child)
	}
	b.clearTaint()
}

// visitIfStatement: ignore the condition's mutations; visit consequence and
// alternative in sequence (branches are NOT mutually exclusive here),
// propagating their taint to the statement.
func (b *builder) visitIfStatement(id tree.NodeID) {
	if cons, ok := fieldChild(b.t, id, "consequence"); ok {
		b.visitStatement(cons)
		b.propagateLastTaint(id)
	}
	if alt, ok := fieldChild(b.t, id, "alternative"); ok {
		b.visitStatement(alt)
		b.propagateLastTaint(id)
	}
}

// visitLoop: ignore condition/update; visit the body once (no unrolling).
func (b *builder) visitLoop(id tree.NodeID) {
	if body, ok := fieldChild(b.t, id, "body"); ok {
		b.visitStatement(body)
		b.propagateLastTaint(id)
	}
}

// visitTry: visit the try body, then each catch body, then the finally body,
// in that order.
func (b *builder) visitTry(id tree.NodeID) {
	if body, ok := fieldChild(b.t, id, "body"); ok {
		b.visitStatement(body)
	}
	for _, child := range namedChildren(b.t, id) {
		if nodeType(b.t, child) == "catch_clause" {
			if body, ok := fieldChild(b.t, child, "body"); ok {
				b.visitStatement(body)
			}
		}
	}
	for _, child := range namedChildren(b.t, id) {
		if nodeType(b.t, child) == "finally_clause" {
			if body, ok := fieldChild(b.t, child, "body"); ok {
				b.visitStatement(body)
			}
		}
	}
}

// visitSwitch: ignore the selector; for each switch-block-statement-group
// visit its statements as a statement list.
func (b *builder) visitSwitch(id tree.NodeID) {
	body, ok := fieldChild(b.t, id, "body")
	if !ok {
		return
	}
	for _, group := range namedChildren(b.t, body) {
		switch nodeType(b.t, group) {
		case "switch_block_statement_group":
			b.visitExprStmtList(namedChildren(b.t, group))
		case "switch_rule":
			for _, c := range namedChildren(b.t, group) {
				b.visitStatement(c)
			}
		}
	}
}

// visitWrapperStatement (synchronized/labeled): visit body.
func (b *builder) visitWrapperStatement(id tree.NodeID) {
	if body, ok := fieldChild(b.t, id, "body"); ok {
		b.visitStatement(body)
		return
	}
	// labeled_statement's body is its last named child in this grammar.
	children := namedChildren(b.t, id)
	if len(children) > 0 {
		b.visitStatement(children[len(children)-1])
	}
}

// visitReturnOrYield propagates the return/yield value's taint into the
// enclosing ancestor before the statement cuts the sequence.
func (b *builder) visitReturnOrYield(id tree.NodeID) {
	for _, child := range namedChildren(b.t, id) {
		b.visitExpr(child)
	}
	b.propagateLastTaint(id)
}
