// Package ops implements the native op set (§4.1): pure functions from
// (script-visible arguments, bound tree) to a serializable result. No op
// retains state across invocations — all per-invocation state lives on the
// Registry the driver binds fresh for each (file, rule) pair.
package ops

import (
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/tree"
)

// ChildRef is one entry of get_children's result: a child id plus the
// grammar-assigned field name it holds in its parent, if any.
type ChildRef struct {
	ID        uint32
	FieldName string
}

// Range mirrors get_range's result: start/end line-column positions.
type Range struct {
	StartLine, StartColumn int
	EndLine, EndColumn     int
}

// BinaryOperator is the result enum of bin_expr_operator.
type BinaryOperator string

const (
	OpIgnored BinaryOperator = "IGNORED"
	OpAdd     BinaryOperator = "ADD"
	OpSub     BinaryOperator = "SUB"
	OpMul     BinaryOperator = "MUL"
	OpDiv     BinaryOperator = "DIV"
	OpMod     BinaryOperator = "MOD"
	OpAnd     BinaryOperator = "AND"
	OpOr      BinaryOperator = "OR"
	OpEq      BinaryOperator = "EQ"
	OpNeq     BinaryOperator = "NEQ"
	OpLt      BinaryOperator = "LT"
	OpGt      BinaryOperator = "GT"
	OpLte     BinaryOperator = "LTE"
	OpGte     BinaryOperator = "GTE"
)

// javaBinaryOperators maps the java grammar's literal operator tokens to the
// op enum. Anything not listed here is IGNORED, matching "only ADD
// propagates taint" in the flow builder (§4.3) — but the op itself reports
// the real operator so other rules can use it for non-flow purposes.
var javaBinaryOperators = map[string]BinaryOperator{
	"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "%": OpMod,
	"&&": OpAnd, "||": OpOr, "==": OpEq, "!=": OpNeq,
	"<": OpLt, ">": OpGt, "<=": OpLte, ">=": OpGte,
}

// Import is one entry of get_js_imports' result.
type Import struct {
	Name         string
	ImportedFrom string // "" if not applicable (⊥)
	ImportedAs   string // "" if not applicable (⊥)
}

// Registry binds one Tree (and, for JS/TS files, its extracted imports) for
// the lifetime of a single rule invocation. It is created fresh per (file,
// rule) pair by the driver and never shared across invocations.
type Registry struct {
	Tree    *tree.Tree
	imports []Import
}

// NewRegistry binds t for the ops below. imports should be precomputed by
// the parser front-end for JS/TS files (nil otherwise).
func NewRegistry(t *tree.Tree, imports []Import) *Registry {
	return &Registry{Tree: t, imports: imports}
}

func (r *Registry) checkID(op string, id uint32) error {
	if !r.Tree.Valid(tree.NodeID(id)) {
		return badArg(op, id, "node id does not belong to the bound tree")
	}
	return nil
}

// GetChildren implements get_children(id): ordered child ids with field
// names, including comment children.
func (r *Registry) GetChildren(id uint32) ([]ChildRef, error) {
	if err := r.checkID("get_children", id); err != nil {
		return nil, err
	}
	children, err := r.Tree.Children(tree.NodeID(id))
	if err != nil {
		return nil, badArg("get_children", id, err.Error())
	}
	out := make([]ChildRef, 0, len(children))
	for _, c := range children {
		n, _ := r.Tree.Node(c)
		out = append(out, ChildRef{ID: uint32(c), FieldName: n.FieldName})
	}
	return out, nil
}

// GetParent implements get_parent(id): the parent id, or ok=false for root.
func (r *Registry) GetParent(id uint32) (parent uint32, ok bool, err error) {
	if err := r.checkID("get_parent", id); err != nil {
		return 0, false, err
	}
	p, has, err := r.Tree.Parent(tree.NodeID(id))
	if err != nil {
		return 0, false, badArg("get_parent", id, err.Error())
	}
	if !has {
		return 0, false, nil
	}
	return uint32(p), true, nil
}

// GetText implements get_text(id): the UTF-8 slice of file bytes over id's
// range, upholding the text(n) substring invariant (§8).
func (r *Registry) GetText(id uint32) (string, error) {
	if err := r.checkID("get_text", id); err != nil {
		return "", err
	}
	text, err := r.Tree.Text(tree.NodeID(id))
	if err != nil {
		return "", badArg("get_text", id, err.Error())
	}
	return text, nil
}

// GetType implements get_type(id): the grammar symbol.
func (r *Registry) GetType(id uint32) (string, error) {
	if err := r.checkID("get_type", id); err != nil {
		return "", err
	}
	n, _ := r.Tree.Node(tree.NodeID(id))
	return n.Type, nil
}

// GetRange implements get_range(id).
func (r *Registry) GetRange(id uint32) (Range, error) {
	if err := r.checkID("get_range", id); err != nil {
		return Range{}, err
	}
	n, _ := r.Tree.Node(tree.NodeID(id))
	return Range{
		StartLine: n.StartPoint.Line, StartColumn: n.StartPoint.Column,
		EndLine: n.EndPoint.Line, EndColumn: n.EndPoint.Column,
	}, nil
}

// BinExprOperator implements bin_expr_operator(id): language-specific;
// non-Java trees (or non-binary_expression nodes) report IGNORED.
func (r *Registry) BinExprOperator(id uint32) (BinaryOperator, error) {
	if err := r.checkID("bin_expr_operator", id); err != nil {
		return OpIgnored, err
	}
	n, _ := r.Tree.Node(tree.NodeID(id))
	if r.Tree.Language != "java" || n.Type != "binary_expression" {
		return OpIgnored, nil
	}
	children, _ := r.Tree.Children(tree.NodeID(id))
	for _, c := range children {
		cn, _ := r.Tree.Node(c)
		if cn.IsNamed {
			continue
		}
		text, err := r.Tree.Text(c)
		if err != nil {
			continue
		}
		if op, ok := javaBinaryOperators[text]; ok {
			return op, nil
		}
	}
	return OpIgnored, nil
}

// GetJSImports implements get_js_imports(): only meaningful for JS/TS files;
// returns the imports the parser front-end precomputed for this file.
func (r *Registry) GetJSImports() []Import {
	return r.imports
}
