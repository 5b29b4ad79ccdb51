// Package java implements the reference MethodFlow builder (spec §4.3): an
// intra-procedural, CST-only visitor over one method_declaration that
// produces a flow.Digraph of ASSIGNMENT and DEPENDENCE edges between
// identifier occurrences. No block scoping, no SSA, no control-flow merge —
// branches are visited sequentially, by design (see DESIGN.md).
package java

import (
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/flow"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/tree"
)

// cut is returned by visitStmt to tell the caller whether control can fall
// through to the next sibling in a statement list.
type cut bool

const (
	fallsThrough cut = false
	cutsFlow     cut = true
)

// builder holds the three pieces of traversal state named in §4.3.
type builder struct {
	t          *tree.Tree
	graph      *flow.Digraph
	currentDef map[string]tree.NodeID // CurrentDefinition map
	lastTaint  *tree.NodeID           // LastTaintSource, nil when unset
}

// BuildMethodFlow walks methodDeclID's body and returns the resulting
// Digraph. methodDeclID must be a method_declaration (or constructor_
// declaration) node; a method with no body, or zero statements, yields an
// empty Digraph.
func BuildMethodFlow(t *tree.Tree, methodDeclID tree.NodeID) *flow.Digraph {
	b := &builder{t: t, graph: flow.New(), currentDef: make(map[string]tree.NodeID)}
	body, ok := fieldChild(t, methodDeclID, "body")
	if !ok {
		return b.graph
	}
	b.visitBlock(body)
	return b.graph
}

// fieldChild returns the first child of id carrying the given field name.
func fieldChild(t *tree.Tree, id tree.NodeID, field string) (tree.NodeID, bool) {
	children, err := t.Children(id)
	if err != nil {
		return 0, false
	}
	for _, c := range children {
		n, ok := t.Node(c)
		if ok && n.FieldName == field {
			return c, true
		}
	}
	return 0, false
}

// namedChildren returns id's named children, excluding anonymous tokens
// (punctuation, keywords, operators). Named extras such as comments are
// kept.
func namedChildren(t *tree.Tree, id tree.NodeID) []tree.NodeID {
	children, err := t.Children(id)
	if err != nil {
		return nil
	}
	out := make([]tree.NodeID, 0, len(children))
	for _, c := range children {
		if n, ok := t.Node(c); ok && n.IsNamed {
			out = append(out, c)
		}
	}
	return out
}

func nodeType(t *tree.Tree, id tree.NodeID) string {
	n, ok := t.Node(id)
	if !ok {
		return ""
	}
	return n.Type
}

func text(t *tree.Tree, id tree.NodeID) string {
	s, _ := t.Text(id)
	return s
}

// propagateLastTaint is the propagation primitive (§4.3): if lastTaint is
// set and target is not a comment node, add DEPENDENCE(target -> taint),
// then replace lastTaint with target.
func (b *builder) propagateLastTaint(target tree.NodeID) {
	if b.lastTaint == nil {
		return
	}
	if nodeType(b.t, target) == "comment" {
		return
	}
	b.graph.AddEdge(target, *b.lastTaint, flow.Dependence)
	t := target
	b.lastTaint = &t
}

func (b *builder) clearTaint() { b.lastTaint = nil }

func (b *builder) setTaint(id tree.NodeID) {
	t := id
	b.lastTaint = &t
}
