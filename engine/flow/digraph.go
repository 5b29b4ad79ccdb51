// Package flow implements the Digraph exported to rule scripts as the
// built-in flow/graph module (§4.3, §6).
package flow

import "github.com/shivasurya/code-pathfinder/ruleengine/engine/tree"

// EdgeKind distinguishes the two edge semantics a builder can emit.
type EdgeKind string

const (
	// Assignment records lhs_identifier -> rhs_expr: lhs was written with
	// rhs as value at this program point.
	Assignment EdgeKind = "ASSIGNMENT"
	// Dependence records consumer -> producer: consumer syntactically
	// derives its value, wholly or partially, from producer.
	Dependence EdgeKind = "DEPENDENCE"
)

// Edge is one typed directed edge (from, to, kind).
type Edge struct {
	From tree.NodeID
	To   tree.NodeID
	Kind EdgeKind
}

// Digraph is a set of vertices keyed by node_id and a set of typed directed
// edges. Multi-edges are allowed only if kinds differ; the builder never
// produces self-loops. Iteration order matches insertion order, so two runs
// over the same method produce isomorphic, order-identical graphs (§8).
type Digraph struct {
	vertices map[tree.NodeID]struct{}
	order    []tree.NodeID
	edges    []Edge
	seen     map[Edge]struct{}
}

// New returns an empty Digraph.
func New() *Digraph {
	return &Digraph{
		vertices: make(map[tree.NodeID]struct{}),
		seen:     make(map[Edge]struct{}),
	}
}

// AddVertex registers id as a vertex if it isn't already one. Idempotent.
func (g *Digraph) AddVertex(id tree.NodeID) {
	if _, ok := g.vertices[id]; ok {
		return
	}
	g.vertices[id] = struct{}{}
	g.order = append(g.order, id)
}

// AddEdge registers both endpoints as vertices and appends the edge, unless
// it is a self-loop (never produced by the builder) or a duplicate of an
// edge with the same (from, to, kind) already present.
func (g *Digraph) AddEdge(from, to tree.NodeID, kind EdgeKind) {
	if from == to {
		return
	}
	g.AddVertex(from)
	g.AddVertex(to)
	e := Edge{From: from, To: to, Kind: kind}
	if _, dup := g.seen[e]; dup {
		return
	}
	g.seen[e] = struct{}{}
	g.edges = append(g.edges, e)
}

// Vertices returns vertex ids in insertion order.
func (g *Digraph) Vertices() []tree.NodeID {
	out := make([]tree.NodeID, len(g.order))
	copy(out, g.order)
	return out
}

// Edges returns edges in insertion (visitation) order.
func (g *Digraph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// VertexCount reports the number of distinct vertices.
func (g *Digraph) VertexCount() int { return len(g.order) }

// EdgeCount reports the number of distinct edges.
func (g *Digraph) EdgeCount() int { return len(g.edges) }
