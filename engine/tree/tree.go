package tree

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Tree is a parsed, immutable CST plus its node registry: a bidirectional
// id<->node lookup and a parent index. Owned by one worker for the duration
// of one file's analysis; never mutated after Build returns.
type Tree struct {
	Language string
	File     string
	Source   []byte

	nodes    []*CstNode // dense, index i holds the node with ID(i)
	children [][]NodeID // children[i] are the child ids of node i, in order
	parent   []NodeID   // parent[i] is the parent id of node i, or NoNode
	root     NodeID
}

// Build walks a parsed sitter.Tree in pre-order, assigning dense monotonically
// increasing NodeIDs and recording the parent/children index. Comment nodes
// and other grammar trivia are included, matching get_children's contract.
func Build(language, file string, source []byte, parsed *sitter.Tree) *Tree {
	t := &Tree{Language: language, File: file, Source: source}
	if parsed == nil || parsed.RootNode() == nil {
		return t
	}

	cursor := sitter.NewTreeCursor(parsed.RootNode())
	defer cursor.Close()

	t.root = t.visit(cursor, NoNode)
	return t
}

// visit assigns the current cursor node an id, recurses into its children in
// order, and returns the assigned id. parentID is NoNode for the tree root.
func (t *Tree) visit(cursor *sitter.TreeCursor, parentID NodeID) NodeID {
	raw := cursor.CurrentNode()
	id := NodeID(len(t.nodes))

	n := &CstNode{
		ID:        id,
		Type:      raw.Type(),
		FieldName: cursor.CurrentFieldName(),
		StartByte: raw.StartByte(),
		EndByte:   raw.EndByte(),
		IsNamed:   raw.IsNamed(),
	}
	n.StartPoint = Point{Line: int(raw.StartPoint().Row) + 1, Column: int(raw.StartPoint().Column) + 1}
	n.EndPoint = Point{Line: int(raw.EndPoint().Row) + 1, Column: int(raw.EndPoint().Column) + 1}

	t.nodes = append(t.nodes, n)
	t.children = append(t.children, nil)
	t.parent = append(t.parent, parentID)

	if parentID != NoNode {
		t.children[parentID] = append(t.children[parentID], id)
	}

	if cursor.GoToFirstChild() {
		for {
			t.visit(cursor, id)
			if !cursor.GoToNextSibling() {
				break
			}
		}
		cursor.GoToParent()
	}

	return id
}

// Root returns the id of the tree's root node.
func (t *Tree) Root() NodeID { return t.root }

// NodeCount returns the number of nodes registered in this tree.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// Node looks up a node by id. Returns false if id is out of range.
func (t *Tree) Node(id NodeID) (*CstNode, bool) {
	if int(id) < 0 || int(id) >= len(t.nodes) {
		return nil, false
	}
	return t.nodes[id], true
}

// Children returns the ordered child ids of id, or an error if id is invalid.
func (t *Tree) Children(id NodeID) ([]NodeID, error) {
	if int(id) < 0 || int(id) >= len(t.children) {
		return nil, fmt.Errorf("tree: node id %d out of range [0,%d)", id, len(t.children))
	}
	return t.children[id], nil
}

// Parent returns the parent id of id. The second return is false for the
// root node, matching parent(root) = ⊥.
func (t *Tree) Parent(id NodeID) (NodeID, bool, error) {
	if int(id) < 0 || int(id) >= len(t.parent) {
		return NoNode, false, fmt.Errorf("tree: node id %d out of range [0,%d)", id, len(t.parent))
	}
	p := t.parent[id]
	return p, p != NoNode, nil
}

// Text returns the substring of file bytes over id's byte range: the
// node-text invariant every CstNode must satisfy.
func (t *Tree) Text(id NodeID) (string, error) {
	n, ok := t.Node(id)
	if !ok {
		return "", fmt.Errorf("tree: node id %d out of range [0,%d)", id, len(t.nodes))
	}
	if int(n.EndByte) > len(t.Source) || n.StartByte > n.EndByte {
		return "", fmt.Errorf("tree: node id %d has an invalid byte range", id)
	}
	return string(t.Source[n.StartByte:n.EndByte]), nil
}

// Valid reports whether id belongs to this tree, the check every op must
// perform before touching node data.
func (t *Tree) Valid(id NodeID) bool {
	return int(id) >= 0 && int(id) < len(t.nodes)
}
