// Package tree defines the CST node registry: a stable, dense integer
// identifier space over a parsed file's concrete syntax tree, consulted by
// the script side without copying node data (see ops.Registry).
package tree

// NodeID is a stable identifier for a CstNode, unique within one Tree.
// IDs are dense and monotonically increasing in a pre-order walk of the
// tree, starting at the root.
type NodeID uint32

// NoNode is the id returned in place of a parent id for the root node.
const NoNode NodeID = ^NodeID(0)

// Point is a 1-indexed line/column source position.
type Point struct {
	Line   int
	Column int
}

// CstNode is the native-side representation of one CST node. Script code
// never sees this struct directly — it only ever holds a NodeID and reaches
// node data through the ops in package ops.
type CstNode struct {
	ID         NodeID
	Type       string // grammar symbol, e.g. "binary_expression"
	FieldName  string // grammar-assigned role in its parent, "" if none
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	IsNamed    bool
}

// Range returns the node's start/end positions as a pair, mirroring the
// get_range op's result shape.
func (n *CstNode) Range() (start, end Point) {
	return n.StartPoint, n.EndPoint
}
