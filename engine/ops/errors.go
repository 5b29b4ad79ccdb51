package ops

import "fmt"

// BadArgument is surfaced to script whenever an op receives an id or argument
// that does not belong to the bound tree (§7 BadArgument).
type BadArgument struct {
	Op     string
	NodeID uint32
	Reason string
}

func (e *BadArgument) Error() string {
	return fmt.Sprintf("op %s: bad argument (node %d): %s", e.Op, e.NodeID, e.Reason)
}

func badArg(op string, id uint32, reason string) error {
	return &BadArgument{Op: op, NodeID: id, Reason: reason}
}
