// Package rules defines the rule module contract (§6): the Context a script
// rule receives, and the Finding shape it returns. It has no dependency on
// the script runtime so that both script.Isolate and engine/driver can
// depend on it without a cycle.
package rules

// Severity is the finding's reported severity.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Position is a 1-indexed line/column source position, mirroring
// ops.Range/tree.Point.
type Position struct {
	Line   int
	Column int
}

// TaintPathNode is one step in a finding's taint path, populated when a rule
// derived the finding from a flow.Digraph closure. Grounded on
// dsl/enriched_detection.go's TaintPathNode, trimmed of the
// inter-procedural-only fields.
type TaintPathNode struct {
	Position    Position
	Variable    string
	Description string
	IsSource    bool
	IsSink      bool
}

// Finding is what a rule invocation returns and what the driver aggregates.
type Finding struct {
	RuleID   string
	File     string
	Start    Position
	End      Position
	Message  string
	Severity Severity

	// FixHint is an optional suggested replacement for the finding's range.
	FixHint string

	// TaintPath is non-nil when the rule built the finding from a
	// flow.Digraph; empty otherwise (a plain structural pattern match).
	TaintPath []TaintPathNode
}

// Import mirrors ops.Import; duplicated here (rather than imported) to keep
// this package free of a dependency on engine/ops, matching the "Context
// provides... only serializable values" contract scripts see.
type Import struct {
	Name         string
	ImportedFrom string
	ImportedAs   string
}

// Context is what a rule's Visit function receives (§6): the bound tree's
// root id, the file's text, and per-file context. Rules reach the rest of
// the tree only through the ops bound alongside this Context in the same
// isolate invocation.
type Context struct {
	TreeRootID uint32
	FilePath   string
	FileText   string
	Imports    []Import // non-nil only for JS/TS files
	Language   string
}

// Module is the compiled form of one rule: its id, source language the rule
// targets, and script source. Populated by a Loader (the rule corpus
// interface, §6).
type Module struct {
	ID       string
	Language string
	Source   string
	Config   map[string]string
}
