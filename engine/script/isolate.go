// Package script implements the script runtime (§4.2): one sandboxed,
// single-threaded isolate per worker, reused across files, exposing the op
// set (§4.1) and the flow graph library (§4.3) to rule scripts written in
// Go and interpreted by yaegi.
package script

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/shivasurya/code-pathfinder/ruleengine/engine/flow"
	javaflow "github.com/shivasurya/code-pathfinder/ruleengine/engine/flow/java"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/ops"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/rules"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/tree"
)

// allowedStdlib is the subset of the Go standard library rule scripts may
// import: enough for string/text manipulation, nothing that reaches the
// clock, RNG, filesystem, or network (§4.2 determinism requirement).
var allowedStdlib = []string{
	"strings/strings",
	"strconv/strconv",
	"fmt/fmt",
	"regexp/regexp",
	"sort/sort",
	"unicode/unicode",
}

// Budget bounds one rule invocation (§4.2): a wall-clock timeout and an
// execution-step ceiling. Exceeding either aborts the invocation.
type Budget struct {
	Timeout   time.Duration
	StepLimit int
}

// DefaultBudget is a conservative per-invocation budget suitable for a
// single method-sized rule pass.
var DefaultBudget = Budget{Timeout: 2 * time.Second, StepLimit: 200_000}

// Isolate is one sandboxed script execution context, created lazily and
// reused across files by its owning worker (§4.5). Its registered ops are
// installed once per rule and never mutated afterwards — the only thing
// that changes between invocations is which tree.Tree the ops.Registry is
// bound to.
//
// Each compiled rule gets its own private *interp.Interpreter rather than
// sharing one interpreter across the whole isolate (§8 Isolation): two rules
// that both declare a package-level identifier with the same name — say,
// `var seen = map[string]bool{}` in two independently authored rules — would
// otherwise collide inside yaegi's shared "main" package namespace, with the
// second rule's Eval silently redefining (or erroring on) the first rule's
// symbol depending on load order. A per-rule interpreter makes that
// impossible: every rule evaluates into its own "main", so no rule can ever
// observe or clobber another rule's top-level state within the same isolate.
type Isolate struct {
	registry  *ops.Registry // current binding; swapped by Bind before each invocation
	steps     int
	stepLimit int // step ceiling of the current invocation, set by Invoke
	compiled map[string]reflect.Value // ruleID -> compiled Visit func, each bound to its own private interpreter
}

// NewIsolate constructs a fresh isolate with ops and the flow library
// registered.
func NewIsolate() (*Isolate, error) {
	iso := &Isolate{compiled: make(map[string]reflect.Value)}
	if _, err := iso.newVM(); err != nil {
		return nil, err
	}
	return iso, nil
}

// newVM builds one fresh interpreter with the restricted stdlib and the
// op/flow/rules packages registered. Called once per rule compiled, so that
// every rule gets its own isolated package namespace (see Isolate doc).
func (iso *Isolate) newVM() (*interp.Interpreter, error) {
	vm := interp.New(interp.Options{})

	filtered := make(interp.Exports)
	for _, pkg := range allowedStdlib {
		if syms, ok := stdlib.Symbols[pkg]; ok {
			filtered[pkg] = syms
		}
	}
	if err := vm.Use(filtered); err != nil {
		return nil, fmt.Errorf("script: failed to load restricted stdlib: %w", err)
	}
	if err := vm.Use(iso.opsExports()); err != nil {
		return nil, fmt.Errorf("script: failed to register ops: %w", err)
	}
	if err := vm.Use(flowExports()); err != nil {
		return nil, fmt.Errorf("script: failed to register flow library: %w", err)
	}
	if err := vm.Use(rulesExports()); err != nil {
		return nil, fmt.Errorf("script: failed to register rule contract types: %w", err)
	}

	return vm, nil
}

// Bind attaches reg as the tree an invocation's ops resolve against, and
// resets the per-invocation step counter. Called by the driver immediately
// before each rule invocation.
func (iso *Isolate) Bind(reg *ops.Registry) {
	iso.registry = reg
	iso.steps = 0
}

// Reset clears every compiled rule. The driver calls it after a rule times
// out and the scheduler after a worker panic (§5 Cancellation, §7). Each rule gets a
// brand-new private interpreter the next time it is compiled, so Reset never
// needs to touch the bound registry or any other Isolate-level state — the
// *Isolate value the worker holds is unchanged, so callers never need to
// re-wire it into the scheduler.
func (iso *Isolate) Reset() error {
	iso.compiled = make(map[string]reflect.Value)
	return nil
}

// checkBudget increments the step counter and returns an error once the
// limit configured for the current invocation is exceeded. Every op wrapper
// calls this before doing its real work, so a rule that busy-loops purely in
// script (no ops) is bounded by the wall-clock timeout instead; one that
// calls ops in a loop is bounded here, within one op dispatch (§8 Budget).
func (iso *Isolate) checkBudget(limit int) error {
	iso.steps++
	if iso.steps > limit {
		return fmt.Errorf("step budget exceeded")
	}
	return nil
}

// CompileRule compiles ruleSource once, in its own private interpreter, and
// caches the exported Visit function under ruleID, per isolate (§4.4
// "compile once per isolate"; §8 Isolation — see the Isolate doc comment).
func (iso *Isolate) CompileRule(ruleID, ruleSource string) error {
	if _, ok := iso.compiled[ruleID]; ok {
		return nil
	}
	vm, err := iso.newVM()
	if err != nil {
		return &RuleCompileError{RuleID: ruleID, Err: err}
	}
	if _, err := vm.Eval(ruleSource); err != nil {
		return &RuleCompileError{RuleID: ruleID, Err: err}
	}
	v, err := vm.Eval("main.Visit")
	if err != nil {
		return &RuleCompileError{RuleID: ruleID, Err: fmt.Errorf("rule does not export Visit: %w", err)}
	}
	iso.compiled[ruleID] = v
	return nil
}

// Invoke runs ruleID's compiled Visit(ctx) against the tree currently bound
// via Bind, respecting budget. A rule that throws returns a
// RuleRuntimeError; one that exceeds its budget returns a RuleTimeout and no
// findings are taken.
func (iso *Isolate) Invoke(ctx context.Context, ruleID string, ruleCtx *rules.Context, budget Budget) ([]rules.Finding, error) {
	fn, ok := iso.compiled[ruleID]
	if !ok {
		return nil, fmt.Errorf("script: rule %s was not compiled", ruleID)
	}
	visit, ok := fn.Interface().(func(*rules.Context) []rules.Finding)
	if !ok {
		return nil, &RuleCompileError{RuleID: ruleID, Err: fmt.Errorf("Visit has the wrong signature")}
	}

	iso.stepLimit = budget.StepLimit
	if iso.stepLimit <= 0 {
		iso.stepLimit = DefaultBudget.StepLimit
	}

	deadline, cancel := context.WithTimeout(ctx, budget.Timeout)
	defer cancel()

	type result struct {
		findings []rules.Finding
		err      error
	}
	resultCh := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		resultCh <- result{findings: visit(ruleCtx)}
	}()

	select {
	case r := <-resultCh:
		if iso.steps > iso.stepLimit {
			return nil, &RuleTimeout{RuleID: ruleID, File: ruleCtx.FilePath, Reason: "step-budget"}
		}
		if r.err != nil {
			return nil, &RuleRuntimeError{RuleID: ruleID, File: ruleCtx.FilePath, Err: r.err}
		}
		return r.findings, nil
	case <-deadline.Done():
		return nil, &RuleTimeout{RuleID: ruleID, File: ruleCtx.FilePath, Reason: "wall-clock"}
	}
}

// opsExports builds the "pathfinder/ops" package scripts import to reach
// get_children/get_parent/get_text/get_type/get_range/bin_expr_operator/
// get_js_imports. Each wrapper except GetJSImports checks the step budget
// before delegating to the currently bound ops.Registry; GetJSImports does
// not count against the budget.
func (iso *Isolate) opsExports() interp.Exports {
	const pkg = "pathfinder/ops/ops"
	return interp.Exports{
		pkg: map[string]reflect.Value{
			"GetChildren": reflect.ValueOf(func(id uint32) ([]ops.ChildRef, error) {
				if err := iso.checkBudget(iso.stepLimit); err != nil {
					return nil, err
				}
				return iso.registry.GetChildren(id)
			}),
			"GetParent": reflect.ValueOf(func(id uint32) (uint32, bool, error) {
				if err := iso.checkBudget(iso.stepLimit); err != nil {
					return 0, false, err
				}
				return iso.registry.GetParent(id)
			}),
			"GetText": reflect.ValueOf(func(id uint32) (string, error) {
				if err := iso.checkBudget(iso.stepLimit); err != nil {
					return "", err
				}
				return iso.registry.GetText(id)
			}),
			"GetType": reflect.ValueOf(func(id uint32) (string, error) {
				if err := iso.checkBudget(iso.stepLimit); err != nil {
					return "", err
				}
				return iso.registry.GetType(id)
			}),
			"GetRange": reflect.ValueOf(func(id uint32) (ops.Range, error) {
				if err := iso.checkBudget(iso.stepLimit); err != nil {
					return ops.Range{}, err
				}
				return iso.registry.GetRange(id)
			}),
			"BinExprOperator": reflect.ValueOf(func(id uint32) (ops.BinaryOperator, error) {
				if err := iso.checkBudget(iso.stepLimit); err != nil {
					return ops.OpIgnored, err
				}
				return iso.registry.BinExprOperator(id)
			}),
			"GetJSImports": reflect.ValueOf(func() []ops.Import {
				return iso.registry.GetJSImports()
			}),
		},
	}
}

// flowExports builds the built-in "flow/graph" and "flow/java" modules
// (§6): the Digraph type and the Java MethodFlow builder, available to any
// rule that imports them.
func flowExports() interp.Exports {
	return interp.Exports{
		"pathfinder/flow/flow": map[string]reflect.Value{
			"Digraph":    reflect.ValueOf((*flow.Digraph)(nil)),
			"Edge":       reflect.ValueOf(flow.Edge{}),
			"Assignment": reflect.ValueOf(flow.Assignment),
			"Dependence": reflect.ValueOf(flow.Dependence),
			"New":        reflect.ValueOf(flow.New),
		},
		"pathfinder/flow/java/java": map[string]reflect.Value{
			"BuildMethodFlow": reflect.ValueOf(javaflow.BuildMethodFlow),
		},
		"pathfinder/tree/tree": map[string]reflect.Value{
			"NodeID": reflect.ValueOf(tree.NodeID(0)),
		},
	}
}

// rulesExports exposes the rule contract types (Context, Finding, Severity)
// so rule scripts can reference them without this package importing the
// rule driver (which depends on script to run rules — see engine/driver).
func rulesExports() interp.Exports {
	return interp.Exports{
		"pathfinder/rules/rules": map[string]reflect.Value{
			"Context":       reflect.ValueOf(rules.Context{}),
			"Finding":       reflect.ValueOf(rules.Finding{}),
			"Position":      reflect.ValueOf(rules.Position{}),
			"TaintPathNode": reflect.ValueOf(rules.TaintPathNode{}),
			"SeverityInfo":     reflect.ValueOf(rules.SeverityInfo),
			"SeverityWarning":  reflect.ValueOf(rules.SeverityWarning),
			"SeverityError":    reflect.ValueOf(rules.SeverityError),
			"SeverityCritical": reflect.ValueOf(rules.SeverityCritical),
		},
	}
}
