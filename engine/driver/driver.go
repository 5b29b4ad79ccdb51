// Package driver implements the rule driver (§4.4): for each (file, rule)
// pair, compile the rule once, invoke it with a bound tree, collect and tag
// findings, and deduplicate.
package driver

import (
	"context"
	"fmt"
	"sort"

	"github.com/shivasurya/code-pathfinder/ruleengine/engine/ops"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/parse"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/rules"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/script"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/tree"
)

// FileResult is what RunFile returns: the findings surfaced for one file
// plus any errors recorded along the way (none of which abort the run).
type FileResult struct {
	File      string
	Findings  []rules.Finding
	Errors    []error
	Partial   bool // set when the file's rule-set exceeded its overall timeout
	ParseFail bool
}

// Driver runs one worker's rule set against files, one file at a time,
// reusing a single script.Isolate across files (§4.5).
type Driver struct {
	Isolate       *script.Isolate
	Modules       []rules.Module // the full rule corpus; RunFile skips modules whose Language differs from the file's
	Budget        script.Budget
	MaxTimeouts   int // consecutive timeouts before a rule is disabled (§7)
	timeoutStreak map[string]int
	disabled      map[string]bool
}

// New constructs a Driver over an isolate and a rule corpus.
func New(iso *script.Isolate, modules []rules.Module, budget script.Budget) *Driver {
	return &Driver{
		Isolate:       iso,
		Modules:       modules,
		Budget:        budget,
		MaxTimeouts:   3,
		timeoutStreak: make(map[string]int),
		disabled:      make(map[string]bool),
	}
}

// RunFile parses file once and runs every applicable, non-disabled rule
// against it, in rule-set order, collecting and deduplicating findings.
func (d *Driver) RunFile(ctx context.Context, p *parse.Parser, lang parse.Language, path string, source []byte) FileResult {
	result := FileResult{File: path}

	t, err := p.Parse(ctx, path, source)
	if err != nil {
		result.ParseFail = true
		result.Errors = append(result.Errors, fmt.Errorf("ParseError: %w", err))
		return result
	}

	var imports []ops.Import
	if lang == parse.JavaScript || lang == parse.TypeScript {
		imports = parse.ExtractJSImports(t)
	}

	seen := make(map[findingKey]struct{})

	for _, m := range d.Modules {
		if m.Language != string(lang) {
			continue
		}
		if d.disabled[m.ID] {
			continue
		}
		findings, err := d.runRule(ctx, m, t, path, source, imports, lang)
		if err != nil {
			result.Errors = append(result.Errors, err)
			if _, isTimeout := err.(*timeoutKind); isTimeout {
				d.recordTimeout(m.ID)
				_ = d.Isolate.Reset()
			}
			continue
		}
		d.timeoutStreak[m.ID] = 0

		for _, f := range findings {
			f.RuleID = m.ID
			f.File = path
			if outOfRange(f, source) {
				continue
			}
			key := findingKey{ruleID: f.RuleID, sl: f.Start.Line, sc: f.Start.Column, el: f.End.Line, ec: f.End.Column, msg: f.Message}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			result.Findings = append(result.Findings, f)
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.Partial = true
	}
	canonicalSort(result.Findings)
	return result
}

// timeoutKind lets RunFile distinguish a *script.RuleTimeout without
// importing it directly into the error-type switch in two places.
type timeoutKind = script.RuleTimeout

func (d *Driver) runRule(ctx context.Context, m rules.Module, t *tree.Tree, path string, source []byte, imports []ops.Import, lang parse.Language) ([]rules.Finding, error) {
	if err := d.Isolate.CompileRule(m.ID, m.Source); err != nil {
		d.disabled[m.ID] = true
		return nil, err
	}

	reg := ops.NewRegistry(t, imports)
	d.Isolate.Bind(reg)

	ruleCtx := &rules.Context{
		TreeRootID: uint32(t.Root()),
		FilePath:   path,
		FileText:   string(source),
		Imports:    toRuleImports(imports),
		Language:   string(lang),
	}

	findings, err := d.Isolate.Invoke(ctx, m.ID, ruleCtx, d.Budget)
	if err != nil {
		return nil, err
	}
	return findings, nil
}

func (d *Driver) recordTimeout(ruleID string) {
	d.timeoutStreak[ruleID]++
	if d.timeoutStreak[ruleID] >= d.MaxTimeouts {
		d.disabled[ruleID] = true
	}
}

func toRuleImports(in []ops.Import) []rules.Import {
	if in == nil {
		return nil
	}
	out := make([]rules.Import, len(in))
	for i, v := range in {
		out[i] = rules.Import{Name: v.Name, ImportedFrom: v.ImportedFrom, ImportedAs: v.ImportedAs}
	}
	return out
}

// outOfRange rejects findings whose region lies outside the file (§4.4).
func outOfRange(f rules.Finding, source []byte) bool {
	lines := 1
	for _, b := range source {
		if b == '\n' {
			lines++
		}
	}
	if f.Start.Line < 1 || f.End.Line < 1 {
		return true
	}
	if f.Start.Line > lines || f.End.Line > lines {
		return true
	}
	if f.End.Line < f.Start.Line {
		return true
	}
	return false
}

type findingKey struct {
	ruleID       string
	sl, sc, el, ec int
	msg          string
}

// canonicalSort orders findings by (line, column, rule id), the driver's
// contract for stable within-file output (§5 Ordering guarantees). Run-level
// sorting by (file, line, column, rule id) happens one level up, in the
// scheduler, once every file's findings are collected.
func canonicalSort(findings []rules.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Start.Line != b.Start.Line {
			return a.Start.Line < b.Start.Line
		}
		if a.Start.Column != b.Start.Column {
			return a.Start.Column < b.Start.Column
		}
		return a.RuleID < b.RuleID
	})
}
