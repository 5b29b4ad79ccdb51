package output

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/shivasurya/code-pathfinder/ruleengine/dsl"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/rules"
)

// Enricher adds display metadata (resolved relative path, code snippet,
// confidence bucket) to a raw engine finding. Grounded on the teacher's
// callgraph-backed Enricher, simplified because an engine/rules.Finding
// already carries its own resolved file/line/column — there is no FQN to
// resolve against a call graph, so the callgraph dependency is dropped
// entirely rather than adapted.
type Enricher struct {
	options   *OutputOptions
	fileCache map[string][]string // cache file contents by absolute path
}

// NewEnricher creates an enricher.
func NewEnricher(opts *OutputOptions) *Enricher {
	if opts == nil {
		opts = NewDefaultOptions()
	}
	return &Enricher{
		options:   opts,
		fileCache: make(map[string][]string),
	}
}

// EnrichFinding transforms one engine finding into an enriched detection
// ready for any formatter.
func (e *Enricher) EnrichFinding(f rules.Finding) (*dsl.EnrichedDetection, error) {
	enriched := &dsl.EnrichedDetection{
		DetectionType: e.determineDetectionType(f),
		Detection:     e.buildDataflowDetection(f),
	}

	loc := e.buildLocation(f)
	enriched.Location = loc

	snippet, err := e.extractSnippet(loc)
	if err == nil {
		enriched.Snippet = snippet
	}

	enriched.Rule = e.buildRuleMetadata(f)

	if enriched.DetectionType == dsl.DetectionTypeTaintLocal {
		enriched.TaintPath = e.buildTaintPath(f)
	}

	return enriched, nil
}

// EnrichAll enriches every finding, skipping any for which EnrichFinding
// returns an error rather than dropping the whole batch. An unreadable
// source file is not such an error: the finding is kept without a snippet.
func (e *Enricher) EnrichAll(findings []rules.Finding) ([]*dsl.EnrichedDetection, error) {
	enriched := make([]*dsl.EnrichedDetection, 0, len(findings))
	for _, f := range findings {
		ed, err := e.EnrichFinding(f)
		if err != nil {
			continue
		}
		enriched = append(enriched, ed)
	}
	return enriched, nil
}

func (e *Enricher) determineDetectionType(f rules.Finding) dsl.DetectionType {
	if len(f.TaintPath) == 0 {
		return dsl.DetectionTypePattern
	}
	return dsl.DetectionTypeTaintLocal
}

func (e *Enricher) buildDataflowDetection(f rules.Finding) dsl.DataflowDetection {
	det := dsl.DataflowDetection{Confidence: 1.0}
	if len(f.TaintPath) == 0 {
		return det
	}

	det.Scope = "local"
	first, last := f.TaintPath[0], f.TaintPath[len(f.TaintPath)-1]
	det.SourceLine = first.Position.Line
	det.SinkLine = last.Position.Line
	det.TaintedVar = first.Variable
	det.SinkCall = last.Variable
	return det
}

func (e *Enricher) buildLocation(f rules.Finding) dsl.LocationInfo {
	loc := dsl.LocationInfo{
		FilePath:  f.File,
		Line:      f.Start.Line,
		Column:    f.Start.Column,
		EndLine:   f.End.Line,
		EndColumn: f.End.Column,
	}
	if e.options.ProjectRoot != "" {
		if rel, err := filepath.Rel(e.options.ProjectRoot, f.File); err == nil {
			loc.RelPath = rel
		}
	}
	return loc
}

// extractSnippet reads code context around the finding.
func (e *Enricher) extractSnippet(loc dsl.LocationInfo) (dsl.CodeSnippet, error) {
	snippet := dsl.CodeSnippet{HighlightLine: loc.Line}

	if loc.FilePath == "" {
		return snippet, nil
	}

	lines, err := e.readFileLines(loc.FilePath)
	if err != nil {
		return snippet, err
	}

	contextLines := e.options.ContextLines
	if contextLines == 0 {
		contextLines = 3
	}

	startLine := loc.Line - contextLines
	if startLine < 1 {
		startLine = 1
	}
	endLine := loc.Line + contextLines
	if endLine > len(lines) {
		endLine = len(lines)
	}

	snippet.StartLine = startLine
	for i := startLine; i <= endLine; i++ {
		if i > 0 && i <= len(lines) {
			snippet.Lines = append(snippet.Lines, dsl.SnippetLine{
				Number:      i,
				Content:     lines[i-1],
				IsHighlight: i == loc.Line,
			})
		}
	}

	return snippet, nil
}

// readFileLines reads and caches file contents.
func (e *Enricher) readFileLines(filePath string) ([]string, error) {
	if lines, ok := e.fileCache[filePath]; ok {
		return lines, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	e.fileCache[filePath] = lines
	return lines, nil
}

// buildRuleMetadata builds display metadata directly from the finding: the
// engine attaches severity/message/fix-hint per finding rather than per
// rule file, so there is no separate RuleIR to read CWE/OWASP/description
// from.
func (e *Enricher) buildRuleMetadata(f rules.Finding) dsl.RuleMetadata {
	return dsl.RuleMetadata{
		ID:          f.RuleID,
		Name:        f.RuleID,
		Severity:    normalizeSeverity(string(f.Severity)),
		Description: f.Message,
	}
}

// normalizeSeverity ensures severity is lowercase and valid.
func normalizeSeverity(sev string) string {
	s := strings.ToLower(strings.TrimSpace(sev))
	switch s {
	case "critical", "high", "medium", "low", "info":
		return s
	default:
		return "medium"
	}
}

// buildTaintPath converts the finding's own intra-procedural taint path
// into display nodes.
func (e *Enricher) buildTaintPath(f rules.Finding) []dsl.TaintPathNode {
	path := make([]dsl.TaintPathNode, 0, len(f.TaintPath))
	for _, n := range f.TaintPath {
		path = append(path, dsl.TaintPathNode{
			Location:    dsl.LocationInfo{Line: n.Position.Line, Column: n.Position.Column},
			Description: n.Description,
			Variable:    n.Variable,
			IsSource:    n.IsSource,
			IsSink:      n.IsSink,
		})
	}
	return path
}
