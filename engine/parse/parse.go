// Package parse is the parser front-end (§2 item 1): a thin wrapper over the
// tree-sitter grammars that yields a persistent tree.Tree of typed,
// field-labelled nodes. Parse failures still yield a tree (with error
// nodes) — rules see it as-is, per the Parser interface contract (§6).
package parse

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/shivasurya/code-pathfinder/ruleengine/engine/ops"
	rtree "github.com/shivasurya/code-pathfinder/ruleengine/engine/tree"
)

// Language identifies a supported grammar.
type Language string

const (
	Java       Language = "java"
	Python     Language = "python"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
)

func grammar(lang Language) (*sitter.Language, error) {
	switch lang {
	case Java:
		return java.GetLanguage(), nil
	case Python:
		return python.GetLanguage(), nil
	case JavaScript:
		return javascript.GetLanguage(), nil
	case TypeScript:
		return typescript.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("parse: unsupported language %q", lang)
	}
}

// LanguageForExt maps a file extension (including the leading dot) to a
// Language, or ok=false if unsupported.
func LanguageForExt(ext string) (Language, bool) {
	switch ext {
	case ".java":
		return Java, true
	case ".py":
		return Python, true
	case ".js", ".jsx", ".mjs", ".cjs":
		return JavaScript, true
	case ".ts", ".tsx", ".mts", ".cts":
		return TypeScript, true
	default:
		return "", false
	}
}

// Parser parses source bytes in a single language, reusing one
// *sitter.Parser across files the way one worker's isolate is reused (§4.5).
type Parser struct {
	lang   Language
	sitter *sitter.Parser
}

// NewParser constructs a Parser for lang. Each worker owns its own Parser
// per language it needs, never shared across goroutines.
func NewParser(lang Language) (*Parser, error) {
	g, err := grammar(lang)
	if err != nil {
		return nil, err
	}
	p := sitter.NewParser()
	p.SetLanguage(g)
	return &Parser{lang: lang, sitter: p}, nil
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() { p.sitter.Close() }

// Parse implements parse(language, source_bytes) -> Tree (§6). A rejected
// parse still yields a tree built from tree-sitter's error-recovery nodes.
func (p *Parser) Parse(ctx context.Context, file string, source []byte) (*rtree.Tree, error) {
	parsed, err := p.sitter.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse: %s: %w", file, err)
	}
	defer parsed.Close()
	return rtree.Build(string(p.lang), file, source, parsed), nil
}

// ExtractJSImports walks t for import statements, returning each imported
// binding's name, source module, and local alias — backing the
// get_js_imports op (§4.1). Only meaningful for JavaScript/TypeScript trees.
func ExtractJSImports(t *rtree.Tree) []ops.Import {
	var out []ops.Import
	root := t.Root()
	children, err := t.Children(root)
	if err != nil {
		return nil
	}
	for _, c := range children {
		n, ok := t.Node(c)
		if !ok || n.Type != "import_statement" {
			continue
		}
		out = append(out, extractImportClause(t, c)...)
	}
	return out
}

func extractImportClause(t *rtree.Tree, importStmt rtree.NodeID) []ops.Import {
	var out []ops.Import
	var source string
	grandchildren, _ := t.Children(importStmt)
	for _, gc := range grandchildren {
		n, ok := t.Node(gc)
		if !ok {
			continue
		}
		switch n.Type {
		case "string":
			s, _ := t.Text(gc)
			source = trimQuotes(s)
		case "import_clause":
			out = append(out, extractImportBindings(t, gc, source)...)
		}
	}
	return out
}

func extractImportBindings(t *rtree.Tree, clause rtree.NodeID, source string) []ops.Import {
	var out []ops.Import
	children, _ := t.Children(clause)
	for _, c := range children {
		n, ok := t.Node(c)
		if !ok {
			continue
		}
		switch n.Type {
		case "identifier":
			// default import: `import foo from "mod"`
			name, _ := t.Text(c)
			out = append(out, ops.Import{Name: name, ImportedFrom: source, ImportedAs: name})
		case "namespace_import":
			name, _ := t.Text(c)
			out = append(out, ops.Import{Name: name, ImportedFrom: source, ImportedAs: name})
		case "named_imports":
			specs, _ := t.Children(c)
			for _, s := range specs {
				sn, ok := t.Node(s)
				if !ok || sn.Type != "import_specifier" {
					continue
				}
				out = append(out, extractImportSpecifier(t, s, source))
			}
		}
	}
	return out
}

func extractImportSpecifier(t *rtree.Tree, spec rtree.NodeID, source string) ops.Import {
	names, _ := t.Children(spec)
	var imported, alias string
	for _, n := range names {
		txt, _ := t.Text(n)
		if imported == "" {
			imported = txt
		} else {
			alias = txt
		}
	}
	if alias == "" {
		alias = imported
	}
	return ops.Import{Name: imported, ImportedFrom: source, ImportedAs: alias}
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
