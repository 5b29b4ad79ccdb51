package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loader discovers rule modules on disk (the rule corpus interface, §6).
// Grounded on dsl/loader.go's file/directory discovery shape, retargeted at
// script-rule files instead of Python files executed out-of-process: rule
// scripts here are compiled and run in-process by an engine/script.Isolate,
// so there is no subprocess, no nsjail, and no JSON IR round-trip.
type Loader struct {
	RulesPath string // path to a single rule file or a directory of them
}

// NewLoader creates a new rule loader.
func NewLoader(rulesPath string) *Loader {
	return &Loader{RulesPath: rulesPath}
}

// ruleFileExt is the extension rule script files carry. Rules are plain Go
// source the script isolate interprets (§4.2), not compiled.
const ruleFileExt = ".rule.go"

// Load discovers and reads every rule module under RulesPath.
func (l *Loader) Load() ([]Module, error) {
	info, err := os.Stat(l.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("rules: failed to access rules path: %w", err)
	}
	if !info.IsDir() {
		m, err := l.loadFile(l.RulesPath)
		if err != nil {
			return nil, err
		}
		return []Module{m}, nil
	}
	return l.loadDirectory(l.RulesPath)
}

func (l *Loader) loadFile(path string) (Module, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return Module{}, fmt.Errorf("rules: failed to read %s: %w", path, err)
	}
	return Module{
		ID:       ruleIDFromPath(path),
		Language: languageFromPath(path),
		Source:   string(source),
	}, nil
}

func (l *Loader) loadDirectory(dir string) ([]Module, error) {
	var modules []Module
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ruleFileExt) {
			return nil
		}
		m, err := l.loadFile(path)
		if err != nil {
			// A rule file that cannot be read doesn't stop corpus
			// loading; it is skipped with a warning on stderr and never
			// reaches the driver.
			fmt.Fprintf(os.Stderr, "rules: skipping %s: %v\n", path, err)
			return nil
		}
		modules = append(modules, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rules: failed to walk %s: %w", dir, err)
	}
	if len(modules) == 0 {
		return nil, fmt.Errorf("rules: no rule modules found in %s", dir)
	}
	return modules, nil
}

// ruleIDFromPath derives a rule id from a path like
// "rules/java/sql-injection.rule.go" -> "sql-injection".
func ruleIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, ruleFileExt)
}

// languageFromPath derives the target language from the rule's parent
// directory, e.g. "rules/java/sql-injection.rule.go" -> "java".
func languageFromPath(path string) string {
	return filepath.Base(filepath.Dir(path))
}
