// Package scheduler implements the work scheduler (§4.5): a worker pool
// sized by min(cpu_count, requested_parallelism), each worker owning exactly
// one script isolate, dispatching one file at a time from a shared queue and
// pushing results to a mutex-guarded shared sink. Grounded on the teacher's
// worker-pool pattern in graph/initialize.go (fixed worker count, buffered
// file/result/status channels, one *sitter.Parser built per worker) —
// generalized here to own one script.Isolate per worker in addition to the
// per-language parser.
package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shivasurya/code-pathfinder/ruleengine/engine/driver"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/parse"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/rules"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/script"
)

// Options configures a Run.
type Options struct {
	Parallelism   int // requested worker count; clamped to cpu_count
	FileTimeout   time.Duration
	Budget        script.Budget
	StatusFn      func(string) // optional progress callback, called from workers
}

// Result is the run's complete, canonically sorted output.
type Result struct {
	Findings []rules.Finding
	Errors   []FileError
}

// FileError records a per-file failure that did not abort the run.
type FileError struct {
	File    string
	Err     error
	Partial bool
}

func defaultOptions(o Options) Options {
	if o.Parallelism <= 0 || o.Parallelism > runtime.NumCPU() {
		o.Parallelism = runtime.NumCPU()
	}
	if o.FileTimeout <= 0 {
		o.FileTimeout = 30 * time.Second
	}
	if o.Budget.Timeout <= 0 {
		o.Budget = script.DefaultBudget
	}
	return o
}

// Run parses and evaluates modules against every file in files, running
// min(cpu_count, requested_parallelism) workers in parallel (§5). Each
// worker owns its own isolate and per-language parsers, never shared across
// goroutines; the findings sink is the only resource the workers contend on,
// guarded by a mutex held only during append.
func Run(ctx context.Context, files []string, modules []rules.Module, opts Options) Result {
	opts = defaultOptions(opts)

	fileChan := make(chan string, len(files))
	for _, f := range files {
		fileChan <- f
	}
	close(fileChan)

	var (
		mu     sync.Mutex
		sink   Result
		wg     sync.WaitGroup
	)

	worker := func(workerID int) {
		defer wg.Done()

		parsers := map[parse.Language]*parse.Parser{}
		defer func() {
			for _, p := range parsers {
				p.Close()
			}
		}()

		iso, err := script.NewIsolate()
		if err != nil {
			mu.Lock()
			sink.Errors = append(sink.Errors, FileError{Err: err})
			mu.Unlock()
			return
		}
		d := driver.New(iso, modules, opts.Budget)

		for file := range fileChan {
			runOneFile(ctx, d, parsers, file, opts, &mu, &sink, workerID, 0)
		}
	}

	wg.Add(opts.Parallelism)
	for w := 0; w < opts.Parallelism; w++ {
		go worker(w)
	}
	wg.Wait()

	canonicalSortAcrossFiles(sink.Findings)
	return sink
}

// runOneFile parses+evaluates one file under its own timeout, recovering
// from a worker panic by retrying once (§7 "a worker that panics is
// restarted; its in-flight file is retried once on a fresh worker" —
// simplified here to an in-place retry on the same worker with a fresh
// isolate, since the scheduler already isolates workers from each other).
// attempt distinguishes the original try (0) from the single retry (1); the
// retry's own panic is recorded as a final failure rather than retried again.
func runOneFile(ctx context.Context, d *driver.Driver, parsers map[parse.Language]*parse.Parser, file string, opts Options, mu *sync.Mutex, sink *Result, workerID int, attempt int) {
	defer func() {
		if r := recover(); r != nil {
			resetErr := d.Isolate.Reset()
			if attempt == 0 && resetErr == nil {
				runOneFile(ctx, d, parsers, file, opts, mu, sink, workerID, attempt+1)
				return
			}
			mu.Lock()
			sink.Errors = append(sink.Errors, FileError{File: file, Err: &workerPanic{reason: r}, Partial: true})
			mu.Unlock()
		}
	}()

	if opts.StatusFn != nil {
		opts.StatusFn("worker " + strconv.Itoa(workerID) + ": " + filepath.Base(file))
	}

	lang, ok := parse.LanguageForExt(filepath.Ext(file))
	if !ok {
		return
	}
	p, ok := parsers[lang]
	if !ok {
		var err error
		p, err = parse.NewParser(lang)
		if err != nil {
			mu.Lock()
			sink.Errors = append(sink.Errors, FileError{File: file, Err: err})
			mu.Unlock()
			return
		}
		parsers[lang] = p
	}

	source, err := os.ReadFile(file)
	if err != nil {
		mu.Lock()
		sink.Errors = append(sink.Errors, FileError{File: file, Err: err})
		mu.Unlock()
		return
	}

	fileCtx, cancel := context.WithTimeout(ctx, opts.FileTimeout)
	defer cancel()

	result := d.RunFile(fileCtx, p, lang, file, source)

	mu.Lock()
	defer mu.Unlock()
	sink.Findings = append(sink.Findings, result.Findings...)
	for _, e := range result.Errors {
		sink.Errors = append(sink.Errors, FileError{File: file, Err: e, Partial: result.Partial})
	}
	if fileCtx.Err() == context.DeadlineExceeded {
		sink.Errors = append(sink.Errors, FileError{File: file, Err: fileCtx.Err(), Partial: true})
	}
}

type workerPanic struct{ reason interface{} }

func (w *workerPanic) Error() string { return "worker panicked and was restarted" }

// canonicalSortAcrossFiles sorts the run's full finding set by
// (file, line, column, rule id), the driver's documented post-processing
// order (§5 Ordering guarantees). Within a file, RunFile already produced a
// stable (line, column, rule id) order; this only needs to additionally
// group by file.
func canonicalSortAcrossFiles(findings []rules.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Start.Line != b.Start.Line {
			return a.Start.Line < b.Start.Line
		}
		if a.Start.Column != b.Start.Column {
			return a.Start.Column < b.Start.Column
		}
		return a.RuleID < b.RuleID
	})
}
