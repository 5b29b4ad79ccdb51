package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shivasurya/code-pathfinder/ruleengine/analytics"
	"github.com/shivasurya/code-pathfinder/ruleengine/dsl"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/rules"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/scheduler"
	"github.com/shivasurya/code-pathfinder/ruleengine/engine/script"
	"github.com/shivasurya/code-pathfinder/ruleengine/output"
	"github.com/shivasurya/code-pathfinder/ruleengine/ruleset"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan code for security vulnerabilities using sandboxed rule scripts",
	Long: `Scan a codebase by running sandboxed rule scripts against each file's
parse tree and intra-procedural taint graph.

Examples:
  # Scan with a single rules file
  pathfinder scan --rules rules/sql-injection.rule.go --project /path/to/project

  # Scan with a directory of rules
  pathfinder scan --rules rules/ --project /path/to/project

  # Scan with a remote ruleset bundle
  pathfinder scan --ruleset java/security --project /path/to/project

  # Output to JSON file
  pathfinder scan --ruleset java/security --project . --output json --output-file results.json

  # SARIF output for CI/CD integration
  pathfinder scan --ruleset java/security --project . --output sarif --output-file results.sarif`,
	// Note: RunE itself has no unit test; testing it would require mocking
	// the filesystem and the scheduler. scan_test.go covers the helpers and
	// the flag registrations.
	RunE: func(cmd *cobra.Command, args []string) error {
		startTime := time.Now()
		rulesPath, _ := cmd.Flags().GetString("rules")
		rulesetSpecs, _ := cmd.Flags().GetStringArray("ruleset")
		refreshRules, _ := cmd.Flags().GetBool("refresh-rules")
		projectPath, _ := cmd.Flags().GetString("project")
		verbose, _ := cmd.Flags().GetBool("verbose")
		debug, _ := cmd.Flags().GetBool("debug")
		failOnStr, _ := cmd.Flags().GetString("fail-on")
		outputFormat, _ := cmd.Flags().GetString("output")
		outputFile, _ := cmd.Flags().GetString("output-file")
		skipTests, _ := cmd.Flags().GetBool("skip-tests")
		parallelism, _ := cmd.Flags().GetInt("parallelism")

		analytics.ReportEventWithProperties(analytics.ScanStarted, map[string]interface{}{
			"output_format":     outputFormat,
			"has_local_rules":   rulesPath != "",
			"has_remote_rules":  len(rulesetSpecs) > 0,
			"remote_rule_count": len(rulesetSpecs),
			"skip_tests":        skipTests,
		})

		if len(rulesetSpecs) == 0 && rulesPath == "" {
			analytics.ReportEventWithProperties(analytics.ScanFailed, map[string]interface{}{
				"error_type": "validation",
				"phase":      "initialization",
			})
			return fmt.Errorf("either --rules or --ruleset flag is required")
		}
		if projectPath == "" {
			analytics.ReportEventWithProperties(analytics.ScanFailed, map[string]interface{}{
				"error_type": "validation",
				"phase":      "initialization",
			})
			return fmt.Errorf("--project flag is required")
		}

		verbosity := output.VerbosityDefault
		if debug {
			verbosity = output.VerbosityDebug
		} else if verbose {
			verbosity = output.VerbosityVerbose
		}
		logger := output.NewLogger(verbosity)

		noBanner, _ := cmd.Flags().GetBool("no-banner")
		if output.ShouldShowBanner(logger.IsTTY(), noBanner) {
			output.PrintBanner(logger.GetWriter(), Version, output.DefaultBannerOptions())
		} else if logger.IsTTY() && !noBanner {
			fmt.Fprintln(logger.GetWriter(), output.GetCompactBanner(Version))
		}

		failOn := output.ParseFailOn(failOnStr)
		if len(failOn) > 0 {
			if err := output.ValidateSeverities(failOn); err != nil {
				return err
			}
		}

		finalRulesPath, tempDir, err := prepareRules(rulesPath, rulesetSpecs, refreshRules, logger)
		if err != nil {
			analytics.ReportEventWithProperties(analytics.ScanFailed, map[string]interface{}{
				"error_type": "rule_preparation",
				"phase":      "initialization",
			})
			return fmt.Errorf("failed to prepare rules: %w", err)
		}
		if tempDir != "" {
			defer func() {
				if err := os.RemoveAll(tempDir); err != nil {
					logger.Warning("Failed to clean up temporary directory: %v", err)
				}
			}()
		}
		rulesPath = finalRulesPath

		if outputFormat != "" && outputFormat != "text" && outputFormat != "json" && outputFormat != "sarif" && outputFormat != "csv" {
			return fmt.Errorf("--output must be 'text', 'json', 'sarif', or 'csv'")
		}

		absProjectPath, err := filepath.Abs(projectPath)
		if err != nil {
			return fmt.Errorf("failed to resolve project path: %w", err)
		}
		projectPath = absProjectPath

		// Step 1: load the rule corpus.
		logger.StartProgress("Loading rules", -1)
		moduleLoader := rules.NewLoader(rulesPath)
		modules, err := moduleLoader.Load()
		logger.FinishProgress()
		if err != nil {
			analytics.ReportEventWithProperties(analytics.ScanFailed, map[string]interface{}{
				"error_type": "rule_loading",
				"phase":      "rule_loading",
			})
			return fmt.Errorf("failed to load rules: %w", err)
		}
		logger.Statistic("Loaded %d rule module(s)", len(modules))

		// Step 2: discover source files.
		logger.StartProgress("Discovering source files", -1)
		files, err := discoverFiles(projectPath, skipTests)
		logger.FinishProgress()
		if err != nil {
			return fmt.Errorf("failed to discover source files: %w", err)
		}
		if len(files) == 0 {
			analytics.ReportEventWithProperties(analytics.ScanFailed, map[string]interface{}{
				"error_type": "empty_project",
				"phase":      "discovery",
			})
			return fmt.Errorf("no source files found in project")
		}
		logger.Statistic("Discovered %d source file(s)", len(files))

		// Step 3: run the scheduler (§4.5) across the worker pool.
		logger.Progress("Running security scan...")
		result := scheduler.Run(context.Background(), files, modules, scheduler.Options{
			Parallelism: parallelism,
			Budget:      script.DefaultBudget,
			StatusFn: func(msg string) {
				logger.Debug("%s", msg)
			},
		})

		scanErrors := len(result.Errors) > 0
		for _, e := range result.Errors {
			logger.Warning("%s: %v", e.File, e.Err)
		}

		// Step 4: enrich findings for display.
		enricher := output.NewEnricher(&output.OutputOptions{
			ProjectRoot:  projectPath,
			ContextLines: 3,
			Verbosity:    verbosity,
		})
		allEnriched, _ := enricher.EnrichAll(result.Findings)

		uniqueRules := make(map[string]bool)
		for _, det := range allEnriched {
			uniqueRules[det.Rule.ID] = true
		}
		summary := output.BuildSummary(allEnriched, len(uniqueRules))

		if outputFormat == "" {
			outputFormat = "text"
		}
		logger.Progress("Generating %s output...", outputFormat)

		var outputWriter *os.File
		if outputFile != "" {
			var err error
			outputWriter, err = os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer outputWriter.Close()
			logger.Progress("Writing output to %s", outputFile)
		}

		if err := writeFormattedOutput(outputFormat, outputWriter, allEnriched, summary, projectPath, len(uniqueRules), logger); err != nil {
			return err
		}

		if outputWriter != nil {
			logger.Progress("Successfully wrote results to %s", outputFile)
		}

		exitCode := output.DetermineExitCode(allEnriched, failOn, scanErrors)

		severityBreakdown := make(map[string]int)
		for _, det := range allEnriched {
			severityBreakdown[det.Rule.Severity]++
		}
		analytics.ReportEventWithProperties(analytics.ScanCompleted, map[string]interface{}{
			"duration_ms":       time.Since(startTime).Milliseconds(),
			"rules_count":       len(uniqueRules),
			"findings_count":    len(allEnriched),
			"severity_critical": severityBreakdown["critical"],
			"severity_high":     severityBreakdown["high"],
			"severity_medium":   severityBreakdown["medium"],
			"severity_low":      severityBreakdown["low"],
			"output_format":     outputFormat,
			"exit_code":         int(exitCode),
			"had_errors":        scanErrors,
		})

		if exitCode != output.ExitCodeSuccess {
			os.Exit(int(exitCode))
		}
		return nil
	},
}

func writeFormattedOutput(format string, w *os.File, detections []*dsl.EnrichedDetection, summary *output.Summary, projectPath string, rulesExecuted int, logger *output.Logger) error {
	switch format {
	case "text":
		formatter := output.NewTextFormatterWithWriter(writerOrStdout(w), &output.OutputOptions{Verbosity: logger.Verbosity()}, logger)
		if err := formatter.Format(detections, summary); err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
	case "json":
		scanInfo := output.ScanInfo{Target: projectPath, Version: Version, RulesExecuted: rulesExecuted, Errors: []string{}}
		formatter := output.NewJSONFormatterWithWriter(writerOrStdout(w), nil)
		if err := formatter.Format(detections, summary, scanInfo); err != nil {
			return fmt.Errorf("failed to format JSON output: %w", err)
		}
	case "sarif":
		scanInfo := output.ScanInfo{Target: projectPath, Version: Version, RulesExecuted: rulesExecuted, Errors: []string{}}
		formatter := output.NewSARIFFormatterWithWriter(writerOrStdout(w), nil)
		if err := formatter.Format(detections, scanInfo); err != nil {
			return fmt.Errorf("failed to format SARIF output: %w", err)
		}
	case "csv":
		formatter := output.NewCSVFormatterWithWriter(writerOrStdout(w), nil)
		if err := formatter.Format(detections); err != nil {
			return fmt.Errorf("failed to format CSV output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
	return nil
}

func writerOrStdout(w *os.File) io.Writer {
	if w != nil {
		return w
	}
	return os.Stdout
}

// supportedExtensions lists the file extensions scan discovery collects. It
// is a subset of what engine/parse.LanguageForExt accepts: .mjs, .cjs, .mts
// and .cts files are not discovered.
var supportedExtensions = []string{".java", ".py", ".js", ".jsx", ".ts", ".tsx"}

// testFilePatterns are filename fragments that mark a file as a test file,
// skipped by default to keep findings focused on production code.
var testFilePatterns = []string{"_test.", ".test.", ".spec.", "test_"}

// discoverFiles walks projectPath collecting files with a supported
// extension, optionally skipping test files.
func discoverFiles(projectPath string, skipTests bool) ([]string, error) {
	var files []string
	err := filepath.Walk(projectPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "node_modules" || info.Name() == ".git" || info.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if !hasExtension(ext) {
			return nil
		}
		if skipTests && isTestFile(filepath.Base(path)) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func hasExtension(ext string) bool {
	for _, e := range supportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

func isTestFile(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range testFilePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// findRulesDirectory locates the rules directory for resolving rule IDs.
// Looks in current directory, parent directories, and common locations.
func findRulesDirectory() string {
	candidates := []string{
		"rules",
		"../rules",
		"../../rules",
		filepath.Join(os.Getenv("HOME"), ".local", "share", "code-pathfinder", "rules"),
		"/usr/local/share/code-pathfinder/rules",
		"/opt/code-pathfinder/rules",
	}

	for _, dir := range candidates {
		if absDir, err := filepath.Abs(dir); err == nil {
			if stat, err := os.Stat(absDir); err == nil && stat.IsDir() {
				return absDir
			}
		}
	}

	pwd, _ := os.Getwd()
	return filepath.Join(pwd, "rules")
}

// prepareRules downloads remote rulesets, resolves rule IDs, and merges them
// with local rules if needed. Returns (finalRulesPath, tempDirToCleanup, error).
func prepareRules(localRulesPath string, rulesetSpecs []string, refresh bool, logger *output.Logger) (string, string, error) {
	if len(rulesetSpecs) == 0 {
		return localRulesPath, "", nil
	}

	var bundleSpecs []string
	var ruleIDSpecs []string
	for _, spec := range rulesetSpecs {
		parts := strings.Split(spec, "/")
		if len(parts) == 2 && ruleset.IsRuleID(parts[1]) {
			ruleIDSpecs = append(ruleIDSpecs, spec)
		} else {
			bundleSpecs = append(bundleSpecs, spec)
		}
	}

	if len(bundleSpecs) > 0 {
		manifestLoader := ruleset.NewManifestLoader("https://assets.codepathfinder.dev/rules", getCacheDir())
		expanded, err := expandBundleSpecs(bundleSpecs, manifestLoader, logger)
		if err != nil {
			return "", "", err
		}
		bundleSpecs = expanded
	}

	var downloadedPaths []string
	if len(bundleSpecs) > 0 {
		config := &ruleset.DownloadConfig{
			BaseURL:       "https://assets.codepathfinder.dev/rules",
			CacheDir:      getCacheDir(),
			CacheTTL:      24 * time.Hour,
			ManifestTTL:   1 * time.Hour,
			HTTPTimeout:   30 * time.Second,
			RetryAttempts: 3,
		}

		downloader, err := ruleset.NewDownloader(config)
		if err != nil {
			return "", "", fmt.Errorf("failed to create downloader: %w", err)
		}

		downloadedPaths = make([]string, 0, len(bundleSpecs))
		for _, spec := range bundleSpecs {
			if refresh {
				logger.Progress("Refreshing ruleset cache for %s...", spec)
				if err := downloader.RefreshCache(spec); err != nil {
					logger.Warning("Failed to invalidate cache for %s: %v", spec, err)
				}
			}

			path, err := downloader.Download(spec)
			if err != nil {
				return "", "", fmt.Errorf("failed to download ruleset %s: %w", spec, err)
			}
			downloadedPaths = append(downloadedPaths, path)
			logger.Progress("Downloaded ruleset: %s", spec)
		}
	}

	var resolvedRulePaths []string
	if len(ruleIDSpecs) > 0 {
		rulesBaseDir := findRulesDirectory()
		finder := ruleset.NewRuleFinder(rulesBaseDir)

		for _, spec := range ruleIDSpecs {
			ruleSpec, err := ruleset.ParseRuleSpec(spec)
			if err != nil {
				return "", "", fmt.Errorf("invalid rule spec %s: %w", spec, err)
			}
			if err := ruleSpec.Validate(); err != nil {
				return "", "", fmt.Errorf("invalid rule spec %s: %w", spec, err)
			}
			filePath, err := finder.FindRuleFile(ruleSpec)
			if err != nil {
				return "", "", fmt.Errorf("failed to find rule %s: %w", spec, err)
			}
			resolvedRulePaths = append(resolvedRulePaths, filePath)
			logger.Progress("Resolved rule %s → %s", spec, filepath.Base(filePath))
		}
	}

	totalSources := len(downloadedPaths) + len(resolvedRulePaths) + boolToInt(localRulesPath != "")

	if totalSources == 1 {
		if localRulesPath != "" {
			return localRulesPath, "", nil
		}
		if len(downloadedPaths) == 1 {
			return downloadedPaths[0], "", nil
		}
		tempDir, err := os.MkdirTemp("", "pathfinder-rules-*")
		if err != nil {
			return "", "", fmt.Errorf("failed to create temp directory: %w", err)
		}
		if err := copyFile(resolvedRulePaths[0], filepath.Join(tempDir, filepath.Base(resolvedRulePaths[0]))); err != nil {
			os.RemoveAll(tempDir)
			return "", "", fmt.Errorf("failed to copy rule file: %w", err)
		}
		return tempDir, tempDir, nil
	}

	tempDir, err := os.MkdirTemp("", "pathfinder-rules-*")
	if err != nil {
		return "", "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	logger.Progress("Merging %d rule source(s)...", totalSources)

	if localRulesPath != "" {
		if err := copyRules(localRulesPath, tempDir, "local"); err != nil {
			os.RemoveAll(tempDir)
			return "", "", fmt.Errorf("failed to copy local rules: %w", err)
		}
	}

	for i, path := range downloadedPaths {
		destName := fmt.Sprintf("remote-%d", i)
		if err := copyRules(path, tempDir, destName); err != nil {
			os.RemoveAll(tempDir)
			return "", "", fmt.Errorf("failed to copy remote ruleset: %w", err)
		}
	}

	for i, filePath := range resolvedRulePaths {
		destName := fmt.Sprintf("rule-%d", i)
		destPath := filepath.Join(tempDir, destName)
		if err := os.MkdirAll(destPath, 0755); err != nil {
			os.RemoveAll(tempDir)
			return "", "", fmt.Errorf("failed to create directory: %w", err)
		}
		destFile := filepath.Join(destPath, filepath.Base(filePath))
		if err := copyFile(filePath, destFile); err != nil {
			os.RemoveAll(tempDir)
			return "", "", fmt.Errorf("failed to copy rule file %s: %w", filePath, err)
		}
	}

	logger.Progress("Merged %d rule source(s)", totalSources)
	return tempDir, tempDir, nil
}

// copyRules copies rule script files from src to dest/subdir.
func copyRules(src, dest, subdir string) error {
	destDir := filepath.Join(dest, subdir)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	if srcInfo.IsDir() {
		entries, err := os.ReadDir(src)
		if err != nil {
			return fmt.Errorf("failed to read directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rule.go") {
				continue
			}
			srcFile := filepath.Join(src, entry.Name())
			destFile := filepath.Join(destDir, entry.Name())
			if err := copyFile(srcFile, destFile); err != nil {
				return fmt.Errorf("failed to copy %s: %w", entry.Name(), err)
			}
		}
	} else {
		destFile := filepath.Join(destDir, filepath.Base(src))
		if err := copyFile(src, destFile); err != nil {
			return fmt.Errorf("failed to copy file: %w", err)
		}
	}

	return nil
}

// expandBundleSpecs expands "category/all" specs into individual bundle specs.
func expandBundleSpecs(bundleSpecs []string, manifestProvider ruleset.ManifestProvider, logger *output.Logger) ([]string, error) {
	expandedBundleSpecs := make([]string, 0, len(bundleSpecs))

	for _, spec := range bundleSpecs {
		parsed, err := ruleset.ParseSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid ruleset spec %s: %w", spec, err)
		}

		if parsed.Bundle == "*" {
			manifest, err := manifestProvider.LoadCategoryManifest(parsed.Category)
			if err != nil {
				return nil, fmt.Errorf("failed to load manifest for category %s: %w", parsed.Category, err)
			}

			bundleNames := manifest.GetAllBundleNames()
			if len(bundleNames) == 0 {
				logger.Warning("Category %s has no bundles", parsed.Category)
				continue
			}

			logger.Progress("Expanding %s/all to %d bundles: %v", parsed.Category, len(bundleNames), bundleNames)
			for _, bundleName := range bundleNames {
				expandedBundleSpecs = append(expandedBundleSpecs, fmt.Sprintf("%s/%s", parsed.Category, bundleName))
			}
		} else {
			expandedBundleSpecs = append(expandedBundleSpecs, spec)
		}
	}

	return expandedBundleSpecs, nil
}

// copyFile copies a single file from src to dest.
func copyFile(src, dest string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}
	return destFile.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func getCacheDir() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return filepath.Join(cacheDir, "code-pathfinder", "rules")
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringP("rules", "r", "", "Path to a rule script file or directory")
	scanCmd.Flags().StringArray("ruleset", []string{}, "Ruleset bundle (e.g., java/security) or individual rule ID (e.g., java/JAVA-SEC-001). Can be specified multiple times.")
	scanCmd.Flags().Bool("refresh-rules", false, "Force refresh of cached rulesets")
	scanCmd.Flags().StringP("project", "p", "", "Path to project directory to scan (required)")
	scanCmd.Flags().StringP("output", "o", "text", "Output format: text, json, sarif, or csv (default: text)")
	scanCmd.Flags().StringP("output-file", "f", "", "Write output to file instead of stdout")
	scanCmd.Flags().BoolP("verbose", "v", false, "Show statistics and timing information")
	scanCmd.Flags().Bool("debug", false, "Show detailed debug diagnostics with file-level progress and timestamps")
	scanCmd.Flags().String("fail-on", "", "Fail with exit code 1 if findings match severities (e.g., critical,high)")
	scanCmd.Flags().Bool("skip-tests", true, "Skip test files (_test., .test., .spec., test_ prefixes)")
	scanCmd.Flags().Int("parallelism", 0, "Number of worker isolates to run (0 = number of CPUs)")
	scanCmd.MarkFlagRequired("project")
}
