package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/zermelo/internal/backends"
	"github.com/roach88/zermelo/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update   bool   // Update golden files instead of comparing
	Filter   string // Filter scenarios by name pattern
	Parallel int    // Maximum scenarios run at once
	Backends []string
}

// ScenarioResult holds the result of running a single scenario.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test run result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios against both backends",
		Long: `Run conformance scenarios against the set and series backends.

Each scenario seeds fresh in-memory stores from its fixtures, resolves every
query on each backend, checks the expected ids, counts and errors, and
checks that the backends agree. Scenarios run in parallel.

When <scenarios-dir>/golden/<name>.golden exists, the SQL the series backend
synthesized must match it. Use --update to write the golden files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (directory not found, unreadable scenario)

Example:
  zermelo test ./scenarios
  zermelo test ./scenarios --filter 'club*' --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "update golden files instead of comparing")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only scenarios whose name matches the pattern")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", runtime.GOMAXPROCS(0), "maximum scenarios run at once")
	cmd.Flags().StringSliceVar(&opts.Backends, "backend", nil, "backends to run (default all)")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenarios directory not found: %s", dir), nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "error accessing scenarios directory", err)
	}
	if !info.IsDir() {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("not a directory: %s", dir), nil)
	}

	var kinds []backends.Kind
	for _, name := range opts.Backends {
		kind, err := backends.ParseKind(name)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid --backend", err)
		}
		kinds = append(kinds, kind)
	}

	scenarios, err := harness.LoadScenarios(dir)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeFixtures, "failed to load scenarios", err)
	}
	scenarios, err = filterScenarios(scenarios, opts.Filter)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid filter pattern", err)
	}

	if len(scenarios) == 0 {
		return outputTestResult(f, TestResult{Scenarios: []ScenarioResult{}})
	}
	f.VerboseLog("Running %d scenario(s) from %s", len(scenarios), dir)

	results := make([]ScenarioResult, len(scenarios))
	g, ctx := errgroup.WithContext(cmd.Context())
	if opts.Parallel > 0 {
		g.SetLimit(opts.Parallel)
	}
	for i, s := range scenarios {
		g.Go(func() error {
			results[i] = runScenario(ctx, s, dir, kinds, opts.Update)
			return nil
		})
	}
	// runScenario reports failures in its result
	_ = g.Wait()

	result := TestResult{Scenarios: results, Total: len(results)}
	for _, r := range results {
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	return outputTestResult(f, result)
}

// filterScenarios keeps the scenarios whose name matches pattern.
func filterScenarios(scenarios []*harness.Scenario, pattern string) ([]*harness.Scenario, error) {
	if pattern == "" {
		return scenarios, nil
	}
	var out []*harness.Scenario
	for _, s := range scenarios {
		matched, err := filepath.Match(pattern, s.Name)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, s)
		}
	}
	return out, nil
}

// runScenario executes a single scenario and returns the result.
func runScenario(ctx context.Context, s *harness.Scenario, dir string, kinds []backends.Kind, update bool) ScenarioResult {
	failed := func(format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: s.Name, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	result, err := harness.Run(ctx, s, harness.Options{Logger: slog.Default(), Backends: kinds})
	if err != nil {
		return failed("execution failed: %v", err)
	}
	out := ScenarioResult{Name: s.Name, Pass: result.Pass, Errors: result.Errors}
	if len(kinds) > 0 && !slices.Contains(kinds, backends.Series) {
		// only the series backend synthesizes SQL
		return out
	}

	snapshot := harness.SQLSnapshot(result)
	path := goldenFilePath(dir, s.Name)
	if update {
		if err := writeGoldenFile(path, snapshot); err != nil {
			return failed("failed to update golden file: %v", err)
		}
		return out
	}

	golden, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		// no golden file: expectations only
		return out
	}
	if err != nil {
		return failed("failed to read golden file: %v", err)
	}
	if !bytes.Equal(golden, snapshot) {
		out.Pass = false
		out.Errors = append(out.Errors, "synthesized SQL does not match golden file (run with --update to regenerate)")
	}
	return out
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(dir, name string) string {
	return filepath.Join(dir, "golden", name+".golden")
}

func writeGoldenFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func outputTestResult(f *OutputFormatter, result TestResult) error {
	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if result.Failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeTestFailed,
				Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
			}
		}
		if err := f.encode(resp); err != nil {
			return err
		}
	} else {
		outputTestText(f, result)
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func outputTestText(f *OutputFormatter, result TestResult) {
	w := f.Writer
	for _, s := range result.Scenarios {
		if s.Pass {
			fmt.Fprintf(w, "✓ %s\n", s.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}
