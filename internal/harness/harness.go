package harness

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/dynarray/internal/script"
)

// TestCase represents a single test scenario.
type TestCase struct {
	// Dir is the directory containing script.yaml, relative to the testdata root.
	Dir string

	// Expectation is read from expected.yaml, if present.
	Expectation Expectation
}

// TestResult represents the result of running a test case.
type TestResult struct {
	// TestCase is the test case that was run.
	TestCase *TestCase

	// Result is the raw result of the script, nil when loading failed.
	Result *script.Result

	// Success indicates if the outcome matched the expectation.
	Success bool

	// Skipped indicates if the test was skipped.
	Skipped bool

	// Message provides a summary of the result.
	Message string

	// Details provides detailed information about failures.
	Details []string
}

// TestHarness manages test execution.
type TestHarness struct {
	// loader caches parsed scripts
	loader *script.Loader

	// root is the root directory for test data
	root string
}

// NewHarness creates a new test harness.
func NewHarness(root string) *TestHarness {
	return &TestHarness{
		loader: script.NewLoader(),
		root:   root,
	}
}

// Run executes a test case.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()

	if tc.Expectation.Skip {
		return &TestResult{TestCase: tc, Skipped: true, Message: tc.Expectation.Reason}
	}

	s, err := h.loader.Load(filepath.Join(h.root, tc.Dir, scriptFile))
	if err != nil {
		// Check if this error was expected.
		for _, expectedErr := range tc.Expectation.ExpectedErrors {
			if strings.Contains(err.Error(), expectedErr) {
				return &TestResult{
					TestCase: tc,
					Success:  true,
					Message:  fmt.Sprintf("Got expected error: %v", err),
				}
			}
		}
		require.NoError(t, err)
	}
	if len(tc.Expectation.ExpectedErrors) > 0 {
		return &TestResult{
			TestCase: tc,
			Message:  fmt.Sprintf("Expected errors %q, got none", tc.Expectation.ExpectedErrors),
		}
	}

	result, err := script.Run(t.Context(), s)
	require.NoError(t, err)

	tr := &TestResult{TestCase: tc, Result: result}
	validateResults(tr, tc.Expectation.ExpectedFailures, result)
	return tr
}

func validateResults(tr *TestResult, expected []int, result *script.Result) {
	failed := make(map[int]script.StepResult)
	for _, f := range result.Failures() {
		failed[f.Step] = f
	}
	wanted := make(map[int]struct{}, len(expected))
	for _, n := range expected {
		wanted[n] = struct{}{}
	}

	// Check for expected failures that did not happen.
	var missing []int
	for n := range wanted {
		if _, found := failed[n]; !found {
			missing = append(missing, n)
		}
	}

	// Check for unexpected failures.
	var unexpected []int
	for n := range failed {
		if _, found := wanted[n]; !found {
			unexpected = append(unexpected, n)
		}
	}

	// Sort for consistent output.
	slices.Sort(missing)
	slices.Sort(unexpected)

	var details []string
	for _, n := range missing {
		details = append(details, fmt.Sprintf("Step %d should have failed: %s", n, stepCall(result, n)))
	}
	for _, n := range unexpected {
		f := failed[n]
		details = append(details, fmt.Sprintf("Step %d failed: %s: %s", n, f.Call, f.Failure))
	}

	tr.Success = len(missing) == 0 && len(unexpected) == 0
	tr.Details = details
	if tr.Success {
		tr.Message = fmt.Sprintf("All %d steps matched, %d expected failures", len(result.Steps), len(expected))
	} else {
		tr.Message = fmt.Sprintf("Test failed: %d missing, %d unexpected:\n  %s",
			len(missing), len(unexpected), strings.Join(details, "\n  "))
	}
}

// stepCall returns the call of the 1-based step n, or a placeholder when out of range.
func stepCall(result *script.Result, n int) string {
	if n < 1 || n > len(result.Steps) {
		return fmt.Sprintf("no step %d in %d steps", n, len(result.Steps))
	}
	return result.Steps[n-1].Call
}
