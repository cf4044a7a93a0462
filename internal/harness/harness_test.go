package harness

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/dynarray/internal/script"
)

// TestAll runs all integration tests.
func TestAll(t *testing.T) {
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "get current file path")

	harnessDir := filepath.Dir(filename)
	testdataDir := filepath.Join(harnessDir, "..", "..", "testdata")

	testCases := DiscoverTestCases(t, testdataDir)
	require.NotEmpty(t, testCases, "no test cases found")

	if testing.Verbose() {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	h := NewHarness(testdataDir)
	for _, tc := range testCases {
		t.Run(tc.Dir, func(t *testing.T) {
			t.Parallel()

			if len(tc.Expectation.ExpectedFailures) > 0 {
				t.Logf("Expected failing steps: %v", tc.Expectation.ExpectedFailures)
			}

			result := h.Run(t, tc)
			if result.Skipped {
				t.Skipf("Test skipped: %s", result.Message)
				return
			}

			if !result.Success {
				t.Errorf("Test failed: %s", result.Message)
			}
		})
	}
}

func TestValidateResults(t *testing.T) {
	result := &script.Result{
		Name: "case",
		Steps: []script.StepResult{
			{Step: 1, Call: `append("a")`},
			{Step: 2, Call: "get(0)", Failure: `want "b", got "a"`},
			{Step: 3, Call: "size()"},
		},
	}

	tests := []struct {
		name        string
		expected    []int
		wantSuccess bool
		wantDetails []string
	}{
		{
			name:        "failure expected",
			expected:    []int{2},
			wantSuccess: true,
		},
		{
			name:        "failure not expected",
			expected:    nil,
			wantSuccess: false,
			wantDetails: []string{`Step 2 failed: get(0): want "b", got "a"`},
		},
		{
			name:        "expected failure missing",
			expected:    []int{2, 3, 9},
			wantSuccess: false,
			wantDetails: []string{
				"Step 3 should have failed: size()",
				"Step 9 should have failed: no step 9 in 3 steps",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &TestResult{}
			validateResults(tr, tt.expected, result)
			require.Equal(t, tt.wantSuccess, tr.Success, tr.Message)
			require.Equal(t, tt.wantDetails, tr.Details)
		})
	}
}

func TestLoadTestCase(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "with-expectation")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "expected.yaml"),
		[]byte("expected_failures: [2, 4]\nexpected_errors: [boom]\n"), 0o644))

	tc := LoadTestCase(t, dir, root)
	require.Equal(t, "with-expectation", tc.Dir)
	require.Equal(t, []int{2, 4}, tc.Expectation.ExpectedFailures)
	require.Equal(t, []string{"boom"}, tc.Expectation.ExpectedErrors)

	bare := filepath.Join(root, "bare")
	require.NoError(t, os.Mkdir(bare, 0o755))
	tc = LoadTestCase(t, bare, "")
	require.Equal(t, "bare", tc.Dir)
	require.Empty(t, tc.Expectation.ExpectedFailures)
}
