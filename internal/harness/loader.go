package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	yaml "gopkg.in/yaml.v3"

	"github.com/stretchr/testify/require"
)

const (
	scriptFile   = "script.yaml"
	expectedFile = "expected.yaml"
)

// LoadTestCase loads a test case from a directory with a specified testdata root.
func LoadTestCase(t *testing.T, dir, root string) *TestCase {
	t.Helper()

	tc := &TestCase{}
	data, err := os.ReadFile(filepath.Join(dir, expectedFile))
	switch {
	case os.IsNotExist(err):
		// A case without expected.yaml must pass every step.
	case err != nil:
		require.NoError(t, err)
	default:
		err = yaml.Unmarshal(data, &tc.Expectation)
		require.NoError(t, err)
	}

	// Use relative path from testdata root if provided.
	if root != "" {
		relPath, err := filepath.Rel(root, dir)
		if err != nil {
			tc.Dir = filepath.Base(dir)
		} else {
			tc.Dir = relPath
		}
		return tc
	}

	tc.Dir = filepath.Base(dir)
	return tc
}

// DiscoverTestCases returns a case for every directory under root holding a script.yaml.
func DiscoverTestCases(t *testing.T, root string) []*TestCase {
	t.Helper()

	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	var testCases []*TestCase
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		// Skip stress cases when running in short mode.
		if strings.HasPrefix(entry.Name(), "stress-") && testing.Short() {
			continue
		}

		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, scriptFile)); err == nil {
			testCases = append(testCases, LoadTestCase(t, dir, root))
		}
	}
	return testCases
}
