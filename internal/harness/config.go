// Package harness runs the YAML script cases under testdata and checks their outcome.
package harness

// Expectation is the optional expected.yaml next to a case's script.yaml.
type Expectation struct {
	// ExpectedFailures lists the 1-based steps expected to fail.
	ExpectedFailures []int `yaml:"expected_failures"`

	// ExpectedErrors lists substrings of an expected load or validation error.
	ExpectedErrors []string `yaml:"expected_errors"`

	// Skip disables the case.
	Skip bool `yaml:"skip,omitempty"`

	// Reason explains why the case is skipped.
	Reason string `yaml:"reason,omitempty"`
}
