// Package main implements the CLI driver that runs dynamic array scripts.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/715d/dynarray/internal/script"
)

// Config holds all command-line configuration options for the script runner.
type Config struct {
	Scripts []string // the script files to run
	Verbose bool     // enables detailed output and statistics
	JSON    bool     // enables JSON output format
	Jobs    int      // maximum number of scripts run at once
	Profile bool     // enables CPU and memory profiling
}

const (
	exitFailed = 1
	exitError  = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg Config

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr *codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func newRootCmd() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "dynarray script.yaml [scripts...]",
		Short: "Run operation scripts against a dynamic array",
		Long: `dynarray runs YAML scripts of append, get, remove and size operations
against a fresh dynamic array per script and checks every expectation.

A script looks like:

  name: remove-shifts-tail
  steps:
    - {op: append, value: one}
    - {op: append, value: null}
    - {op: get, index: 0, want: one}
    - {op: remove, index: 5, err: out_of_range}
    - {op: size, want: 2}`,
		Example: `  dynarray testdata/*/script.yaml        # Run all scripts
  dynarray -v script.yaml                # Verbose output
  dynarray --json a.yaml b.yaml > r.json # JSON report
  dynarray -j 1 ./*.yaml                 # One script at a time`,
		Args:               cobra.MinimumNArgs(1),
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	// Set custom version template to include build info.
	rootCmd.SetVersionTemplate(fmt.Sprintf("dynarray version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	// Define flags.
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&cfg.JSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().IntVarP(&cfg.Jobs, "jobs", "j", runtime.NumCPU(), "Maximum number of scripts run concurrently")
	rootCmd.PersistentFlags().BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")
	return rootCmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg.Scripts = args
	slog.Info("starting script run", "scripts", cfg.Scripts)

	report, err := runScripts(cmd.Context(), &cfg)
	if err != nil {
		return errWithCode(fmt.Errorf("run: %w", err), exitError)
	}

	if err := writeResults(cmd.OutOrStdout(), report, &cfg); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}

	if report.Stats.FailedScripts > 0 {
		return errWithCode(nil, exitFailed)
	}
	return nil
}

// Report is the outcome of a run over all requested scripts.
type Report struct {
	Results []*script.Result `json:"results"`
	Stats   struct {
		TotalScripts  int           `json:"total_scripts"`
		FailedScripts int           `json:"failed_scripts"`
		TotalSteps    int           `json:"total_steps"`
		FailedSteps   int           `json:"failed_steps"`
		Duration      time.Duration `json:"duration"`
	} `json:"stats"`
}

func runScripts(ctx context.Context, cfg *Config) (*Report, error) {
	start := time.Now()

	loader := script.NewLoader()
	scripts := make([]*script.Script, 0, len(cfg.Scripts))
	for _, path := range cfg.Scripts {
		s, err := loader.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading scripts: %w", err)
		}
		scripts = append(scripts, s)
	}
	slog.Info("loaded scripts", "num", len(scripts), "distinct", loader.Len())

	results, err := script.RunAll(ctx, scripts, cfg.Jobs)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)
	slog.Info("run completed", "dur", duration)

	return newReport(results, duration), nil
}

func newReport(results []*script.Result, dur time.Duration) *Report {
	r := &Report{Results: results}
	r.Stats.Duration = dur
	for _, res := range results {
		r.Stats.TotalScripts++
		r.Stats.TotalSteps += len(res.Steps)
		if failed := len(res.Failures()); failed > 0 {
			r.Stats.FailedScripts++
			r.Stats.FailedSteps += failed
		}
	}
	return r
}

func writeResults(w io.Writer, report *Report, cfg *Config) error {
	var output string
	var err error

	if cfg.JSON {
		output, err = formatJSONOutput(report)
	} else {
		output = formatTextOutput(report, cfg)
	}

	if err != nil {
		return err
	}

	_, err = io.WriteString(w, output)
	return err
}

func formatJSONOutput(report *Report) (string, error) {
	data, err := json.MarshalIndent(jOutput{
		Results:   report.Results,
		Stats:     report.Stats,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling json output: %w", err)
	}
	return string(data) + "\n", nil
}

func formatTextOutput(report *Report, cfg *Config) string {
	var output strings.Builder

	if cfg.Verbose {
		slog.Info("",
			"total_scripts", report.Stats.TotalScripts,
			"failed_scripts", report.Stats.FailedScripts,
			"total_steps", report.Stats.TotalSteps,
			"failed_steps", report.Stats.FailedSteps,
			"duration", report.Stats.Duration.String())
	}

	for _, res := range report.Results {
		failures := res.Failures()
		if len(failures) == 0 {
			fmt.Fprintf(&output, "PASS %s (%d steps)\n", res.Name, len(res.Steps))
			if cfg.Verbose {
				fmt.Fprintf(&output, "  len=%d cap=%d\n", res.Len, res.Cap)
			}
			continue
		}

		fmt.Fprintf(&output, "FAIL %s (%d of %d steps failed)\n", res.Name, len(failures), len(res.Steps))
		for _, f := range failures {
			// Format: step N: call: failure
			fmt.Fprintf(&output, "  step %d: %s: %s\n", f.Step, f.Call, f.Failure)
		}
	}

	return output.String()
}

type jOutput struct {
	Results   []*script.Result `json:"results"`
	Stats     any              `json:"stats"`
	Version   string           `json:"version"`
	Timestamp string           `json:"timestamp"`
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		slog.SetDefault(slog.New(handler))
	}

	if !cfg.Profile {
		return nil
	}

	// Start CPU profiling.
	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}

	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	cpuProfile = nil
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return &codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e *codedError) Unwrap() error {
	return e.err
}
