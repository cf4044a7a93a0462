package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/715d/dynarray/pkg/dynarray"
)

// StepResult records what happened when a step was applied.
type StepResult struct {
	Step    int     `json:"step"` // 1-based position in the script
	Call    string  `json:"call"`
	Got     *string `json:"got,omitempty"`
	Size    int     `json:"size"` // array length after the step
	Err     string  `json:"error,omitempty"`
	Failure string  `json:"failure,omitempty"`

	// hasGot is set when a get returned an element, which may be nil.
	hasGot bool
}

// MarshalJSON writes "got": null for a get that read a nil element, and
// omits got for steps that read nothing.
func (r StepResult) MarshalJSON() ([]byte, error) {
	type plain StepResult
	if !r.hasGot {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		Got *string `json:"got"`
	}{plain(r), r.Got})
}

// Failed reports whether the step's outcome did not match its expectation.
func (r *StepResult) Failed() bool {
	return r.Failure != ""
}

// Result is the outcome of running one script.
type Result struct {
	Name     string        `json:"name"`
	Path     string        `json:"path,omitempty"`
	Steps    []StepResult  `json:"steps"`
	Len      int           `json:"len"`
	Cap      int           `json:"cap"`
	Duration time.Duration `json:"duration"`
}

// Passed reports whether every step met its expectation.
func (r *Result) Passed() bool {
	return len(r.Failures()) == 0
}

// Failures returns the failed steps in order.
func (r *Result) Failures() []StepResult {
	var failed []StepResult
	for _, st := range r.Steps {
		if st.Failed() {
			failed = append(failed, st)
		}
	}
	return failed
}

// Run applies the steps of s to a new array. A step whose outcome differs from
// its expectation is recorded as a failure; the returned error is only set
// when s is invalid or ctx is done before the script completes.
func Run(ctx context.Context, s *Script) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	slog.Info("running script", "name", s.Name, "steps", len(s.Steps))

	arr := dynarray.New[*string]()
	result := &Result{
		Name:  s.Name,
		Path:  s.Path,
		Steps: make([]StepResult, 0, len(s.Steps)),
	}

	for i := range s.Steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("script %q interrupted at step %d: %w", s.Name, i+1, err)
		}

		st := &s.Steps[i]
		sr := apply(arr, st)
		sr.Step = i + 1
		sr.Size = arr.Len()
		slog.Debug("step", "script", s.Name, "n", sr.Step, "call", sr.Call,
			"size", sr.Size, "err", sr.Err, "failure", sr.Failure)
		result.Steps = append(result.Steps, sr)
	}

	result.Len = arr.Len()
	result.Cap = arr.Cap()
	result.Duration = time.Since(start)
	slog.Info("script finished", "name", s.Name, "passed", result.Passed(), "dur", result.Duration)
	return result, nil
}

func apply(arr *dynarray.Array[*string], st *Step) StepResult {
	sr := StepResult{Call: st.String()}

	var err error
	switch st.Op {
	case OpAppend:
		arr.Append(st.Value)
	case OpGet:
		var got *string
		got, err = arr.Get(*st.Index)
		if err == nil {
			sr.Got = got
			sr.hasGot = true
			if st.hasWant() {
				if want := st.wantValue(); !equalValues(want, got) {
					sr.Failure = fmt.Sprintf("want %s, got %s", formatValue(want), formatValue(got))
				}
			}
		}
	case OpRemove:
		err = arr.Remove(*st.Index)
	case OpSize:
		if st.hasWant() {
			want, _ := st.wantSize()
			if got := arr.Len(); got != want {
				sr.Failure = fmt.Sprintf("want size %d, got %d", want, got)
			}
		}
	}

	if err != nil {
		sr.Err = err.Error()
	}
	switch {
	case st.Err == ErrKindOutOfRange && err == nil:
		sr.Failure = "want out_of_range error, got none"
	case st.Err == ErrKindOutOfRange && !errors.Is(err, dynarray.ErrOutOfRange):
		sr.Failure = fmt.Sprintf("want out_of_range error, got %v", err)
	case st.Err == "" && err != nil:
		sr.Failure = fmt.Sprintf("unexpected error: %v", err)
	}
	return sr
}

func equalValues(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// RunAll runs scripts concurrently, at most jobs at a time, each on its own
// array. Results are returned in the order of scripts.
func RunAll(ctx context.Context, scripts []*Script, jobs int) ([]*Result, error) {
	// Each goroutine writes only its own index, so the slice needs no lock.
	results := make([]*Result, len(scripts))

	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for idx, s := range scripts {
		g.Go(func() error {
			r, err := Run(ctx, s)
			if err != nil {
				return err
			}
			results[idx] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
