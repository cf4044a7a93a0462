// Package script describes dynamic array operation sequences in YAML and runs them.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	yaml "gopkg.in/yaml.v3"
)

// Op names an operation applied to the array.
type Op string

const (
	OpAppend Op = "append"
	OpGet    Op = "get"
	OpRemove Op = "remove"
	OpSize   Op = "size"
)

// ErrKindOutOfRange is the only error kind a step may expect.
const ErrKindOutOfRange = "out_of_range"

const nullTag = "!!null"

// Script is a named sequence of steps run against one fresh array.
type Script struct {
	// Name identifies the script in reports.
	Name string `yaml:"name"`

	// Description is free-form text shown in verbose output.
	Description string `yaml:"description,omitempty"`

	// Steps are applied in order.
	Steps []Step `yaml:"steps"`

	// Path is the file the script was loaded from, if any.
	Path string `yaml:"-"`
}

// Step is a single operation with its optional expectation.
type Step struct {
	// Op is the operation to apply.
	Op Op `yaml:"op"`

	// Index is the argument of get and remove.
	Index *int `yaml:"index,omitempty"`

	// Value is the argument of append. A YAML null appends a nil element.
	Value *string `yaml:"value,omitempty"`

	// valueSet records that the value key was present, so an explicit null
	// is told apart from a missing argument.
	valueSet bool

	// Want is the expected result of get (a string or null) or size (an integer).
	// A zero node means no expectation.
	Want yaml.Node `yaml:"want,omitempty"`

	// Err is the expected error kind of get or remove.
	Err string `yaml:"err,omitempty"`
}

// stepFields are the keys a step may carry.
var stepFields = map[string]struct{}{
	"op":    {},
	"index": {},
	"value": {},
	"want":  {},
	"err":   {},
}

// Parse decodes and validates a script.
func Parse(data []byte) (*Script, error) {
	s, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// decode reads a script, rejecting keys it does not know.
func decode(data []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding script: %w", err)
	}
	return &s, nil
}

// UnmarshalYAML decodes a step and records which arguments were given.
// Custom unmarshalers do not inherit the decoder's KnownFields setting,
// so unknown keys are rejected here.
func (st *Step) UnmarshalYAML(node *yaml.Node) error {
	type plain Step
	if err := node.Decode((*plain)(st)); err != nil {
		return err
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if _, ok := stepFields[key.Value]; !ok {
			return fmt.Errorf("line %d: unknown step field %q", key.Line, key.Value)
		}
		if key.Value == "value" {
			st.valueSet = true
		}
	}
	return nil
}

// Validate checks that every step is well formed.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("script %q has no steps", s.Name)
	}
	var errs []error
	for i := range s.Steps {
		if err := s.Steps[i].validate(); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid script %q: %w", s.Name, errors.Join(errs...))
	}
	return nil
}

func (st *Step) validate() error {
	switch st.Op {
	case OpAppend, OpGet, OpRemove, OpSize:
	case "":
		return errors.New("missing op")
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}

	if st.Err != "" {
		if st.Err != ErrKindOutOfRange {
			return fmt.Errorf("unknown error kind %q", st.Err)
		}
		if st.Op != OpGet && st.Op != OpRemove {
			return fmt.Errorf("%s never fails", st.Op)
		}
		if st.hasWant() {
			return errors.New("want and err are mutually exclusive")
		}
	}

	if st.hasWant() {
		switch st.Op {
		case OpGet:
			if st.Want.Kind != yaml.ScalarNode {
				return errors.New("get wants a scalar or null")
			}
		case OpSize:
			if _, err := st.wantSize(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s has no result to check", st.Op)
		}
	}

	switch st.Op {
	case OpAppend:
		if !st.hasValue() {
			return errors.New("append needs a value (use null for a nil element)")
		}
	case OpGet, OpRemove:
		if st.Index == nil {
			return fmt.Errorf("%s needs an index", st.Op)
		}
	}
	return nil
}

func (st *Step) hasValue() bool {
	return st.valueSet || st.Value != nil
}

func (st *Step) hasWant() bool {
	return st.Want.Kind != 0
}

// wantValue returns the expected element of a get. A nil result means the
// element is expected to be nil.
func (st *Step) wantValue() *string {
	if st.Want.ShortTag() == nullTag {
		return nil
	}
	v := st.Want.Value
	return &v
}

func (st *Step) wantSize() (int, error) {
	if st.Want.Kind != yaml.ScalarNode || st.Want.ShortTag() == nullTag {
		return 0, errors.New("size wants an integer")
	}
	n, err := strconv.Atoi(st.Want.Value)
	if err != nil {
		return 0, fmt.Errorf("size wants an integer: %w", err)
	}
	return n, nil
}

// String formats the step as a call, e.g. get(2) or append("x").
func (st *Step) String() string {
	switch st.Op {
	case OpAppend:
		return fmt.Sprintf("append(%s)", formatValue(st.Value))
	case OpGet, OpRemove:
		if st.Index == nil {
			return string(st.Op) + "(?)"
		}
		return fmt.Sprintf("%s(%d)", st.Op, *st.Index)
	default:
		return string(st.Op) + "()"
	}
}

func formatValue(v *string) string {
	if v == nil {
		return "null"
	}
	return strconv.Quote(*v)
}
