// Package jobspec defines the immutable description of a command to run on a
// resource.
//
// A Spec is caller-owned: the orchestrator takes a local copy at construction
// and never mutates the caller's value. The root-directory override is a
// one-shot field: once the orchestrator consumes it, the effective spec view
// no longer carries it, so a stale value can never be re-read.
package jobspec

import (
	"errors"
	"fmt"
	"strings"
)

// Spec describes what to run: the command, its inputs and outputs, and any
// resource-specific extra options forwarded verbatim to templates.
type Spec struct {
	// Command is the shell command string to execute. Required.
	Command string `yaml:"command" json:"command"`

	// Inputs are paths staged to the resource before submission, in order.
	Inputs []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// Outputs are paths retrieved from the resource after the job reaches a
	// terminal state, in order. Doublestar glob patterns are allowed.
	Outputs []string `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// RootDirectory optionally overrides the resource-wide base directory.
	// Must be absolute. Consumed once by the orchestrator.
	RootDirectory string `yaml:"root_directory,omitempty" json:"root_directory,omitempty"`

	// Options are extra named parameters made available to templates by name
	// (queue names, walltime, memory requests, ...).
	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// Validate checks the spec for structural problems.
func (s *Spec) Validate() error {
	if s == nil {
		return errors.New("job spec is nil")
	}
	if strings.TrimSpace(s.Command) == "" {
		return errors.New("job spec: command is required")
	}
	for i, in := range s.Inputs {
		if strings.TrimSpace(in) == "" {
			return fmt.Errorf("job spec: inputs[%d] is empty", i)
		}
	}
	for i, out := range s.Outputs {
		if strings.TrimSpace(out) == "" {
			return fmt.Errorf("job spec: outputs[%d] is empty", i)
		}
	}
	return nil
}

// Clone returns a deep copy of the spec. The orchestrator clones the caller's
// spec at construction so later consumption of one-shot fields cannot be
// observed by the caller.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return &Spec{}
	}
	out := &Spec{
		Command:       s.Command,
		RootDirectory: s.RootDirectory,
	}
	if len(s.Inputs) > 0 {
		out.Inputs = append([]string(nil), s.Inputs...)
	}
	if len(s.Outputs) > 0 {
		out.Outputs = append([]string(nil), s.Outputs...)
	}
	if len(s.Options) > 0 {
		out.Options = make(map[string]string, len(s.Options))
		for k, v := range s.Options {
			out.Options[k] = v
		}
	}
	return out
}

// ConsumeRootDirectory returns the root-directory override and clears it from
// the spec view. Subsequent calls return "".
func (s *Spec) ConsumeRootDirectory() string {
	root := s.RootDirectory
	s.RootDirectory = ""
	return root
}

// TemplateVars returns the spec's fields as a flat variable map for template
// rendering. Extra options appear by name; a spec option cannot shadow a
// reserved orchestration variable (the renderer's caller layers those on
// afterward).
func (s *Spec) TemplateVars() map[string]any {
	vars := map[string]any{
		"command": s.Command,
		"inputs":  append([]string(nil), s.Inputs...),
		"outputs": append([]string(nil), s.Outputs...),
	}
	for k, v := range s.Options {
		vars[k] = v
	}
	return vars
}
