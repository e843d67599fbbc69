// Package dispatch turns component specifications into isolated,
// dependency-ordered generation calls. Each call sees exactly one
// component; siblings are referenced by name only, never by content.
package dispatch

import "time"

// ComponentSpec describes one component to generate
type ComponentSpec struct {
	Name         string            `json:"name" yaml:"name"`
	Type         string            `json:"type" yaml:"type"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	Props        map[string]string `json:"props,omitempty" yaml:"props,omitempty"`
	Parent       string            `json:"parent,omitempty" yaml:"parent,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Context is the shared read-only input for one dispatch run
type Context struct {
	ProjectName string

	// PhaseTag selects phase-specific generation parameters
	PhaseTag string

	// SharedComponents are component names every generated component is
	// expected to use
	SharedComponents []string

	// Tokens is the design-token set the self-review gate checks literal
	// colors against; nil disables the color check
	Tokens *TokenSet
}

// Result is the outcome of dispatching one component
type Result struct {
	ComponentName string        `json:"component_name"`
	Success       bool          `json:"success"`
	Skipped       bool          `json:"skipped"`
	Code          string        `json:"code,omitempty"`
	Strategy      string        `json:"strategy,omitempty"`
	Errors        []string      `json:"errors,omitempty"`
	Duration      time.Duration `json:"duration"`
}
