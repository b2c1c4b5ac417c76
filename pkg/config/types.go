package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/firecontain/pkg/scenario"
)

// ParsedConfig is the result of parsing scenario documents.
type ParsedConfig struct {
	// Scenarios are the scenarios in document order, generated ones last.
	Scenarios []*scenario.Scenario `json:"scenarios"`

	// Rosters are named resource lists that scenarios may reference.
	Rosters map[string][]scenario.ResourceSpec `json:"rosters,omitempty"`

	// SourceFiles are the files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the configuration was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// HasErrors reports whether any error-severity problem was found.
func (pc *ParsedConfig) HasErrors() bool {
	for _, e := range pc.Errors {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Err joins the errors into one, or returns nil.
func (pc *ParsedConfig) Err() error {
	if !pc.HasErrors() {
		return nil
	}
	msgs := make([]string, 0, len(pc.Errors))
	for _, e := range pc.Errors {
		if e.Severity == SeverityError {
			msgs = append(msgs, e.Error())
		}
	}
	return fmt.Errorf("invalid scenario document: %s", strings.Join(msgs, "; "))
}

// Scenario returns the scenario with the given name.
func (pc *ParsedConfig) Scenario(name string) (*scenario.Scenario, bool) {
	for _, s := range pc.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the document path to the error (e.g., "scenarios.ridge.resources[0]").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning).
	Severity string `json:"severity" validate:"required,oneof=error warning"`
}

func (e ValidationError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// Generator is a Starlark script that produces scenarios.
type Generator struct {
	// Name labels the generator in errors.
	Name string `json:"name,omitempty"`

	// Script is inline Starlark source.
	Script string `json:"script,omitempty"`

	// File is a Starlark file, relative to the document.
	File string `json:"file,omitempty"`

	// Input is bound as predeclared globals.
	Input map[string]interface{} `json:"input,omitempty"`
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from Starlark.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}
