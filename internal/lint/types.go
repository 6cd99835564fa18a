// Package lint defines the boundary to the external lint engine. The engine
// itself is a collaborator; this package owns the report shape the build
// pipeline consumes and the blocking-severity rule.
package lint

import "context"

// Severity indicates the importance level of a linting issue. The numeric
// values mirror the external engine's levels; level 2 blocks a build.
type Severity int

const (
	// SeverityInfo indicates informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning indicates issues that should be fixed but don't block builds.
	SeverityWarning
	// SeverityError indicates issues that prevent a unit from being built.
	SeverityError
)

// String returns the human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Issue represents a single linting problem found in a file.
type Issue struct {
	FilePath string   // Path of the linted file
	Severity Severity // Issue severity level
	Rule     string   // Rule identifier
	Message  string   // Brief description of the issue
	Line     int      // Line number (0 if file-level issue)
}

// Result contains all issues found while linting one file.
type Result struct {
	Issues []Issue
}

// HasErrors returns true if any error-level issues exist.
func (r *Result) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of error-level issues.
func (r *Result) ErrorCount() int {
	count := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			count++
		}
	}
	return count
}

// Engine is the external lint pass applied to every resolved input file.
type Engine interface {
	Lint(ctx context.Context, configPath, filePath string, content []byte) (Result, error)
}
