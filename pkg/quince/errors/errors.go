// Package errors provides structured error types for the Quince runtime.
//
// This package defines QuinceError, a unified error type that can represent
// parse-time and run-time failures with enough metadata for the host to
// render developer diagnostics or a generic end-user failure response.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorClass categorizes errors for filtering and host-side handling.
type ErrorClass string

const (
	ClassParse     ErrorClass = "parse"     // Malformed source, bad attribute, invalid nesting
	ClassParam     ErrorClass = "param"     // Missing required parameter, coercion failure
	ClassEval      ErrorClass = "eval"      // Expression syntax or reference failure
	ClassExecution ErrorClass = "execution" // Failure surfaced from an executor or collaborator
)

// QuinceError represents any error from parsing or execution.
type QuinceError struct {
	Class   ErrorClass `json:"class"`           // Error category
	Message string     `json:"message"`         // Human-readable message
	Line    int        `json:"line"`            // 1-based line (0 if unknown)
	Column  int        `json:"column"`          // 1-based column (0 if unknown)
	File    string     `json:"file,omitempty"`  // Component file (if known)
	Param   string     `json:"param,omitempty"` // Offending parameter name (param errors)
	Expr    string     `json:"expr,omitempty"`  // Offending expression text (eval errors)
	Wrapped error      `json:"-"`               // Underlying collaborator error (execution errors)
}

// Error implements the error interface.
func (e *QuinceError) Error() string {
	return e.String()
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *QuinceError) Unwrap() error {
	return e.Wrapped
}

// String returns a single-line formatted representation of the error.
func (e *QuinceError) String() string {
	var sb strings.Builder

	if e.File != "" {
		sb.WriteString(e.File)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		sb.WriteString(fmt.Sprintf("line %d, column %d: ", e.Line, e.Column))
	}
	sb.WriteString(e.Message)
	if e.Expr != "" {
		sb.WriteString(fmt.Sprintf(" in {%s}", e.Expr))
	}

	return sb.String()
}

// PrettyString returns a multi-line formatted string for display.
func (e *QuinceError) PrettyString() string {
	var sb strings.Builder

	switch e.Class {
	case ClassParse:
		sb.WriteString("Parse error")
	case ClassParam:
		sb.WriteString("Parameter error")
	case ClassEval:
		sb.WriteString("Expression error")
	default:
		sb.WriteString("Runtime error")
	}

	if e.File != "" {
		sb.WriteString(":\n  in: ")
		sb.WriteString(e.File)
		if e.Line > 0 {
			sb.WriteString(fmt.Sprintf("\n  at: line %d, column %d", e.Line, e.Column))
		}
		sb.WriteString("\n  ")
	} else if e.Line > 0 {
		sb.WriteString(fmt.Sprintf(": line %d, column %d\n  ", e.Line, e.Column))
	} else {
		sb.WriteString(":\n  ")
	}

	sb.WriteString(e.Message)
	if e.Expr != "" {
		sb.WriteString("\n  expression: {")
		sb.WriteString(e.Expr)
		sb.WriteString("}")
	}

	return sb.String()
}

// ToJSON returns the error as JSON bytes.
func (e *QuinceError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WithFile returns a copy of the error with the file path set.
func (e *QuinceError) WithFile(file string) *QuinceError {
	copy := *e
	copy.File = file
	return &copy
}

// WithPosition returns a copy of the error with line and column set.
func (e *QuinceError) WithPosition(line, column int) *QuinceError {
	copy := *e
	copy.Line = line
	copy.Column = column
	return &copy
}

// IsParseError returns true if this is a parse-time error.
func (e *QuinceError) IsParseError() bool {
	return e.Class == ClassParse
}

// NewParse creates a parse error at a source position.
func NewParse(line, column int, format string, args ...any) *QuinceError {
	return &QuinceError{
		Class:   ClassParse,
		Message: fmt.Sprintf(format, args...),
		Line:    line,
		Column:  column,
	}
}

// NewParam creates a parameter error naming the offending parameter.
func NewParam(param, format string, args ...any) *QuinceError {
	return &QuinceError{
		Class:   ClassParam,
		Message: fmt.Sprintf(format, args...),
		Param:   param,
	}
}

// NewEval creates an expression evaluation error carrying the expression text.
func NewEval(expr, format string, args ...any) *QuinceError {
	return &QuinceError{
		Class:   ClassEval,
		Message: fmt.Sprintf(format, args...),
		Expr:    expr,
	}
}

// NewExecution wraps a failure surfaced from an executor or collaborator.
func NewExecution(err error, format string, args ...any) *QuinceError {
	return &QuinceError{
		Class:   ClassExecution,
		Message: fmt.Sprintf(format, args...),
		Wrapped: err,
	}
}

// AsQuince extracts a *QuinceError from err, wrapping foreign errors as
// execution errors so callers always see the structured form.
func AsQuince(err error) *QuinceError {
	if err == nil {
		return nil
	}
	if qe, ok := err.(*QuinceError); ok {
		return qe
	}
	return NewExecution(err, "%s", err.Error())
}
