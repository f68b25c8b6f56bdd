package store

import (
	"errors"
	"fmt"
)

// NotFoundError reports that the store file does not exist. Callers may
// treat it as "use defaults".
type NotFoundError struct {
	// Path is the store file that was looked for.
	Path string `json:"path"`
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ParseError reports a malformed store file. Line and Column are 1-based
// when the underlying parser provided a position, zero otherwise.
type ParseError struct {
	// Path is the store file that failed to parse.
	Path string `json:"path"`

	// Line is the 1-based line of the first problem, if known.
	Line int `json:"line,omitempty"`

	// Column is the 1-based column of the first problem, if known.
	Column int `json:"column,omitempty"`

	// Message describes the problem.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Message)
}

// IsParseError reports whether err is a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
