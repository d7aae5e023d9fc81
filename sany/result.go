package sany

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	ParseError ErrorKind = iota
	SemanticError
)

func (k ErrorKind) String() string {
	if k == SemanticError {
		return "semantic"
	}
	return "parse"
}

// ErrorRecord is a single parse or semantic error reported by the analyzer.
type ErrorRecord struct {
	Kind     ErrorKind
	Message  string
	Location Location
}

func (e ErrorRecord) Error() string {
	return e.Message
}

// Result is the outcome of one analysis. Exactly one of Tree and Errors is
// set: a failed analysis never carries a tree.
type Result struct {
	Tree   *Tree
	Errors []ErrorRecord
}

// OK reports whether the analysis produced a tree.
func (r *Result) OK() bool {
	return r != nil && r.Tree != nil && len(r.Errors) == 0
}

func Succeeded(tree *Tree) *Result {
	return &Result{Tree: tree}
}

func Failed(errs ...ErrorRecord) *Result {
	return &Result{Errors: errs}
}

// StartupError means the analyzer cannot be run at all: the executable is
// missing or its configuration is unusable. Nothing can be served when it
// occurs.
type StartupError struct {
	Command string
	Err     error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("analyzer %q unavailable: %s", e.Command, e.Err.Error())
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// IsStartupError reports whether err is, or wraps, a StartupError.
func IsStartupError(err error) bool {
	var se *StartupError
	return errors.As(err, &se)
}
