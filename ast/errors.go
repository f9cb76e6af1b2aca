// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Errors represents a series of errors encountered during reading, analysis,
// rewriting, etc.
type Errors []*Error

func (e Errors) Error() string {

	if len(e) == 0 {
		return "no error(s)"
	}

	if len(e) == 1 {
		return fmt.Sprintf("1 error occurred: %v", e[0].Error())
	}

	s := make([]string, len(e))
	for i, err := range e {
		s[i] = err.Error()
	}

	return fmt.Sprintf("%d errors occurred:\n%s", len(e), strings.Join(s, "\n"))
}

// Sort sorts the error slice by location. Errors without a location sort
// first, ties are broken by message.
func (e Errors) Sort() {
	sort.SliceStable(e, func(i, j int) bool {
		a, b := e[i], e[j]
		if cmp := a.Location.Compare(b.Location); cmp != 0 {
			return cmp < 0
		}
		return a.Message < b.Message
	})
}

// ErrCode defines the types of errors returned during reading, analysis,
// rewriting and evaluation.
type ErrCode int

const (
	// ParseErr indicates the source text could not be read.
	ParseErr ErrCode = iota

	// ArityErr indicates a predicate or builtin was used with the wrong
	// number of arguments.
	ArityErr

	// UnsafeRuleErr indicates a rule contains variables that are not
	// limited by a positive ordinary literal.
	UnsafeRuleErr

	// StratificationErr indicates a program has negation inside a
	// dependency cycle.
	StratificationErr

	// MultiHeadErr indicates a rule does not have exactly one head literal.
	MultiHeadErr

	// EvalErr indicates evaluation failed (e.g., a builtin was called with
	// unbound inputs or the iteration limit was exceeded).
	EvalErr
)

var errCodeNames = map[ErrCode]string{
	ParseErr:          "parse_error",
	ArityErr:          "arity_error",
	UnsafeRuleErr:     "unsafe_rule_error",
	StratificationErr: "stratification_error",
	MultiHeadErr:      "multi_head_error",
	EvalErr:           "eval_error",
}

func (c ErrCode) String() string {
	if s, ok := errCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("error_%d", int(c))
}

// IsError returns true if err is an AST error with code. Wrapped errors are
// unwrapped with errors.Cause first.
func IsError(code ErrCode, err error) bool {
	switch err := errors.Cause(err).(type) {
	case *Error:
		return err.Code == code
	case Errors:
		for _, e := range err {
			if e.Code == code {
				return true
			}
		}
	}
	return false
}

// Location records a position in source text.
type Location struct {
	File string // The name of the source file (which may be empty).
	Row  int    // The line in the source.
	Col  int    // The column in the row.
}

// Compare orders locations by file, row and column. A nil location sorts
// before any other.
func (loc *Location) Compare(other *Location) int {
	switch {
	case loc == nil && other == nil:
		return 0
	case loc == nil:
		return -1
	case other == nil:
		return 1
	}
	if cmp := strings.Compare(loc.File, other.File); cmp != 0 {
		return cmp
	}
	if loc.Row != other.Row {
		if loc.Row < other.Row {
			return -1
		}
		return 1
	}
	if loc.Col != other.Col {
		if loc.Col < other.Col {
			return -1
		}
		return 1
	}
	return 0
}

func (loc *Location) String() string {
	if len(loc.File) > 0 {
		return fmt.Sprintf("%v:%v", loc.File, loc.Row)
	}
	return fmt.Sprintf("%v:%v", loc.Row, loc.Col)
}

// Error represents a single error caught during reading, analysis, etc.
type Error struct {
	Code     ErrCode   `json:"code"`
	Location *Location `json:"location,omitempty"`
	Message  string    `json:"message"`
}

func (e *Error) Error() string {
	if e.Location == nil {
		return fmt.Sprintf("%v: %v", e.Code, e.Message)
	}
	return fmt.Sprintf("%v: %v: %v", e.Location, e.Code, e.Message)
}

// NewError returns a new Error object.
func NewError(code ErrCode, loc *Location, f string, a ...any) *Error {
	return &Error{
		Code:     code,
		Location: loc,
		Message:  fmt.Sprintf(f, a...),
	}
}
