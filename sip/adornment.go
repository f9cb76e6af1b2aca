// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package sip computes adornments and sideways information passing graphs
// for the rules reachable from a query.
package sip

import (
	"strings"

	"github.com/open-policy-agent/opalog/ast"
)

// Binding tells whether an argument position is known when a predicate is
// called.
type Binding int

const (
	// Free positions are unknown at call time.
	Free Binding = iota

	// Bound positions receive a value from the caller.
	Bound
)

func (b Binding) String() string {
	if b == Bound {
		return "b"
	}
	return "f"
}

// Adornment holds one binding per argument position.
type Adornment []Binding

// NewAdornment returns the adornment of args given the variables known at
// call time. A position is bound if all of its variables are known; ground
// arguments are always bound.
func NewAdornment(args ast.Tuple, known ast.VarSet) Adornment {
	a := make(Adornment, len(args))
	for i, t := range args {
		bound := true
		ast.WalkVars(t, func(v ast.Var) {
			if !known.Contains(v) {
				bound = false
			}
		})
		if bound {
			a[i] = Bound
		}
	}
	return a
}

// ParseAdornment returns the adornment written as a string of b and f
// letters.
func ParseAdornment(s string) (Adornment, bool) {
	a := make(Adornment, len(s))
	for i, c := range s {
		switch c {
		case 'b':
			a[i] = Bound
		case 'f':
			a[i] = Free
		default:
			return nil, false
		}
	}
	return a, true
}

// BoundCount returns the number of bound positions.
func (a Adornment) BoundCount() int {
	n := 0
	for _, b := range a {
		if b == Bound {
			n++
		}
	}
	return n
}

// IsFree returns true if no position is bound.
func (a Adornment) IsFree() bool {
	return a.BoundCount() == 0
}

// BoundIndices returns the bound positions in increasing order.
func (a Adornment) BoundIndices() []int {
	result := make([]int, 0, len(a))
	for i, b := range a {
		if b == Bound {
			result = append(result, i)
		}
	}
	return result
}

// Select returns the terms of t at the bound positions.
func (a Adornment) Select(t ast.Tuple) ast.Tuple {
	result := make(ast.Tuple, 0, len(a))
	for i, b := range a {
		if b == Bound {
			result = append(result, t.Get(i))
		}
	}
	return result
}

// Equal returns true if both adornments have the same bindings.
func (a Adornment) Equal(other Adornment) bool {
	if len(a) != len(other) {
		return false
	}
	for i := range a {
		if a[i] != other[i] {
			return false
		}
	}
	return true
}

func (a Adornment) String() string {
	var sb strings.Builder
	for _, b := range a {
		sb.WriteString(b.String())
	}
	return sb.String()
}

// AdornedPredicate is a predicate together with the bindings it is called
// with.
type AdornedPredicate struct {
	Predicate ast.Predicate
	Adornment Adornment
}

// NewAdornedPredicate returns an adorned predicate. NewAdornedPredicate
// panics if the adornment length differs from the predicate arity.
func NewAdornedPredicate(p ast.Predicate, a Adornment) AdornedPredicate {
	if len(a) != p.Arity {
		panic("adornment " + a.String() + " does not match " + p.String())
	}
	return AdornedPredicate{Predicate: p, Adornment: a}
}

// Symbol returns the symbol of the adorned predicate, e.g., p^bf.
func (ap AdornedPredicate) Symbol() string {
	return ap.Predicate.Symbol + "^" + ap.Adornment.String()
}

// Key returns a string identifying the adorned predicate. Adorned predicates
// with equal keys are equal.
func (ap AdornedPredicate) Key() string {
	return ap.Predicate.String() + "^" + ap.Adornment.String()
}

// AsPredicate returns the ordinary predicate named by Symbol.
func (ap AdornedPredicate) AsPredicate() ast.Predicate {
	return ast.NewPredicate(ap.Symbol(), ap.Predicate.Arity)
}

// Equal returns true if both adorned predicates are equal.
func (ap AdornedPredicate) Equal(other AdornedPredicate) bool {
	return ap.Predicate == other.Predicate && ap.Adornment.Equal(other.Adornment)
}

func (ap AdornedPredicate) String() string {
	return ap.Symbol()
}
