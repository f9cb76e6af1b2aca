// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"fmt"
	"strings"
)

// Tuple is a fixed-length ordered sequence of terms. The arity of a tuple is
// its length and must not change after creation; callers that need a
// modified tuple make a copy.
type Tuple []Term

// NewTuple returns a tuple containing a copy of terms.
func NewTuple(terms ...Term) Tuple {
	t := make(Tuple, len(terms))
	copy(t, terms)
	return t
}

// Arity returns the number of terms in the tuple.
func (t Tuple) Arity() int {
	return len(t)
}

// Get returns the term at index i. Get panics if i is out of range.
func (t Tuple) Get(i int) Term {
	if i < 0 || i >= len(t) {
		panic(fmt.Sprintf("tuple index out of range: %d (arity %d)", i, len(t)))
	}
	return t[i]
}

// Equal returns true if both tuples have the same arity and equal terms.
func (t Tuple) Equal(other Tuple) bool {
	return termSliceEqual(t, other)
}

// Hash returns the hash code for the tuple.
func (t Tuple) Hash() uint64 {
	h := uint64(len(t))
	for _, x := range t {
		h = h*31 + x.Hash()
	}
	return h
}

// IsGround returns true if every term in the tuple is ground.
func (t Tuple) IsGround() bool {
	for _, x := range t {
		if !x.IsGround() {
			return false
		}
	}
	return true
}

// Vars returns the variables in the tuple in order of first appearance.
func (t Tuple) Vars() []Var {
	var result []Var
	seen := VarSet{}
	for _, x := range t {
		WalkVars(x, func(v Var) {
			if !seen.Contains(v) {
				seen.Add(v)
				result = append(result, v)
			}
		})
	}
	return result
}

// Substitute returns a new tuple with bindings applied to every term.
func (t Tuple) Substitute(bindings map[Var]Term) Tuple {
	cpy := make(Tuple, len(t))
	for i := range t {
		cpy[i] = Substitute(t[i], bindings)
	}
	return cpy
}

func (t Tuple) String() string {
	buf := make([]string, len(t))
	for i := range t {
		buf[i] = t[i].String()
	}
	return "(" + strings.Join(buf, ", ") + ")"
}
