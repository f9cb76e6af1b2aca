// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"math"
	"strings"
)

// Compare returns an integer indicating whether two terms are less than,
// equal to, or greater than each other.
//
// If a is less than b, the return value is negative. If a is greater than b,
// the return value is positive. If a is equal to b, the return value is zero.
//
// Different types are never equal to each other. For comparison purposes,
// types are sorted as follows:
//
// Var < Boolean < Integer, Double < String < Construct
//
// Integers and Doubles are compared by numeric value. When the values are
// equal the Integer sorts first.
//
// Constructs are compared by arity, then by symbol, and then argument by
// argument.
func Compare(a, b Term) int {

	sortA := sortOrder(a)
	sortB := sortOrder(b)

	if sortA < sortB {
		return -1
	} else if sortB < sortA {
		return 1
	}

	switch a := a.(type) {
	case Var:
		return strings.Compare(string(a), string(b.(Var)))
	case Boolean:
		b := b.(Boolean)
		if a == b {
			return 0
		}
		if !a {
			return -1
		}
		return 1
	case Integer, Double:
		return compareNumbers(a, b)
	case String:
		return strings.Compare(string(a), string(b.(String)))
	case *Construct:
		return compareConstructs(a, b.(*Construct))
	}

	panic("unreachable")
}

// TupleCompare compares two tuples element by element. Shorter tuples sort
// first when one is a prefix of the other.
func TupleCompare(a, b Tuple) int {
	minLen := min(len(a), len(b))
	for i := range minLen {
		if cmp := Compare(a[i], b[i]); cmp != 0 {
			return cmp
		}
	}
	return len(a) - len(b)
}

func compareNumbers(a, b Term) int {
	if x, ok := a.(Integer); ok {
		if y, ok := b.(Integer); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	fa, fb := numberValue(a), numberValue(b)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	case math.IsNaN(fa) || math.IsNaN(fb):
		return compareNaN(fa, fb)
	}
	_, ia := a.(Integer)
	_, ib := b.(Integer)
	switch {
	case ia && !ib:
		return -1
	case !ia && ib:
		return 1
	}
	return 0
}

// NaN sorts after every other number so the order stays total.
func compareNaN(a, b float64) int {
	na, nb := math.IsNaN(a), math.IsNaN(b)
	switch {
	case na && nb:
		return 0
	case na:
		return 1
	}
	return -1
}

func numberValue(t Term) float64 {
	switch t := t.(type) {
	case Integer:
		return float64(t)
	case Double:
		return float64(t)
	}
	panic("unreachable")
}

func compareConstructs(a, b *Construct) int {
	if a.Arity() != b.Arity() {
		return a.Arity() - b.Arity()
	}
	if cmp := strings.Compare(a.Symbol, b.Symbol); cmp != 0 {
		return cmp
	}
	for i := range a.Args {
		if cmp := Compare(a.Args[i], b.Args[i]); cmp != 0 {
			return cmp
		}
	}
	return 0
}

func sortOrder(t Term) int {
	switch t.(type) {
	case Var:
		return 0
	case Boolean:
		return 1
	case Integer, Double:
		return 2
	case String:
		return 3
	case *Construct:
		return 4
	}
	panic("unreachable")
}
