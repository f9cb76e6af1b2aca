// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package storage

import (
	"fmt"

	"github.com/open-policy-agent/opalog/ast"
)

// Condition is the comparison applied to joined attributes.
type Condition int

const (
	// Equals requires joined attributes to be equal.
	Equals Condition = iota
	NotEquals
	LessThan
	LessThanEq
	GreaterThan
	GreaterThanEq
)

func (c Condition) String() string {
	switch c {
	case Equals:
		return "="
	case NotEquals:
		return "!="
	case LessThan:
		return "<"
	case LessThanEq:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterThanEq:
		return ">="
	}
	return fmt.Sprintf("condition(%d)", int(c))
}

// Test returns true if a and b satisfy the condition.
func (c Condition) Test(a, b ast.Term) bool {
	cmp := ast.Compare(a, b)
	switch c {
	case Equals:
		return cmp == 0
	case NotEquals:
		return cmp != 0
	case LessThan:
		return cmp < 0
	case LessThanEq:
		return cmp <= 0
	case GreaterThan:
		return cmp > 0
	case GreaterThanEq:
		return cmp >= 0
	}
	return false
}

// ProjectIndex describes where one output column of a join comes from. A
// value of -1 means the column is not sourced from that side. Exactly one of
// the fields must be non-negative.
type ProjectIndex struct {
	FromLeft  int
	FromRight int
}

// Left returns a ProjectIndex sourced from column i of the left relation.
func Left(i int) ProjectIndex {
	return ProjectIndex{FromLeft: i, FromRight: -1}
}

// Right returns a ProjectIndex sourced from column i of the right relation.
func Right(i int) ProjectIndex {
	return ProjectIndex{FromLeft: -1, FromRight: i}
}

// Join returns the tuples assembled from every pair (x, y) of tuples in a
// and b such that for every pair [i, j] in joinIndex, cond holds for x[i]
// and y[j]. Output tuples are assembled according to project. With an empty
// joinIndex the result is the cross product.
func Join(a, b *Relation, joinIndex [][2]int, cond Condition, project []ProjectIndex) *Relation {

	for _, p := range project {
		if (p.FromLeft < 0) == (p.FromRight < 0) {
			panic(fmt.Sprintf("illegal project index: %+v", p))
		}
	}

	result := NewRelation(len(project))

	emit := func(x, y ast.Tuple) {
		out := make(ast.Tuple, len(project))
		for i, p := range project {
			if p.FromLeft >= 0 {
				out[i] = x.Get(p.FromLeft)
			} else {
				out[i] = y.Get(p.FromRight)
			}
		}
		result.Add(out)
	}

	if cond == Equals && len(joinIndex) > 0 {
		// Hash join on the right relation's join columns.
		index := newTupleMap[[]ast.Tuple]()
		b.Iter(func(y ast.Tuple) bool {
			key := joinKey(y, joinIndex, 1)
			ys, _ := index.Get(key)
			index.Put(key, append(ys, y))
			return false
		})
		a.Iter(func(x ast.Tuple) bool {
			ys, _ := index.Get(joinKey(x, joinIndex, 0))
			for _, y := range ys {
				emit(x, y)
			}
			return false
		})
		return result
	}

	a.Iter(func(x ast.Tuple) bool {
		b.Iter(func(y ast.Tuple) bool {
			for _, pair := range joinIndex {
				if !cond.Test(x.Get(pair[0]), y.Get(pair[1])) {
					return false
				}
			}
			emit(x, y)
			return false
		})
		return false
	})

	return result
}

func joinKey(t ast.Tuple, joinIndex [][2]int, side int) ast.Tuple {
	key := make(ast.Tuple, len(joinIndex))
	for i, pair := range joinIndex {
		key[i] = t.Get(pair[side])
	}
	return key
}

// Projection returns the relation whose tuples are built from the columns of
// a listed in indexMap. Entries of -1 do not produce a column.
func Projection(a *Relation, indexMap []int) *Relation {
	var cols []int
	for _, i := range indexMap {
		if i >= 0 {
			cols = append(cols, i)
		}
	}
	result := NewRelation(len(cols))
	a.Iter(func(t ast.Tuple) bool {
		out := make(ast.Tuple, len(cols))
		for i, c := range cols {
			out[i] = t.Get(c)
		}
		result.Add(out)
		return false
	})
	return result
}

// Selection returns the tuples of a that match pattern. Ground terms in the
// pattern must equal the tuple's term at the same position. Repeated
// variables must match equal terms. Selection panics if the pattern arity
// differs from the relation arity.
func Selection(a *Relation, pattern ast.Tuple) *Relation {
	if len(pattern) != a.Arity() {
		panic(fmt.Sprintf("arity mismatch: cannot select %v from relation of arity %d", pattern, a.Arity()))
	}
	result := NewRelation(a.Arity())
	a.Iter(func(t ast.Tuple) bool {
		if Matches(t, pattern) {
			result.Add(t)
		}
		return false
	})
	return result
}

// Matches returns true if the ground tuple t matches pattern. Variables in
// the pattern match any term; repeated variables must match equal terms.
// Constructs in the pattern are matched structurally.
func Matches(t, pattern ast.Tuple) bool {
	_, ok := Match(t, pattern)
	return ok
}

// Match is like Matches but also returns the bindings of the pattern's
// variables.
func Match(t, pattern ast.Tuple) (map[ast.Var]ast.Term, bool) {
	if len(t) != len(pattern) {
		return nil, false
	}
	bindings := map[ast.Var]ast.Term{}
	for i := range pattern {
		if !matchTerm(t[i], pattern[i], bindings) {
			return nil, false
		}
	}
	return bindings, true
}

func matchTerm(value, pattern ast.Term, bindings map[ast.Var]ast.Term) bool {
	type pair struct{ value, pattern ast.Term }
	stack := []pair{{value, pattern}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch x := p.pattern.(type) {
		case ast.Var:
			if bound, ok := bindings[x]; ok {
				if !bound.Equal(p.value) {
					return false
				}
			} else {
				bindings[x] = p.value
			}
		case *ast.Construct:
			v, ok := p.value.(*ast.Construct)
			if !ok || v.Symbol != x.Symbol || v.Arity() != x.Arity() {
				return false
			}
			for i := range x.Args {
				stack = append(stack, pair{v.Args[i], x.Args[i]})
			}
		default:
			if !x.Equal(p.value) {
				return false
			}
		}
	}
	return true
}

// Union returns a new relation containing the tuples of a and b.
func Union(a, b *Relation) *Relation {
	checkArity(a, b)
	result := a.Copy()
	result.AddAll(b)
	return result
}

// Difference returns a new relation containing the tuples of a that are not
// in b.
func Difference(a, b *Relation) *Relation {
	checkArity(a, b)
	result := NewRelation(a.Arity())
	a.Iter(func(t ast.Tuple) bool {
		if !b.Contains(t) {
			result.Add(t)
		}
		return false
	})
	return result
}

func checkArity(a, b *Relation) {
	if a.Arity() != b.Arity() {
		panic(fmt.Sprintf("arity mismatch: %d and %d", a.Arity(), b.Arity()))
	}
}
