// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/util"
)

// Relation is a set of tuples of one fixed arity. Tuples are kept in
// insertion order; Tuples returns them sorted.
type Relation struct {
	arity  int
	tuples []ast.Tuple
	index  *util.HashMap[ast.Tuple, struct{}]
}

// NewRelation returns an empty relation of the given arity.
func NewRelation(arity int) *Relation {
	if arity < 0 {
		panic(fmt.Sprintf("illegal relation arity: %d", arity))
	}
	return &Relation{
		arity: arity,
		index: newTupleMap[struct{}](),
	}
}

// NewRelationOf returns a relation containing tuples. NewRelationOf panics
// if the tuples do not all have the given arity.
func NewRelationOf(arity int, tuples ...ast.Tuple) *Relation {
	r := NewRelation(arity)
	for _, t := range tuples {
		r.Add(t)
	}
	return r
}

func newTupleMap[V any]() *util.HashMap[ast.Tuple, V] {
	return util.NewHashMap[ast.Tuple, V](func(a, b ast.Tuple) bool {
		return a.Equal(b)
	}, func(t ast.Tuple) uint64 {
		return t.Hash()
	})
}

// Arity returns the number of columns of the relation.
func (r *Relation) Arity() int {
	return r.arity
}

// Add inserts t into the relation. Add returns true if the relation grew.
// Add panics if the tuple arity does not match the relation arity.
func (r *Relation) Add(t ast.Tuple) bool {
	if len(t) != r.arity {
		panic(fmt.Sprintf("arity mismatch: cannot add %v to relation of arity %d", t, r.arity))
	}
	if !r.index.Put(t, struct{}{}) {
		return false
	}
	r.tuples = append(r.tuples, t)
	return true
}

// AddAll inserts all tuples of other into the relation. AddAll returns true
// if the relation grew.
func (r *Relation) AddAll(other *Relation) bool {
	var grew bool
	for _, t := range other.tuples {
		if r.Add(t) {
			grew = true
		}
	}
	return grew
}

// Contains returns true if t is in the relation.
func (r *Relation) Contains(t ast.Tuple) bool {
	if len(t) != r.arity {
		return false
	}
	_, ok := r.index.Get(t)
	return ok
}

// Size returns the number of tuples in the relation.
func (r *Relation) Size() int {
	return len(r.tuples)
}

// IsEmpty returns true if the relation has no tuples.
func (r *Relation) IsEmpty() bool {
	return len(r.tuples) == 0
}

// Iter calls f for each tuple in insertion order. If f returns true,
// iteration stops and Iter returns true.
func (r *Relation) Iter(f func(ast.Tuple) bool) bool {
	for _, t := range r.tuples {
		if f(t) {
			return true
		}
	}
	return false
}

// Tuples returns the tuples of the relation sorted by ast.TupleCompare.
func (r *Relation) Tuples() []ast.Tuple {
	sorted := make([]ast.Tuple, len(r.tuples))
	copy(sorted, r.tuples)
	sort.Slice(sorted, func(i, j int) bool {
		return ast.TupleCompare(sorted[i], sorted[j]) < 0
	})
	return sorted
}

// Copy returns a copy of the relation. Tuples are shared.
func (r *Relation) Copy() *Relation {
	cpy := NewRelation(r.arity)
	cpy.AddAll(r)
	return cpy
}

// Clear removes all tuples from the relation.
func (r *Relation) Clear() {
	r.tuples = nil
	r.index.Clear()
}

// Equal returns true if both relations have the same arity and contain the
// same tuples.
func (r *Relation) Equal(other *Relation) bool {
	if r.arity != other.arity || r.Size() != other.Size() {
		return false
	}
	return !r.Iter(func(t ast.Tuple) bool {
		return !other.Contains(t)
	})
}

func (r *Relation) String() string {
	tuples := r.Tuples()
	buf := make([]string, len(tuples))
	for i := range tuples {
		buf[i] = tuples[i].String()
	}
	return "{" + strings.Join(buf, ", ") + "}"
}
