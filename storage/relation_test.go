// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package storage

import (
	"testing"

	"github.com/open-policy-agent/opalog/ast"
)

func mustRelation(arity int, tuples ...string) *Relation {
	r := NewRelation(arity)
	for _, t := range tuples {
		r.Add(ast.MustParseTuple(t))
	}
	return r
}

func TestRelationAdd(t *testing.T) {
	r := NewRelation(2)

	if !r.Add(ast.MustParseTuple("(a, b)")) {
		t.Fatal("Expected relation to grow")
	}
	if r.Add(ast.MustParseTuple("(a, b)")) {
		t.Fatal("Expected duplicate insert to be ignored")
	}
	if !r.Add(ast.MustParseTuple("(a, f(b))")) {
		t.Fatal("Expected relation to grow")
	}
	if r.Size() != 2 {
		t.Fatalf("Expected size 2 but got %d", r.Size())
	}
	if !r.Contains(ast.MustParseTuple("(a, f(b))")) {
		t.Fatal("Expected tuple to be contained")
	}
	if r.Contains(ast.MustParseTuple("(a)")) {
		t.Fatal("Unexpected tuple of wrong arity")
	}
}

func TestRelationAddArityMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic")
		}
	}()
	NewRelation(2).Add(ast.MustParseTuple("(a)"))
}

func TestRelationAddAll(t *testing.T) {
	r := mustRelation(1, "(a)", "(b)")

	if r.AddAll(mustRelation(1, "(a)")) {
		t.Fatal("Expected relation not to grow")
	}
	if !r.AddAll(mustRelation(1, "(a)", "(c)")) {
		t.Fatal("Expected relation to grow")
	}
	if r.String() != "{(a), (b), (c)}" {
		t.Fatalf("Unexpected relation: %v", r)
	}
}

func TestRelationTuplesSorted(t *testing.T) {
	r := mustRelation(2, "(b, 1)", "(a, 2)", "(a, 1)", "(1, z)")
	exp := []string{"(1, z)", "(a, 1)", "(a, 2)", "(b, 1)"}
	tuples := r.Tuples()
	for i := range exp {
		if tuples[i].String() != exp[i] {
			t.Fatalf("Expected %v but got %v", exp, tuples)
		}
	}
}

func TestRelationCopyAndClear(t *testing.T) {
	r := mustRelation(1, "(a)", "(b)")
	cpy := r.Copy()
	r.Clear()
	if !r.IsEmpty() || r.Contains(ast.MustParseTuple("(a)")) {
		t.Fatalf("Expected empty relation but got %v", r)
	}
	if cpy.Size() != 2 {
		t.Fatalf("Expected copy to be unaffected but got %v", cpy)
	}
	if !cpy.Equal(mustRelation(1, "(b)", "(a)")) {
		t.Fatalf("Unexpected copy: %v", cpy)
	}
}

func TestDatabase(t *testing.T) {
	db := NewDatabase()
	edge := ast.NewPredicate("edge", 2)

	grew, err := db.AddFact(ast.NewAtom(edge, ast.MustParseTuple("(a, b)")))
	if err != nil || !grew {
		t.Fatalf("Expected fact to be added: %v", err)
	}

	if _, err := db.AddFact(ast.NewAtom(edge, ast.MustParseTuple("(a, ?X)"))); err == nil {
		t.Fatal("Expected error for non-ground fact")
	}

	other := NewDatabase()
	other.Relation(edge).Add(ast.MustParseTuple("(b, c)"))
	other.Relation(ast.NewPredicate("node", 1)).Add(ast.MustParseTuple("(a)"))

	if !db.Merge(other) || db.Merge(other) {
		t.Fatal("Expected first merge to grow the database and the second not to")
	}

	if db.Size() != 3 {
		t.Fatalf("Expected 3 tuples but got %d", db.Size())
	}

	ps := db.Predicates()
	if len(ps) != 2 || ps[0] != edge {
		t.Fatalf("Unexpected predicates: %v", ps)
	}

	cpy := db.Copy()
	cpy.Relation(edge).Add(ast.MustParseTuple("(c, d)"))
	if db.Relation(edge).Size() != 2 {
		t.Fatal("Expected copy to be independent")
	}
}
