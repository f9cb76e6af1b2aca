// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package storage

import (
	"testing"

	"github.com/open-policy-agent/opalog/ast"
)

func TestJoin(t *testing.T) {

	edge := mustRelation(2, "(a, b)", "(b, c)", "(c, d)")
	node := mustRelation(2, "(a, 1)", "(b, 2)", "(c, 3)")

	tests := []struct {
		note      string
		left      *Relation
		right     *Relation
		joinIndex [][2]int
		cond      Condition
		project   []ProjectIndex
		expected  *Relation
	}{
		{
			note:      "equi join",
			left:      edge,
			right:     edge,
			joinIndex: [][2]int{{1, 0}},
			cond:      Equals,
			project:   []ProjectIndex{Left(0), Right(1)},
			expected:  mustRelation(2, "(a, c)", "(b, d)"),
		},
		{
			note:      "multiple columns from both sides",
			left:      edge,
			right:     node,
			joinIndex: [][2]int{{0, 0}},
			cond:      Equals,
			project:   []ProjectIndex{Left(0), Left(1), Right(1)},
			expected:  mustRelation(3, "(a, b, 1)", "(b, c, 2)", "(c, d, 3)"),
		},
		{
			note:      "cross product",
			left:      mustRelation(1, "(a)", "(b)"),
			right:     mustRelation(1, "(1)", "(2)"),
			joinIndex: nil,
			cond:      Equals,
			project:   []ProjectIndex{Right(0), Left(0)},
			expected:  mustRelation(2, "(1, a)", "(2, a)", "(1, b)", "(2, b)"),
		},
		{
			note:      "non-equi join",
			left:      mustRelation(1, "(1)", "(2)", "(3)"),
			right:     mustRelation(1, "(2)"),
			joinIndex: [][2]int{{0, 0}},
			cond:      LessThan,
			project:   []ProjectIndex{Left(0)},
			expected:  mustRelation(1, "(1)"),
		},
		{
			note:      "empty",
			left:      edge,
			right:     NewRelation(2),
			joinIndex: [][2]int{{1, 0}},
			cond:      Equals,
			project:   []ProjectIndex{Left(0)},
			expected:  NewRelation(1),
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			result := Join(tc.left, tc.right, tc.joinIndex, tc.cond, tc.project)
			if !result.Equal(tc.expected) {
				t.Fatalf("Expected %v but got %v", tc.expected, result)
			}
		})
	}
}

func TestJoinIllegalProjectIndex(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic")
		}
	}()
	Join(NewRelation(1), NewRelation(1), nil, Equals, []ProjectIndex{{FromLeft: 0, FromRight: 0}})
}

func TestProjection(t *testing.T) {
	r := mustRelation(3, "(a, b, c)", "(a, x, c)", "(d, e, f)")

	result := Projection(r, []int{2, -1, 0})
	expected := mustRelation(2, "(c, a)", "(f, d)")

	if !result.Equal(expected) {
		t.Fatalf("Expected %v but got %v", expected, result)
	}
}

func TestSelection(t *testing.T) {

	r := mustRelation(3, "(a, a, 1)", "(a, b, 2)", "(b, b, f(c))", "(c, d, f(d))")

	tests := []struct {
		note     string
		pattern  string
		expected *Relation
	}{
		{"constant", "(a, ?X, ?Y)", mustRelation(3, "(a, a, 1)", "(a, b, 2)")},
		{"repeated variable", "(?X, ?X, ?Y)", mustRelation(3, "(a, a, 1)", "(b, b, f(c))")},
		{"construct", "(?X, ?Y, f(?Y))", mustRelation(3, "(c, d, f(d))")},
		{"no match", "(z, ?X, ?Y)", NewRelation(3)},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			result := Selection(r, ast.MustParseTuple(tc.pattern))
			if !result.Equal(tc.expected) {
				t.Fatalf("Expected %v but got %v", tc.expected, result)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tuple := ast.MustParseTuple("(a, f(b, 1), 1)")

	bindings, ok := Match(tuple, ast.MustParseTuple("(?X, f(?Y, ?Z), ?Z)"))
	if !ok {
		t.Fatal("Expected match")
	}

	expected := map[ast.Var]ast.Term{
		"X": ast.String("a"),
		"Y": ast.String("b"),
		"Z": ast.Integer(1),
	}

	if len(bindings) != len(expected) {
		t.Fatalf("Expected %v but got %v", expected, bindings)
	}
	for k, v := range expected {
		if !bindings[k].Equal(v) {
			t.Fatalf("Expected %v but got %v", expected, bindings)
		}
	}

	if _, ok := Match(tuple, ast.MustParseTuple("(?X, f(?Y, ?Z), ?Y)")); ok {
		t.Fatal("Expected repeated variable mismatch")
	}

	if _, ok := Match(tuple, ast.MustParseTuple("(?X, ?Y)")); ok {
		t.Fatal("Expected arity mismatch")
	}
}

func TestUnionDifference(t *testing.T) {
	a := mustRelation(1, "(a)", "(b)")
	b := mustRelation(1, "(b)", "(c)")

	if u := Union(a, b); !u.Equal(mustRelation(1, "(a)", "(b)", "(c)")) {
		t.Fatalf("Unexpected union: %v", u)
	}
	if d := Difference(a, b); !d.Equal(mustRelation(1, "(a)")) {
		t.Fatalf("Unexpected difference: %v", d)
	}
	if a.Size() != 2 || b.Size() != 2 {
		t.Fatal("Expected inputs to be unmodified")
	}
}
