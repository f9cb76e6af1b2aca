// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"strings"
	"testing"
)

func TestTermEqual(t *testing.T) {

	tests := []struct {
		note     string
		a        Term
		b        Term
		expected bool
	}{
		{"var", Var("X"), Var("X"), true},
		{"var name", Var("X"), Var("Y"), false},
		{"var vs string", Var("X"), String("X"), false},
		{"integer", Integer(1), Integer(1), true},
		{"integer vs double", Integer(1), Double(1), false},
		{"boolean", Boolean(true), Boolean(true), true},
		{"construct", NewConstruct("f", String("a"), Var("X")), NewConstruct("f", String("a"), Var("X")), true},
		{"construct symbol", NewConstruct("f", String("a")), NewConstruct("g", String("a")), false},
		{"construct arity", NewConstruct("f", String("a")), NewConstruct("f", String("a"), String("b")), false},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			if tc.a.Equal(tc.b) != tc.expected {
				t.Fatalf("Expected %v.Equal(%v) == %v", tc.a, tc.b, tc.expected)
			}
			if tc.expected && tc.a.Hash() != tc.b.Hash() {
				t.Fatalf("Expected equal hash codes for %v and %v", tc.a, tc.b)
			}
		})
	}
}

func TestTermIsGround(t *testing.T) {
	tests := []struct {
		term     string
		expected bool
	}{
		{"?X", false},
		{"a", true},
		{"1.5", true},
		{"f(a, g(b))", true},
		{"f(a, g(?X))", false},
	}
	for _, tc := range tests {
		if MustParseTerm(tc.term).IsGround() != tc.expected {
			t.Errorf("Expected IsGround(%v) == %v", tc.term, tc.expected)
		}
	}
}

func TestTermString(t *testing.T) {
	tests := []struct {
		term     Term
		expected string
	}{
		{Var("X"), "?X"},
		{String("abc"), "abc"},
		{String("Abc"), "'Abc'"},
		{String("it's"), `'it\'s'`},
		{String("true"), "'true'"},
		{Integer(-7), "-7"},
		{Double(2), "2.0"},
		{Double(0.25), "0.25"},
		{NewConstruct("f", String("a"), Var("Y")), "f(a, ?Y)"},
	}
	for _, tc := range tests {
		if tc.term.String() != tc.expected {
			t.Errorf("Expected %v but got %v", tc.expected, tc.term.String())
		}
	}
}

func TestTermVarsAndSubstitute(t *testing.T) {
	term := MustParseTerm("f(?X, g(?Y, ?X), ?Z)")

	vars := TermVars(term)
	if len(vars) != 3 || vars[0] != "X" || vars[1] != "Y" || vars[2] != "Z" {
		t.Fatalf("Unexpected vars: %v", vars)
	}

	result := Substitute(term, map[Var]Term{"X": String("a"), "Y": Integer(1)})
	expected := MustParseTerm("f(a, g(1, a), ?Z)")
	if !result.Equal(expected) {
		t.Fatalf("Expected %v but got %v", expected, result)
	}

	if !term.Equal(MustParseTerm("f(?X, g(?Y, ?X), ?Z)")) {
		t.Fatalf("Substitute must not modify its input: %v", term)
	}
}

func TestWalkVarsDeep(t *testing.T) {
	var term Term = Var("X")
	for range 100000 {
		term = NewConstruct("s", term)
	}
	var count int
	WalkVars(term, func(Var) { count++ })
	if count != 1 {
		t.Fatalf("Expected one variable but got %d", count)
	}
}

func TestNewConstant(t *testing.T) {
	tests := []struct {
		input    any
		expected Term
	}{
		{true, Boolean(true)},
		{3, Integer(3)},
		{float64(4), Integer(4)},
		{4.5, Double(4.5)},
		{"abc", String("abc")},
	}
	for _, tc := range tests {
		c, err := NewConstant(tc.input)
		if err != nil {
			t.Fatal(err)
		}
		if !c.Equal(tc.expected) {
			t.Errorf("Expected %v but got %v", tc.expected, c)
		}
	}
	if _, err := NewConstant([]int{1}); err == nil || !strings.Contains(err.Error(), "illegal constant") {
		t.Fatalf("Expected illegal constant error but got %v", err)
	}
}

func TestTupleGetOutOfRange(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic")
		}
	}()
	NewTuple(String("a")).Get(1)
}

func TestParsedRuleHeadAndBody(t *testing.T) {
	rule := MustParseRule("p(?X), q(?X) :- r(?X)")
	if _, err := rule.HeadLiteral(); !IsError(MultiHeadErr, err) {
		t.Fatalf("Expected multi head error but got %v", err)
	}
	rule = MustParseRule("p(?X) :- r(?X), !s(?X), ?X != a")
	head, err := rule.HeadLiteral()
	if err != nil {
		t.Fatal(err)
	}
	if head.String() != "p(?X)" {
		t.Fatalf("Unexpected head: %v", head)
	}
	if rule.String() != "p(?X) :- r(?X), !s(?X), ?X != a." {
		t.Fatalf("Unexpected rule: %v", rule)
	}
	if !rule.BodyVars().Equal(NewVarSet("X")) {
		t.Fatalf("Unexpected body vars: %v", rule.BodyVars())
	}
}
