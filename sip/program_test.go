// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package sip

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/open-policy-agent/opalog/ast"
)

func adornedSymbols(aps []AdornedPredicate) []string {
	result := make([]string, len(aps))
	for i := range aps {
		result[i] = aps[i].Symbol()
	}
	return result
}

func TestBuildAdornedProgram(t *testing.T) {
	tests := []struct {
		note       string
		rules      string
		query      string
		predicates []string
		rules2     int
	}{
		{
			note: "transitive closure bound",
			rules: `
				path(?X, ?Y) :- edge(?X, ?Y).
				path(?X, ?Y) :- path(?X, ?Z), path(?Z, ?Y).
			`,
			query:      `path(a, ?Y)`,
			predicates: []string{"path^bf"},
			rules2:     2,
		},
		{
			note: "transitive closure free",
			rules: `
				path(?X, ?Y) :- edge(?X, ?Y).
				path(?X, ?Y) :- path(?X, ?Z), path(?Z, ?Y).
			`,
			query:      `path(?X, ?Y)`,
			predicates: []string{"path^ff", "path^bf"},
			rules2:     4,
		},
		{
			note: "same generation",
			rules: `
				sg(?X, ?X) :- person(?X).
				sg(?X, ?Y) :- par(?X, ?XP), sg(?XP, ?YP), par(?Y, ?YP).
			`,
			query:      `sg(ann, ?Y)`,
			predicates: []string{"sg^bf"},
			rules2:     2,
		},
		{
			note: "negation and builtins not adorned",
			rules: `
				p(?X) :- q(?X), !r(?X), ?X != 1.
				q(?X) :- s(?X).
				r(?X) :- t(?X).
			`,
			query:      `p(1)`,
			predicates: []string{"p^b", "q^b"},
			rules2:     2,
		},
		{
			note: "conjunctive query",
			rules: `
				path(?X, ?Y) :- edge(?X, ?Y).
			`,
			query:      `node(?X), path(?X, ?Y), path(?Y, b)`,
			predicates: []string{"path^bf", "path^bb"},
			rules2:     2,
		},
		{
			note: "extensional query",
			rules: `
				path(?X, ?Y) :- edge(?X, ?Y).
			`,
			query:      `edge(a, ?Y)`,
			predicates: []string{},
			rules2:     0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			prog, err := BuildAdornedProgram(ast.MustParseRules(tc.rules), ast.MustParseQuery(tc.query))
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(tc.predicates, adornedSymbols(prog.Predicates)); diff != "" {
				t.Fatalf("Unexpected adorned predicates (-want +got):\n%s", diff)
			}

			if len(prog.Rules) != tc.rules2 {
				t.Fatalf("Expected %d adorned rules but got %d:\n%v", tc.rules2, len(prog.Rules), prog)
			}

			for _, ap := range prog.Predicates {
				for _, r := range prog.RulesFor(ap) {
					if !r.Head.Equal(ap) {
						t.Fatalf("Rule %v registered under %v", r, ap)
					}
				}
			}
		})
	}
}

func TestAdornedRuleBody(t *testing.T) {
	rules := ast.MustParseRules(`
		p(?X) :- q(?X), !r(?X), ?X != 1, e(?X).
		q(?X) :- s(?X).
		r(?X) :- t(?X).
	`)

	prog, err := BuildAdornedProgram(rules, ast.MustParseQuery(`p(?X)`))
	if err != nil {
		t.Fatal(err)
	}

	r := prog.RulesFor(prog.Predicates[0])[0]

	var adorned []string
	for _, lit := range r.Rule.Body {
		if ap, ok := r.Adornment(lit); ok {
			adorned = append(adorned, ap.Symbol())
		}
	}
	sort.Strings(adorned)

	if diff := cmp.Diff([]string{"q^f"}, adorned); diff != "" {
		t.Fatalf("Unexpected body adornments (-want +got):\n%s", diff)
	}

	if !prog.IsIntensional(ast.NewPredicate("r", 1)) || prog.IsIntensional(ast.NewPredicate("e", 1)) {
		t.Fatal("Unexpected intensional predicates")
	}
}

func TestBuildAdornedProgramBound(t *testing.T) {
	rules := ast.MustParseRules(`path(?X, ?Y) :- edge(?X, ?Y).`)
	query := ast.MustParseQuery(`path(?C, ?Y)`)

	prog, err := BuildAdornedProgramWithRegistry(rules, query, ast.NewVarSet("C"), ast.DefaultRegistry())
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"path^bf"}, adornedSymbols(prog.Predicates)); diff != "" {
		t.Fatalf("Unexpected adorned predicates (-want +got):\n%s", diff)
	}

	ap, ok := prog.Query.Adornment(query.Body[0])
	if !ok || ap.Symbol() != "path^bf" {
		t.Fatalf("Unexpected query adornment: %v", ap)
	}
}

func TestBuildAdornedProgramMultiHead(t *testing.T) {
	rules := []*ast.Rule{{
		Head: []*ast.Literal{ast.MustParseLiteral(`p(?X)`), ast.MustParseLiteral(`q(?X)`)},
		Body: []*ast.Literal{ast.MustParseLiteral(`r(?X)`)},
	}}

	_, err := BuildAdornedProgram(rules, ast.MustParseQuery(`p(?X)`))
	if !ast.IsError(ast.MultiHeadErr, err) {
		t.Fatalf("Expected multi head error but got: %v", err)
	}
}
