// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package magic

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/metrics"
	"github.com/open-policy-agent/opalog/sip"
)

func ruleStrings(rs []*ast.Rule) []string {
	result := make([]string, len(rs))
	for i := range rs {
		result[i] = rs[i].String()
	}
	return result
}

func TestOptimise(t *testing.T) {
	tests := []struct {
		note   string
		rules  string
		query  string
		rules2 []string
		query2 string
	}{
		{
			note: "transitive closure",
			rules: `
				path(?X, ?Y) :- edge(?X, ?Y).
				path(?X, ?Y) :- path(?X, ?Z), path(?Z, ?Y).
			`,
			query: `path(a, ?Y)`,
			rules2: []string{
				`path^bf(?X, ?Y) :- magic_path^bf(?X), edge(?X, ?Y).`,
				`magic_path^bf(?Z) :- magic_path^bf(?X), path^bf(?X, ?Z).`,
				`path^bf(?X, ?Y) :- magic_path^bf(?X), path^bf(?X, ?Z), path^bf(?Z, ?Y).`,
				`magic_path^bf(a).`,
			},
			query2: `?- path^bf(a, ?Y).`,
		},
		{
			note: "same generation",
			rules: `
				sg(?X, ?X) :- person(?X).
				sg(?X, ?Y) :- par(?X, ?XP), sg(?XP, ?YP), par(?Y, ?YP).
			`,
			query: `sg(ann, ?Y)`,
			rules2: []string{
				`sg^bf(?X, ?X) :- magic_sg^bf(?X), person(?X).`,
				`magic_sg^bf(?XP) :- magic_sg^bf(?X), par(?X, ?XP).`,
				`sg^bf(?X, ?Y) :- magic_sg^bf(?X), par(?X, ?XP), sg^bf(?XP, ?YP), par(?Y, ?YP).`,
				`magic_sg^bf(ann).`,
			},
			query2: `?- sg^bf(ann, ?Y).`,
		},
		{
			note: "free query has no guard",
			rules: `
				path(?X, ?Y) :- edge(?X, ?Y).
			`,
			query: `path(?X, ?Y)`,
			rules2: []string{
				`path^ff(?X, ?Y) :- edge(?X, ?Y).`,
			},
			query2: `?- path^ff(?X, ?Y).`,
		},
		{
			note: "labelled rules",
			rules: `
				p(?X, ?Y) :- a(?X, ?Z), b(?Y, ?W), q(?Z, ?W).
				q(?X, ?Y) :- e(?X, ?Y).
			`,
			query: `p(?X, ?Y)`,
			rules2: []string{
				`label_q^bb_0_2_0(?Z) :- a(?X, ?Z).`,
				`label_q^bb_0_2_1(?W) :- b(?Y, ?W).`,
				`magic_q^bb(?Z, ?W) :- label_q^bb_0_2_0(?Z), label_q^bb_0_2_1(?W).`,
				`p^ff(?X, ?Y) :- a(?X, ?Z), b(?Y, ?W), q^bb(?Z, ?W).`,
				`q^bb(?X, ?Y) :- magic_q^bb(?X, ?Y), e(?X, ?Y).`,
			},
			query2: `?- p^ff(?X, ?Y).`,
		},
		{
			note: "conjunctive query",
			rules: `
				path(?X, ?Y) :- edge(?X, ?Y).
			`,
			query: `node(?X), path(?X, ?Y)`,
			rules2: []string{
				`path^bf(?X, ?Y) :- magic_path^bf(?X), edge(?X, ?Y).`,
				`magic_path^bf(?X) :- node(?X).`,
			},
			query2: `?- node(?X), path^bf(?X, ?Y).`,
		},
		{
			note: "negated predicates keep original rules",
			rules: `
				p(?X) :- q(?X), !r(?X).
				q(?X) :- s(?X).
				r(?X) :- t(?X), u(?X).
				u(?X) :- v(?X).
				w(?X) :- z(?X).
			`,
			query: `p(a)`,
			rules2: []string{
				`magic_q^b(?X) :- magic_p^b(?X).`,
				`p^b(?X) :- magic_p^b(?X), q^b(?X), !r(?X).`,
				`q^b(?X) :- magic_q^b(?X), s(?X).`,
				`r(?X) :- t(?X), u(?X).`,
				`u(?X) :- v(?X).`,
				`magic_p^b(a).`,
			},
			query2: `?- p^b(a).`,
		},
		{
			note: "extensional query",
			rules: `
				path(?X, ?Y) :- edge(?X, ?Y).
			`,
			query:  `edge(a, ?Y)`,
			rules2: []string{},
			query2: `?- edge(a, ?Y).`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			result, err := Optimise(ast.MustParseRules(tc.rules), ast.MustParseQuery(tc.query))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.rules2, ruleStrings(result.Rules)); diff != "" {
				t.Errorf("Unexpected rules (-want +got):\n%s", diff)
			}
			if result.Query.String() != tc.query2 {
				t.Errorf("Expected query %v but got %v", tc.query2, result.Query)
			}
		})
	}
}

func TestOptimiseQueryVars(t *testing.T) {
	query := ast.MustParseQuery(`node(?X), path(?X, ?Y), ?Y != a`)
	result, err := Optimise(ast.MustParseRules(`path(?X, ?Y) :- edge(?X, ?Y).`), query)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(query.Vars(), result.Query.Vars()); diff != "" {
		t.Fatalf("Unexpected query variables (-want +got):\n%s", diff)
	}
}

func TestOptimiseMultiHead(t *testing.T) {
	rules := []*ast.Rule{{
		Head: []*ast.Literal{ast.MustParseLiteral(`p(?X)`), ast.MustParseLiteral(`q(?X)`)},
		Body: []*ast.Literal{ast.MustParseLiteral(`r(?X)`)},
	}}

	_, err := Optimise(rules, ast.MustParseQuery(`p(?X)`))
	if !ast.IsError(ast.MultiHeadErr, err) {
		t.Fatalf("Expected multi head error but got: %v", err)
	}
}

func TestOptimiserCache(t *testing.T) {
	m := metrics.New()
	o, err := NewOptimiser(4)
	if err != nil {
		t.Fatal(err)
	}
	o.WithMetrics(m)

	rules := ast.MustParseRules(`
		path(?X, ?Y) :- edge(?X, ?Y).
		path(?X, ?Y) :- path(?X, ?Z), path(?Z, ?Y).
	`)

	a, err := o.Optimise(rules, ast.MustParseQuery(`path(a, ?Y)`))
	if err != nil {
		t.Fatal(err)
	}

	b, err := o.Optimise(rules, ast.MustParseQuery(`path(b, ?Y)`))
	if err != nil {
		t.Fatal(err)
	}

	if o.Len() != 1 {
		t.Fatalf("Expected one cached rewrite but got %d", o.Len())
	}

	if hits := m.Counter(metrics.MagicCacheHit).Value(); hits != uint64(1) {
		t.Fatalf("Expected one cache hit but got %v", hits)
	}

	if rewrites := m.Counter(metrics.MagicRewrites).Value(); rewrites != uint64(1) {
		t.Fatalf("Expected one rewrite but got %v", rewrites)
	}

	seedA := a.Rules[len(a.Rules)-1].String()
	seedB := b.Rules[len(b.Rules)-1].String()
	if seedA != "magic_path^bf(a)." || seedB != "magic_path^bf(b)." {
		t.Fatalf("Unexpected seeds: %v, %v", seedA, seedB)
	}

	if b.Query.String() != "?- path^bf(b, ?Y)." {
		t.Fatalf("Unexpected query: %v", b.Query)
	}

	if _, err := o.Optimise(rules, ast.MustParseQuery(`path(?X, b)`)); err != nil {
		t.Fatal(err)
	}

	if o.Len() != 2 {
		t.Fatalf("Expected two cached rewrites but got %d", o.Len())
	}

	other := append(rules, ast.MustParseRule(`path(?X, ?Y) :- link(?X, ?Y).`))
	if _, err := o.Optimise(other, ast.MustParseQuery(`path(a, ?Y)`)); err != nil {
		t.Fatal(err)
	}

	if o.Len() != 3 {
		t.Fatalf("Expected rewrites of different programs to be cached separately but got %d entries", o.Len())
	}
}

func TestNewOptimiserCacheSize(t *testing.T) {
	m := metrics.New()
	o, err := NewOptimiser(0)
	if err != nil {
		t.Fatal(err)
	}
	o.WithMetrics(m)

	rules := ast.MustParseRules(`path(?X, ?Y) :- edge(?X, ?Y).`)
	for range 2 {
		if _, err := o.Optimise(rules, ast.MustParseQuery(`path(a, ?Y)`)); err != nil {
			t.Fatal(err)
		}
	}

	if o.Len() != 0 {
		t.Fatalf("Expected no cached rewrites but got %d", o.Len())
	}
	if rewrites := m.Counter(metrics.MagicRewrites).Value(); rewrites != uint64(2) {
		t.Fatalf("Expected every query to be rewritten but got %v", rewrites)
	}

	if _, err := NewOptimiser(-1); err == nil {
		t.Fatal("Expected error for negative cache size")
	}
}

func TestIsMagicPredicate(t *testing.T) {
	ap := sip.NewAdornedPredicate(ast.NewPredicate("p", 2), sip.Adornment{sip.Bound, sip.Free})
	mp := MagicPredicate(ap)
	if mp != ast.NewPredicate("magic_p^bf", 1) {
		t.Fatalf("Unexpected magic predicate: %v", mp)
	}
	if !IsMagicPredicate(mp) || IsMagicPredicate(ap.AsPredicate()) {
		t.Fatal("Unexpected magic predicate classification")
	}
}
