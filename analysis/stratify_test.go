// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package analysis

import (
	"reflect"
	"strings"
	"testing"

	"github.com/open-policy-agent/opalog/ast"
)

func TestDependencyGraph(t *testing.T) {
	rules := ast.MustParseRules(`
		p(?X) :- q(?X), !r(?X), ?X != 1.
		q(?X) :- s(?X).
		q(?X) :- q(?X), !r(?X).
	`)

	g := NewDependencyGraph(rules)

	p := ast.NewPredicate("p", 1)
	q := ast.NewPredicate("q", 1)
	r := ast.NewPredicate("r", 1)
	s := ast.NewPredicate("s", 1)

	if !reflect.DeepEqual(g.Predicates(), []ast.Predicate{p, q, r, s}) {
		t.Fatalf("Unexpected nodes: %v", g.Predicates())
	}

	if !reflect.DeepEqual(g.Dependencies(p), []ast.Predicate{q, r}) {
		t.Fatalf("Unexpected dependencies of p: %v", g.Dependencies(p))
	}

	if !g.Negative(p, r) || g.Negative(p, q) || g.Negative(q, q) {
		t.Fatal("Unexpected edge polarity")
	}

	if !reflect.DeepEqual(g.Reachable(q), []ast.Predicate{q, r, s}) {
		t.Fatalf("Unexpected reachable set: %v", g.Reachable(q))
	}
}

func TestStratify(t *testing.T) {
	tests := []struct {
		note     string
		rules    string
		expected map[string]int
		cycle    string
	}{
		{
			note: "positive recursion",
			rules: `
				path(?X, ?Y) :- edge(?X, ?Y).
				path(?X, ?Y) :- path(?X, ?Z), path(?Z, ?Y).
			`,
			expected: map[string]int{"path": 0, "edge": 0},
		},
		{
			note: "negation outside cycle",
			rules: `
				reach(?X, ?Y) :- edge(?X, ?Y).
				reach(?X, ?Y) :- reach(?X, ?Z), edge(?Z, ?Y).
				unreach(?X, ?Y) :- node(?X), node(?Y), !reach(?X, ?Y).
				isolated(?X) :- node(?X), !connected(?X).
				connected(?X) :- unreach(?X, ?Y).
			`,
			expected: map[string]int{
				"edge": 0, "node": 0, "reach": 0,
				"unreach": 1, "connected": 1, "isolated": 2,
			},
		},
		{
			note: "mutual negation",
			rules: `
				p(?X) :- r(?X), !q(?X).
				q(?X) :- s(?X), !p(?X).
			`,
			cycle: "negation in cycle",
		},
		{
			note: "negative self loop",
			rules: `
				p(?X) :- r(?X), !p(?X).
			`,
			cycle: "p/1 -> !p/1",
		},
		{
			note: "negation on longer cycle",
			rules: `
				a(?X) :- b(?X).
				b(?X) :- c(?X), e(?X).
				c(?X) :- e(?X), !a(?X).
			`,
			cycle: "negation in cycle",
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			g := NewDependencyGraph(ast.MustParseRules(tc.rules))
			strata, err := g.Stratify()

			if tc.cycle != "" {
				if !ast.IsError(ast.StratificationErr, err) {
					t.Fatalf("Expected stratification error but got: %v", err)
				}
				if !strings.Contains(err.Error(), tc.cycle) {
					t.Fatalf("Expected error containing %q but got %q", tc.cycle, err)
				}
				if g.IsStratified() {
					t.Fatal("Expected IsStratified to be false")
				}
				return
			}

			if err != nil {
				t.Fatal(err)
			}

			if !g.IsStratified() {
				t.Fatal("Expected IsStratified to be true")
			}

			result := map[string]int{}
			for p, i := range strata {
				result[p.Symbol] = i
			}

			if !reflect.DeepEqual(result, tc.expected) {
				t.Fatalf("Expected strata %v but got %v", tc.expected, result)
			}
		})
	}
}

func TestStratificationErrorNamesCycle(t *testing.T) {
	g := NewDependencyGraph(ast.MustParseRules(`
		p(?X) :- r(?X), !q(?X).
		q(?X) :- s(?X), !p(?X).
	`))

	_, err := g.Stratify()
	if err == nil {
		t.Fatal("Expected error")
	}

	msg := err.Error()
	if !strings.Contains(msg, "p/1") || !strings.Contains(msg, "q/1") {
		t.Fatalf("Expected both predicates to be named: %v", msg)
	}
}

func TestStrataLayers(t *testing.T) {
	p := ast.NewPredicate("p", 1)
	q := ast.NewPredicate("q", 1)
	r := ast.NewPredicate("r", 2)

	strata := Strata{p: 0, q: 2, r: 0}

	if strata.Max() != 2 {
		t.Fatalf("Expected max stratum 2 but got %d", strata.Max())
	}

	expected := [][]ast.Predicate{{p, r}, nil, {q}}
	if !reflect.DeepEqual(strata.Layers(), expected) {
		t.Fatalf("Expected %v but got %v", expected, strata.Layers())
	}

	if strata.Of(ast.NewPredicate("unknown", 0)) != 0 {
		t.Fatal("Expected unknown predicate in stratum 0")
	}
}
