// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package eval evaluates Datalog programs. The QSQ evaluator answers queries
// top-down with bottom-up relational evaluation of rule bodies; the naive
// evaluator materializes stratified programs bottom-up.
package eval

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/storage"
)

// Program is the input of evaluation: extensional facts, rules and the
// queries to answer.
type Program struct {
	Facts   map[ast.Predicate]*storage.Relation
	Rules   []*ast.Rule
	Queries []*ast.Query
}

// NewProgram returns the program read from the modules. Facts for the same
// predicate are merged.
func NewProgram(modules ...*ast.Module) (*Program, error) {
	p := &Program{Facts: map[ast.Predicate]*storage.Relation{}}
	for _, m := range modules {
		for _, f := range m.Facts {
			if err := p.AddFact(f); err != nil {
				return nil, err
			}
		}
		p.Rules = append(p.Rules, m.Rules...)
		p.Queries = append(p.Queries, m.Queries...)
	}
	return p, nil
}

// AddFact adds the tuple of a ground atom to the facts.
func (p *Program) AddFact(a *ast.Atom) error {
	if !a.IsGround() {
		return errors.Errorf("fact %v is not ground", a)
	}
	if p.Facts == nil {
		p.Facts = map[ast.Predicate]*storage.Relation{}
	}
	r, ok := p.Facts[a.Predicate]
	if !ok {
		r = storage.NewRelation(a.Predicate.Arity)
		p.Facts[a.Predicate] = r
	}
	r.Add(a.Tuple)
	return nil
}

// Database returns a database holding copies of the facts.
func (p *Program) Database() *storage.Database {
	return storage.NewDatabaseFrom(p.Facts)
}

// Answer holds the substitutions satisfying a query. Column i of the
// relation binds Vars[i].
type Answer struct {
	Query    *ast.Query
	Vars     []ast.Var
	Relation *storage.Relation
}

// Bindings returns the substitutions in the order of the sorted tuples.
func (a *Answer) Bindings() []map[ast.Var]ast.Term {
	tuples := a.Relation.Tuples()
	result := make([]map[ast.Var]ast.Term, len(tuples))
	for i, t := range tuples {
		b := make(map[ast.Var]ast.Term, len(a.Vars))
		for j, v := range a.Vars {
			b[v] = t[j]
		}
		result[i] = b
	}
	return result
}

// Size returns the number of substitutions.
func (a *Answer) Size() int {
	return a.Relation.Size()
}

func (a *Answer) String() string {
	tuples := a.Relation.Tuples()
	buf := make([]string, len(tuples))
	for i, t := range tuples {
		parts := make([]string, len(a.Vars))
		for j, v := range a.Vars {
			parts[j] = v.String() + "=" + t[j].String()
		}
		buf[i] = "{" + strings.Join(parts, ", ") + "}"
	}
	return a.Query.String() + " " + strings.Join(buf, " ")
}

// Answers holds one answer per query in the order of the program's queries.
type Answers []*Answer

// ByPredicate returns the answers of single-literal queries as relations
// over the queried predicate. The tuples are the query literal instantiated
// with each substitution. Answers for the same predicate are merged; queries
// with several literals, negation or builtins are skipped.
func (as Answers) ByPredicate() map[ast.Predicate]*storage.Relation {
	result := map[ast.Predicate]*storage.Relation{}
	for _, a := range as {
		if len(a.Query.Body) != 1 {
			continue
		}
		lit := a.Query.Body[0]
		if !lit.Positive || lit.IsBuiltin() {
			continue
		}
		rel, ok := result[lit.Predicate()]
		if !ok {
			rel = storage.NewRelation(lit.Predicate().Arity)
			result[lit.Predicate()] = rel
		}
		for _, b := range a.Bindings() {
			rel.Add(lit.Args().Substitute(b))
		}
	}
	return result
}

// Predicates returns the queried predicates of ByPredicate in sorted order.
func (as Answers) Predicates() []ast.Predicate {
	m := as.ByPredicate()
	ps := make([]ast.Predicate, 0, len(m))
	for p := range m {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Symbol != ps[j].Symbol {
			return ps[i].Symbol < ps[j].Symbol
		}
		return ps[i].Arity < ps[j].Arity
	})
	return ps
}
