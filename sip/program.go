// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package sip

import (
	"fmt"
	"strings"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/util"
)

// QuerySymbol is the symbol of the synthetic head used to build the SIP of a
// query. The head's arguments are the variables bound when the query is
// called.
const QuerySymbol = "$query"

// AdornedRule is a rule whose head predicate is called with a specific
// adornment.
type AdornedRule struct {
	Rule *ast.Rule
	Head AdornedPredicate
	SIP  *SIP

	// Body holds the adorned predicates of the positive intensional body
	// literals. Negative literals, builtins and extensional literals are
	// not adorned.
	Body map[*ast.Literal]AdornedPredicate
}

// Adornment returns the adorned predicate of lit and true if lit is
// adorned.
func (r *AdornedRule) Adornment(lit *ast.Literal) (AdornedPredicate, bool) {
	ap, ok := r.Body[lit]
	return ap, ok
}

func (r *AdornedRule) String() string {
	return fmt.Sprintf("%v: %v", r.Head, r.Rule)
}

// AdornedQuery is a query with the adornments of its intensional literals.
type AdornedQuery struct {
	Query *ast.Query

	// Rule is the query written as a rule with the synthetic head
	// $query(...) over the bound variables.
	Rule *ast.Rule
	SIP  *SIP
	Body map[*ast.Literal]AdornedPredicate
}

// Adornment returns the adorned predicate of lit and true if lit is
// adorned.
func (q *AdornedQuery) Adornment(lit *ast.Literal) (AdornedPredicate, bool) {
	ap, ok := q.Body[lit]
	return ap, ok
}

// AdornedProgram holds the adorned rules reachable from a query.
type AdornedProgram struct {
	Query *AdornedQuery
	Rules []*AdornedRule

	// Predicates holds every adorned predicate in order of discovery.
	Predicates []AdornedPredicate

	byKey       map[string][]*AdornedRule
	intensional map[ast.Predicate]struct{}
}

// RulesFor returns the adorned rules defining ap.
func (p *AdornedProgram) RulesFor(ap AdornedPredicate) []*AdornedRule {
	return p.byKey[ap.Key()]
}

// IsIntensional returns true if p is defined by at least one rule.
func (p *AdornedProgram) IsIntensional(pred ast.Predicate) bool {
	_, ok := p.intensional[pred]
	return ok
}

func (p *AdornedProgram) String() string {
	buf := make([]string, 0, len(p.Rules)+1)
	buf = append(buf, p.Query.Query.String())
	for _, r := range p.Rules {
		buf = append(buf, r.String())
	}
	return strings.Join(buf, "\n")
}

// BuildAdornedProgram adorns the rules reachable from query. Every rule must
// have exactly one head literal.
func BuildAdornedProgram(rules []*ast.Rule, query *ast.Query) (*AdornedProgram, error) {
	return BuildAdornedProgramWithRegistry(rules, query, nil, ast.DefaultRegistry())
}

// BuildAdornedProgramWithRegistry is like BuildAdornedProgram but treats the
// variables in bound as known when the query is called and classifies
// builtins with reg.
func BuildAdornedProgramWithRegistry(rules []*ast.Rule, query *ast.Query, bound ast.VarSet, reg *ast.Registry) (*AdornedProgram, error) {

	defined := map[ast.Predicate][]*ast.Rule{}
	for _, r := range rules {
		head, err := r.HeadLiteral()
		if err != nil {
			return nil, err
		}
		defined[head.Predicate()] = append(defined[head.Predicate()], r)
	}

	prog := &AdornedProgram{
		byKey:       map[string][]*AdornedRule{},
		intensional: map[ast.Predicate]struct{}{},
	}

	for p := range defined {
		prog.intensional[p] = struct{}{}
	}

	if bound == nil {
		bound = ast.VarSet{}
	}

	qargs := ast.Tuple{}
	for _, v := range bound.Sorted() {
		qargs = append(qargs, v)
	}
	qhead := ast.NewAtom(ast.NewPredicate(QuerySymbol, len(qargs)), qargs)
	qrule := &ast.Rule{
		Head: []*ast.Literal{ast.NewLiteral(true, qhead)},
		Body: query.Body,
	}
	qsip := NewSIPWithRegistry(qrule, bound, reg)

	prog.Query = &AdornedQuery{
		Query: query,
		Rule:  qrule,
		SIP:   qsip,
		Body:  adornBody(qsip, prog),
	}

	queue := util.NewFIFO[AdornedPredicate]()
	seen := map[string]struct{}{}

	enqueue := func(body map[*ast.Literal]AdornedPredicate, order []*ast.Literal) {
		for _, lit := range order {
			ap, ok := body[lit]
			if !ok {
				continue
			}
			if _, ok := seen[ap.Key()]; ok {
				continue
			}
			seen[ap.Key()] = struct{}{}
			queue.Push(ap)
			prog.Predicates = append(prog.Predicates, ap)
		}
	}

	enqueue(prog.Query.Body, qsip.Ordering())

	for queue.Size() > 0 {
		ap, _ := queue.Pop()

		for _, r := range defined[ap.Predicate] {
			head := r.Head[0]
			known := ast.VarSet{}
			for _, i := range ap.Adornment.BoundIndices() {
				ast.WalkVars(head.Args()[i], known.Add)
			}
			s := NewSIPWithRegistry(r, known, reg)
			ar := &AdornedRule{
				Rule: r,
				Head: ap,
				SIP:  s,
				Body: adornBody(s, prog),
			}
			prog.Rules = append(prog.Rules, ar)
			prog.byKey[ap.Key()] = append(prog.byKey[ap.Key()], ar)
			enqueue(ar.Body, s.Ordering())
		}
	}

	return prog, nil
}

func adornBody(s *SIP, prog *AdornedProgram) map[*ast.Literal]AdornedPredicate {
	body := map[*ast.Literal]AdornedPredicate{}
	for _, lit := range s.Ordering() {
		if !lit.Positive || lit.IsBuiltin() || !prog.IsIntensional(lit.Predicate()) {
			continue
		}
		a := NewAdornment(lit.Args(), s.BoundVariables(lit))
		body[lit] = NewAdornedPredicate(lit.Predicate(), a)
	}
	return body
}
