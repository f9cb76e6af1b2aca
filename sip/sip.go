// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package sip

import (
	"fmt"
	"sort"
	"strings"

	"github.com/open-policy-agent/opalog/ast"
)

// Edge passes variables from one literal of a rule to a later one.
type Edge struct {
	From *ast.Literal
	To   *ast.Literal
	Vars ast.VarSet
}

func (e *Edge) String() string {
	return fmt.Sprintf("%v -> %v -> %v", e.From, e.Vars, e.To)
}

// SIP is the sideways information passing graph of a rule. The vertices are
// the head literal and the body literals. Body literals are ordered left to
// right with positive ordinary literals first; builtins and negative
// literals follow once the variables they need are available.
//
// Builtins only receive edges from literals ordered before them. A builtin
// that is written before the literals binding its operands is still placed
// after them, but an operand that is only supplied by another deferred
// literal ordered later is not passed to it.
type SIP struct {
	rule     *ast.Rule
	vertices []*ast.Literal
	index    map[*ast.Literal]int
	order    []int
	bound    []ast.VarSet
	entering [][]*Edge
	leaving  [][]*Edge
}

// NewSIP returns the SIP of rule given the head variables that are bound at
// call time. The rule must have exactly one head literal. Builtins are
// classified with the default registry.
func NewSIP(rule *ast.Rule, boundHeadVars ast.VarSet) *SIP {
	return NewSIPWithRegistry(rule, boundHeadVars, ast.DefaultRegistry())
}

// NewSIPWithRegistry is like NewSIP but classifies builtins with reg.
// NewSIPWithRegistry panics if the rule does not have exactly one head
// literal.
func NewSIPWithRegistry(rule *ast.Rule, boundHeadVars ast.VarSet, reg *ast.Registry) *SIP {
	head, err := rule.HeadLiteral()
	if err != nil {
		panic(err)
	}

	n := len(rule.Body) + 1
	s := &SIP{
		rule:     rule,
		vertices: make([]*ast.Literal, n),
		index:    make(map[*ast.Literal]int, n),
		bound:    make([]ast.VarSet, n),
		entering: make([][]*Edge, n),
		leaving:  make([][]*Edge, n),
	}

	s.vertices[0] = head
	s.index[head] = 0
	for i, lit := range rule.Body {
		s.vertices[i+1] = lit
		if _, ok := s.index[lit]; !ok {
			s.index[lit] = i + 1
		}
	}

	headVars := ast.NewVarSet(head.Vars()...)
	s.bound[0] = boundHeadVars.Intersect(headVars)

	s.order = orderBody(rule.Body, s.bound[0], reg)

	// Vertices that supply variables to later literals together with the
	// variables they supply.
	type supplier struct {
		vertex int
		vars   ast.VarSet
	}

	suppliers := []supplier{{0, s.bound[0]}}
	available := s.bound[0].Copy()

	for _, v := range s.order {
		lit := s.vertices[v]
		vars := ast.NewVarSet(lit.Vars()...)
		s.bound[v] = vars.Intersect(available)

		for _, sup := range suppliers {
			passed := sup.vars.Intersect(vars)
			if len(passed) == 0 {
				continue
			}
			e := &Edge{From: s.vertices[sup.vertex], To: lit, Vars: passed}
			s.entering[v] = append(s.entering[v], e)
			s.leaving[sup.vertex] = append(s.leaving[sup.vertex], e)
		}

		if supplies(lit, reg) {
			suppliers = append(suppliers, supplier{v, vars})
			available.Update(vars)
		}
	}

	return s
}

// supplies returns true if lit binds its variables for later literals.
func supplies(lit *ast.Literal, reg *ast.Registry) bool {
	if !lit.Positive {
		return false
	}
	if !lit.IsBuiltin() {
		return true
	}
	b, ok := reg.LookupPredicate(lit.Predicate())
	return ok && (b.Kind == ast.Equality || b.Kind == ast.Arithmetic)
}

// orderBody returns the body vertex indices (starting at 1) in evaluation
// order: positive ordinary literals from left to right, then the remaining
// literals as soon as their inputs are available. Literals that never become
// ready keep their relative order at the end.
func orderBody(body []*ast.Literal, bound ast.VarSet, reg *ast.Registry) []int {
	order := make([]int, 0, len(body))
	available := bound.Copy()

	var deferred []int
	for i, lit := range body {
		if lit.Positive && !lit.IsBuiltin() {
			order = append(order, i+1)
			available.Update(ast.NewVarSet(lit.Vars()...))
		} else {
			deferred = append(deferred, i)
		}
	}

	for len(deferred) > 0 {
		next := -1
		for j, i := range deferred {
			if ready(body[i], available, reg) {
				next = j
				break
			}
		}
		if next < 0 {
			next = 0
		}
		i := deferred[next]
		deferred = append(deferred[:next], deferred[next+1:]...)
		order = append(order, i+1)
		if supplies(body[i], reg) {
			available.Update(ast.NewVarSet(body[i].Vars()...))
		}
	}

	return order
}

// ready returns true if a deferred literal can be evaluated given the
// available variables.
func ready(lit *ast.Literal, available ast.VarSet, reg *ast.Registry) bool {
	if lit.Positive && lit.IsBuiltin() {
		if b, ok := reg.LookupPredicate(lit.Predicate()); ok {
			args := lit.Args()
			switch b.Kind {
			case ast.Equality:
				return termAvailable(args[0], available) || termAvailable(args[1], available)
			case ast.Arithmetic:
				missing := 0
				for _, t := range args {
					if !termAvailable(t, available) {
						missing++
					}
				}
				return missing <= 1
			}
		}
	}
	return available.ContainsAll(lit.Vars())
}

func termAvailable(t ast.Term, available ast.VarSet) bool {
	return available.ContainsAll(ast.TermVars(t))
}

// Rule returns the rule the SIP was built for.
func (s *SIP) Rule() *ast.Rule {
	return s.rule
}

// Head returns the head literal.
func (s *SIP) Head() *ast.Literal {
	return s.vertices[0]
}

// Ordering returns the body literals in evaluation order.
func (s *SIP) Ordering() []*ast.Literal {
	result := make([]*ast.Literal, len(s.order))
	for i, v := range s.order {
		result[i] = s.vertices[v]
	}
	return result
}

// BoundVariables returns the variables of lit that are bound before lit is
// evaluated. For the head literal these are the bound head variables.
func (s *SIP) BoundVariables(lit *ast.Literal) ast.VarSet {
	v, ok := s.index[lit]
	if !ok {
		return ast.VarSet{}
	}
	return s.bound[v].Copy()
}

// EdgesEntering returns the edges passing variables to lit.
func (s *SIP) EdgesEntering(lit *ast.Literal) []*Edge {
	v, ok := s.index[lit]
	if !ok {
		return nil
	}
	return s.entering[v]
}

// EdgesLeaving returns the edges passing variables from lit.
func (s *SIP) EdgesLeaving(lit *ast.Literal) []*Edge {
	v, ok := s.index[lit]
	if !ok {
		return nil
	}
	return s.leaving[v]
}

// Depends returns the literals lit transitively receives variables from. The
// result is ordered with the head first followed by body literals in
// evaluation order.
func (s *SIP) Depends(lit *ast.Literal) []*ast.Literal {
	v, ok := s.index[lit]
	if !ok {
		return nil
	}

	seen := map[int]struct{}{}
	stack := []int{v}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range s.entering[x] {
			from := s.index[e.From]
			if _, ok := seen[from]; !ok {
				seen[from] = struct{}{}
				stack = append(stack, from)
			}
		}
	}

	return s.sorted(seen)
}

// Roots returns the vertices without entering edges.
func (s *SIP) Roots() []*ast.Literal {
	vs := map[int]struct{}{}
	for v := range s.vertices {
		if len(s.entering[v]) == 0 {
			vs[v] = struct{}{}
		}
	}
	return s.sorted(vs)
}

// Leaves returns the vertices without leaving edges.
func (s *SIP) Leaves() []*ast.Literal {
	vs := map[int]struct{}{}
	for v := range s.vertices {
		if len(s.leaving[v]) == 0 {
			vs[v] = struct{}{}
		}
	}
	return s.sorted(vs)
}

// position returns the rank of vertex v in evaluation order. The head comes
// first.
func (s *SIP) position(v int) int {
	if v == 0 {
		return 0
	}
	for i, o := range s.order {
		if o == v {
			return i + 1
		}
	}
	return len(s.order) + 1
}

func (s *SIP) sorted(vs map[int]struct{}) []*ast.Literal {
	idx := make([]int, 0, len(vs))
	for v := range vs {
		idx = append(idx, v)
	}
	sort.Slice(idx, func(i, j int) bool {
		return s.position(idx[i]) < s.position(idx[j])
	})
	result := make([]*ast.Literal, len(idx))
	for i, v := range idx {
		result[i] = s.vertices[v]
	}
	return result
}

func (s *SIP) String() string {
	buf := []string{}
	for _, v := range append([]int{0}, s.order...) {
		for _, e := range s.leaving[v] {
			buf = append(buf, e.String())
		}
	}
	return strings.Join(buf, "\n")
}
