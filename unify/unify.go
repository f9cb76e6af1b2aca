// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package unify computes most general unifiers with the Martelli-Montanari
// algorithm over systems of multiequations.
package unify

import (
	"fmt"
	"strings"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/util"
)

// Kind identifies why two terms do not unify.
type Kind int

const (
	// Clash indicates a structural disagreement: different function symbols,
	// different arities or different constants.
	Clash Kind = iota

	// Cycle indicates a variable would have to be bound to a term containing
	// itself.
	Cycle
)

func (k Kind) String() string {
	if k == Cycle {
		return "cycle"
	}
	return "clash"
}

// Failure is returned when two terms do not unify.
type Failure struct {
	Kind  Kind
	Terms []ast.Term
	Vars  []ast.Var
}

// ErrClash and ErrCycle can be used with errors.Is to classify failures.
var (
	ErrClash = &Failure{Kind: Clash}
	ErrCycle = &Failure{Kind: Cycle}
)

func (f *Failure) Error() string {
	switch {
	case f.Kind == Clash && len(f.Terms) > 0:
		buf := make([]string, len(f.Terms))
		for i := range f.Terms {
			buf[i] = termString(f.Terms[i])
		}
		return fmt.Sprintf("unify: clash between %v", strings.Join(buf, " and "))
	case f.Kind == Cycle && len(f.Vars) > 0:
		return fmt.Sprintf("unify: cycle on variables %v", f.Vars)
	}
	return "unify: " + f.Kind.String()
}

// Is returns true if target is a *Failure of the same kind.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	return ok && t.Kind == f.Kind
}

// Multiequation equates a set of variables S with a multiset of non-variable
// terms M. Solved multiequations carry at most one term (the common part).
type Multiequation struct {
	S []ast.Var
	M []ast.Term
	n int
}

func (m *Multiequation) String() string {
	vs := make([]string, len(m.S))
	for i := range m.S {
		vs[i] = m.S[i].String()
	}
	return fmt.Sprintf("{%s} = %v", strings.Join(vs, ", "), ast.Tuple(m.M))
}

func (m *Multiequation) hasVar(v ast.Var) bool {
	for _, x := range m.S {
		if x == v {
			return true
		}
	}
	return false
}

// The synthetic variable and function symbol used to wrap the inputs cannot
// be produced by the reader.
const (
	initVar   = ast.Var("$init")
	wrapperFn = "$"
)

type system struct {
	unsolved []*Multiequation
	solved   []*Multiequation
}

// Unify computes the most general unifier of t0 and t1. If the terms do not
// unify the error is a *Failure.
func Unify(t0, t1 ast.Term) (*Result, error) {
	return unify(ast.NewConstruct(wrapperFn, t0), ast.NewConstruct(wrapperFn, t1))
}

// UnifyTuples computes the most general unifier of two tuples (e.g., the
// arguments of two atoms). Tuples of different arity fail with a clash.
func UnifyTuples(a, b ast.Tuple) (*Result, error) {
	return unify(ast.NewConstruct(wrapperFn, a...), ast.NewConstruct(wrapperFn, b...))
}

func unify(w0, w1 *ast.Construct) (*Result, error) {

	sys := newSystem(w0, w1)

	for len(sys.unsolved) > 0 {

		i := sys.selectZeroCounter()
		if i < 0 {
			return nil, sys.cycle()
		}

		m := sys.unsolved[i]
		sys.unsolved = append(sys.unsolved[:i], sys.unsolved[i+1:]...)

		if len(m.M) < 2 {
			sys.solved = append(sys.solved, m)
			sys.updateCounters()
			continue
		}

		common, frontier, err := reduce(m.M)
		if err != nil {
			return nil, err
		}

		sys.solved = append(sys.solved, &Multiequation{S: m.S, M: []ast.Term{common}})
		sys.compactify(frontier)
	}

	return newResult(sys.solved), nil
}

func newSystem(w0, w1 *ast.Construct) *system {
	sys := &system{}
	sys.unsolved = append(sys.unsolved, &Multiequation{
		S: []ast.Var{initVar},
		M: []ast.Term{w0, w1},
	})
	seen := ast.VarSet{}
	for _, w := range []ast.Term{w0, w1} {
		ast.WalkVars(w, func(v ast.Var) {
			if !seen.Contains(v) {
				seen.Add(v)
				sys.unsolved = append(sys.unsolved, &Multiequation{S: []ast.Var{v}})
			}
		})
	}
	sys.updateCounters()
	return sys
}

func (sys *system) selectZeroCounter() int {
	for i, m := range sys.unsolved {
		if m.n == 0 {
			return i
		}
	}
	return -1
}

func (sys *system) cycle() error {
	var vars []ast.Var
	for _, m := range sys.unsolved {
		vars = append(vars, m.S...)
	}
	return &Failure{Kind: Cycle, Vars: vars}
}

// compactify adds the frontier to the unsolved multiequations, merging any
// multiequations that share a variable, and recomputes the counters.
func (sys *system) compactify(frontier []*Multiequation) {
	for _, f := range frontier {
		merged := f
		rest := sys.unsolved[:0:0]
		for _, u := range sys.unsolved {
			if sharesVar(u, merged) {
				merged = merge(merged, u)
			} else {
				rest = append(rest, u)
			}
		}
		sys.unsolved = append(rest, merged)
	}
	sys.updateCounters()
}

// updateCounters sets each unsolved multiequation's counter to the number of
// occurrences of its variables in the right-hand sides of all unsolved
// multiequations.
func (sys *system) updateCounters() {
	occ := map[ast.Var]int{}
	for _, m := range sys.unsolved {
		for _, t := range m.M {
			ast.WalkVars(t, func(v ast.Var) {
				occ[v]++
			})
		}
	}
	for _, m := range sys.unsolved {
		m.n = 0
		for _, v := range m.S {
			m.n += occ[v]
		}
	}
}

func sharesVar(a, b *Multiequation) bool {
	for _, v := range a.S {
		if b.hasVar(v) {
			return true
		}
	}
	return false
}

func merge(a, b *Multiequation) *Multiequation {
	result := &Multiequation{
		S: append([]ast.Var{}, a.S...),
		M: append(append([]ast.Term{}, a.M...), b.M...),
	}
	for _, v := range b.S {
		if !result.hasVar(v) {
			result.S = append(result.S, v)
		}
	}
	return result
}

// reduce computes the common part and the frontier of a multiset of
// non-variable terms. The terms are superimposed from the root down: where
// all terms agree on a function symbol the common part takes that symbol,
// where at least one term is a variable the common part takes a variable and
// the frontier receives a multiequation equating the variables in that
// position with the remaining terms.
func reduce(terms []ast.Term) (ast.Term, []*Multiequation, error) {

	type task struct {
		column []ast.Term
		dst    *ast.Term
	}

	var common ast.Term
	var frontier []*Multiequation
	stack := util.NewLIFO(task{column: terms, dst: &common})

	for stack.Size() > 0 {
		t, _ := stack.Pop()

		var vars []ast.Var
		var nonvars []ast.Term

		for _, x := range t.column {
			if v, ok := x.(ast.Var); ok {
				dup := false
				for _, y := range vars {
					if y == v {
						dup = true
						break
					}
				}
				if !dup {
					vars = append(vars, v)
				}
			} else {
				nonvars = append(nonvars, x)
			}
		}

		if len(vars) > 0 {
			*t.dst = vars[0]
			frontier = append(frontier, &Multiequation{S: vars, M: nonvars})
			continue
		}

		switch first := nonvars[0].(type) {
		case *ast.Construct:
			for _, x := range nonvars[1:] {
				c, ok := x.(*ast.Construct)
				if !ok || c.Symbol != first.Symbol || c.Arity() != first.Arity() {
					return nil, nil, clash(first, x)
				}
			}
			args := make([]ast.Term, first.Arity())
			*t.dst = &ast.Construct{Symbol: first.Symbol, Args: args}
			for i := len(args) - 1; i >= 0; i-- {
				column := make([]ast.Term, len(nonvars))
				for j, x := range nonvars {
					column[j] = x.(*ast.Construct).Args[i]
				}
				stack.Push(task{column: column, dst: &args[i]})
			}
		default:
			for _, x := range nonvars[1:] {
				if !first.Equal(x) {
					return nil, nil, clash(first, x)
				}
			}
			*t.dst = first
		}
	}

	return common, frontier, nil
}

func clash(a, b ast.Term) error {
	return &Failure{Kind: Clash, Terms: []ast.Term{a, b}}
}

// termString hides the synthetic wrapper from error messages.
func termString(t ast.Term) string {
	if c, ok := t.(*ast.Construct); ok && c.Symbol == wrapperFn {
		return ast.Tuple(c.Args).String()
	}
	return t.String()
}
