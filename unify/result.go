// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package unify

import (
	"strings"

	"github.com/open-policy-agent/opalog/ast"
)

// Result is a most general unifier.
type Result struct {
	// Head holds the common part of the unified terms, one entry per argument
	// of the unified tuples (or a single entry for Unify). Variables in the
	// head are resolved through the tail.
	Head []ast.Term

	// Tail holds the solved multiequations in the order they were solved.
	// Variables in a multiequation's term only occur in the left-hand sides
	// of later multiequations.
	Tail []*Multiequation

	subst map[ast.Var]ast.Term
}

func newResult(solved []*Multiequation) *Result {
	wrapper := solved[0].M[0].(*ast.Construct)
	return &Result{
		Head: wrapper.Args,
		Tail: solved[1:],
	}
}

// Substitution returns the unifier as a mapping from variables to terms.
// Variables that remain unbound are mapped to the representative variable
// of their multiequation or omitted if they are the representative.
func (r *Result) Substitution() map[ast.Var]ast.Term {
	if r.subst != nil {
		return r.subst
	}
	subst := map[ast.Var]ast.Term{}
	for i := len(r.Tail) - 1; i >= 0; i-- {
		m := r.Tail[i]
		if len(m.M) == 0 {
			for _, v := range m.S[1:] {
				subst[v] = m.S[0]
			}
			continue
		}
		value := apply(m.M[0], subst)
		for _, v := range m.S {
			subst[v] = value
		}
	}
	r.subst = subst
	return subst
}

// Apply returns t with the unifier applied.
func (r *Result) Apply(t ast.Term) ast.Term {
	return apply(t, r.Substitution())
}

// ApplyTuple returns a copy of t with the unifier applied.
func (r *Result) ApplyTuple(t ast.Tuple) ast.Tuple {
	subst := r.Substitution()
	result := make(ast.Tuple, len(t))
	for i := range t {
		result[i] = apply(t[i], subst)
	}
	return result
}

// Unifier returns the head with the unifier applied, i.e., the common
// instance of the unified arguments.
func (r *Result) Unifier() ast.Tuple {
	return r.ApplyTuple(r.Head)
}

func (r *Result) String() string {
	buf := make([]string, len(r.Tail))
	for i := range r.Tail {
		buf[i] = r.Tail[i].String()
	}
	return ast.Tuple(r.Head).String() + " where " + strings.Join(buf, ", ")
}

// apply replaces variables in t according to subst. Constructs are rebuilt
// with an explicit stack so the nesting depth of t is not limited by the
// call stack.
func apply(t ast.Term, subst map[ast.Var]ast.Term) ast.Term {

	leaf := func(x ast.Term) ast.Term {
		if v, ok := x.(ast.Var); ok {
			if value, ok := subst[v]; ok {
				return value
			}
		}
		return x
	}

	root, ok := t.(*ast.Construct)
	if !ok {
		return leaf(t)
	}

	if root.IsGround() {
		return root
	}

	type frame struct {
		c    *ast.Construct
		args []ast.Term
		i    int
	}

	stack := []*frame{{c: root, args: make([]ast.Term, root.Arity())}}

	for {
		f := stack[len(stack)-1]

		if f.i == len(f.c.Args) {
			stack = stack[:len(stack)-1]
			built := &ast.Construct{Symbol: f.c.Symbol, Args: f.args}
			if len(stack) == 0 {
				return built
			}
			parent := stack[len(stack)-1]
			parent.args[parent.i] = built
			parent.i++
			continue
		}

		arg := f.c.Args[f.i]
		if c, ok := arg.(*ast.Construct); ok {
			stack = append(stack, &frame{c: c, args: make([]ast.Term, c.Arity())})
			continue
		}

		f.args[f.i] = leaf(arg)
		f.i++
	}
}
