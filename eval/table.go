// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package eval

import (
	"github.com/pkg/errors"

	"github.com/open-policy-agent/opalog/algebra"
	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/storage"
	"github.com/open-policy-agent/opalog/unify"
)

// table is a relation whose columns are named by variables. Each tuple of a
// table is a substitution for its variables.
type table struct {
	vars []ast.Var
	rel  *storage.Relation
}

// unitTable returns the table with no columns and a single empty tuple.
// It is the identity of join.
func unitTable() *table {
	return &table{vars: []ast.Var{}, rel: storage.NewRelationOf(0, ast.Tuple{})}
}

func (t *table) isEmpty() bool {
	return t.rel.IsEmpty()
}

func (t *table) indexOf(v ast.Var) int {
	for i := range t.vars {
		if t.vars[i] == v {
			return i
		}
	}
	return -1
}

// bindings returns the substitution held by tuple x.
func (t *table) bindings(x ast.Tuple) map[ast.Var]ast.Term {
	b := make(map[ast.Var]ast.Term, len(t.vars))
	for i, v := range t.vars {
		b[v] = x[i]
	}
	return b
}

// join returns the natural join of a and b on their common variables.
func join(a, b *table) *table {
	pos := make(map[ast.Var]int, len(a.vars))
	for i, v := range a.vars {
		pos[v] = i
	}

	vars := append([]ast.Var{}, a.vars...)
	project := make([]storage.ProjectIndex, 0, len(a.vars)+len(b.vars))
	for i := range a.vars {
		project = append(project, storage.Left(i))
	}

	var joinIndex [][2]int
	for j, v := range b.vars {
		if i, ok := pos[v]; ok {
			joinIndex = append(joinIndex, [2]int{i, j})
			continue
		}
		vars = append(vars, v)
		project = append(project, storage.Right(j))
	}

	return &table{vars: vars, rel: storage.Join(a.rel, b.rel, joinIndex, storage.Equals, project)}
}

// project returns the table restricted to vars with columns in the order
// of vars. Variables missing from t are ignored.
func (t *table) project(vars []ast.Var) *table {
	cols := make([]ast.Var, 0, len(vars))
	indexMap := make([]int, 0, len(vars))
	for _, v := range vars {
		if i := t.indexOf(v); i >= 0 {
			cols = append(cols, v)
			indexMap = append(indexMap, i)
		}
	}
	if len(cols) == len(t.vars) {
		identity := true
		for i := range indexMap {
			if indexMap[i] != i {
				identity = false
				break
			}
		}
		if identity {
			return t
		}
	}
	return &table{vars: cols, rel: storage.Projection(t.rel, indexMap)}
}

// instantiate returns the tuples obtained by applying each substitution of
// t to args. Every resulting tuple must be ground.
func (t *table) instantiate(args ast.Tuple, into *storage.Relation) (int, error) {
	var n int
	var err error
	t.rel.Iter(func(x ast.Tuple) bool {
		out := args.Substitute(t.bindings(x))
		if !out.IsGround() {
			err = ast.NewError(ast.EvalErr, nil, "%v: variables %v are not bound", args, ast.NewVarSet(out.Vars()...))
			return true
		}
		if into.Add(out) {
			n++
		}
		return false
	})
	return n, err
}

func hasConstruct(args ast.Tuple) bool {
	for _, arg := range args {
		if _, ok := arg.(*ast.Construct); ok {
			return true
		}
	}
	return false
}

// distinctVars returns the variables of args in order of first appearance.
func distinctVars(args ast.Tuple) []ast.Var {
	vars := args.Vars()
	if vars == nil {
		return []ast.Var{}
	}
	return vars
}

// matchTable returns the table of substitutions for the variables of args
// that map args onto a tuple of rel. Flat argument lists are matched through
// the relational operators. Arguments containing constructs are unified with
// each tuple.
func matchTable(args ast.Tuple, rel *storage.Relation) (*table, error) {

	if !hasConstruct(args) {
		p := ast.NewPredicate("$match", rel.Arity())
		expr, err := algebra.FromLiteral(ast.NewLiteral(true, ast.NewAtom(p, args)))
		if err != nil {
			return nil, err
		}
		result, err := algebra.Eval(expr, relationSource{p, rel})
		if err != nil {
			return nil, errors.Wrapf(err, "match %v", args)
		}
		return &table{vars: expr.Schema, rel: result}, nil
	}

	vars := distinctVars(args)
	out := storage.NewRelation(len(vars))
	rel.Iter(func(x ast.Tuple) bool {
		res, err := unify.UnifyTuples(args, x)
		if err != nil {
			return false
		}
		out.Add(res.ApplyTuple(varTuple(vars)))
		return false
	})

	return &table{vars: vars, rel: out}, nil
}

func varTuple(vars []ast.Var) ast.Tuple {
	t := make(ast.Tuple, len(vars))
	for i := range vars {
		t[i] = vars[i]
	}
	return t
}

// lookup returns the relation for p in db or an empty relation.
func lookup(db *storage.Database, p ast.Predicate) *storage.Relation {
	if rel, ok := db.Get(p); ok {
		return rel
	}
	return storage.NewRelation(p.Arity)
}

// relationSource serves a single relation to the algebra evaluator.
type relationSource struct {
	p   ast.Predicate
	rel *storage.Relation
}

func (s relationSource) Get(p ast.Predicate) (*storage.Relation, bool) {
	if p == s.p {
		return s.rel, true
	}
	return nil, false
}

// bodyEvaluator evaluates rule bodies over tables. The evaluators supply the
// relations read by ordinary literals.
type bodyEvaluator struct {
	reg *ast.Registry

	// positive returns the table for a positive ordinary literal given the
	// table of substitutions computed so far.
	positive func(lit *ast.Literal, sup *table) (*table, error)

	// relation returns the relation consulted by negative literals.
	relation func(p ast.Predicate) *storage.Relation
}

// literal extends sup with the substitutions satisfying lit.
func (e *bodyEvaluator) literal(lit *ast.Literal, sup *table) (*table, error) {
	switch {
	case lit.IsBuiltin():
		return e.builtin(lit, sup)
	case lit.Positive:
		other, err := e.positive(lit, sup)
		if err != nil {
			return nil, err
		}
		return join(sup, other), nil
	default:
		return e.negative(lit, sup)
	}
}

func (e *bodyEvaluator) negative(lit *ast.Literal, sup *table) (*table, error) {
	rel := e.relation(lit.Predicate())
	out := storage.NewRelation(len(sup.vars))
	var err error
	sup.rel.Iter(func(x ast.Tuple) bool {
		args := lit.Args().Substitute(sup.bindings(x))
		if !args.IsGround() {
			err = ast.NewError(ast.EvalErr, nil, "%v: variables %v are not bound", lit, ast.NewVarSet(args.Vars()...))
			return true
		}
		if !rel.Contains(args) {
			out.Add(x)
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	return &table{vars: sup.vars, rel: out}, nil
}

func (e *bodyEvaluator) builtin(lit *ast.Literal, sup *table) (*table, error) {

	b, ok := e.reg.LookupPredicate(lit.Predicate())
	if !ok {
		return nil, ast.NewError(ast.EvalErr, nil, "%v: unknown builtin", lit)
	}

	vars := append([]ast.Var{}, sup.vars...)
	for _, v := range lit.Vars() {
		if sup.indexOf(v) < 0 {
			vars = append(vars, v)
		}
	}
	newVars := varTuple(vars[len(sup.vars):])

	out := storage.NewRelation(len(vars))
	var err error

	sup.rel.Iter(func(x ast.Tuple) bool {
		args := lit.Args().Substitute(sup.bindings(x))

		if !lit.Positive {
			if !args.IsGround() {
				err = ast.NewError(ast.EvalErr, nil, "%v: variables %v are not bound", lit, ast.NewVarSet(args.Vars()...))
				return true
			}
			var holds bool
			if b.Kind == ast.Equality {
				_, uerr := unify.Unify(args[0], args[1])
				holds = uerr == nil
			} else if _, holds, err = b.Eval(args); err != nil {
				return true
			}
			if !holds {
				out.Add(x)
			}
			return false
		}

		var bindings map[ast.Var]ast.Term

		if b.Kind == ast.Equality {
			res, uerr := unify.Unify(args[0], args[1])
			if uerr != nil {
				return false
			}
			bindings = res.Substitution()
		} else {
			result, holds, everr := b.Eval(args)
			if everr != nil {
				err = everr
				return true
			}
			if !holds {
				return false
			}
			bindings, _ = storage.Match(result, args)
		}

		row := make(ast.Tuple, 0, len(vars))
		row = append(row, x...)
		for _, v := range newVars {
			value := ast.Substitute(v, bindings)
			if !value.IsGround() {
				err = ast.NewError(ast.EvalErr, nil, "%v: variable %v is not bound", lit, v)
				return true
			}
			row = append(row, value)
		}
		out.Add(row)
		return false
	})

	if err != nil {
		return nil, err
	}

	return &table{vars: vars, rel: out}, nil
}
