// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package algebra

import (
	"fmt"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/storage"
)

// Source provides the relations read by expression leaves.
type Source interface {
	Get(p ast.Predicate) (*storage.Relation, bool)
}

// Eval evaluates the expression against src. Leaves without a relation in
// src evaluate to the empty relation. The returned relation may be shared
// with src and must not be modified.
func Eval(expr *Expression, src Source) (*storage.Relation, error) {

	switch expr.Op {
	case Leaf:
		if r, ok := src.Get(expr.Predicate); ok {
			return r, nil
		}
		return storage.NewRelation(expr.Predicate.Arity), nil

	case Projection:
		child, err := Eval(expr.Left, src)
		if err != nil {
			return nil, err
		}
		for _, i := range expr.IndexMap {
			if i >= child.Arity() {
				return nil, fmt.Errorf("projection index %d out of range for arity %d", i, child.Arity())
			}
		}
		return storage.Projection(child, expr.IndexMap), nil

	case Selection:
		child, err := Eval(expr.Left, src)
		if err != nil {
			return nil, err
		}
		if len(expr.Pattern) != child.Arity() {
			return nil, fmt.Errorf("selection pattern %v does not match arity %d", expr.Pattern, child.Arity())
		}
		return storage.Selection(child, expr.Pattern), nil
	}

	left, err := Eval(expr.Left, src)
	if err != nil {
		return nil, err
	}

	right, err := Eval(expr.Right, src)
	if err != nil {
		return nil, err
	}

	switch expr.Op {
	case Join, NaturalJoin:
		for _, pair := range expr.JoinIndex {
			if pair[0] >= left.Arity() || pair[1] >= right.Arity() {
				return nil, fmt.Errorf("join index %v out of range", pair)
			}
		}
		return storage.Join(left, right, expr.JoinIndex, expr.Condition, expr.Project), nil
	case Union, Difference:
		if left.Arity() != right.Arity() {
			return nil, fmt.Errorf("%v of relations with arity %d and %d", expr.Op, left.Arity(), right.Arity())
		}
		if expr.Op == Union {
			return storage.Union(left, right), nil
		}
		return storage.Difference(left, right), nil
	}

	return nil, fmt.Errorf("illegal operator: %v", expr.Op)
}
