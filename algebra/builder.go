// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package algebra

import (
	"github.com/pkg/errors"

	"github.com/open-policy-agent/opalog/ast"
)

// ErrNotExpressible is returned (possibly wrapped) when a rule or literal
// cannot be described with the relational operators, e.g., because it
// refers to builtins or contains non-ground constructs.
var ErrNotExpressible = errors.New("not expressible in relational algebra")

// FromLiteral describes a positive, non-builtin literal as an expression
// whose schema lists the distinct variables of the literal in order of first
// appearance. Constants and repeated variables become a selection.
func FromLiteral(lit *ast.Literal) (*Expression, error) {

	if !lit.Positive || lit.IsBuiltin() {
		return nil, errors.Wrapf(ErrNotExpressible, "literal %v", lit)
	}

	args := lit.Args()
	first := map[ast.Var]int{}
	var schema []ast.Var
	var indexMap []int
	needSelection := false

	for i, arg := range args {
		switch arg := arg.(type) {
		case ast.Var:
			if _, ok := first[arg]; ok {
				needSelection = true
				continue
			}
			first[arg] = i
			schema = append(schema, arg)
			indexMap = append(indexMap, i)
		default:
			if !arg.IsGround() {
				return nil, errors.Wrapf(ErrNotExpressible, "literal %v", lit)
			}
			needSelection = true
		}
	}

	if schema == nil {
		schema = []ast.Var{}
	}

	expr := NewLeaf(lit.Predicate(), nil)
	if needSelection {
		expr = NewSelection(expr, args)
	}

	if !needSelection && len(indexMap) == len(args) {
		expr.Schema = schema
		return expr, nil
	}

	expr = NewProjection(expr, indexMap)
	expr.Schema = schema
	return expr, nil
}

// FromRule describes the rule as an expression computing the head tuples
// from the relations of the body predicates. Positive literals are joined
// left to right, negative literals are subtracted. The head arguments must
// be variables bound by the positive literals.
func FromRule(rule *ast.Rule) (*Expression, error) {

	head, err := rule.HeadLiteral()
	if err != nil {
		return nil, err
	}

	var body *Expression

	for _, lit := range rule.Body {
		if !lit.Positive {
			continue
		}
		expr, err := FromLiteral(lit)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %v", rule)
		}
		if body == nil {
			body = expr
		} else {
			body = NewNaturalJoin(body, expr)
		}
	}

	if body == nil {
		return nil, errors.Wrapf(ErrNotExpressible, "rule %v has no positive body literal", rule)
	}

	for _, lit := range rule.Body {
		if lit.Positive {
			continue
		}
		if lit.IsBuiltin() {
			return nil, errors.Wrapf(ErrNotExpressible, "rule %v", rule)
		}
		if !ast.NewVarSet(body.Schema...).ContainsAll(lit.Vars()) {
			return nil, errors.Wrapf(ErrNotExpressible, "rule %v: unsafe negative literal %v", rule, lit)
		}
		neg, err := FromLiteral(lit.Complement())
		if err != nil {
			return nil, errors.Wrapf(err, "rule %v", rule)
		}
		keep := make([]int, len(body.Schema))
		for i := range keep {
			keep[i] = i
		}
		matched := NewProjection(NewNaturalJoin(body, neg), keep)
		body = NewDifference(body, matched)
	}

	pos := map[ast.Var]int{}
	for i, v := range body.Schema {
		pos[v] = i
	}

	indexMap := make([]int, len(head.Args()))
	for i, arg := range head.Args() {
		v, ok := arg.(ast.Var)
		if !ok {
			return nil, errors.Wrapf(ErrNotExpressible, "rule %v: head argument %v", rule, arg)
		}
		j, ok := pos[v]
		if !ok {
			return nil, errors.Wrapf(ErrNotExpressible, "rule %v: head variable %v is not bound", rule, v)
		}
		indexMap[i] = j
	}

	return NewProjection(body, indexMap), nil
}
