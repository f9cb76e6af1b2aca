// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package algebra describes relational-algebra expressions over stored
// relations and evaluates them with the storage primitives.
package algebra

import (
	"fmt"
	"strings"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/storage"
)

// Op identifies the operator of an expression node.
type Op int

const (
	// Leaf reads a stored relation.
	Leaf Op = iota
	Join
	NaturalJoin
	Projection
	Selection
	Union
	Difference
)

var opNames = [...]string{
	Leaf:        "relation",
	Join:        "join",
	NaturalJoin: "natural_join",
	Projection:  "projection",
	Selection:   "selection",
	Union:       "union",
	Difference:  "difference",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return fmt.Sprintf("op(%d)", int(op))
	}
	return opNames[op]
}

// Expression is a node in a relational-algebra tree. The fields used depend
// on Op:
//
//   - Leaf: Predicate
//   - Join, NaturalJoin: Left, Right, JoinIndex, Condition, Project
//   - Projection: Left, IndexMap
//   - Selection: Left, Pattern
//   - Union, Difference: Left, Right
//
// Schema optionally names the output columns with variables. NaturalJoin
// nodes derive their join payload from the schemas of their operands.
type Expression struct {
	Op        Op
	Left      *Expression
	Right     *Expression
	Predicate ast.Predicate
	JoinIndex [][2]int
	Condition storage.Condition
	Project   []storage.ProjectIndex
	IndexMap  []int
	Pattern   ast.Tuple
	Schema    []ast.Var
}

// NewLeaf returns an expression reading the relation for p. The schema may
// be nil.
func NewLeaf(p ast.Predicate, schema []ast.Var) *Expression {
	if schema != nil && len(schema) != p.Arity {
		panic(fmt.Sprintf("arity mismatch: schema %v for %v", schema, p))
	}
	return &Expression{Op: Leaf, Predicate: p, Schema: schema}
}

// NewJoin returns a join of left and right.
func NewJoin(left, right *Expression, joinIndex [][2]int, cond storage.Condition, project []storage.ProjectIndex) *Expression {
	return &Expression{
		Op:        Join,
		Left:      left,
		Right:     right,
		JoinIndex: joinIndex,
		Condition: cond,
		Project:   project,
	}
}

// NewNaturalJoin returns the join of left and right on their common schema
// variables. The output schema is the left schema followed by the right
// schema variables not in the left schema. NewNaturalJoin panics if either
// operand has no schema.
func NewNaturalJoin(left, right *Expression) *Expression {
	if left.Schema == nil || right.Schema == nil {
		panic("natural join requires named operands")
	}

	pos := make(map[ast.Var]int, len(left.Schema))
	schema := make([]ast.Var, 0, len(left.Schema)+len(right.Schema))
	var project []storage.ProjectIndex
	var joinIndex [][2]int

	for i, v := range left.Schema {
		if _, ok := pos[v]; !ok {
			pos[v] = i
		}
		schema = append(schema, v)
		project = append(project, storage.Left(i))
	}

	seen := map[ast.Var]int{}
	for j, v := range right.Schema {
		if i, ok := pos[v]; ok {
			joinIndex = append(joinIndex, [2]int{i, j})
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = j
		schema = append(schema, v)
		project = append(project, storage.Right(j))
	}

	return &Expression{
		Op:        NaturalJoin,
		Left:      left,
		Right:     right,
		JoinIndex: joinIndex,
		Condition: storage.Equals,
		Project:   project,
		Schema:    schema,
	}
}

// NewProjection returns the projection of child onto the columns listed in
// indexMap. Entries of -1 do not produce a column.
func NewProjection(child *Expression, indexMap []int) *Expression {
	expr := &Expression{Op: Projection, Left: child, IndexMap: indexMap}
	if child.Schema != nil {
		for _, i := range indexMap {
			if i >= 0 {
				expr.Schema = append(expr.Schema, child.Schema[i])
			}
		}
	}
	return expr
}

// NewSelection returns the tuples of child matching pattern.
func NewSelection(child *Expression, pattern ast.Tuple) *Expression {
	return &Expression{Op: Selection, Left: child, Pattern: pattern, Schema: child.Schema}
}

// NewUnion returns the union of left and right.
func NewUnion(left, right *Expression) *Expression {
	return &Expression{Op: Union, Left: left, Right: right, Schema: left.Schema}
}

// NewDifference returns the tuples of left that are not in right.
func NewDifference(left, right *Expression) *Expression {
	return &Expression{Op: Difference, Left: left, Right: right, Schema: left.Schema}
}

// Predicates returns the predicates read by the leaves of the expression in
// depth-first order.
func (e *Expression) Predicates() []ast.Predicate {
	var result []ast.Predicate
	seen := map[ast.Predicate]struct{}{}
	e.walk(func(x *Expression) {
		if x.Op == Leaf {
			if _, ok := seen[x.Predicate]; !ok {
				seen[x.Predicate] = struct{}{}
				result = append(result, x.Predicate)
			}
		}
	})
	return result
}

func (e *Expression) walk(f func(*Expression)) {
	f(e)
	if e.Left != nil {
		e.Left.walk(f)
	}
	if e.Right != nil {
		e.Right.walk(f)
	}
}

func (e *Expression) String() string {
	var buf strings.Builder
	e.format(&buf, 0)
	return buf.String()
}

func (e *Expression) format(buf *strings.Builder, depth int) {
	buf.WriteString(strings.Repeat("  ", depth))
	buf.WriteString(e.Op.String())
	switch e.Op {
	case Leaf:
		fmt.Fprintf(buf, " %v", e.Predicate)
	case Join:
		fmt.Fprintf(buf, " %v %v", e.Condition, e.JoinIndex)
	case NaturalJoin:
		fmt.Fprintf(buf, " %v", e.JoinIndex)
	case Projection:
		fmt.Fprintf(buf, " %v", e.IndexMap)
	case Selection:
		fmt.Fprintf(buf, " %v", e.Pattern)
	}
	if e.Schema != nil {
		fmt.Fprintf(buf, " -> %v", ast.Tuple(varsToTerms(e.Schema)))
	}
	buf.WriteByte('\n')
	if e.Left != nil {
		e.Left.format(buf, depth+1)
	}
	if e.Right != nil {
		e.Right.format(buf, depth+1)
	}
}

func varsToTerms(vs []ast.Var) []ast.Term {
	ts := make([]ast.Term, len(vs))
	for i := range vs {
		ts[i] = vs[i]
	}
	return ts
}
