// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import (
	"fmt"
	"strings"
)

type (
	// Predicate identifies a relation by symbol and arity. Builtin predicates
	// are evaluated by the builtin registry instead of being looked up in a
	// relation. Predicates are comparable and can be used as map keys.
	Predicate struct {
		Symbol  string
		Arity   int
		Builtin bool
	}

	// Atom is a predicate applied to a tuple of terms.
	Atom struct {
		Predicate Predicate
		Tuple     Tuple
	}

	// Literal is an atom with a polarity. Negative literals are satisfied when
	// the atom cannot be derived.
	Literal struct {
		Positive bool
		Atom     *Atom
	}

	// Rule derives the head literals for every substitution that satisfies
	// the body. Evaluation requires exactly one positive head literal.
	Rule struct {
		Head []*Literal
		Body []*Literal
	}

	// Query is a conjunction of literals whose satisfying substitutions are
	// the answers.
	Query struct {
		Body []*Literal
	}

	// Module is the output of reading a source file: ground facts, rules and
	// queries in their order of appearance.
	Module struct {
		Facts   []*Atom
		Rules   []*Rule
		Queries []*Query
	}
)

// NewPredicate returns an ordinary (non-builtin) predicate.
func NewPredicate(symbol string, arity int) Predicate {
	return Predicate{Symbol: symbol, Arity: arity}
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s/%d", p.Symbol, p.Arity)
}

// NewAtom returns a new atom. NewAtom panics if the tuple arity does not
// match the predicate arity.
func NewAtom(p Predicate, tuple Tuple) *Atom {
	if len(tuple) != p.Arity {
		panic(fmt.Sprintf("arity mismatch: %v applied to %d terms", p, len(tuple)))
	}
	return &Atom{Predicate: p, Tuple: tuple}
}

// Equal returns true if this atom has the same predicate and tuple as other.
func (a *Atom) Equal(other *Atom) bool {
	return a.Predicate == other.Predicate && a.Tuple.Equal(other.Tuple)
}

// IsGround returns true if the atom's tuple is ground.
func (a *Atom) IsGround() bool {
	return a.Tuple.IsGround()
}

// Vars returns the variables of the atom in order of first appearance.
func (a *Atom) Vars() []Var {
	return a.Tuple.Vars()
}

// Substitute returns a copy of the atom with bindings applied.
func (a *Atom) Substitute(bindings map[Var]Term) *Atom {
	return &Atom{Predicate: a.Predicate, Tuple: a.Tuple.Substitute(bindings)}
}

var infixBuiltins = map[string]struct{}{
	"=":  {},
	"!=": {},
	"<":  {},
	"<=": {},
	">":  {},
	">=": {},
}

func (a *Atom) String() string {
	if _, ok := infixBuiltins[a.Predicate.Symbol]; ok && a.Predicate.Arity == 2 {
		return fmt.Sprintf("%v %s %v", a.Tuple[0], a.Predicate.Symbol, a.Tuple[1])
	}
	if a.Predicate.Arity == 0 {
		return a.Predicate.Symbol
	}
	buf := make([]string, len(a.Tuple))
	for i := range a.Tuple {
		buf[i] = a.Tuple[i].String()
	}
	return a.Predicate.Symbol + "(" + strings.Join(buf, ", ") + ")"
}

// NewLiteral returns a new literal for the atom.
func NewLiteral(positive bool, atom *Atom) *Literal {
	return &Literal{Positive: positive, Atom: atom}
}

// Predicate returns the predicate of the literal's atom.
func (l *Literal) Predicate() Predicate {
	return l.Atom.Predicate
}

// Args returns the tuple of the literal's atom.
func (l *Literal) Args() Tuple {
	return l.Atom.Tuple
}

// IsBuiltin returns true if the literal refers to a builtin predicate.
func (l *Literal) IsBuiltin() bool {
	return l.Atom.Predicate.Builtin
}

// Vars returns the variables of the literal in order of first appearance.
func (l *Literal) Vars() []Var {
	return l.Atom.Vars()
}

// Complement returns a copy of this literal with the polarity flipped.
func (l *Literal) Complement() *Literal {
	return &Literal{Positive: !l.Positive, Atom: l.Atom}
}

// Equal returns true if both literals have the same polarity and equal atoms.
func (l *Literal) Equal(other *Literal) bool {
	return l.Positive == other.Positive && l.Atom.Equal(other.Atom)
}

// Substitute returns a copy of the literal with bindings applied.
func (l *Literal) Substitute(bindings map[Var]Term) *Literal {
	return &Literal{Positive: l.Positive, Atom: l.Atom.Substitute(bindings)}
}

func (l *Literal) String() string {
	if l.Positive {
		return l.Atom.String()
	}
	return "!" + l.Atom.String()
}

// NewRule returns a rule with a single head literal.
func NewRule(head *Literal, body ...*Literal) *Rule {
	return &Rule{Head: []*Literal{head}, Body: body}
}

// HeadLiteral returns the single head literal of the rule. HeadLiteral
// returns an error if the rule does not have exactly one head literal.
func (r *Rule) HeadLiteral() (*Literal, error) {
	if len(r.Head) != 1 {
		return nil, NewError(MultiHeadErr, nil, "rule %v: expected exactly one head literal but got %d", r, len(r.Head))
	}
	return r.Head[0], nil
}

// HeadVars returns the variables appearing in the head.
func (r *Rule) HeadVars() VarSet {
	return literalSliceVars(r.Head)
}

// BodyVars returns the variables appearing in the body.
func (r *Rule) BodyVars() VarSet {
	return literalSliceVars(r.Body)
}

// Vars returns all variables of the rule.
func (r *Rule) Vars() VarSet {
	s := r.HeadVars()
	s.Update(r.BodyVars())
	return s
}

// IsFact returns true if the rule has an empty body and a ground head.
func (r *Rule) IsFact() bool {
	if len(r.Body) != 0 {
		return false
	}
	for _, h := range r.Head {
		if !h.Atom.IsGround() {
			return false
		}
	}
	return true
}

// Equal returns true if both rules have equal, ordered head and body
// literals.
func (r *Rule) Equal(other *Rule) bool {
	return literalSliceEqual(r.Head, other.Head) && literalSliceEqual(r.Body, other.Body)
}

func (r *Rule) String() string {
	head := literalSliceString(r.Head)
	if len(r.Body) == 0 {
		return head + "."
	}
	return head + " :- " + literalSliceString(r.Body) + "."
}

// NewQuery returns a query for the conjunction of literals.
func NewQuery(body ...*Literal) *Query {
	return &Query{Body: body}
}

// Vars returns the variables of the query in order of first appearance.
func (q *Query) Vars() []Var {
	var result []Var
	seen := VarSet{}
	for _, l := range q.Body {
		for _, v := range l.Vars() {
			if !seen.Contains(v) {
				seen.Add(v)
				result = append(result, v)
			}
		}
	}
	return result
}

// Equal returns true if both queries have equal, ordered literals.
func (q *Query) Equal(other *Query) bool {
	return literalSliceEqual(q.Body, other.Body)
}

func (q *Query) String() string {
	return "?- " + literalSliceString(q.Body) + "."
}

func literalSliceVars(ls []*Literal) VarSet {
	s := VarSet{}
	for _, l := range ls {
		for _, v := range l.Vars() {
			s.Add(v)
		}
	}
	return s
}

func literalSliceEqual(a, b []*Literal) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func literalSliceString(ls []*Literal) string {
	buf := make([]string, len(ls))
	for i := range ls {
		buf[i] = ls[i].String()
	}
	return strings.Join(buf, ", ")
}
