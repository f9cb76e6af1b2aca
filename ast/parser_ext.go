// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// This file contains extra functions for parsing Datalog.
// Most of the parsing is handled by the Parser type in parser.go.

package ast

import (
	"fmt"
	"strings"
)

// MustParseModule returns a parsed module.
// If an error occurs during parsing, panic.
func MustParseModule(input string) *Module {
	parsed, err := ParseModule("", input, nil)
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustParseRule returns a parsed rule.
// If an error occurs during parsing, panic.
func MustParseRule(input string) *Rule {
	parsed, err := ParseRule(input, nil)
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustParseRules returns the rules of a parsed module. Ground facts are
// returned as rules with empty bodies.
// If an error occurs during parsing, panic.
func MustParseRules(input string) []*Rule {
	parsed, err := ParseRules(input, nil)
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustParseQuery returns a parsed query.
// If an error occurs during parsing, panic.
func MustParseQuery(input string) *Query {
	parsed, err := ParseQuery(input, nil)
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustParseLiteral returns a parsed literal.
// If an error occurs during parsing, panic.
func MustParseLiteral(input string) *Literal {
	parsed, err := ParseLiteral(input, nil)
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustParseTerm returns a parsed term.
// If an error occurs during parsing, panic.
func MustParseTerm(input string) Term {
	parsed, err := ParseTerm(input)
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustParseTuple returns a parsed tuple, e.g., "(a, ?X)".
// If an error occurs during parsing, panic.
func MustParseTuple(input string) Tuple {
	parsed, err := ParseTuple(input)
	if err != nil {
		panic(err)
	}
	return parsed
}

// ParseModule returns a parsed Module object. Builtins are classified with
// reg; if reg is nil the default registry is used.
func ParseModule(filename, input string, reg *Registry) (*Module, error) {
	mod, errs := NewParser().
		WithFilename(filename).
		WithReader(strings.NewReader(input)).
		WithRegistry(reg).
		Parse()
	if len(errs) > 0 {
		return nil, errs
	}
	return mod, nil
}

// ParseRules returns the rules and facts contained in the input. Facts are
// returned as rules with empty bodies. Queries are not allowed.
func ParseRules(input string, reg *Registry) ([]*Rule, error) {
	mod, err := ParseModule("", input, reg)
	if err != nil {
		return nil, err
	}
	if len(mod.Queries) > 0 {
		return nil, NewError(ParseErr, nil, "expected rules but got query %v", mod.Queries[0])
	}
	rules := make([]*Rule, 0, len(mod.Facts)+len(mod.Rules))
	for _, f := range mod.Facts {
		rules = append(rules, NewRule(NewLiteral(true, f)))
	}
	return append(rules, mod.Rules...), nil
}

// ParseRule returns exactly one rule. The terminating dot is optional.
func ParseRule(input string, reg *Registry) (*Rule, error) {
	rules, err := ParseRules(terminate(input), reg)
	if err != nil {
		return nil, err
	}
	if len(rules) != 1 {
		return nil, NewError(ParseErr, nil, "expected exactly one rule but got %d", len(rules))
	}
	return rules[0], nil
}

// ParseQuery returns exactly one query. The ?- marker and the terminating
// dot are optional.
func ParseQuery(input string, reg *Registry) (*Query, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "?-") {
		input = "?- " + input
	}
	mod, err := ParseModule("", terminate(input), reg)
	if err != nil {
		return nil, err
	}
	if len(mod.Queries) != 1 || len(mod.Rules) != 0 || len(mod.Facts) != 0 {
		return nil, NewError(ParseErr, nil, "expected exactly one query")
	}
	return mod.Queries[0], nil
}

// ParseLiteral returns exactly one literal.
func ParseLiteral(input string, reg *Registry) (*Literal, error) {
	q, err := ParseQuery(input, reg)
	if err != nil {
		return nil, err
	}
	if len(q.Body) != 1 {
		return nil, NewError(ParseErr, nil, "expected exactly one literal but got %d", len(q.Body))
	}
	return q.Body[0], nil
}

// ParseTerm returns exactly one term.
func ParseTerm(input string) (Term, error) {
	tuple, err := ParseTuple("(" + input + ")")
	if err != nil {
		return nil, err
	}
	if len(tuple) != 1 {
		return nil, NewError(ParseErr, nil, "expected exactly one term but got %d", len(tuple))
	}
	return tuple[0], nil
}

// ParseTuple returns a tuple written as a parenthesized, comma separated
// list of terms.
func ParseTuple(input string) (Tuple, error) {
	lit, err := ParseLiteral(fmt.Sprintf("tuple%v", strings.TrimSpace(input)), NewRegistry())
	if err != nil {
		return nil, err
	}
	return lit.Atom.Tuple, nil
}

func terminate(input string) string {
	input = strings.TrimSpace(input)
	if !strings.HasSuffix(input, ".") {
		input += "."
	}
	return input
}
