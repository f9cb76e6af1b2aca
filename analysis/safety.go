// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package analysis

import (
	"strings"

	"github.com/open-policy-agent/opalog/ast"
)

// RuleValidator decides whether a rule is safe. A rule is safe if every
// variable in its head, in a negative literal or in a builtin other than
// equality is limited. Variables become limited by appearing in a positive
// ordinary body literal, through equalities whose other side is limited or,
// in relaxed mode, through arithmetic builtins whose other operands are
// limited.
type RuleValidator struct {
	rule       *ast.Rule
	reg        *ast.Registry
	relaxed    bool
	limited    ast.VarSet
	head       ast.VarSet
	negative   ast.VarSet
	builtin    ast.VarSet
	equalities [][2]ast.Term
	arithmetic [][]ast.Term
}

// NewRuleValidator returns a validator for rule. The registry classifies the
// builtins referenced by the rule body. If relaxedArithmetic is true, an
// arithmetic builtin limits its remaining operand once two are limited.
func NewRuleValidator(rule *ast.Rule, reg *ast.Registry, relaxedArithmetic bool) *RuleValidator {
	return &RuleValidator{
		rule:     rule,
		reg:      reg,
		relaxed:  relaxedArithmetic,
		limited:  ast.VarSet{},
		head:     ast.VarSet{},
		negative: ast.VarSet{},
		builtin:  ast.VarSet{},
	}
}

// AddHeadVariable declares v as a head variable. Head variables start out
// unlimited.
func (rv *RuleValidator) AddHeadVariable(v ast.Var) {
	rv.head.Add(v)
}

// AddVariablesFromPositiveOrdinary marks every variable of lit as limited.
func (rv *RuleValidator) AddVariablesFromPositiveOrdinary(lit *ast.Literal) {
	for _, v := range lit.Vars() {
		rv.limited.Add(v)
	}
}

// AddEqualityLiteral records a positive equality between left and right.
func (rv *RuleValidator) AddEqualityLiteral(left, right ast.Term) {
	rv.equalities = append(rv.equalities, [2]ast.Term{left, right})
}

// AddArithmeticLiteral records the operands of a positive arithmetic
// builtin. The operands must be limited in the end; in relaxed mode the
// literal also limits its last unlimited operand.
func (rv *RuleValidator) AddArithmeticLiteral(operands []ast.Term) {
	rv.arithmetic = append(rv.arithmetic, operands)
	for _, t := range operands {
		ast.WalkVars(t, rv.builtin.Add)
	}
}

// AddNegativeVariable declares v as appearing in a negative literal.
func (rv *RuleValidator) AddNegativeVariable(v ast.Var) {
	rv.negative.Add(v)
}

// AddBuiltinVariable declares v as appearing in a builtin that cannot limit
// its operands.
func (rv *RuleValidator) AddBuiltinVariable(v ast.Var) {
	rv.builtin.Add(v)
}

// Load adds the head and body of the validator's rule.
func (rv *RuleValidator) Load() {
	for _, h := range rv.rule.Head {
		for _, v := range h.Vars() {
			rv.AddHeadVariable(v)
		}
	}
	for _, lit := range rv.rule.Body {
		rv.addBodyLiteral(lit)
	}
}

func (rv *RuleValidator) addBodyLiteral(lit *ast.Literal) {
	if !lit.Positive {
		for _, v := range lit.Vars() {
			rv.AddNegativeVariable(v)
		}
		return
	}

	if !lit.IsBuiltin() {
		rv.AddVariablesFromPositiveOrdinary(lit)
		return
	}

	kind := ast.Other
	if b, ok := rv.reg.LookupPredicate(lit.Predicate()); ok {
		kind = b.Kind
	}

	args := lit.Args()

	switch {
	case kind == ast.Equality && len(args) == 2:
		rv.AddEqualityLiteral(args[0], args[1])
	case kind == ast.Arithmetic && len(args) == 3:
		rv.AddArithmeticLiteral(args)
	default:
		for _, v := range lit.Vars() {
			rv.AddBuiltinVariable(v)
		}
	}
}

// IsSafe returns nil if the rule is safe. Otherwise it returns an
// UnsafeRuleErr listing the variables that remain unlimited.
func (rv *RuleValidator) IsSafe() error {
	rv.propagate()

	required := rv.head.Copy()
	required.Update(rv.negative)
	required.Update(rv.builtin)

	unsafe := required.Diff(rv.limited)
	if len(unsafe) == 0 {
		return nil
	}

	names := make([]string, 0, len(unsafe))
	for _, v := range unsafe.Sorted() {
		names = append(names, v.String())
	}

	return ast.NewError(ast.UnsafeRuleErr, nil, "rule %v: unsafe variables %v", rv.rule, strings.Join(names, ", "))
}

// propagate limits variables through equalities and arithmetic builtins
// until nothing changes.
func (rv *RuleValidator) propagate() {
	for changed := true; changed; {
		changed = false
		for _, eq := range rv.equalities {
			if rv.isLimited(eq[0]) && rv.limit(eq[1]) {
				changed = true
			}
			if rv.isLimited(eq[1]) && rv.limit(eq[0]) {
				changed = true
			}
		}
		if !rv.relaxed {
			continue
		}
		for _, ops := range rv.arithmetic {
			free := -1
			n := 0
			for i := range ops {
				if !rv.isLimited(ops[i]) {
					free = i
					n++
				}
			}
			if n == 1 && rv.limit(ops[free]) {
				changed = true
			}
		}
	}
}

func (rv *RuleValidator) isLimited(t ast.Term) bool {
	limited := true
	ast.WalkVars(t, func(v ast.Var) {
		if !rv.limited.Contains(v) {
			limited = false
		}
	})
	return limited
}

func (rv *RuleValidator) limit(t ast.Term) bool {
	grew := false
	ast.WalkVars(t, func(v ast.Var) {
		if !rv.limited.Contains(v) {
			rv.limited.Add(v)
			grew = true
		}
	})
	return grew
}

// CheckRuleSafe returns an error if rule is unsafe.
func CheckRuleSafe(rule *ast.Rule, reg *ast.Registry, relaxedArithmetic bool) error {
	rv := NewRuleValidator(rule, reg, relaxedArithmetic)
	rv.Load()
	return rv.IsSafe()
}

// CheckAllRulesSafe validates every rule and returns the errors for the
// unsafe ones.
func CheckAllRulesSafe(rules []*ast.Rule, reg *ast.Registry, relaxedArithmetic bool) ast.Errors {
	var errs ast.Errors
	for _, rule := range rules {
		if err := CheckRuleSafe(rule, reg, relaxedArithmetic); err != nil {
			errs = append(errs, err.(*ast.Error))
		}
	}
	return errs
}
