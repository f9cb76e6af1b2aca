// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package analysis certifies rule bases before evaluation: every rule must be
// safe and negation must be stratified.
package analysis

import (
	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/metrics"
)

// Compiler checks a rule base and computes the data structures used by the
// evaluators. If compilation fails, Errors holds the reasons.
type Compiler struct {

	// Errors contains errors that occurred during the compilation process.
	// If there are one or more errors, the compilation process is considered
	// "failed".
	Errors ast.Errors

	// Rules contains the compiled rules.
	Rules []*ast.Rule

	// Graph contains the predicate dependency graph of the rules.
	Graph *DependencyGraph

	// Strata contains the stratum of every predicate in Graph.
	Strata Strata

	registry          *ast.Registry
	relaxedArithmetic bool
	metrics           metrics.Metrics
	stages            []stage
}

type stage struct {
	f    func()
	name string
	// metric is the timer recording the stage, if any.
	metric string
}

// NewCompiler returns a new empty compiler using the default builtins.
func NewCompiler() *Compiler {

	c := &Compiler{
		registry: ast.DefaultRegistry(),
		metrics:  metrics.NoOp(),
	}

	c.stages = []stage{
		{c.checkHeads, "checkHeads", ""},
		{c.checkBuiltins, "checkBuiltins", ""},
		{c.checkSafety, "checkSafety", metrics.CompileSafety},
		{c.setGraph, "setGraph", ""},
		{c.checkStratification, "checkStratification", metrics.CompileStratify},
	}

	return c
}

// WithRegistry sets the builtins known to the compiler.
func (c *Compiler) WithRegistry(reg *ast.Registry) *Compiler {
	c.registry = reg
	return c
}

// WithRelaxedArithmetic sets whether arithmetic builtins limit their third
// operand during safety checks. It is off by default.
func (c *Compiler) WithRelaxedArithmetic(yes bool) *Compiler {
	c.relaxedArithmetic = yes
	return c
}

// WithMetrics sets the metrics used to time compilation stages.
func (c *Compiler) WithMetrics(m metrics.Metrics) *Compiler {
	c.metrics = m
	return c
}

// Compile runs the compilation process on the rules. If the compilation
// process fails for any reason, the compiler will contain a slice of errors.
func (c *Compiler) Compile(rules []*ast.Rule) {
	c.Rules = rules
	c.Errors = nil
	c.Graph = nil
	c.Strata = nil
	c.compile()
}

// Failed returns true if a compilation error has been encountered.
func (c *Compiler) Failed() bool {
	return len(c.Errors) > 0
}

// Err returns the compilation errors or nil.
func (c *Compiler) Err() error {
	if c.Failed() {
		return c.Errors
	}
	return nil
}

// Registry returns the builtins known to the compiler.
func (c *Compiler) Registry() *ast.Registry {
	return c.registry
}

func (c *Compiler) compile() {
	for _, s := range c.stages {
		if s.metric != "" {
			c.metrics.Timer(s.metric).Start()
		}
		s.f()
		if s.metric != "" {
			c.metrics.Timer(s.metric).Stop()
		}
		if c.Failed() {
			return
		}
	}
}

func (c *Compiler) err(err *ast.Error) {
	c.Errors = append(c.Errors, err)
}

// checkHeads ensures that rule heads are positive ordinary literals.
func (c *Compiler) checkHeads() {
	for _, rule := range c.Rules {
		if len(rule.Head) == 0 {
			c.err(ast.NewError(ast.MultiHeadErr, nil, "rule %v: missing head literal", rule))
		}
		for _, h := range rule.Head {
			if !h.Positive {
				c.err(ast.NewError(ast.UnsafeRuleErr, nil, "rule %v: negative head literal %v", rule, h))
			}
			if h.IsBuiltin() {
				c.err(ast.NewError(ast.UnsafeRuleErr, nil, "rule %v: builtin head literal %v", rule, h))
			}
		}
	}
}

// checkBuiltins ensures that builtin literals refer to registered builtins.
func (c *Compiler) checkBuiltins() {
	for _, rule := range c.Rules {
		for _, lit := range rule.Body {
			if !lit.IsBuiltin() {
				continue
			}
			if _, ok := c.registry.LookupPredicate(lit.Predicate()); !ok {
				c.err(ast.NewError(ast.ArityErr, nil, "rule %v: unknown builtin %v", rule, lit.Predicate()))
			}
		}
	}
}

func (c *Compiler) checkSafety() {
	for _, err := range CheckAllRulesSafe(c.Rules, c.registry, c.relaxedArithmetic) {
		c.err(err)
	}
}

func (c *Compiler) setGraph() {
	c.Graph = NewDependencyGraph(c.Rules)
}

func (c *Compiler) checkStratification() {
	strata, err := c.Graph.Stratify()
	if err != nil {
		c.err(err.(*ast.Error))
		return
	}
	c.Strata = strata
}

// CompileRules is a helper function to compile a rule base with the default
// settings.
func CompileRules(rules []*ast.Rule) (*Compiler, error) {
	c := NewCompiler()
	c.Compile(rules)
	return c, c.Err()
}
