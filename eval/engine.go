// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package eval

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/open-policy-agent/opalog/analysis"
	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/config"
	"github.com/open-policy-agent/opalog/logging"
	"github.com/open-policy-agent/opalog/magic"
	"github.com/open-policy-agent/opalog/metrics"
)

// Engine evaluates programs. The rules are checked for safety and
// stratification, optionally rewritten with magic sets for each query and
// evaluated with QSQ.
type Engine struct {
	config    *config.Config
	reg       *ast.Registry
	optimiser *magic.Optimiser
	metrics   metrics.Metrics
	logger    logging.Logger
	tracer    Tracer
	err       error
}

// NewEngine returns an engine with the default configuration.
func NewEngine() *Engine {
	e := &Engine{
		reg:     ast.DefaultRegistry(),
		metrics: metrics.NoOp(),
		logger:  logging.NewNoOpLogger(),
	}
	return e.WithConfig(config.Default())
}

// WithConfig sets a copy of the configuration. The magic-set rewrite cache
// is recreated with the configured size. A configuration the optimiser
// rejects makes every later evaluation fail with the same error.
func (e *Engine) WithConfig(c *config.Config) *Engine {
	cpy := *c
	e.config = &cpy
	e.optimiser, e.err = magic.NewOptimiser(cpy.RewriteCacheSize)
	if e.err != nil {
		e.err = errors.Wrap(e.err, "engine config")
		return e
	}
	e.optimiser.WithRegistry(e.reg).WithMetrics(e.metrics).WithLogger(e.logger)
	return e
}

// WithMagicSets enables or disables the magic-set rewrite.
func (e *Engine) WithMagicSets(yes bool) *Engine {
	e.config.MagicSets = yes
	return e
}

// WithRegistry sets the builtin registry used by every stage.
func (e *Engine) WithRegistry(reg *ast.Registry) *Engine {
	e.reg = reg
	if e.optimiser != nil {
		e.optimiser.WithRegistry(reg)
	}
	return e
}

// WithMetrics sets the metrics provider.
func (e *Engine) WithMetrics(m metrics.Metrics) *Engine {
	e.metrics = m
	if e.optimiser != nil {
		e.optimiser.WithMetrics(m)
	}
	return e
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(l logging.Logger) *Engine {
	e.logger = l
	if e.optimiser != nil {
		e.optimiser.WithLogger(l)
	}
	return e
}

// WithTracer sets the tracer passed to the QSQ evaluator.
func (e *Engine) WithTracer(t Tracer) *Engine {
	e.tracer = t
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.config
}

// Compile checks the rules for safety and stratification.
func (e *Engine) Compile(rules []*ast.Rule) (*analysis.Compiler, error) {
	c := analysis.NewCompiler().
		WithRegistry(e.reg).
		WithRelaxedArithmetic(e.config.RelaxedArithmetic).
		WithMetrics(e.metrics)
	c.Compile(rules)
	if c.Failed() {
		return c, c.Err()
	}
	return c, nil
}

// Rewrite returns the magic-set rewrite of the rules for query.
func (e *Engine) Rewrite(rules []*ast.Rule, query *ast.Query) (*magic.Result, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.optimiser.Optimise(rules, query)
}

// Evaluate answers every query of the program. Answers are returned in the
// order of the program's queries.
func (e *Engine) Evaluate(ctx context.Context, p *Program) (Answers, error) {

	if p == nil {
		return nil, errors.New("nil program")
	}

	if e.err != nil {
		return nil, e.err
	}

	if _, err := e.Compile(p.Rules); err != nil {
		return nil, err
	}

	answers := make(Answers, 0, len(p.Queries))
	for _, q := range p.Queries {
		a, err := e.query(ctx, p, q)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}

	return answers, nil
}

// Query answers a single query against the program.
func (e *Engine) Query(ctx context.Context, p *Program, q *ast.Query) (*Answer, error) {

	if p == nil {
		return nil, errors.New("nil program")
	}

	if e.err != nil {
		return nil, e.err
	}

	if _, err := e.Compile(p.Rules); err != nil {
		return nil, err
	}

	return e.query(ctx, p, q)
}

func (e *Engine) query(ctx context.Context, p *Program, q *ast.Query) (*Answer, error) {

	logger := e.logger.WithFields(map[string]any{
		"eval_id": uuid.New().String(),
		"query":   q.String(),
		"magic":   e.config.MagicSets,
	})

	logger.Debug("Evaluating query.")

	rules, query := p.Rules, q

	if e.config.MagicSets {
		res, err := e.optimiser.Optimise(append(factRules(p), rules...), q)
		if err != nil {
			return nil, errors.Wrapf(err, "rewrite %v", q)
		}
		rules, query = res.Rules, res.Query
		logger.Debug("Rewrote program into %d rules.", len(rules))
	}

	answer, err := NewQSQ(p.Database(), rules).
		WithRegistry(e.reg).
		WithMaxIterations(e.config.MaxIterations).
		WithMetrics(e.metrics).
		WithLogger(logger).
		WithTracer(e.tracer).
		Evaluate(ctx, query)
	if err != nil {
		logger.Error("Query failed: %v", err)
		return nil, err
	}

	logger.WithFields(map[string]any{"answers": answer.Size()}).Debug("Query evaluated.")

	return &Answer{Query: q, Vars: answer.Vars, Relation: answer.Relation}, nil
}

// factRules returns the stored facts of intensional predicates as bodiless
// rules. The rewritten program renames those predicates, so their facts
// must be carried by rules to stay visible.
func factRules(p *Program) []*ast.Rule {
	heads := map[ast.Predicate]struct{}{}
	for _, r := range p.Rules {
		for _, h := range r.Head {
			heads[h.Predicate()] = struct{}{}
		}
	}
	var result []*ast.Rule
	for pred, rel := range p.Facts {
		if _, ok := heads[pred]; !ok {
			continue
		}
		for _, t := range rel.Tuples() {
			result = append(result, ast.NewRule(ast.NewLiteral(true, ast.NewAtom(pred, t))))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].String() < result[j].String()
	})
	return result
}
