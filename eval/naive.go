// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package eval

import (
	"context"

	"github.com/pkg/errors"

	"github.com/open-policy-agent/opalog/algebra"
	"github.com/open-policy-agent/opalog/analysis"
	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/logging"
	"github.com/open-policy-agent/opalog/metrics"
	"github.com/open-policy-agent/opalog/sip"
	"github.com/open-policy-agent/opalog/storage"
)

// DefaultMaxIterations bounds the fixpoint passes of the evaluators unless
// configured otherwise.
const DefaultMaxIterations = 10000

// Naive evaluates stratified programs bottom-up. Strata are evaluated in
// order; each stratum is iterated until no rule derives a new tuple.
type Naive struct {
	reg           *ast.Registry
	maxIterations int
	metrics       metrics.Metrics
	logger        logging.Logger
}

// NewNaive returns a new naive evaluator.
func NewNaive() *Naive {
	return &Naive{
		reg:           ast.DefaultRegistry(),
		maxIterations: DefaultMaxIterations,
		metrics:       metrics.NoOp(),
		logger:        logging.NewNoOpLogger(),
	}
}

// WithRegistry sets the builtin registry.
func (n *Naive) WithRegistry(reg *ast.Registry) *Naive {
	n.reg = reg
	return n
}

// WithMaxIterations sets the maximum number of passes per stratum. Zero or
// negative values disable the limit.
func (n *Naive) WithMaxIterations(max int) *Naive {
	n.maxIterations = max
	return n
}

// WithMetrics sets the metrics provider.
func (n *Naive) WithMetrics(m metrics.Metrics) *Naive {
	n.metrics = m
	return n
}

// WithLogger sets the logger.
func (n *Naive) WithLogger(l logging.Logger) *Naive {
	n.logger = l
	return n
}

// Evaluate returns a copy of db extended with every tuple derivable by the
// rules. The input database is not modified.
func (n *Naive) Evaluate(ctx context.Context, db *storage.Database, rules []*ast.Rule) (*storage.Database, error) {
	out := db.Copy()
	if _, err := n.Saturate(ctx, out, rules); err != nil {
		return nil, err
	}
	return out, nil
}

// Saturate adds every tuple derivable by the rules to db and returns the
// number of tuples added. Saturating a database twice adds nothing the
// second time.
func (n *Naive) Saturate(ctx context.Context, db *storage.Database, rules []*ast.Rule) (int, error) {

	n.metrics.Timer(metrics.EvalNaive).Start()
	defer n.metrics.Timer(metrics.EvalNaive).Stop()

	strata, err := analysis.StratifyRules(rules)
	if err != nil {
		return 0, err
	}

	layers := make([][]*compiledRule, strata.Max()+1)
	for _, r := range rules {
		head, err := r.HeadLiteral()
		if err != nil {
			return 0, err
		}
		s := strata.Of(head.Predicate())
		layers[s] = append(layers[s], n.compile(r, head))
	}

	var total int

	for s, layer := range layers {
		if len(layer) == 0 {
			continue
		}
		for i := 1; ; i++ {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if n.maxIterations > 0 && i > n.maxIterations {
				return total, ast.NewError(ast.EvalErr, nil, "stratum %d: exceeded %d iterations", s, n.maxIterations)
			}
			n.metrics.Counter(metrics.NaiveIterations).Incr()

			var derived int
			for _, cr := range layer {
				k, err := n.apply(cr, db)
				if err != nil {
					return total, err
				}
				derived += k
			}

			total += derived
			n.logger.Debug("Stratum %d iteration %d derived %d tuples.", s, i, derived)
			if derived == 0 {
				break
			}
		}
	}

	n.metrics.Counter(metrics.TuplesDerived).Add(uint64(total))

	return total, nil
}

// compiledRule is a rule prepared for repeated evaluation. Rules that can
// be described with relational operators carry an expression; the others
// are evaluated literal by literal in SIP order.
type compiledRule struct {
	rule  *ast.Rule
	head  *ast.Literal
	expr  *algebra.Expression
	order []*ast.Literal
}

func (n *Naive) compile(r *ast.Rule, head *ast.Literal) *compiledRule {
	cr := &compiledRule{rule: r, head: head}
	if expr, err := algebra.FromRule(r); err == nil {
		cr.expr = expr
		return cr
	}
	cr.order = sip.NewSIPWithRegistry(r, ast.VarSet{}, n.reg).Ordering()
	return cr
}

func (n *Naive) apply(cr *compiledRule, db *storage.Database) (int, error) {

	target := db.Relation(cr.head.Predicate())

	if cr.expr != nil {
		result, err := algebra.Eval(cr.expr, db)
		if err != nil {
			return 0, errors.Wrapf(err, "rule %v", cr.rule)
		}
		var k int
		for _, t := range result.Tuples() {
			if target.Add(t) {
				k++
			}
		}
		return k, nil
	}

	e := &bodyEvaluator{
		reg: n.reg,
		positive: func(lit *ast.Literal, _ *table) (*table, error) {
			return matchTable(lit.Args(), lookup(db, lit.Predicate()))
		},
		relation: func(p ast.Predicate) *storage.Relation {
			return lookup(db, p)
		},
	}

	sup := unitTable()
	for _, lit := range cr.order {
		var err error
		sup, err = e.literal(lit, sup)
		if err != nil {
			return 0, errors.Wrapf(err, "rule %v", cr.rule)
		}
		if sup.isEmpty() {
			return 0, nil
		}
	}

	k, err := sup.instantiate(cr.head.Args(), target)
	if err != nil {
		return k, errors.Wrapf(err, "rule %v", cr.rule)
	}
	return k, nil
}
