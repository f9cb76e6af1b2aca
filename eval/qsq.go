// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/open-policy-agent/opalog/analysis"
	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/logging"
	"github.com/open-policy-agent/opalog/metrics"
	"github.com/open-policy-agent/opalog/sip"
	"github.com/open-policy-agent/opalog/storage"
	"github.com/open-policy-agent/opalog/unify"
)

// SupplementaryRelation holds the substitutions computed for an adorned rule
// after its first Position body literals (in SIP order) have been
// evaluated. Vars names the columns: the variables bound so far that are
// still needed by later literals or the head.
type SupplementaryRelation struct {
	Rule     *sip.AdornedRule
	Position int
	Vars     []ast.Var
	Relation *storage.Relation
}

func (s *SupplementaryRelation) String() string {
	return fmt.Sprintf("sup_%d%v = %v", s.Position, s.Vars, s.Relation)
}

// Template holds the supplementary relations of an adorned rule. Entry i
// follows the first i body literals; the last entry feeds the head.
type Template struct {
	Rule          *sip.AdornedRule
	Supplementary []*SupplementaryRelation
}

// NewTemplate returns the template of r with empty supplementary relations.
func NewTemplate(r *sip.AdornedRule) *Template {
	order := r.SIP.Ordering()
	t := &Template{
		Rule:          r,
		Supplementary: make([]*SupplementaryRelation, len(order)+1),
	}

	head := r.Rule.Head[0]

	// needed[i] holds the variables used by the head or by literals at
	// position i and later.
	needed := make([]ast.VarSet, len(order)+1)
	needed[len(order)] = ast.NewVarSet(head.Vars()...)
	for i := len(order) - 1; i >= 0; i-- {
		needed[i] = needed[i+1].Copy()
		needed[i].Update(ast.NewVarSet(order[i].Vars()...))
	}

	bound := ast.VarSet{}
	for _, i := range r.Head.Adornment.BoundIndices() {
		ast.WalkVars(head.Args()[i], bound.Add)
	}

	for i := 0; i <= len(order); i++ {
		if i > 0 {
			bound.Update(ast.NewVarSet(order[i-1].Vars()...))
		}
		vars := bound.Intersect(needed[i]).Sorted()
		t.Supplementary[i] = &SupplementaryRelation{
			Rule:     r,
			Position: i,
			Vars:     vars,
			Relation: storage.NewRelation(len(vars)),
		}
	}

	return t
}

func (t *Template) String() string {
	buf := make([]string, 0, len(t.Supplementary)+1)
	buf = append(buf, t.Rule.String())
	for _, s := range t.Supplementary {
		buf = append(buf, "  "+s.String())
	}
	return strings.Join(buf, "\n")
}

// QSQ answers queries with the Query-Sub-Query method. Each adorned
// predicate has an input relation holding the bound arguments it has been
// called with and an output relation holding the answers derived so far.
// Rule bodies are evaluated left to right through supplementary relations.
// Evaluation repeats from the query until a pass adds nothing to any input
// or output relation.
//
// Negative literals over intensional predicates are tested against
// relations materialized by the naive evaluator before QSQ starts.
type QSQ struct {
	db            *storage.Database
	rules         []*ast.Rule
	reg           *ast.Registry
	maxIterations int
	metrics       metrics.Metrics
	logger        logging.Logger
	tracer        Tracer
}

// NewQSQ returns a QSQ evaluator for the rules over the facts in db. The
// database is not modified.
func NewQSQ(db *storage.Database, rules []*ast.Rule) *QSQ {
	return &QSQ{
		db:            db,
		rules:         rules,
		reg:           ast.DefaultRegistry(),
		maxIterations: DefaultMaxIterations,
		metrics:       metrics.NoOp(),
		logger:        logging.NewNoOpLogger(),
	}
}

// WithRegistry sets the builtin registry.
func (q *QSQ) WithRegistry(reg *ast.Registry) *QSQ {
	q.reg = reg
	return q
}

// WithMaxIterations sets the maximum number of passes. Zero or negative
// values disable the limit.
func (q *QSQ) WithMaxIterations(max int) *QSQ {
	q.maxIterations = max
	return q
}

// WithMetrics sets the metrics provider.
func (q *QSQ) WithMetrics(m metrics.Metrics) *QSQ {
	q.metrics = m
	return q
}

// WithLogger sets the logger.
func (q *QSQ) WithLogger(l logging.Logger) *QSQ {
	q.logger = l
	return q
}

// WithTracer sets the tracer receiving predicate calls and passes.
func (q *QSQ) WithTracer(t Tracer) *QSQ {
	q.tracer = t
	return q
}

// Evaluate returns the answer to query. The answer binds the query's
// variables in order of first appearance.
func (q *QSQ) Evaluate(ctx context.Context, query *ast.Query) (*Answer, error) {

	q.metrics.Timer(metrics.EvalQSQ).Start()
	defer q.metrics.Timer(metrics.EvalQSQ).Stop()

	prog, err := sip.BuildAdornedProgramWithRegistry(q.rules, query, nil, q.reg)
	if err != nil {
		return nil, err
	}

	db, err := q.materializeNegated(ctx, prog)
	if err != nil {
		return nil, err
	}

	s := newQSQState(q, prog, db)

	var answer *table

	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q.maxIterations > 0 && pass > q.maxIterations {
			return nil, ast.NewError(ast.EvalErr, nil, "query %v: exceeded %d iterations", query, q.maxIterations)
		}

		q.metrics.Counter(metrics.QSQPasses).Incr()
		s.beginPass()
		s.trace("Pass %d", pass)

		answer, err = s.body(prog.Query.SIP.Ordering(), unitTable(), prog.Query.Body, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "query %v", query)
		}

		q.logger.Debug("QSQ pass %d derived %d tuples.", pass, s.derived)
		if !s.changed {
			break
		}
	}

	q.metrics.Counter(metrics.TuplesDerived).Add(uint64(s.total))

	vars := query.Vars()
	if vars == nil {
		vars = []ast.Var{}
	}

	result := &Answer{Query: query, Vars: vars, Relation: storage.NewRelation(len(vars))}
	if answer != nil {
		if _, err := answer.instantiate(varTuple(vars), result.Relation); err != nil {
			return nil, err
		}
	}

	q.metrics.Histogram(metrics.QueryAnswerSizes).Update(int64(result.Size()))

	return result, nil
}

// materializeNegated returns a database extended with the relations of the
// intensional predicates occurring in negative literals, together with the
// predicates they depend on.
func (q *QSQ) materializeNegated(ctx context.Context, prog *sip.AdornedProgram) (*storage.Database, error) {

	var roots []ast.Predicate
	check := func(body []*ast.Literal) {
		for _, lit := range body {
			if !lit.Positive && !lit.IsBuiltin() && prog.IsIntensional(lit.Predicate()) {
				roots = append(roots, lit.Predicate())
			}
		}
	}

	check(prog.Query.Query.Body)
	for _, r := range prog.Rules {
		check(r.Rule.Body)
	}

	if len(roots) == 0 {
		return q.db, nil
	}

	keep := map[ast.Predicate]struct{}{}
	for _, p := range analysis.NewDependencyGraph(q.rules).Reachable(roots...) {
		keep[p] = struct{}{}
	}

	var rules []*ast.Rule
	for _, r := range q.rules {
		if _, ok := keep[r.Head[0].Predicate()]; ok {
			rules = append(rules, r)
		}
	}

	q.logger.Debug("Materializing %d rules for negated predicates %v.", len(rules), roots)

	return NewNaive().
		WithRegistry(q.reg).
		WithMaxIterations(q.maxIterations).
		WithMetrics(q.metrics).
		WithLogger(q.logger).
		Evaluate(ctx, q.db, rules)
}

type qsqState struct {
	q    *QSQ
	prog *sip.AdornedProgram
	db   *storage.Database

	templates map[*sip.AdornedRule]*Template
	input     map[string]*storage.Relation
	output    map[string]*storage.Relation
	pass      map[string]*storage.Relation

	changed bool
	derived int
	total   int
	depth   int
}

func newQSQState(q *QSQ, prog *sip.AdornedProgram, db *storage.Database) *qsqState {
	s := &qsqState{
		q:         q,
		prog:      prog,
		db:        db,
		templates: map[*sip.AdornedRule]*Template{},
		input:     map[string]*storage.Relation{},
		output:    map[string]*storage.Relation{},
	}
	for _, ap := range prog.Predicates {
		s.input[ap.Key()] = storage.NewRelation(ap.Adornment.BoundCount())
		s.output[ap.Key()] = storage.NewRelation(ap.Predicate.Arity)
	}
	for _, r := range prog.Rules {
		s.templates[r] = NewTemplate(r)
	}
	return s
}

func (s *qsqState) trace(f string, a ...any) {
	if s.q.tracer != nil && s.q.tracer.Enabled() {
		s.q.tracer.Trace(s.depth, f, a...)
	}
}

func (s *qsqState) beginPass() {
	s.changed = false
	s.derived = 0
	s.pass = make(map[string]*storage.Relation, len(s.input))
	for _, ap := range s.prog.Predicates {
		s.pass[ap.Key()] = storage.NewRelation(ap.Adornment.BoundCount())
	}
}

// call evaluates the rules of ap for the input tuples not yet processed in
// the current pass.
func (s *qsqState) call(ap sip.AdornedPredicate, tuples *storage.Relation) error {

	key := ap.Key()
	fresh := storage.Difference(tuples, s.pass[key])
	if fresh.IsEmpty() {
		return nil
	}

	s.pass[key].AddAll(fresh)
	if s.input[key].AddAll(fresh) {
		s.changed = true
	}

	output := s.output[key]

	s.depth++
	s.trace("Call %v %v", ap, fresh)
	defer func() {
		s.trace("Exit %v %d answers", ap, output.Size())
		s.depth--
	}()

	// Facts stored for an intensional predicate are answers too.
	if facts, ok := s.db.Get(ap.Predicate); ok && !facts.IsEmpty() {
		s.grew(callFacts(ap, fresh, facts, output))
	}

	for _, r := range s.prog.RulesFor(ap) {
		t := s.templates[r]
		sup0, err := s.headTable(r, fresh)
		if err != nil {
			return err
		}
		t.Supplementary[0].Relation = sup0.rel

		result, err := s.body(r.SIP.Ordering(), sup0, r.Body, t)
		if err != nil {
			return errors.Wrapf(err, "rule %v", r.Rule)
		}
		if result == nil {
			continue
		}

		k, err := result.instantiate(r.Rule.Head[0].Args(), output)
		if err != nil {
			return errors.Wrapf(err, "rule %v", r.Rule)
		}
		s.grew(k)
	}

	return nil
}

func (s *qsqState) grew(k int) {
	if k > 0 {
		s.changed = true
		s.derived += k
		s.total += k
	}
}

// callFacts adds the facts matching the input tuples to output.
func callFacts(ap sip.AdornedPredicate, inputs, facts, output *storage.Relation) int {
	bound := ap.Adornment.BoundIndices()
	var k int
	facts.Iter(func(t ast.Tuple) bool {
		key := make(ast.Tuple, len(bound))
		for i, j := range bound {
			key[i] = t[j]
		}
		if inputs.Contains(key) && output.Add(t) {
			k++
		}
		return false
	})
	return k
}

// headTable returns the substitutions for the bound head variables of r
// obtained by matching the bound head arguments against the input tuples.
func (s *qsqState) headTable(r *sip.AdornedRule, inputs *storage.Relation) (*table, error) {

	pattern := r.Head.Adornment.Select(r.Rule.Head[0].Args())
	vars := distinctVars(pattern)
	out := storage.NewRelation(len(vars))
	useUnify := hasConstruct(pattern)

	inputs.Iter(func(t ast.Tuple) bool {
		var bindings map[ast.Var]ast.Term
		if useUnify {
			res, err := unify.UnifyTuples(pattern, t)
			if err != nil {
				return false
			}
			bindings = res.Substitution()
		} else {
			var ok bool
			if bindings, ok = storage.Match(t, pattern); !ok {
				return false
			}
		}
		out.Add(varTuple(vars).Substitute(bindings))
		return false
	})

	return &table{vars: vars, rel: out}, nil
}

// body evaluates the literals in order starting from sup. Adorned literals
// call their predicates with the bindings computed so far. When t is not
// nil the supplementary relations of the template are updated. body returns
// nil if an intermediate supplementary relation is empty.
func (s *qsqState) body(order []*ast.Literal, sup *table, adorned map[*ast.Literal]sip.AdornedPredicate, t *Template) (*table, error) {

	e := &bodyEvaluator{
		reg: s.q.reg,
		positive: func(lit *ast.Literal, sup *table) (*table, error) {
			if ap, ok := adorned[lit]; ok {
				return s.adornedLiteral(ap, lit, sup)
			}
			return matchTable(lit.Args(), lookup(s.db, lit.Predicate()))
		},
		relation: func(p ast.Predicate) *storage.Relation {
			return lookup(s.db, p)
		},
	}

	if sup.isEmpty() {
		return nil, nil
	}

	for i, lit := range order {
		next, err := e.literal(lit, sup)
		if err != nil {
			return nil, err
		}
		if t != nil {
			sr := t.Supplementary[i+1]
			next = next.project(sr.Vars)
			sr.Relation = next.rel
		}
		if next.isEmpty() {
			return nil, nil
		}
		sup = next
	}

	return sup, nil
}

// adornedLiteral passes the bound arguments of lit to ap and returns the
// matching answers of ap.
func (s *qsqState) adornedLiteral(ap sip.AdornedPredicate, lit *ast.Literal, sup *table) (*table, error) {

	bound := ap.Adornment.Select(lit.Args())
	inputs := storage.NewRelation(len(bound))

	var err error
	sup.rel.Iter(func(x ast.Tuple) bool {
		in := bound.Substitute(sup.bindings(x))
		if !in.IsGround() {
			err = ast.NewError(ast.EvalErr, nil, "%v: bound arguments %v are not ground", lit, in)
			return true
		}
		inputs.Add(in)
		return false
	})
	if err != nil {
		return nil, err
	}

	if err := s.call(ap, inputs); err != nil {
		return nil, err
	}

	return matchTable(lit.Args(), s.output[ap.Key()])
}
