// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package magic implements the magic-set rewriting of a program for a query.
//
// The rewritten program computes the same answers for the query as the
// original program but only derives facts relevant to the bindings passed
// down from the query. Each intensional predicate called with adornment a is
// renamed to p^a and guarded by a magic predicate magic_p^a holding the
// bound arguments p^a is called with.
package magic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/open-policy-agent/opalog/analysis"
	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/logging"
	"github.com/open-policy-agent/opalog/metrics"
	"github.com/open-policy-agent/opalog/sip"
)

const (
	magicPrefix = "magic_"
	labelPrefix = "label_"

	// placeholderPrefix names the variables standing in for query constants
	// in cached rewrites. The reader never produces variables with this
	// prefix.
	placeholderPrefix = "$c"
)

// DefaultCacheSize is the number of rewrites kept by an Optimiser unless
// configured otherwise.
const DefaultCacheSize = 128

// Result is the output of the rewrite.
type Result struct {
	// Rules holds the rewritten rules followed by the original rules still
	// referenced by the rewritten program (e.g., through negation).
	Rules []*ast.Rule

	// Query is the rewritten query. The query has the same variables as the
	// original query in the same order of first appearance.
	Query *ast.Query
}

func (r *Result) String() string {
	buf := make([]string, 0, len(r.Rules)+1)
	for _, rule := range r.Rules {
		buf = append(buf, rule.String())
	}
	buf = append(buf, r.Query.String())
	return strings.Join(buf, "\n")
}

// MagicPredicate returns the magic predicate for ap.
func MagicPredicate(ap sip.AdornedPredicate) ast.Predicate {
	return ast.NewPredicate(magicPrefix+ap.Symbol(), ap.Adornment.BoundCount())
}

// IsMagicPredicate returns true if p is a magic or label predicate
// introduced by the rewrite.
func IsMagicPredicate(p ast.Predicate) bool {
	return strings.HasPrefix(p.Symbol, magicPrefix) || strings.HasPrefix(p.Symbol, labelPrefix)
}

// Optimiser rewrites programs for queries and caches the rewrites by
// program and query pattern. Queries that only differ in the constants
// passed to intensional predicates share a cache entry.
type Optimiser struct {
	reg     *ast.Registry
	cache   *lru.Cache[string, *template]
	metrics metrics.Metrics
	logger  logging.Logger
}

// NewOptimiser returns an Optimiser caching up to size rewrites. A size of
// zero disables the cache and a negative size is an error.
func NewOptimiser(size int) (*Optimiser, error) {
	if size < 0 {
		return nil, errors.Errorf("rewrite cache size must not be negative: %d", size)
	}
	o := &Optimiser{
		reg:     ast.DefaultRegistry(),
		metrics: metrics.NoOp(),
		logger:  logging.NewNoOpLogger(),
	}
	if size > 0 {
		cache, err := lru.New[string, *template](size)
		if err != nil {
			return nil, errors.Wrap(err, "rewrite cache")
		}
		o.cache = cache
	}
	return o, nil
}

// WithRegistry sets the builtin registry used to classify body literals.
func (o *Optimiser) WithRegistry(reg *ast.Registry) *Optimiser {
	o.reg = reg
	return o
}

// WithMetrics sets the metrics provider.
func (o *Optimiser) WithMetrics(m metrics.Metrics) *Optimiser {
	o.metrics = m
	return o
}

// WithLogger sets the logger.
func (o *Optimiser) WithLogger(l logging.Logger) *Optimiser {
	o.logger = l
	return o
}

// Len returns the number of cached rewrites.
func (o *Optimiser) Len() int {
	if o.cache == nil {
		return 0
	}
	return o.cache.Len()
}

// Optimise rewrites rules for query. Every rule must have exactly one head
// literal.
func (o *Optimiser) Optimise(rules []*ast.Rule, query *ast.Query) (*Result, error) {

	for _, r := range rules {
		if _, err := r.HeadLiteral(); err != nil {
			return nil, err
		}
	}

	pattern, constants := generalize(query)

	var key string
	if o.cache != nil {
		key = cacheKey(rules, pattern)
		if t, ok := o.cache.Get(key); ok {
			o.metrics.Counter(metrics.MagicCacheHit).Incr()
			o.logger.Debug("Magic set rewrite cache hit for %v.", query)
			return t.instantiate(constants), nil
		}
	}

	o.metrics.Timer(metrics.MagicRewrite).Start()
	t, err := o.rewrite(rules, pattern, constants)
	o.metrics.Timer(metrics.MagicRewrite).Stop()
	if err != nil {
		return nil, err
	}

	o.metrics.Counter(metrics.MagicRewrites).Incr()
	o.logger.WithFields(map[string]any{
		"rules":        len(t.rules) + len(t.queryRules),
		"placeholders": len(constants),
	}).Debug("Rewrote program for %v.", query)

	if o.cache != nil {
		o.cache.Add(key, t)
	}

	return t.instantiate(constants), nil
}

// Optimise rewrites rules for query without caching.
func Optimise(rules []*ast.Rule, query *ast.Query) (*Result, error) {
	o, err := NewOptimiser(0)
	if err != nil {
		return nil, err
	}
	return o.Optimise(rules, query)
}

// template is a rewrite for a query pattern. Query constants are replaced by
// placeholder variables that only occur in queryRules and query.
type template struct {
	rules      []*ast.Rule
	queryRules []*ast.Rule
	query      *ast.Query
}

func (t *template) instantiate(constants map[ast.Var]ast.Term) *Result {
	result := &Result{
		Rules: make([]*ast.Rule, 0, len(t.rules)+len(t.queryRules)),
		Query: &ast.Query{Body: substituteLiterals(t.query.Body, constants)},
	}
	result.Rules = append(result.Rules, t.rules...)
	for _, r := range t.queryRules {
		result.Rules = append(result.Rules, &ast.Rule{
			Head: substituteLiterals(r.Head, constants),
			Body: substituteLiterals(r.Body, constants),
		})
	}
	return result
}

func substituteLiterals(ls []*ast.Literal, bindings map[ast.Var]ast.Term) []*ast.Literal {
	result := make([]*ast.Literal, len(ls))
	for i := range ls {
		result[i] = ls[i].Substitute(bindings)
	}
	return result
}

// generalize replaces the ground arguments of the query's literals with
// placeholder variables. It returns the generalized query and the constants
// keyed by placeholder.
func generalize(query *ast.Query) (*ast.Query, map[ast.Var]ast.Term) {
	constants := map[ast.Var]ast.Term{}
	body := make([]*ast.Literal, len(query.Body))
	for i, lit := range query.Body {
		args := make(ast.Tuple, len(lit.Args()))
		for j, arg := range lit.Args() {
			if arg.IsGround() {
				v := ast.Var(placeholderPrefix + strconv.Itoa(len(constants)))
				constants[v] = arg
				args[j] = v
			} else {
				args[j] = arg
			}
		}
		body[i] = ast.NewLiteral(lit.Positive, ast.NewAtom(lit.Predicate(), args))
	}
	return ast.NewQuery(body...), constants
}

func cacheKey(rules []*ast.Rule, pattern *ast.Query) string {
	d := xxhash.New()
	for _, r := range rules {
		_, _ = d.WriteString(r.String())
		_, _ = d.WriteString("\n")
	}
	return strconv.FormatUint(d.Sum64(), 16) + ":" + pattern.String()
}

func placeholderSet(constants map[ast.Var]ast.Term) ast.VarSet {
	s := ast.VarSet{}
	for v := range constants {
		s.Add(v)
	}
	return s
}

func (o *Optimiser) rewrite(rules []*ast.Rule, query *ast.Query, constants map[ast.Var]ast.Term) (*template, error) {

	prog, err := sip.BuildAdornedProgramWithRegistry(rules, query, placeholderSet(constants), o.reg)
	if err != nil {
		return nil, errors.Wrap(err, "magic set rewrite")
	}

	rw := &rewriter{seen: map[string]struct{}{}}

	for i, ar := range prog.Rules {
		guard := magicLiteral(ar.Head, ar.Rule.Head[0].Args())
		rw.prefix = fmt.Sprintf("%d", i)
		rw.magicRules(ar.SIP, ar.Body, guard, &rw.rules)

		body := make([]*ast.Literal, 0, len(ar.Rule.Body)+1)
		if guard != nil {
			body = append(body, guard)
		}
		body = append(body, transformLiterals(ar.SIP.Ordering(), ar.Body)...)
		head := ast.NewLiteral(true, ast.NewAtom(ar.Head.AsPredicate(), ar.Rule.Head[0].Args()))
		rw.add(&ast.Rule{Head: []*ast.Literal{head}, Body: body}, &rw.rules)
	}

	rw.prefix = "q"
	rw.magicRules(prog.Query.SIP, prog.Query.Body, nil, &rw.queryRules)

	t := &template{
		rules:      rw.rules,
		queryRules: rw.queryRules,
		query:      ast.NewQuery(transformLiterals(query.Body, prog.Query.Body)...),
	}

	t.rules = append(t.rules, referencedOriginals(rules, prog, t)...)

	return t, nil
}

// referencedOriginals returns the original rules for intensional predicates
// the rewritten program refers to without adornment, and for everything
// those rules depend on.
func referencedOriginals(rules []*ast.Rule, prog *sip.AdornedProgram, t *template) []*ast.Rule {

	var roots []ast.Predicate
	visit := func(rs []*ast.Rule, body []*ast.Literal) {
		check := func(lit *ast.Literal) {
			if !lit.IsBuiltin() && prog.IsIntensional(lit.Predicate()) {
				roots = append(roots, lit.Predicate())
			}
		}
		for _, r := range rs {
			for _, lit := range r.Body {
				check(lit)
			}
		}
		for _, lit := range body {
			check(lit)
		}
	}

	visit(t.rules, t.query.Body)
	visit(t.queryRules, nil)

	if len(roots) == 0 {
		return nil
	}

	keep := map[ast.Predicate]struct{}{}
	for _, p := range analysis.NewDependencyGraph(rules).Reachable(roots...) {
		keep[p] = struct{}{}
	}

	var result []*ast.Rule
	for _, r := range rules {
		if _, ok := keep[r.Head[0].Predicate()]; ok {
			result = append(result, r)
		}
	}
	return result
}

type rewriter struct {
	rules      []*ast.Rule
	queryRules []*ast.Rule
	seen       map[string]struct{}
	prefix     string
}

func (rw *rewriter) add(r *ast.Rule, into *[]*ast.Rule) {
	if len(r.Body) == 1 && r.Body[0].Equal(r.Head[0]) {
		return
	}
	key := r.String()
	if _, ok := rw.seen[key]; ok {
		return
	}
	rw.seen[key] = struct{}{}
	*into = append(*into, r)
}

// magicRules emits the rules deriving the magic predicates of the adorned
// body literals of the SIP's rule. guard replaces the head literal in rule
// bodies; it is nil when the head passes no bindings.
func (rw *rewriter) magicRules(s *sip.SIP, adorned map[*ast.Literal]sip.AdornedPredicate, guard *ast.Literal, into *[]*ast.Rule) {

	for pos, lit := range s.Ordering() {
		ap, ok := adorned[lit]
		if !ok || ap.Adornment.IsFree() {
			continue
		}

		head := magicLiteral(ap, lit.Args())
		edges := s.EdgesEntering(lit)

		if len(edges) <= 1 {
			body := rw.supply(s, s.Depends(lit), adorned, guard)
			rw.add(&ast.Rule{Head: []*ast.Literal{head}, Body: body}, into)
			continue
		}

		// Bindings arrive through several edges. Each edge gets a label
		// predicate over the variables it passes and the magic predicate
		// joins the labels.
		labels := make([]*ast.Literal, 0, len(edges))
		for i, e := range edges {
			vars := e.Vars.Sorted()
			args := make(ast.Tuple, len(vars))
			for j := range vars {
				args[j] = vars[j]
			}
			symbol := fmt.Sprintf("%s%s_%s_%d_%d", labelPrefix, ap.Symbol(), rw.prefix, pos, i)
			label := ast.NewLiteral(true, ast.NewAtom(ast.NewPredicate(symbol, len(args)), args))

			from := append(s.Depends(e.From), e.From)
			body := rw.supply(s, from, adorned, guard)
			rw.add(&ast.Rule{Head: []*ast.Literal{label}, Body: body}, into)
			labels = append(labels, label)
		}

		rw.add(&ast.Rule{Head: []*ast.Literal{head}, Body: labels}, into)
	}
}

// supply returns the body of a rule computing the bindings supplied by
// lits. The head literal is replaced by guard.
func (*rewriter) supply(s *sip.SIP, lits []*ast.Literal, adorned map[*ast.Literal]sip.AdornedPredicate, guard *ast.Literal) []*ast.Literal {
	body := make([]*ast.Literal, 0, len(lits))
	for _, lit := range lits {
		if lit == s.Head() {
			if guard != nil {
				body = append(body, guard)
			}
			continue
		}
		body = append(body, transformLiteral(lit, adorned))
	}
	return body
}

// magicLiteral returns the magic literal for ap called with args or nil if
// ap has no bound positions.
func magicLiteral(ap sip.AdornedPredicate, args ast.Tuple) *ast.Literal {
	if ap.Adornment.IsFree() {
		return nil
	}
	return ast.NewLiteral(true, ast.NewAtom(MagicPredicate(ap), ap.Adornment.Select(args)))
}

func transformLiteral(lit *ast.Literal, adorned map[*ast.Literal]sip.AdornedPredicate) *ast.Literal {
	ap, ok := adorned[lit]
	if !ok {
		return lit
	}
	return ast.NewLiteral(lit.Positive, ast.NewAtom(ap.AsPredicate(), lit.Args()))
}

func transformLiterals(lits []*ast.Literal, adorned map[*ast.Literal]sip.AdornedPredicate) []*ast.Literal {
	result := make([]*ast.Literal, len(lits))
	for i := range lits {
		result[i] = transformLiteral(lits[i], adorned)
	}
	return result
}
