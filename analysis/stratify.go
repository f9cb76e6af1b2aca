// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package analysis

import (
	"sort"
	"strings"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/util"
)

// DependencyGraph represents the dependencies between predicates of a rule
// base. There is an edge from p to q if a rule with head p has a body literal
// with predicate q. An edge is negative if at least one such literal is
// negative. Builtin predicates are not part of the graph.
type DependencyGraph struct {
	nodes []ast.Predicate
	edges map[ast.Predicate]map[ast.Predicate]bool
}

// NewDependencyGraph returns the dependency graph of rules.
func NewDependencyGraph(rules []*ast.Rule) *DependencyGraph {
	g := &DependencyGraph{
		edges: map[ast.Predicate]map[ast.Predicate]bool{},
	}
	for _, rule := range rules {
		for _, h := range rule.Head {
			from := h.Predicate()
			g.addNode(from)
			for _, lit := range rule.Body {
				if lit.IsBuiltin() {
					continue
				}
				to := lit.Predicate()
				g.addNode(to)
				g.edges[from][to] = g.edges[from][to] || !lit.Positive
			}
		}
	}
	sort.Slice(g.nodes, func(i, j int) bool {
		return predicateLess(g.nodes[i], g.nodes[j])
	})
	return g
}

func (g *DependencyGraph) addNode(p ast.Predicate) {
	if _, ok := g.edges[p]; ok {
		return
	}
	g.edges[p] = map[ast.Predicate]bool{}
	g.nodes = append(g.nodes, p)
}

// Predicates returns the nodes of the graph in sorted order.
func (g *DependencyGraph) Predicates() []ast.Predicate {
	return g.nodes
}

// Dependencies returns the predicates p directly depends on in sorted order.
func (g *DependencyGraph) Dependencies(p ast.Predicate) []ast.Predicate {
	result := make([]ast.Predicate, 0, len(g.edges[p]))
	for q := range g.edges[p] {
		result = append(result, q)
	}
	sort.Slice(result, func(i, j int) bool {
		return predicateLess(result[i], result[j])
	})
	return result
}

// Negative returns true if there is a negative edge from p to q.
func (g *DependencyGraph) Negative(p, q ast.Predicate) bool {
	return g.edges[p][q]
}

// Reachable returns the predicates reachable from roots, roots included.
func (g *DependencyGraph) Reachable(roots ...ast.Predicate) []ast.Predicate {
	t := newGraphTraversal(g)
	var result []ast.Predicate
	for _, r := range roots {
		util.DFS[ast.Predicate](t, func(p ast.Predicate) bool {
			result = append(result, p)
			return false
		}, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return predicateLess(result[i], result[j])
	})
	return result
}

// IsStratified returns true if no cycle of the graph contains a negative
// edge.
func (g *DependencyGraph) IsStratified() bool {
	_, err := g.Stratify()
	return err == nil
}

// Strata maps predicates to their stratum. Predicates in stratum i only
// depend negatively on predicates in strata lower than i.
type Strata map[ast.Predicate]int

// Of returns the stratum of p. Predicates without rules are in stratum 0.
func (s Strata) Of(p ast.Predicate) int {
	return s[p]
}

// Max returns the highest stratum.
func (s Strata) Max() int {
	result := 0
	for _, i := range s {
		result = max(result, i)
	}
	return result
}

// Layers returns the predicates grouped by stratum, lowest first.
func (s Strata) Layers() [][]ast.Predicate {
	if len(s) == 0 {
		return nil
	}
	result := make([][]ast.Predicate, s.Max()+1)
	for p, i := range s {
		result[i] = append(result[i], p)
	}
	for _, layer := range result {
		sort.Slice(layer, func(i, j int) bool {
			return predicateLess(layer[i], layer[j])
		})
	}
	return result
}

// Stratify assigns a stratum to every predicate of the graph. The stratum of
// a predicate is the maximum over its positive dependencies' strata and its
// negative dependencies' strata plus one. Stratify returns a
// StratificationErr if a negative edge lies on a cycle.
func (g *DependencyGraph) Stratify() (Strata, error) {
	components := util.SCC(g.nodes, g.Dependencies)
	strata := make(Strata, len(g.nodes))

	for _, component := range components {
		members := make(map[ast.Predicate]struct{}, len(component))
		for _, p := range component {
			members[p] = struct{}{}
		}

		stratum := 0
		for _, p := range component {
			for q, negative := range g.edges[p] {
				if _, ok := members[q]; ok {
					if negative {
						return nil, g.cycleError(p, q)
					}
					continue
				}
				if negative {
					stratum = max(stratum, strata[q]+1)
				} else {
					stratum = max(stratum, strata[q])
				}
			}
		}

		for _, p := range component {
			strata[p] = stratum
		}
	}

	return strata, nil
}

// cycleError reports the negative edge p -> q and the path leading from q
// back to p.
func (g *DependencyGraph) cycleError(p, q ast.Predicate) error {
	path := []ast.Predicate{p, q}
	if p != q {
		back := util.DFSPath[ast.Predicate](newGraphTraversal(g), func(a, b ast.Predicate) bool {
			return a == b
		}, q, p)
		if len(back) > 1 {
			path = append(path, back[1:]...)
		}
	} else {
		path = []ast.Predicate{p, p}
	}

	names := make([]string, len(path))
	for i := range path {
		names[i] = path[i].String()
		if i > 0 && g.edges[path[i-1]][path[i]] {
			names[i] = "!" + names[i]
		}
	}

	return ast.NewError(ast.StratificationErr, nil, "program is not stratified: negation in cycle %v", strings.Join(names, " -> "))
}

type graphTraversal struct {
	graph   *DependencyGraph
	visited map[ast.Predicate]struct{}
}

func newGraphTraversal(graph *DependencyGraph) *graphTraversal {
	return &graphTraversal{
		graph:   graph,
		visited: map[ast.Predicate]struct{}{},
	}
}

func (g *graphTraversal) Edges(x ast.Predicate) []ast.Predicate {
	return g.graph.Dependencies(x)
}

func (g *graphTraversal) Visited(u ast.Predicate) bool {
	_, ok := g.visited[u]
	g.visited[u] = struct{}{}
	return ok
}

// StratifyRules returns the strata of the predicates defined or referenced
// by rules.
func StratifyRules(rules []*ast.Rule) (Strata, error) {
	return NewDependencyGraph(rules).Stratify()
}

func predicateLess(a, b ast.Predicate) bool {
	if a.Symbol != b.Symbol {
		return a.Symbol < b.Symbol
	}
	if a.Arity != b.Arity {
		return a.Arity < b.Arity
	}
	return !a.Builtin && b.Builtin
}
