// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package util

// Traversal defines a basic interface to perform traversals over graphs whose
// nodes are of type N.
type Traversal[N any] interface {

	// Edges should return the neighbours of node "u".
	Edges(u N) []N

	// Visited should return true if node "u" has already been visited in this
	// traversal. If the same traversal is used multiple times, the state that
	// tracks visited nodes should be reset.
	Visited(u N) bool
}

// Equals should return true if node "u" equals node "v".
type Equals[N any] func(u N, v N) bool

// Iter should return true to indicate stop.
type Iter[N any] func(u N) bool

// DFS performs a depth first traversal calling f for each node starting from u.
// If f returns true, traversal stops and DFS returns true.
func DFS[N any](t Traversal[N], f Iter[N], u N) bool {
	lifo := NewLIFO(u)
	for lifo.Size() > 0 {
		next, _ := lifo.Pop()
		if t.Visited(next) {
			continue
		}
		if f(next) {
			return true
		}
		lifo.Push(t.Edges(next)...)
	}
	return false
}

// BFS performs a breadth first traversal calling f for each node starting from
// u. If f returns true, traversal stops and BFS returns true.
func BFS[N any](t Traversal[N], f Iter[N], u N) bool {
	fifo := NewFIFO(u)
	for fifo.Size() > 0 {
		next, _ := fifo.Pop()
		if t.Visited(next) {
			continue
		}
		if f(next) {
			return true
		}
		fifo.Push(t.Edges(next)...)
	}
	return false
}

// DFSPath returns a path from node a to node z found by performing
// a depth first traversal. If no path is found, an empty slice is returned.
func DFSPath[N any](t Traversal[N], eq Equals[N], a, z N) []N {
	p := dfsRecursive(t, eq, a, z, []N{})
	for i := len(p)/2 - 1; i >= 0; i-- {
		o := len(p) - i - 1
		p[i], p[o] = p[o], p[i]
	}
	return p
}

func dfsRecursive[N any](t Traversal[N], eq Equals[N], u, z N, path []N) []N {
	if t.Visited(u) {
		return path
	}
	for _, v := range t.Edges(u) {
		if eq(v, z) {
			path = append(path, z)
			path = append(path, u)
			return path
		}
		if p := dfsRecursive(t, eq, v, z, path); len(p) > 0 {
			path = append(p, u)
			return path
		}
	}
	return path
}

// SCC returns the strongly connected components of the graph spanned by
// nodes. Components are returned in reverse topological order: a component
// appears before every component that has an edge into it.
func SCC[N comparable](nodes []N, edges func(N) []N) [][]N {
	s := &sccState[N]{
		edges:   edges,
		index:   map[N]int{},
		lowlink: map[N]int{},
		onStack: map[N]bool{},
	}
	for _, n := range nodes {
		if _, ok := s.index[n]; !ok {
			s.connect(n)
		}
	}
	return s.result
}

type sccState[N comparable] struct {
	edges   func(N) []N
	next    int
	index   map[N]int
	lowlink map[N]int
	onStack map[N]bool
	stack   []N
	result  [][]N
}

func (s *sccState[N]) connect(v N) {
	s.index[v] = s.next
	s.lowlink[v] = s.next
	s.next++
	s.stack = append(s.stack, v)
	s.onStack[v] = true

	for _, w := range s.edges(v) {
		if _, ok := s.index[w]; !ok {
			s.connect(w)
			s.lowlink[v] = min(s.lowlink[v], s.lowlink[w])
		} else if s.onStack[w] {
			s.lowlink[v] = min(s.lowlink[v], s.index[w])
		}
	}

	if s.lowlink[v] != s.index[v] {
		return
	}

	var component []N
	for {
		w := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		s.onStack[w] = false
		component = append(component, w)
		if w == v {
			break
		}
	}
	s.result = append(s.result, component)
}
