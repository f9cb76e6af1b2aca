// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package metrics records timers, counters and histograms for the loader,
// the compiler and the evaluation engine.
package metrics

import (
	"encoding/json"
	"sync"
)

// Metric names recorded by the engine.
const (
	LoadFiles        = "load_files"
	ParseModule      = "parse_module"
	CompileSafety    = "compile_safety"
	CompileStratify  = "compile_stratify"
	MagicRewrite     = "magic_rewrite"
	MagicRewrites    = "magic_rewrites"
	MagicCacheHit    = "magic_cache_hit"
	EvalQSQ          = "eval_qsq"
	EvalNaive        = "eval_naive"
	QSQPasses        = "qsq_passes"
	NaiveIterations  = "naive_iterations"
	TuplesDerived    = "tuples_derived"
	QueryAnswerSizes = "query_answer_sizes"
)

// Info describes a metrics provider.
type Info struct {
	Name string `json:"name"`
}

// Metrics is a named collection of instruments. Asking for an instrument that
// does not exist yet creates it.
type Metrics interface {
	Info() Info
	Timer(name string) Timer
	Histogram(name string) Histogram
	Counter(name string) Counter
	// All returns the current value of every instrument keyed by
	// counter_<name>, timer_<name>_ns or histogram_<name>.
	All() map[string]any
	Clear()
	json.Marshaler
}

// TimerMetrics is implemented by providers that can list their timers in
// nanoseconds by unformatted name.
type TimerMetrics interface {
	Timers() map[string]any
}

// CounterMetrics is implemented by providers that can list their counters by
// unformatted name.
type CounterMetrics interface {
	Counters() map[string]uint64
}

type kind int

const (
	timerKind kind = iota
	histogramKind
	counterKind
)

func (k kind) key(name string) string {
	switch k {
	case timerKind:
		return "timer_" + name + "_ns"
	case histogramKind:
		return "histogram_" + name
	default:
		return "counter_" + name
	}
}

type instrument interface {
	Value() any
}

type entry struct {
	name string
	kind kind
	inst instrument
}

// registry is the in-memory provider returned by New. Entries are keyed by
// their formatted name so a timer and a counter may share a name.
type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty in-memory Metrics provider.
func New() Metrics {
	return &registry{entries: map[string]*entry{}}
}

func (*registry) Info() Info {
	return Info{Name: "<built-in>"}
}

func (r *registry) lookup(k kind, name string, create func() instrument) instrument {
	key := k.key(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.inst
	}
	inst := create()
	r.entries[key] = &entry{name: name, kind: k, inst: inst}
	return inst
}

func (r *registry) Timer(name string) Timer {
	return r.lookup(timerKind, name, func() instrument { return &timer{} }).(Timer)
}

func (r *registry) Histogram(name string) Histogram {
	return r.lookup(histogramKind, name, func() instrument { return newHistogram() }).(Histogram)
}

func (r *registry) Counter(name string) Counter {
	return r.lookup(counterKind, name, func() instrument { return newCounter() }).(Counter)
}

func (r *registry) All() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[string]any, len(r.entries))
	for key, e := range r.entries {
		result[key] = e.inst.Value()
	}
	return result
}

func (r *registry) Timers() map[string]any {
	result := map[string]any{}
	r.each(timerKind, func(e *entry) {
		result[e.name] = e.inst.(Timer).Int64()
	})
	return result
}

func (r *registry) Counters() map[string]uint64 {
	result := map[string]uint64{}
	r.each(counterKind, func(e *entry) {
		result[e.name] = e.inst.(*counter).Uint64()
	})
	return result
}

func (r *registry) each(k kind, f func(*entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.kind == k {
			f(e)
		}
	}
}

func (r *registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
}

func (r *registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.All())
}

// NoOp returns a provider whose instruments discard everything.
func NoOp() Metrics {
	return discard{}
}

type discard struct{}

func (discard) Info() Info                   { return Info{Name: "<built-in no-op>"} }
func (discard) Timer(string) Timer           { return discardTimer{} }
func (discard) Histogram(string) Histogram   { return discardHistogram{} }
func (discard) Counter(string) Counter       { return discardCounter{} }
func (discard) All() map[string]any          { return nil }
func (discard) Clear()                       {}
func (discard) MarshalJSON() ([]byte, error) { return []byte(`{}`), nil }
