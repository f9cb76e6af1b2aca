// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package metrics

import (
	"sync"
	"time"

	go_metrics "github.com/rcrowley/go-metrics"
)

// Timer accumulates the time spent between matching Start and Stop calls.
type Timer interface {
	Value() any
	Int64() int64
	Start()
	// Stop adds the time since the last Start to the total and returns it.
	// Stopping a timer that is not running returns zero.
	Stop() int64
}

type timer struct {
	mu      sync.Mutex
	running bool
	since   time.Time
	total   time.Duration
}

func (t *timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.since = time.Now()
}

func (t *timer) Stop() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	t.running = false
	d := time.Since(t.since)
	t.total += d
	return d.Nanoseconds()
}

func (t *timer) Int64() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total.Nanoseconds()
}

func (t *timer) Value() any {
	return t.Int64()
}

// Histogram summarises a stream of observations.
type Histogram interface {
	Value() any
	Update(int64)
}

// Reservoir parameters recommended by go-metrics for exponentially decaying
// samples.
const (
	reservoirSize  = 1028
	reservoirAlpha = 0.015
)

var quantiles = []struct {
	key string
	q   float64
}{
	{"median", 0.5},
	{"90%", 0.9},
	{"99%", 0.99},
}

type histogram struct {
	h go_metrics.Histogram
}

func newHistogram() *histogram {
	return &histogram{h: go_metrics.NewHistogram(go_metrics.NewExpDecaySample(reservoirSize, reservoirAlpha))}
}

func (h *histogram) Update(v int64) {
	h.h.Update(v)
}

// Value returns the count, min, max, mean, stddev and quantiles of the
// sample.
func (h *histogram) Value() any {
	snap := h.h.Snapshot()
	qs := make([]float64, len(quantiles))
	for i := range quantiles {
		qs[i] = quantiles[i].q
	}
	summary := map[string]any{
		"count":  snap.Count(),
		"min":    snap.Min(),
		"max":    snap.Max(),
		"mean":   snap.Mean(),
		"stddev": snap.StdDev(),
	}
	for i, v := range snap.Percentiles(qs) {
		summary[quantiles[i].key] = v
	}
	return summary
}

// Counter is a monotonically increasing count.
type Counter interface {
	Value() any
	Incr()
	Add(n uint64)
}

type counter struct {
	c go_metrics.Counter
}

func newCounter() *counter {
	return &counter{c: go_metrics.NewCounter()}
}

func (c *counter) Incr()        { c.c.Inc(1) }
func (c *counter) Add(n uint64) { c.c.Inc(int64(n)) }
func (c *counter) Uint64() uint64 {
	return uint64(c.c.Count())
}

func (c *counter) Value() any {
	return c.Uint64()
}

type discardTimer struct{}

func (discardTimer) Start()       {}
func (discardTimer) Stop() int64  { return 0 }
func (discardTimer) Int64() int64 { return 0 }
func (discardTimer) Value() any   { return int64(0) }

type discardHistogram struct{}

func (discardHistogram) Update(int64) {}
func (discardHistogram) Value() any   { return nil }

type discardCounter struct{}

func (discardCounter) Incr()      {}
func (discardCounter) Add(uint64) {}
func (discardCounter) Value() any { return uint64(0) }
