// Copyright 2019 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the counters and timers of a Metrics provider to a
// Prometheus registry. Counters are reported as counters and timers as
// gauges in seconds. Histograms are not exported.
type Collector struct {
	inner     Metrics
	namespace string
}

// NewPrometheusCollector returns a collector reading from m. Metric names are
// prefixed with namespace.
func NewPrometheusCollector(m Metrics, namespace string) *Collector {
	return &Collector{inner: m, namespace: namespace}
}

// Describe implements prometheus.Collector. The set of metrics grows while
// the engine runs so the collector is unchecked and describes nothing.
func (*Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if cm, ok := c.inner.(CounterMetrics); ok {
		counters := cm.Counters()
		for _, name := range sortedKeys(counters) {
			desc := prometheus.NewDesc(
				prometheus.BuildFQName(c.namespace, "", name),
				"Engine counter "+name+".",
				nil, nil,
			)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(counters[name]))
		}
	}

	if tm, ok := c.inner.(TimerMetrics); ok {
		timers := tm.Timers()
		for _, name := range sortedKeys(timers) {
			ns, ok := timers[name].(int64)
			if !ok {
				continue
			}
			desc := prometheus.NewDesc(
				prometheus.BuildFQName(c.namespace, "", name+"_seconds"),
				"Engine timer "+name+".",
				nil, nil,
			)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(ns)/1e9)
		}
	}
}

// Register creates a registry containing the collector for m.
func Register(m Metrics, namespace string) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewPrometheusCollector(m, namespace)); err != nil {
		return nil, err
	}
	return registry, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
