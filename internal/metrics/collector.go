// Package metrics provides a small Prometheus-backed operation counter,
// trimmed from the teacher's internal/metrics.Collector down to the
// counters MarFS's own callers actually drive: a resourcelog completion
// entry (internal/resourcemgr.MetricsRecorder) or a verifyconf backend
// probe. The teacher's cache-hit/connection-gauge surface and debug HTTP
// endpoints are dropped outright — nothing in this repo has a cache or a
// connection pool to report on, and verifyconf is a one-shot CLI with no
// server lifetime to stand a /metrics endpoint up for.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records operation counts, durations, and errors against a
// Prometheus registry. The zero value is not usable; construct one with
// NewCollector.
type Collector struct {
	namespace  string
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	errors     *prometheus.CounterVec
}

// NewCollector builds a Collector with its own private registry, labeled
// under namespace (e.g. "marfs"). Each Collector owns an independent
// registry so tests can construct one per case without colliding on
// prometheus's global default registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		namespace: namespace,
		registry:  registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of operations processed, by operation and outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms .. ~32s
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of operation errors, by operation.",
		}, []string{"operation"}),
	}
	registry.MustRegister(c.operations, c.durations, c.errors)
	return c
}

// RecordOperation implements resourcemgr.MetricsRecorder: it tallies one
// completed operation's outcome and, when duration is non-zero, its
// latency.
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.operations.WithLabelValues(operation, status).Inc()
	if duration > 0 {
		c.durations.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// RecordError implements resourcemgr.MetricsRecorder: it tallies one
// operation error independent of the accompanying RecordOperation call.
func (c *Collector) RecordError(operation string, err error) {
	c.errors.WithLabelValues(operation).Inc()
}

// Snapshot reports every metric gathered so far, keyed by the metric name
// without the Collector's namespace prefix followed by its label values
// ("operations_total/<operation>/<status>", "errors_total/<operation>",
// "operation_duration_seconds/<operation>"). Counters report their value,
// the duration histogram its sample count. Intended for a CLI's end-of-run summary
// line (cmd/verifyconf) or for tests asserting a Collector actually
// observed the calls it was wired to receive, since a raw
// *prometheus.Registry has no convenient comparison form of its own.
func (c *Collector) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	mfs, err := c.registry.Gather()
	if err != nil {
		return out
	}
	for _, mf := range mfs {
		if mf.GetName() == "" {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := strings.TrimPrefix(mf.GetName(), c.namespace+"_")
			labels := m.GetLabel()
			if len(labels) > 0 {
				for _, l := range labels {
					key += "/" + l.GetValue()
				}
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}
