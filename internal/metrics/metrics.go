// Package metrics provides Prometheus-compatible metrics for lyrad.
//
// The registry is deliberately small: atomic counters and gauges plus a
// fixed-bucket histogram, exported in Prometheus text format over an
// optional HTTP endpoint. The poll loop runs every few milliseconds, so
// metric updates must stay lock-free on the hot path.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Uint64
}

// Inc adds one to the counter.
func (c *Counter) Inc() { c.value.Add(1) }

// Add adds v to the counter.
func (c *Counter) Add(v uint64) { c.value.Add(v) }

// Value returns the current count.
func (c *Counter) Value() uint64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// Set replaces the gauge value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc adds one to the gauge.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec subtracts one from the gauge.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram is a distribution of values over fixed buckets.
type Histogram struct {
	name    string
	help    string
	buckets []float64

	mu     sync.Mutex
	counts []uint64
	sum    float64
	count  uint64
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, upper := range h.buckets {
		if v <= upper {
			h.counts[i]++
		}
	}
}

// ObserveDuration records a duration in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Mean returns the mean of all observations, or 0 with no observations.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

// Registry holds named metrics under a common namespace prefix.
type Registry struct {
	namespace string

	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// NewRegistry creates an empty registry. Metric names are exported as
// namespace_name.
func NewRegistry(namespace string) *Registry {
	return &Registry{
		namespace:  namespace,
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

var defaultRegistry = NewRegistry("lyrad")

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

func (r *Registry) fullName(name string) string {
	if r.namespace == "" {
		return name
	}
	return r.namespace + "_" + name
}

// RegisterCounter creates (or returns the existing) counter.
func (r *Registry) RegisterCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	full := r.fullName(name)
	if c, ok := r.counters[full]; ok {
		return c
	}
	c := &Counter{name: full, help: help}
	r.counters[full] = c
	return c
}

// RegisterGauge creates (or returns the existing) gauge.
func (r *Registry) RegisterGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	full := r.fullName(name)
	if g, ok := r.gauges[full]; ok {
		return g
	}
	g := &Gauge{name: full, help: help}
	r.gauges[full] = g
	return g
}

// RegisterHistogram creates (or returns the existing) histogram with the
// given upper bucket bounds in ascending order.
func (r *Registry) RegisterHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	full := r.fullName(name)
	if h, ok := r.histograms[full]; ok {
		return h
	}
	h := &Histogram{
		name:    full,
		help:    help,
		buckets: append([]float64(nil), buckets...),
		counts:  make([]uint64, len(buckets)),
	}
	r.histograms[full] = h
	return h
}

// WritePrometheus writes all metrics in Prometheus text exposition format.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, c.help, name, name, c.Value())
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, g.help, name, name, g.Value())
	}
	for _, name := range sortedKeys(r.histograms) {
		h := r.histograms[name]
		h.mu.Lock()
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", name, h.help, name)
		for i, upper := range h.buckets {
			fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", name, formatBound(upper), h.counts[i])
		}
		fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", name, h.count)
		fmt.Fprintf(w, "%s_sum %g\n%s_count %d\n", name, h.sum, name, h.count)
		h.mu.Unlock()
	}
	return nil
}

// Handler returns an HTTP handler serving the text exposition.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = r.WritePrometheus(w)
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatBound(v float64) string {
	if math.IsInf(v, 1) {
		return "+Inf"
	}
	return fmt.Sprintf("%g", v)
}
