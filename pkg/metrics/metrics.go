// Package metrics implements the Metrics and Error Boundary component
// (spec §4.6): counter/gauge/timer/histogram/summary primitives with tags,
// and a scoped error-boundary wrapper with fallback/retry/recovery
// accounting.
//
// Grounded on fyrsmithlabs-contextd's internal/vectorstore/metrics.go
// prometheus/client_golang + promauto usage — the teacher repo itself
// carries no metrics library, so this package is sourced from elsewhere in
// the retrieved pack, as documented in SPEC_FULL.md's DOMAIN STACK table.
// Generalized from contextd's fixed package-level vars into a registry
// keyed by (name, tag keys), since spec §4.6 requires dynamically named
// emissions rather than a fixed metric set.
package metrics

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tags is a set of metric dimensions. Values are stringified the same way
// regardless of underlying type (string|number|bool), per spec §4.6.
type Tags map[string]any

func tagValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func sortedKeys(tags Tags) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func labelValues(keys []string, tags Tags) []string {
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = tagValue(tags[k])
	}
	return vals
}

// Registry is the Metrics primitive set: counter/gauge/timer/histogram/
// summary, all namespaced by a configurable prefix and merged with a
// default tag set (spec §4.6).
type Registry struct {
	mu          sync.Mutex
	namespace   string
	defaultTags Tags
	registerer  prometheus.Registerer

	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	summaries  map[string]*prometheus.SummaryVec
}

// NewRegistry constructs a Registry. namespace becomes every metric's
// Prometheus namespace; defaultTags are merged into every emission.
func NewRegistry(namespace string, defaultTags Tags) *Registry {
	return &Registry{
		namespace:   namespace,
		defaultTags: defaultTags,
		registerer:  prometheus.DefaultRegisterer,
		counters:    make(map[string]*prometheus.CounterVec),
		gauges:      make(map[string]*prometheus.GaugeVec),
		histograms:  make(map[string]*prometheus.HistogramVec),
		summaries:   make(map[string]*prometheus.SummaryVec),
	}
}

func (r *Registry) merge(tags Tags) Tags {
	if len(r.defaultTags) == 0 {
		return tags
	}
	out := make(Tags, len(r.defaultTags)+len(tags))
	for k, v := range r.defaultTags {
		out[k] = v
	}
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func (r *Registry) counterVec(name string, keys []string) *prometheus.CounterVec {
	cacheKey := name + "|" + joinKeys(keys)
	r.mu.Lock()
	defer r.mu.Unlock()
	if cv, ok := r.counters[cacheKey]; ok {
		return cv
	}
	cv := promauto.With(r.registerer).NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      name,
	}, keys)
	r.counters[cacheKey] = cv
	return cv
}

func (r *Registry) gaugeVec(name string, keys []string) *prometheus.GaugeVec {
	cacheKey := name + "|" + joinKeys(keys)
	r.mu.Lock()
	defer r.mu.Unlock()
	if gv, ok := r.gauges[cacheKey]; ok {
		return gv
	}
	gv := promauto.With(r.registerer).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Name:      name,
	}, keys)
	r.gauges[cacheKey] = gv
	return gv
}

func (r *Registry) histogramVec(name string, keys []string) *prometheus.HistogramVec {
	cacheKey := name + "|" + joinKeys(keys)
	r.mu.Lock()
	defer r.mu.Unlock()
	if hv, ok := r.histograms[cacheKey]; ok {
		return hv
	}
	hv := promauto.With(r.registerer).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      name,
		Buckets:   prometheus.DefBuckets,
	}, keys)
	r.histograms[cacheKey] = hv
	return hv
}

func (r *Registry) summaryVec(name string, keys []string) *prometheus.SummaryVec {
	cacheKey := name + "|" + joinKeys(keys)
	r.mu.Lock()
	defer r.mu.Unlock()
	if sv, ok := r.summaries[cacheKey]; ok {
		return sv
	}
	sv := promauto.With(r.registerer).NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  r.namespace,
		Name:       name,
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, keys)
	r.summaries[cacheKey] = sv
	return sv
}

func joinKeys(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k
	}
	return out
}

// Counter increments a named counter by delta.
func (r *Registry) Counter(name string, delta float64, tags Tags) {
	merged := r.merge(tags)
	keys := sortedKeys(merged)
	r.counterVec(name, keys).WithLabelValues(labelValues(keys, merged)...).Add(delta)
}

// Gauge sets a named gauge to value.
func (r *Registry) Gauge(name string, value float64, tags Tags) {
	merged := r.merge(tags)
	keys := sortedKeys(merged)
	r.gaugeVec(name, keys).WithLabelValues(labelValues(keys, merged)...).Set(value)
}

// Histogram records value into a named histogram.
func (r *Registry) Histogram(name string, value float64, tags Tags) {
	merged := r.merge(tags)
	keys := sortedKeys(merged)
	r.histogramVec(name, keys).WithLabelValues(labelValues(keys, merged)...).Observe(value)
}

// Summary records value into a named summary.
func (r *Registry) Summary(name string, value float64, tags Tags) {
	merged := r.merge(tags)
	keys := sortedKeys(merged)
	r.summaryVec(name, keys).WithLabelValues(labelValues(keys, merged)...).Observe(value)
}

// Timer is a handle returned by StartTimer; Stop records elapsed duration
// to the named histogram, Cancel discards it (spec §4.6 "Timers return a
// handle with stop() and cancel()").
type Timer struct {
	registry  *Registry
	name      string
	tags      Tags
	start     time.Time
	cancelled bool
}

// StartTimer begins timing an operation.
func (r *Registry) StartTimer(name string, tags Tags) *Timer {
	return &Timer{registry: r, name: name, tags: tags, start: time.Now()}
}

// Stop records the elapsed duration in seconds to the associated histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if !t.cancelled {
		t.registry.Histogram(t.name, elapsed.Seconds(), t.tags)
	}
	return elapsed
}

// Cancel discards the timer without recording a duration.
func (t *Timer) Cancel() {
	t.cancelled = true
}
