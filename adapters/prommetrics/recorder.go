// Package prommetrics exports service metrics through a Prometheus
// registry. Counters and histograms are created lazily the first time a
// metric name shows up, so the core never has to pre-declare its series.
package prommetrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/channelgate/channelgate/core"
)

type Recorder struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

type RecorderOption func(*Recorder)

// WithRegistry swaps the backing registry, mostly for tests and for hosts
// that already expose a registry of their own.
func WithRegistry(registry *prometheus.Registry) RecorderOption {
	return func(r *Recorder) {
		if registry != nil {
			r.registry = registry
		}
	}
}

func NewRecorder(options ...RecorderOption) *Recorder {
	recorder := &Recorder{
		registry:   prometheus.NewRegistry(),
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
	for _, option := range options {
		option(recorder)
	}
	return recorder
}

// Registry returns the registry backing this recorder so the host can mount
// it behind promhttp.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if value <= 0 {
		return
	}
	metricName := sanitizeMetricName(name)
	if metricName == "" {
		return
	}
	keys, values := splitTags(tags)

	r.mu.Lock()
	vec, ok := r.counters[vecKey(metricName, keys)]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: metricName}, keys)
		if err := r.registry.Register(vec); err != nil {
			r.mu.Unlock()
			return
		}
		r.counters[vecKey(metricName, keys)] = vec
	}
	r.mu.Unlock()

	vec.WithLabelValues(values...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	metricName := sanitizeMetricName(name)
	if metricName == "" {
		return
	}
	keys, values := splitTags(tags)

	r.mu.Lock()
	vec, ok := r.histograms[vecKey(metricName, keys)]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricName,
			Buckets: prometheus.DefBuckets,
		}, keys)
		if err := r.registry.Register(vec); err != nil {
			r.mu.Unlock()
			return
		}
		r.histograms[vecKey(metricName, keys)] = vec
	}
	r.mu.Unlock()

	vec.WithLabelValues(values...).Observe(value)
}

// sanitizeMetricName maps the service's dotted metric names onto the
// Prometheus grammar.
func sanitizeMetricName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(name))
	for i, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_', ch == ':':
			builder.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			if i == 0 {
				builder.WriteByte('_')
			}
			builder.WriteRune(ch)
		default:
			builder.WriteByte('_')
		}
	}
	return builder.String()
}

func splitTags(tags map[string]string) ([]string, []string) {
	if len(tags) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, sanitizeMetricName(key))
	}
	sort.Strings(keys)

	sanitized := make(map[string]string, len(tags))
	for key, value := range tags {
		sanitized[sanitizeMetricName(key)] = value
	}
	values := make([]string, len(keys))
	for i, key := range keys {
		values[i] = sanitized[key]
	}
	return keys, values
}

func vecKey(name string, labelKeys []string) string {
	return fmt.Sprintf("%s|%s", name, strings.Join(labelKeys, ","))
}

var _ core.MetricsRecorder = (*Recorder)(nil)
