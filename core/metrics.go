package core

import (
	"context"
	"strings"
)

const metricNamespace = "channelgate"

// NopMetricsRecorder drops every measurement. It is the default recorder so
// grant and sweep instrumentation never has to branch on a nil sink.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// operationMetric builds the canonical series name for an engine operation,
// e.g. channelgate.grant.total or channelgate.sweep.duration_ms.
func operationMetric(operation string, suffix string) string {
	return strings.Join([]string{metricNamespace, operation, suffix}, ".")
}

var _ MetricsRecorder = NopMetricsRecorder{}
