package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the Archgraph instruments.
type Metrics struct {
	// AnalysesTotal counts analysis runs by name and outcome.
	AnalysesTotal metric.Int64Counter

	// AnalysisDuration records analysis wall time in seconds.
	AnalysisDuration metric.Float64Histogram

	// GraphNodes records the node count of every loaded graph.
	GraphNodes metric.Int64Histogram

	// GraphEdges records the edge count of every loaded graph.
	GraphEdges metric.Int64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.AnalysesTotal, err = meter.Int64Counter(
		"archgraph_analyses_total",
		metric.WithDescription("Total analysis runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create analyses_total: %w", err)
	}

	m.AnalysisDuration, err = meter.Float64Histogram(
		"archgraph_analysis_duration_seconds",
		metric.WithDescription("Analysis duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, fmt.Errorf("create analysis_duration: %w", err)
	}

	m.GraphNodes, err = meter.Int64Histogram(
		"archgraph_graph_nodes",
		metric.WithDescription("Nodes per loaded graph"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph_nodes: %w", err)
	}

	m.GraphEdges, err = meter.Int64Histogram(
		"archgraph_graph_edges",
		metric.WithDescription("Edges per loaded graph"),
		metric.WithUnit("{edge}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph_edges: %w", err)
	}

	return m, nil
}

var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// Global returns instruments bound to the global meter provider, created on
// first use. Call it after Init so they reach the configured exporter.
// Returns nil if instrument creation failed.
func Global() *Metrics {
	globalMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.Meter(TracerName))
		if err == nil {
			globalMetrics = m
		}
	})
	return globalMetrics
}

// RecordAnalysis counts one analysis run and its duration.
func (m *Metrics) RecordAnalysis(ctx context.Context, name string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("analysis", name),
		attribute.String("outcome", outcome),
	)
	m.AnalysesTotal.Add(ctx, 1, attrs)
	m.AnalysisDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

// RecordGraph records the size of a loaded graph.
func (m *Metrics) RecordGraph(ctx context.Context, nodes, edges int) {
	if m == nil {
		return
	}
	m.GraphNodes.Record(ctx, int64(nodes))
	m.GraphEdges.Record(ctx, int64(edges))
}
