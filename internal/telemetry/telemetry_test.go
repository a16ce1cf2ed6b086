package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	metricapi "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInit(t *testing.T) {
	t.Run("NilContext", func(t *testing.T) {
		//nolint:staticcheck // exercising the nil guard
		_, err := Init(nil, Config{})

		assert.True(t, errors.Is(err, ErrNilContext))
	})

	t.Run("NoopExporters", func(t *testing.T) {
		shutdown, err := Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone})

		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("UnknownTraceExporter", func(t *testing.T) {
		_, err := Init(context.Background(), Config{TraceExporter: "jaeger"})

		assert.True(t, errors.Is(err, ErrUnknownExporter))
	})

	t.Run("UnknownMetricExporter", func(t *testing.T) {
		_, err := Init(context.Background(), Config{MetricExporter: "statsd"})

		assert.True(t, errors.Is(err, ErrUnknownExporter))
	})

	t.Run("StdoutTraces", func(t *testing.T) {
		var buf bytes.Buffer
		shutdown, err := Init(context.Background(), Config{ServiceName: "archgraph-test", TraceExporter: ExporterStdout, Writer: &buf})
		require.NoError(t, err)

		_, span := StartSpan(context.Background(), "unit")
		span.End()
		require.NoError(t, shutdown(context.Background()))

		assert.Contains(t, buf.String(), `"Name": "unit"`)
	})

	t.Run("PrometheusHandler", func(t *testing.T) {
		shutdown, err := Init(context.Background(), Config{ServiceName: "archgraph-test", MetricExporter: ExporterPrometheus})
		require.NoError(t, err)
		defer func() { _ = shutdown(context.Background()) }()

		m, err := NewMetrics(otelMeter())
		require.NoError(t, err)
		m.RecordAnalysis(context.Background(), "cycles", time.Now(), nil)

		handler := MetricsHandler()
		require.NotNil(t, handler)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		body, _ := io.ReadAll(rec.Body)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, string(body), "archgraph_analyses_total")
	})
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	m.RecordAnalysis(context.Background(), "layers", time.Now(), errors.New("boom"))
	m.RecordGraph(context.Background(), 10, 20)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names[metric.Name] = true
		}
	}
	assert.True(t, names["archgraph_analyses_total"])
	assert.True(t, names["archgraph_analysis_duration_seconds"])
	assert.True(t, names["archgraph_graph_nodes"])

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.RecordGraph(context.Background(), 1, 1) })
}

func otelMeter() metricapi.Meter {
	return otel.Meter(TracerName)
}
