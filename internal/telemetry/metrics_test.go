package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, clock string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		if clock != "" {
			v, ok := dp.Attributes.Value(AttrClock)
			if !ok || v.AsString() != clock {
				continue
			}
		}
		total += dp.Value
	}
	return total
}

func TestAccumulatorMetricsRecordsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := NewMeterProvider(nil, reader)
	t.Cleanup(func() { require.NoError(t, mp.Shutdown(context.Background())) })

	m, err := NewAccumulatorMetrics(mp.Meter("backtest"), RunAttributes("test", "alpha")...)
	require.NoError(t, err)

	m.RecordAdvance("venue", 3)
	m.RecordAdvance("venue", 0)
	m.RecordAdvance("strategy", 1)
	m.RecordDrain(4)
	m.RecordDrain(0)

	data := collectMetrics(t, reader)
	require.EqualValues(t, 2, sumFor(t, data[MetricAdvanceCount], "venue"))
	require.EqualValues(t, 1, sumFor(t, data[MetricAdvanceCount], "strategy"))
	require.EqualValues(t, 3, sumFor(t, data[MetricEventsFired], "venue"))
	require.EqualValues(t, 4, sumFor(t, data[MetricEventsFired], ""))
	require.EqualValues(t, 2, sumFor(t, data[MetricDrainCount], ""))

	hist, ok := data[MetricBatchSize].(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	dp := hist.DataPoints[0]
	require.EqualValues(t, 2, dp.Count)
	require.EqualValues(t, 4, dp.Sum)
	require.Equal(t, batchSizeBuckets, dp.Bounds)
	run, ok := dp.Attributes.Value(AttrRun)
	require.True(t, ok)
	require.Equal(t, "alpha", run.AsString())
}

func TestDisabledProviderFallsBackToGlobalMeter(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false, Environment: "Staging"})
	require.NoError(t, err)
	require.NotNil(t, p.Meter("backtest"))
	require.Equal(t, "staging", p.Environment())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestStripScheme(t *testing.T) {
	require.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("collector:4318"))
}

func TestDefaultConfigReadsEnvironment(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_RESOURCE_ENVIRONMENT", "")
	t.Setenv("BACKCLOCK_ENV", "ci")

	cfg := DefaultConfig()
	require.True(t, cfg.Enabled)
	require.Equal(t, "backclock", cfg.ServiceName)
	require.Equal(t, "ci", cfg.Environment)
}
