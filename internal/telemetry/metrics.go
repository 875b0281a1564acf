package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AccumulatorMetrics records accumulator activity as OpenTelemetry instruments.
// It satisfies backtest.MetricsRecorder.
type AccumulatorMetrics struct {
	advances metric.Int64Counter
	fired    metric.Int64Counter
	drains   metric.Int64Counter
	size     metric.Int64Histogram
	base     []attribute.KeyValue
}

// NewAccumulatorMetrics creates the instruments on meter. base attributes are attached to
// every measurement.
func NewAccumulatorMetrics(meter metric.Meter, base ...attribute.KeyValue) (*AccumulatorMetrics, error) {
	advances, err := meter.Int64Counter(MetricAdvanceCount,
		metric.WithDescription("Clock advances performed by the accumulator"),
		metric.WithUnit("{advance}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricAdvanceCount, err)
	}
	fired, err := meter.Int64Counter(MetricEventsFired,
		metric.WithDescription("Time events fired and buffered"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricEventsFired, err)
	}
	drains, err := meter.Int64Counter(MetricDrainCount,
		metric.WithDescription("Accumulator drains"),
		metric.WithUnit("{drain}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricDrainCount, err)
	}
	size, err := meter.Int64Histogram(MetricBatchSize,
		metric.WithDescription("Handlers per drained batch"),
		metric.WithUnit("{handler}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricBatchSize, err)
	}
	return &AccumulatorMetrics{
		advances: advances,
		fired:    fired,
		drains:   drains,
		size:     size,
		base:     append([]attribute.KeyValue(nil), base...),
	}, nil
}

// RecordAdvance counts one clock advance and the events it fired.
func (m *AccumulatorMetrics) RecordAdvance(clock string, fired int) {
	ctx := context.Background()
	attrs := metric.WithAttributes(append(append([]attribute.KeyValue(nil), m.base...), AttrClock.String(clock))...)
	m.advances.Add(ctx, 1, attrs)
	if fired > 0 {
		m.fired.Add(ctx, int64(fired), attrs)
	}
}

// RecordDrain counts one drain and observes its batch size.
func (m *AccumulatorMetrics) RecordDrain(size int) {
	ctx := context.Background()
	attrs := metric.WithAttributes(m.base...)
	m.drains.Add(ctx, 1, attrs)
	m.size.Record(ctx, int64(size), attrs)
}
