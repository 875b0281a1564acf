package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for backtest telemetry.
const (
	AttrEnvironment = attribute.Key("environment")
	AttrClock       = attribute.Key("clock")
	AttrRun         = attribute.Key("run")
)

// Instrument names.
const (
	MetricAdvanceCount = "backtest.advance.count"
	MetricEventsFired  = "backtest.events.fired"
	MetricDrainCount   = "backtest.drain.count"
	MetricBatchSize    = "backtest.batch.size"
)

// RunAttributes returns the attributes shared by every instrument of one run.
func RunAttributes(environment, run string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrRun.String(run),
	}
}
