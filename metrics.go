package redlock

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const otelPackageName = "github.com/kalbasit/redlock"

var (
	meter = otel.Meter(otelPackageName)

	operationsTotal  metric.Int64Counter
	operationAttempt metric.Int64Histogram
)

func init() {
	var err error

	operationsTotal, err = meter.Int64Counter(
		"redlock.operations",
		metric.WithDescription("Number of acquire/extend/release/use operations, by result."),
	)
	if err != nil {
		otel.Handle(err)
	}

	operationAttempt, err = meter.Int64Histogram(
		"redlock.operation.attempts",
		metric.WithDescription("Number of Vote Collector attempts an operation needed before resolving."),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		otel.Handle(err)
	}
}

// recordOperation records one completed operation's outcome. It never
// blocks on an exporter and never returns an error: metrics are diagnostic,
// not part of the algorithm's correctness.
func recordOperation(ctx context.Context, operation string, attempts int, result string) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	)

	if operationsTotal != nil {
		operationsTotal.Add(ctx, 1, attrs)
	}

	if operationAttempt != nil && attempts > 0 {
		operationAttempt.Record(ctx, int64(attempts), attrs)
	}
}
