// Package telemetry provides an optional metrics bootstrap for
// applications embedding redlock that want its OpenTelemetry instruments
// exported in Prometheus format, without pulling in an OTLP collector.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"

	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// NewResource builds the OpenTelemetry resource describing the current
// process, tagged with serviceName and serviceVersion plus any
// extraAttrs. It consolidates the detector set shared by every telemetry
// setup in this package.
func NewResource(
	ctx context.Context,
	serviceName,
	serviceVersion string,
	extraAttrs ...attribute.KeyValue,
) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersionKey.String(serviceVersion),
	}
	attrs = append(attrs, extraAttrs...)

	return resource.New(
		ctx,

		// NOTE: fails if the semconv version here diverges from the one
		// used by the detectors below; keep both imports in lockstep.
		resource.WithSchemaURL(semconv.SchemaURL),

		resource.WithAttributes(attrs...),

		// OTEL_RESOURCE_ATTRIBUTES / OTEL_SERVICE_NAME environment overrides.
		resource.WithFromEnv(),

		resource.WithTelemetrySDK(),

		// Deliberately narrower than resource.WithProcess(): that includes
		// process command-line arguments, which can leak Redis connection
		// secrets passed as flags by an embedding application.
		resource.WithProcessPID(),
		resource.WithProcessExecutableName(),
		resource.WithProcessExecutablePath(),
		resource.WithProcessOwner(),
		resource.WithProcessRuntimeName(),
		resource.WithProcessRuntimeVersion(),
		resource.WithProcessRuntimeDescription(),

		resource.WithOS(),
		resource.WithContainer(),
		resource.WithHost(),
	)
}
