package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	promclient "github.com/prometheus/client_golang/prometheus"
	prometheus "go.opentelemetry.io/otel/exporters/prometheus"
)

// SetupMetrics installs a global OpenTelemetry MeterProvider that exports
// redlock's instruments (see the root package's recordOperation) through a
// dedicated Prometheus registry, with no OTLP collector or console
// exporter involved. It returns the registry — which implements
// promclient.Gatherer and can be served by any HTTP handler that accepts
// one — and a shutdown func to flush and stop the provider.
func SetupMetrics(ctx context.Context, serviceName, serviceVersion string) (promclient.Gatherer, func(context.Context) error, error) {
	res, err := NewResource(ctx, serviceName, serviceVersion)
	if err != nil {
		return nil, nil, err
	}

	registry := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(meterProvider)

	return registry, meterProvider.Shutdown, nil
}
