// Package telemetry configures tracing export and trace-correlated logging.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"plexident/launchpad/internal/config"
)

// metricInterval is the export period; Shutdown always runs a final collection.
const metricInterval = 30 * time.Second

// Provider owns the global tracer and meter providers and the gRPC
// connection they export over.
type Provider struct {
	conn   *grpc.ClientConn
	traces *sdktrace.TracerProvider
	meters *sdkmetric.MeterProvider
}

// InitProvider installs global OTEL providers exporting to cfg.OTLPEndpoint.
// The dial is lazy, so an unreachable collector never delays the sequence.
func InitProvider(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	res, err := newResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	var dialOpts []grpc.DialOption
	if cfg.OTLPInsecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(cfg.OTLPEndpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("otlp client %s: %w", cfg.OTLPEndpoint, err)
	}
	p := &Provider{conn: conn}

	spanExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	p.traces = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		_ = p.traces.Shutdown(ctx)
		_ = conn.Close()
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}
	p.meters = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(metricInterval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(p.traces)
	otel.SetMeterProvider(p.meters)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		slog.Warn("otel export error", "err", err)
	}))

	return p, nil
}

func newResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	version := "devel"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	return res, nil
}

// Shutdown flushes pending spans and metrics and closes the connection.
// Export failures are logged by the error handler and not returned; only a
// failure to close the connection is. ctx should carry a deadline.
func (p *Provider) Shutdown(ctx context.Context) error {
	_ = p.meters.Shutdown(ctx)
	_ = p.traces.Shutdown(ctx)
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("closing otlp connection: %w", err)
	}
	return nil
}
