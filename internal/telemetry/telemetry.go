// Package telemetry installs the OpenTelemetry tracer provider. With no
// collector configured the global no-op provider stays in place.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jobs-etl/internal/config"
	"jobs-etl/internal/pkg/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	tracer "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func String(key string, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func Int(key string, value int) attribute.KeyValue {
	return attribute.Int(key, value)
}

// InitTracer exports spans to cfg.CollectorURL over OTLP gRPC. The returned
// func flushes and shuts the provider down.
func InitTracer(ctx context.Context, cfg config.TelemetryConfig, logger *logging.Logger) (func(), error) {
	if strings.TrimSpace(cfg.CollectorURL) == "" {
		logger.Debug("tracing disabled", "reason", "no collector url")
		return func() {}, nil
	}

	conn, err := grpc.DialContext(ctx, cfg.CollectorURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("create gRPC connection to collector: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create resource: %w", err)
	}

	bsp := trace.NewBatchSpanProcessor(
		exporter,
		trace.WithBatchTimeout(time.Second*5),
	)

	provider := trace.NewTracerProvider(
		trace.WithSampler(trace.AlwaysSample()),
		trace.WithResource(res),
		trace.WithSpanProcessor(bsp),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown tracer provider", "error", err)
		}
		if err := conn.Close(); err != nil {
			logger.Warn("close collector connection", "error", err)
		}
	}, nil
}

func GetTracer(name string) tracer.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}
