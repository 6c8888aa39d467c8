package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dealflow"

// ShutdownFunc сбрасывает и останавливает провайдер трейсов.
type ShutdownFunc func(ctx context.Context) error

// SetupTracing устанавливает глобальный TracerProvider с OTLP/gRPC экспортером.
//
// Пустой endpoint оставляет no-op провайдер по умолчанию.
// Endpoint вида "http://host:4317" задаёт схему явно, "host:4317" —
// соединение без TLS.
func SetupTracing(ctx context.Context, endpoint, serviceName string) (ShutdownFunc, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	var opt otlptracegrpc.Option
	if strings.Contains(endpoint, "://") {
		opt = otlptracegrpc.WithEndpointURL(endpoint)
	} else {
		opt = otlptracegrpc.WithEndpoint(endpoint)
	}

	exporter, err := otlptracegrpc.New(ctx, opt, otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// StartRunSpan начинает спан прогона сделки.
func StartRunSpan(ctx context.Context, dealID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "deal.run",
		trace.WithAttributes(
			attribute.String("deal.id", dealID),
		),
	)
}

// StartStageSpan начинает спан выполнения стадии.
func StartStageSpan(ctx context.Context, stage string, cycle int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "deal.stage",
		trace.WithAttributes(
			attribute.String("stage.name", stage),
			attribute.Int("stage.cycle", cycle),
		),
	)
}

// StartCommitSpan начинает спан записи результата.
func StartCommitSpan(ctx context.Context, dealID, outcome string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "deal.commit",
		trace.WithAttributes(
			attribute.String("deal.id", dealID),
			attribute.String("commit.outcome", outcome),
		),
	)
}
