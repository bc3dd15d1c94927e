// Package tracing installs the OpenTelemetry tracer provider and offers small
// span helpers for tasks, attempts, LLM calls and tool calls.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/nextlevelbuilder/argus"
	previewLimit        = 500
)

// Attribute keys shared by the span helpers.
const (
	AttrSpanType   = "argus.span_type"
	AttrAgent      = "argus.agent"
	AttrStrategy   = "argus.strategy"
	AttrAttempt    = "argus.attempt"
	AttrToolName   = "argus.tool.name"
	AttrToolCallID = "argus.tool.call_id"
	AttrModel      = "gen_ai.request.model"
	AttrProvider   = "gen_ai.system"
	AttrInputTok   = "gen_ai.usage.input_tokens"
	AttrOutputTok  = "gen_ai.usage.output_tokens"
	AttrFinish     = "gen_ai.response.finish_reason"
	AttrPreview    = "argus.output_preview"
)

// Config configures the OTLP exporter. An empty Endpoint disables export.
type Config struct {
	Endpoint    string            // e.g. "localhost:4317"
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // default "argus"
	Headers     map[string]string // extra headers (auth tokens, etc.)
	Version     string
}

// Setup installs the global tracer provider and returns its shutdown func.
// With no endpoint the global no-op provider is left in place.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "argus"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	slog.Info("tracing: otlp exporter enabled", "endpoint", cfg.Endpoint, "protocol", cfg.Protocol)

	return func(ctx context.Context) error {
		slog.Info("tracing: shutting down")
		return tp.Shutdown(ctx)
	}, nil
}

// Start opens a span on the global provider.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartLLM opens a client span for one model call.
func StartLLM(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "llm_call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrSpanType, "llm_call"),
			attribute.String(AttrProvider, provider),
			attribute.String(AttrModel, model),
		),
	)
}

// End records err (if any) as the span status and ends the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Preview truncates s for use as a span attribute.
func Preview(s string) attribute.KeyValue {
	if len(s) > previewLimit {
		s = s[:previewLimit] + "..."
	}
	return attribute.String(AttrPreview, s)
}
