package tracing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_EmptyEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("expected no-op shutdown, got %v", err)
	}
}

func TestEnd_RecordsStatus(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, ok := Start(context.Background(), "task")
	End(ok, nil)
	_, bad := StartLLM(context.Background(), "openai", "gpt-4o")
	End(bad, errors.New("boom"))

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("expected Ok, got %v", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "boom" {
		t.Errorf("expected Error boom, got %v", spans[1].Status())
	}
	if spans[1].Name() != "llm_call" {
		t.Errorf("expected llm_call, got %s", spans[1].Name())
	}
}

func TestPreview_Truncates(t *testing.T) {
	kv := Preview(strings.Repeat("a", 600))
	if got := kv.Value.AsString(); len(got) != previewLimit+3 {
		t.Errorf("expected %d chars, got %d", previewLimit+3, len(got))
	}
}
