package agent

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/argus/internal/providers"
	"github.com/nextlevelbuilder/argus/internal/tracing"
)

// chat wraps one non-streaming model call in an llm_call span.
func chat(ctx context.Context, p providers.Provider, req providers.ChatRequest) (*providers.ChatResponse, error) {
	ctx, span := tracing.StartLLM(ctx, p.Name(), req.Model)
	resp, err := p.Chat(ctx, req)
	annotate(span, resp)
	tracing.End(span, err)
	return resp, err
}

// chatStream wraps one streaming model call in an llm_call span.
func chatStream(ctx context.Context, p providers.Provider, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	ctx, span := tracing.StartLLM(ctx, p.Name(), req.Model)
	resp, err := p.ChatStream(ctx, req, onChunk)
	annotate(span, resp)
	tracing.End(span, err)
	return resp, err
}

func annotate(span trace.Span, resp *providers.ChatResponse) {
	if resp == nil {
		return
	}
	if resp.FinishReason != "" {
		span.SetAttributes(attribute.String(tracing.AttrFinish, resp.FinishReason))
	}
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int(tracing.AttrInputTok, resp.Usage.PromptTokens),
			attribute.Int(tracing.AttrOutputTok, resp.Usage.CompletionTokens),
		)
	}
}

func modelOrDefault(cfg LoopConfig, p providers.Provider) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return p.DefaultModel()
}
