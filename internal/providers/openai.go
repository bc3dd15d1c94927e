package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	openaiDefaultBase = "https://api.openai.com/v1"
	defaultTimeout    = 120 * time.Second
)

// OpenAIProvider calls any OpenAI-compatible /chat/completions endpoint.
type OpenAIProvider struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
	limiter      *rate.Limiter
	retry        RetryConfig
}

func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = openaiDefaultBase
	}
	return &OpenAIProvider{
		name:         name,
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: defaultTimeout},
		retry:        DefaultRetryConfig(),
	}
}

// WithRateLimit paces requests to perMinute (0 disables pacing).
func (p *OpenAIProvider) WithRateLimit(perMinute int) *OpenAIProvider {
	if perMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return p
}

// WithRetry overrides the retry policy.
func (p *OpenAIProvider) WithRetry(cfg RetryConfig) *OpenAIProvider {
	p.retry = cfg
	return p
}

// WithHTTPClient overrides the HTTP client.
func (p *OpenAIProvider) WithHTTPClient(c *http.Client) *OpenAIProvider {
	p.client = c
	return p
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

type chatBody struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

func (p *OpenAIProvider) body(req ChatRequest, stream bool) chatBody {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	b := chatBody{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	if len(req.Tools) > 0 {
		b.Tools = CleanToolSchemas(p.name, req.Tools)
		b.ToolChoice = "auto"
	}
	return b
}

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out *ChatResponse
	err := retryDo(ctx, p.retry, func() error {
		resp, err := p.post(ctx, p.body(req, false))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var cc chatCompletion
		if err := json.NewDecoder(resp.Body).Decode(&cc); err != nil {
			return fmt.Errorf("%s: decode response: %w", p.name, err)
		}
		if len(cc.Choices) == 0 {
			return fmt.Errorf("%s: response has no choices", p.name)
		}
		c := cc.Choices[0]
		out = &ChatResponse{
			Content:      c.Message.Content,
			ToolCalls:    c.Message.ToolCalls,
			FinishReason: c.FinishReason,
			Usage:        cc.Usage,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("providers: chat complete", "provider", p.name, "tool_calls", len(out.ToolCalls), "finish", out.FinishReason)
	return out, nil
}

type streamDelta struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// ChatStream reads a server-sent event stream of deltas. Only the connection
// is retried; once deltas have been delivered a failure is returned as is.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	var resp *http.Response
	err := retryDo(ctx, p.retry, func() error {
		r, err := p.post(ctx, p.body(req, true))
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		content strings.Builder
		calls   = map[int]*ToolCall{}
		out     = &ChatResponse{}
	)

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var d streamDelta
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			slog.Debug("providers: skipping malformed stream line", "provider", p.name, "error", err)
			continue
		}
		if d.Usage != nil {
			out.Usage = d.Usage
		}
		for _, ch := range d.Choices {
			if ch.Delta.Content != "" {
				content.WriteString(ch.Delta.Content)
				if onChunk != nil {
					onChunk(StreamChunk{Content: ch.Delta.Content})
				}
			}
			for _, tc := range ch.Delta.ToolCalls {
				call, ok := calls[tc.Index]
				if !ok {
					call = &ToolCall{Type: "function"}
					calls[tc.Index] = call
				}
				if tc.ID != "" {
					call.ID = tc.ID
				}
				if tc.Function.Name != "" {
					call.Function.Name += tc.Function.Name
				}
				call.Function.Arguments += tc.Function.Arguments
			}
			if ch.FinishReason != nil {
				out.FinishReason = *ch.FinishReason
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: read stream: %w", p.name, err)
	}

	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}

	out.Content = content.String()
	idx := make([]int, 0, len(calls))
	for i := range calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		out.ToolCalls = append(out.ToolCalls, *calls[i])
	}
	return out, nil
}

// post sends body and returns a 2xx response; other statuses become *HTTPError.
func (p *OpenAIProvider) post(ctx context.Context, body chatBody) (*http.Response, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", p.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request: %w", p.name, err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Provider: p.name, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}
