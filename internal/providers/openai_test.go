package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestMessageMarshal_StringAndParts(t *testing.T) {
	plain, _ := json.Marshal(Message{Role: "user", Content: "hi"})
	if !strings.Contains(string(plain), `"content":"hi"`) {
		t.Errorf("expected string content, got %s", plain)
	}

	multi, _ := json.Marshal(Message{Role: "user", Parts: []ContentPart{
		{Type: "text", Text: "look"},
		{Type: "image_url", ImageURL: &ImageURL{URL: "data:image/png;base64,AAAA"}},
	}})
	if !strings.Contains(string(multi), `"content":[{"type":"text","text":"look"}`) {
		t.Errorf("expected content array, got %s", multi)
	}

	var back Message
	if err := json.Unmarshal(multi, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Parts) != 2 || back.Parts[1].ImageURL == nil {
		t.Errorf("expected 2 parts with an image, got %+v", back.Parts)
	}
}

func TestChat_ToolCalls(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"","tool_calls":[{"id":"c1","type":"function","function":{"name":"execute_code","arguments":"{\"language\":\"python\",\"code\":\"1+1\"}"}}]},"finish_reason":"tool_calls"}],"usage":{"total_tokens":12}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "sk-test", srv.URL, "m1")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "compute"}},
		Tools:    []ToolDefinition{{Type: "function", Function: ToolFunctionSchema{Name: "execute_code"}}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotBody["model"] != "m1" {
		t.Errorf("expected default model m1, got %v", gotBody["model"])
	}
	if gotBody["tool_choice"] != "auto" {
		t.Errorf("expected tool_choice auto, got %v", gotBody["tool_choice"])
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "c1" {
		t.Fatalf("expected one tool call c1, got %+v", resp.ToolCalls)
	}
	args, err := resp.ToolCalls[0].Args()
	if err != nil || args["language"] != "python" {
		t.Errorf("expected language python, got %v (%v)", args, err)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 12 {
		t.Errorf("expected usage 12, got %+v", resp.Usage)
	}
}

func TestChat_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "", srv.URL, "m").WithRetry(fastRetry())
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected ok, got %q", resp.Content)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestChat_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "", srv.URL, "m").WithRetry(fastRetry())
	_, err := p.Chat(context.Background(), ChatRequest{})
	var he *HTTPError
	if err == nil || !errors.As(err, &he) || he.Status != 401 {
		t.Fatalf("expected HTTP 401 error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestChatStream_AssemblesDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c1","type":"function","function":{"name":"click","arguments":"{\"x\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"5}"}}]},"finish_reason":"tool_calls"}]}`,
		}
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var chunks []string
	var done bool
	p := NewOpenAIProvider("openai", "", srv.URL, "m")
	resp, err := p.ChatStream(context.Background(), ChatRequest{}, func(c StreamChunk) {
		if c.Done {
			done = true
			return
		}
		chunks = append(chunks, c.Content)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if resp.Content != "Hello" {
		t.Errorf("expected Hello, got %q", resp.Content)
	}
	if len(chunks) != 2 || !done {
		t.Errorf("expected 2 chunks and done, got %v done=%v", chunks, done)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Arguments != `{"x":5}` {
		t.Errorf("expected assembled tool call, got %+v", resp.ToolCalls)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("expected finish tool_calls, got %q", resp.FinishReason)
	}
}

func TestBackoffWithJitter_Bounds(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		if d < 75*time.Millisecond || d > 1250*time.Millisecond {
			t.Errorf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}

func TestNew_Volcengine(t *testing.T) {
	p := New("volcengine", "k", "", "", 0)
	if p.Name() != "volcengine" {
		t.Errorf("expected volcengine, got %s", p.Name())
	}
	if p.DefaultModel() == "" {
		t.Error("expected a default model")
	}
}

