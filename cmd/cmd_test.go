package cmd

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/argus/internal/bus"
	"github.com/nextlevelbuilder/argus/internal/config"
	"github.com/nextlevelbuilder/argus/internal/device"
	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

func newTestRenderer() (*renderer, *bytes.Buffer) {
	var buf bytes.Buffer
	r := newRenderer(bus.New(8), &buf)
	r.width = 80
	return r, &buf
}

func TestRender_ToolResultsAndActionPoints(t *testing.T) {
	r, buf := newTestRenderer()
	ctx := context.Background()

	r.render(ctx, protocol.NewToolResult(protocol.SenderGUIAgent, "mouse_click", true, ""))
	r.render(ctx, protocol.NewToolResult(protocol.SenderCodeAgent, "execute_code", false, protocol.ErrDenied))
	r.render(ctx, protocol.NewActionPoint(protocol.SenderGUIAgent, &protocol.ActionPoint{Action: "drag", X: 10, Y: 20, EndX: 30, EndY: 40}))

	out := buf.String()
	for _, want := range []string{
		"[GUIAgent]",
		"✓ mouse_click",
		"✗ execute_code (permission_denied)",
		"→ drag at (10, 20) to (30, 40)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRender_StreamClosesLineBeforeNextMessage(t *testing.T) {
	r, buf := newTestRenderer()
	ctx := context.Background()

	r.render(ctx, protocol.NewStatus(protocol.SenderGUIAgent, protocol.EventStreamBegin))
	r.render(ctx, protocol.NewAIContent(protocol.SenderGUIAgent, "Thought: open "))
	r.render(ctx, protocol.NewAIContent(protocol.SenderGUIAgent, "the menu"))
	r.render(ctx, protocol.NewText(protocol.SenderOrchestrator, "[router] next"))

	out := buf.String()
	if !strings.Contains(out, "Thought: open the menu\n") {
		t.Errorf("expected deltas joined on one line, got:\n%s", out)
	}
	if strings.Count(out, "[GUIAgent]") != 1 {
		t.Errorf("expected one sender tag for the stream, got:\n%s", out)
	}
	if r.streaming {
		t.Error("expected stream closed after a text message")
	}
}

func TestRender_ResultSignalsWaiter(t *testing.T) {
	r, buf := newTestRenderer()

	r.render(context.Background(), protocol.NewText(protocol.SenderClient, "Task finished: done"))

	select {
	case got := <-r.results:
		if got != "Task finished: done" {
			t.Errorf("expected result text, got %q", got)
		}
	default:
		t.Fatal("expected the result to be signalled")
	}
	if !strings.Contains(buf.String(), "Task finished: done") {
		t.Errorf("expected result printed, got:\n%s", buf.String())
	}
}

func TestRender_StatusErrorsAndEvents(t *testing.T) {
	r, buf := newTestRenderer()
	ctx := context.Background()

	r.render(ctx, protocol.NewStatus(protocol.SenderCodeAgent, "Error: boom"))
	r.render(ctx, protocol.NewStatus(protocol.SenderOrchestrator, protocol.EventHumanWaiting))
	r.render(ctx, protocol.NewStatus(protocol.SenderOrchestrator, protocol.EventTaskCompleted))

	out := buf.String()
	for _, want := range []string{"Error: boom", "waiting for a human", "task completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderer_TruncateWide(t *testing.T) {
	r, _ := newTestRenderer()
	r.width = 30

	got := r.truncate(strings.Repeat("打开记事本", 10))
	if w := runewidth.StringWidth(got); w > r.width-16 {
		t.Errorf("expected width <= %d, got %d (%q)", r.width-16, w, got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis, got %q", got)
	}
	if got := r.truncate("a\nb"); got != "a b" {
		t.Errorf("expected newlines flattened, got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestRedactConfig_MasksKeysWithoutMutating(t *testing.T) {
	cfg := config.Default()
	cfg.GUIAgent.APIKey = "sk-abcdefghijklmnop"
	cfg.CodeAgent.APIKey = "short"
	cfg.Telemetry.Headers = map[string]string{"authorization": "Bearer xyz"}

	red := redactConfig(cfg)
	if red.GUIAgent.APIKey != "sk-a***********mnop" {
		t.Errorf("expected masked gui key, got %q", red.GUIAgent.APIKey)
	}
	if red.CodeAgent.APIKey != "*****" {
		t.Errorf("expected fully masked short key, got %q", red.CodeAgent.APIKey)
	}
	if red.Telemetry.Headers["authorization"] != "****" {
		t.Errorf("expected masked header, got %q", red.Telemetry.Headers["authorization"])
	}
	if cfg.GUIAgent.APIKey != "sk-abcdefghijklmnop" || cfg.Telemetry.Headers["authorization"] != "Bearer xyz" {
		t.Error("expected the original config untouched")
	}
}

func TestLoopConfig_KeepImagesDefault(t *testing.T) {
	c := config.AgentConfig{Model: "m", MaxIterations: 7}
	lc := loopConfig(c, 2)
	if lc.KeepImages != 2 || lc.Model != "m" || lc.MaxIterations != 7 {
		t.Errorf("unexpected loop config %+v", lc)
	}

	zero := 0
	c.KeepImages = &zero
	if lc := loopConfig(c, 2); lc.KeepImages != 0 {
		t.Errorf("expected explicit 0 kept, got %d", lc.KeepImages)
	}
}

func TestOrchestratorConfig_FromFile(t *testing.T) {
	oc := orchestratorConfig(config.Default().Orchestrator)
	if oc.MaxRetries != 2 || oc.FallbackThreshold != 0.8 {
		t.Errorf("unexpected orchestrator config %+v", oc)
	}
	if oc.HumanTimeout.Seconds() != 300 || oc.PollInterval.Milliseconds() != 500 {
		t.Errorf("unexpected durations %v %v", oc.HumanTimeout, oc.PollInterval)
	}
}

func TestClassifierFor_BadExpression(t *testing.T) {
	_, err := classifierFor(config.OrchestratorConfig{SuccessExpr: "result +"})
	if err == nil {
		t.Fatal("expected compile error")
	}
	if !strings.Contains(err.Error(), "orchestrator classifier") {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestBuildDevice_NoneIsNop(t *testing.T) {
	ctrl, screen, err := buildDevice(config.DeviceConfig{Backend: "none"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := ctrl.(device.Nop); !ok {
		t.Errorf("expected Nop controller, got %T", ctrl)
	}
	if _, err := screen.Capture(context.Background()); err == nil {
		t.Error("expected capture to fail without a backend")
	}
}

func TestShutdown_WorkersStopBeforeBusCloses(t *testing.T) {
	mb := bus.New(1)
	a := &app{bus: mb, dispatcher: bus.NewDispatcher(mb, nil)}
	stopDispatcher := a.start(context.Background())
	s := &session{app: a}
	stopSignals := s.watchSignals(context.Background())

	done := make(chan struct{})
	go func() {
		stopSignals()
		stopDispatcher()
		mb.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the workers to stop promptly")
	}

	err := mb.PublishInbound(context.Background(), protocol.NewRequest(protocol.SenderClient, protocol.RequestStopAgent))
	if !errors.Is(err, bus.ErrClosed) {
		t.Errorf("expected ErrClosed after shutdown, got %v", err)
	}
}
