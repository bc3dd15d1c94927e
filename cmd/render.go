package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/argus/internal/agent"
	"github.com/nextlevelbuilder/argus/internal/bus"
	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

const defaultWidth = 120

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	resultStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	senderStyles = map[string]lipgloss.Style{
		protocol.SenderOrchestrator: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")),
		protocol.SenderGUIAgent:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		protocol.SenderCodeAgent:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")),
	}
)

// renderer is the only outbound consumer. It prints the status stream and
// answers permission and intervention requests with interactive prompts.
type renderer struct {
	bus   *bus.MessageBus
	out   io.Writer
	width int

	streaming bool // an ai_content line is open
	results   chan string
}

func newRenderer(b *bus.MessageBus, out io.Writer) *renderer {
	width := defaultWidth
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 20 {
		width = n
	}
	return &renderer{bus: b, out: out, width: width, results: make(chan string, 1)}
}

func (r *renderer) run(ctx context.Context) {
	for {
		msg, ok := r.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		r.render(ctx, msg)
	}
}

// showResult queues the task outcome behind everything already emitted and
// waits until it is printed.
func (r *renderer) showResult(ctx context.Context, text string) {
	if err := r.bus.PublishOutbound(ctx, protocol.NewText(protocol.SenderClient, text)); err != nil {
		return
	}
	select {
	case <-r.results:
	case <-ctx.Done():
	}
}

func (r *renderer) render(ctx context.Context, msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindStatus:
		r.status(msg)
	case protocol.KindAIContent:
		if !r.streaming {
			r.breakLine()
			fmt.Fprint(r.out, tag(msg.Sender)+" ")
			r.streaming = true
		}
		fmt.Fprint(r.out, msg.Text())
	case protocol.KindText:
		if msg.Sender == protocol.SenderClient {
			r.result(msg.Text())
			return
		}
		r.line(msg.Sender, msg.Text())
	case protocol.KindToolResult:
		tr, ok := msg.Content.(*protocol.ToolResult)
		if !ok {
			return
		}
		if tr.Success {
			r.line(msg.Sender, okStyle.Render("✓ "+tr.Function))
		} else {
			r.line(msg.Sender, errStyle.Render(fmt.Sprintf("✗ %s (%s)", tr.Function, tr.ErrorType)))
		}
	case protocol.KindActionPoint:
		p, ok := msg.Content.(*protocol.ActionPoint)
		if !ok {
			return
		}
		text := fmt.Sprintf("→ %s at (%d, %d)", p.Action, p.X, p.Y)
		if p.EndX != 0 || p.EndY != 0 {
			text += fmt.Sprintf(" to (%d, %d)", p.EndX, p.EndY)
		}
		r.line(msg.Sender, dimStyle.Render(text))
	case protocol.KindRequest:
		if msg.IsPermissionRequest() {
			r.breakLine()
			r.askPermission(ctx, msg)
			return
		}
		r.line(msg.Sender, msg.Text())
	case protocol.KindHumanIntervention:
		req, ok := msg.Content.(*protocol.InterventionRequest)
		if !ok {
			return
		}
		r.breakLine()
		r.askHuman(ctx, req)
	case protocol.KindHumanResponse:
		slog.Debug("render: ignoring outbound human response")
	default:
		slog.Warn("render: unknown message type", "type", msg.Kind)
	}
}

func (r *renderer) status(msg protocol.Message) {
	switch s := msg.Text(); s {
	case protocol.EventStreamBegin:
	case protocol.EventStreamEnd:
		r.breakLine()
	case protocol.EventRunStarted:
		r.line(msg.Sender, dimStyle.Render("started"))
	case protocol.EventRunStopped:
		r.line(msg.Sender, dimStyle.Render("stopped"))
	case protocol.EventTaskCompleted:
		r.line(msg.Sender, okStyle.Render("task completed"))
	case protocol.EventTaskFailed, protocol.EventLLMError, protocol.EventMaxIterations:
		r.line(msg.Sender, errStyle.Render(s))
	case protocol.EventHumanWaiting:
		r.line(msg.Sender, warnStyle.Render("waiting for a human"))
	default:
		if strings.HasPrefix(s, "Error: ") {
			r.line(msg.Sender, errStyle.Render(r.truncate(s)))
			return
		}
		r.line(msg.Sender, dimStyle.Render(r.truncate(s)))
	}
}

func (r *renderer) line(sender, text string) {
	r.breakLine()
	fmt.Fprintln(r.out, tag(sender)+" "+text)
}

func (r *renderer) result(text string) {
	r.breakLine()
	style := resultStyle.BorderForeground(lipgloss.Color("2"))
	if strings.HasPrefix(text, agent.ResultFailed) {
		style = resultStyle.BorderForeground(lipgloss.Color("1"))
	}
	fmt.Fprintln(r.out, style.Width(min(r.width-2, lipgloss.Width(text)+4)).Render(text))
	select {
	case r.results <- text:
	default:
	}
}

func (r *renderer) breakLine() {
	if r.streaming {
		fmt.Fprintln(r.out)
		r.streaming = false
	}
}

func (r *renderer) truncate(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, r.width-16, "…")
}

func tag(sender string) string {
	style, ok := senderStyles[sender]
	if !ok {
		style = dimStyle
	}
	return style.Render("[" + sender + "]")
}
