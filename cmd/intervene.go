package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nextlevelbuilder/argus/internal/agent"
	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

// Intervention menu choices; retry variants map onto ActionRetry.
const (
	choiceRetry     = "retry"
	choiceRetryGUI  = "retry_gui"
	choiceRetryCode = "retry_code"
)

var interventionOptions = []SelectOption[string]{
	{Label: "Retry (pick the strategy again)", Value: choiceRetry},
	{Label: "Retry with the GUI agent", Value: choiceRetryGUI},
	{Label: "Retry with the code agent", Value: choiceRetryCode},
	{Label: "Rewrite the task", Value: protocol.ActionModifyTask},
	{Label: "Add context and retry", Value: protocol.ActionProvideContext},
	{Label: "I finished it myself", Value: protocol.ActionCompleted},
	{Label: "Skip this task", Value: protocol.ActionSkip},
}

// askPermission asks whether the requesting agent may run its next code block.
func (r *renderer) askPermission(ctx context.Context, msg protocol.Message) {
	label := strings.TrimSuffix(msg.Text(), protocol.RequestNeedPermission)
	approved, err := promptConfirm(fmt.Sprintf("%s wants to execute code %s. Allow?", msg.Sender, label), true)
	if err != nil {
		slog.Warn("render: permission prompt aborted, denying", "error", err)
		approved = false
	}
	verdict := protocol.RequestDeny
	if approved {
		verdict = protocol.RequestApprove
	}
	if err := r.bus.PublishInbound(ctx, protocol.NewRequest(protocol.SenderClient, verdict)); err != nil {
		slog.Error("render: publish verdict", "error", err)
	}
}

// askHuman shows why the task failed and publishes the chosen response.
func (r *renderer) askHuman(ctx context.Context, req *protocol.InterventionRequest) {
	var b strings.Builder
	fmt.Fprintf(&b, "Both agents failed (round %d of %d).\n", req.RetryCount, req.MaxRetries)
	fmt.Fprintf(&b, "Task: %s\n", r.truncate(req.CurrentTask))
	for _, e := range req.Errors {
		fmt.Fprintf(&b, "\n- %s", r.truncate(e))
	}
	fmt.Fprintln(r.out, resultStyle.BorderForeground(lipgloss.Color("3")).Render(b.String()))

	resp, err := promptIntervention(req)
	if err != nil {
		slog.Warn("render: intervention prompt aborted, skipping task", "error", err)
		resp = &protocol.HumanResponse{Action: protocol.ActionSkip}
	}
	if err := r.bus.PublishInbound(ctx, protocol.NewHumanResponse(protocol.SenderClient, resp)); err != nil {
		slog.Error("render: publish human response", "error", err)
	}
}

func promptIntervention(req *protocol.InterventionRequest) (*protocol.HumanResponse, error) {
	choice, err := promptSelect("How should argus continue?", interventionOptions, 0)
	if err != nil {
		return nil, err
	}

	switch choice {
	case choiceRetry:
		return &protocol.HumanResponse{Action: protocol.ActionRetry}, nil
	case choiceRetryGUI:
		return &protocol.HumanResponse{Action: protocol.ActionRetry, ForceAgent: agent.StrategyGUI}, nil
	case choiceRetryCode:
		return &protocol.HumanResponse{Action: protocol.ActionRetry, ForceAgent: agent.StrategyCode}, nil
	case protocol.ActionModifyTask:
		text, err := promptString("New task", "Leave empty to keep the current task.", req.CurrentTask)
		if err != nil {
			return nil, err
		}
		return &protocol.HumanResponse{Action: protocol.ActionModifyTask, ModifiedTask: text}, nil
	case protocol.ActionProvideContext:
		text, err := promptString("Context", "Anything the agents should know on the next attempt.", "")
		if err != nil {
			return nil, err
		}
		return &protocol.HumanResponse{Action: protocol.ActionProvideContext, Context: text}, nil
	default:
		return &protocol.HumanResponse{Action: choice}, nil
	}
}
