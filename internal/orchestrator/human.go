package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

// ErrHumanTimeout is returned when no human response arrives in time.
var ErrHumanTimeout = errors.New("human intervention timeout")

// waitForHuman publishes req and polls the response channel until an answer
// arrives, the configured timeout passes or ctx is done. The timeout starts
// once the request has been handed to the client.
func (o *Orchestrator) waitForHuman(ctx context.Context, req *protocol.InterventionRequest) (*protocol.HumanResponse, error) {
	cfg, _ := o.settings()

	// Answers to an earlier request are stale.
	o.drainResponses()

	slog.Warn("orchestrator: every strategy failed, requesting human intervention", "retry", req.RetryCount, "errors", len(req.Errors))
	if err := o.publish(ctx, protocol.NewIntervention(protocol.SenderOrchestrator, req)); err != nil {
		return nil, err
	}
	o.emit(protocol.NewStatus(protocol.SenderOrchestrator, protocol.EventHumanWaiting))
	o.say("[waiting for human] please help...")

	ch := o.responses
	deadline := time.Now().Add(cfg.HumanTimeout)
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			if resp == nil {
				continue
			}
			slog.Info("orchestrator: human response", "action", resp.Action)
			return resp, nil
		case now := <-ticker.C:
			if !now.Before(deadline) {
				slog.Error("orchestrator: human intervention timed out", "timeout", cfg.HumanTimeout)
				return nil, ErrHumanTimeout
			}
		}
	}
}

func (o *Orchestrator) drainResponses() {
	for {
		select {
		case resp, ok := <-o.responses:
			if !ok {
				return
			}
			if resp != nil {
				slog.Debug("orchestrator: dropping stale human response", "action", resp.Action)
			}
		default:
			return
		}
	}
}
