package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

// Dispatcher is the single consumer of the inbound queue. It routes stop
// requests to the active run, verdicts to the approval gate and human
// responses to the orchestrator.
type Dispatcher struct {
	bus  *MessageBus
	gate *ApprovalGate

	mu     sync.Mutex
	cancel context.CancelFunc
	runID  string

	responses chan *protocol.HumanResponse
}

// NewDispatcher creates a dispatcher. gate may be nil.
func NewDispatcher(b *MessageBus, gate *ApprovalGate) *Dispatcher {
	return &Dispatcher{
		bus:       b,
		gate:      gate,
		responses: make(chan *protocol.HumanResponse, 4),
	}
}

// Responses delivers human responses in arrival order.
func (d *Dispatcher) Responses() <-chan *protocol.HumanResponse {
	return d.responses
}

// BeginRun registers cancel as the active run's stop function.
// The returned func unregisters it and must be called when the run ends.
func (d *Dispatcher) BeginRun(runID string, cancel context.CancelFunc) func() {
	d.mu.Lock()
	d.cancel = cancel
	d.runID = runID
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.runID == runID {
			d.cancel = nil
			d.runID = ""
		}
	}
}

// Run drains the inbound queue until ctx is cancelled or the bus closes.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		msg, ok := d.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		d.Route(msg)
	}
}

// Route handles one inbound message.
func (d *Dispatcher) Route(msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindRequest:
		if msg.IsStop() {
			d.stopActive()
			return
		}
		if approved, ok := msg.IsApproval(); ok {
			if d.gate == nil || !d.gate.Resolve(approved) {
				slog.Warn("bus: verdict with no pending permission request", "approved", approved)
			}
			return
		}
		slog.Warn("bus: unhandled request", "content", msg.Text())

	case protocol.KindHumanResponse:
		resp, ok := msg.Content.(*protocol.HumanResponse)
		if !ok {
			slog.Warn("bus: human_response without structured content", "content_type", fmt.Sprintf("%T", msg.Content))
			return
		}
		select {
		case d.responses <- resp:
		default:
			slog.Warn("bus: human response dropped, nobody is waiting", "action", resp.Action)
		}

	case protocol.KindStatus, protocol.KindAIContent, protocol.KindText,
		protocol.KindToolResult, protocol.KindActionPoint, protocol.KindHumanIntervention:
		slog.Debug("bus: ignoring inbound message", "type", msg.Kind, "sender", msg.Sender)

	default:
		slog.Warn("bus: unknown inbound message type", "type", msg.Kind)
	}
}

func (d *Dispatcher) stopActive() {
	d.mu.Lock()
	cancel, runID := d.cancel, d.runID
	d.mu.Unlock()

	if cancel == nil {
		slog.Info("bus: stop requested but nothing is running")
		return
	}
	slog.Info("bus: stopping active run", "run_id", runID)
	cancel()
}
