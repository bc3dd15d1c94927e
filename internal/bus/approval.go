package bus

import (
	"context"
	"sync"

	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

// ApprovalGate blocks code execution until the client approves or denies it.
type ApprovalGate struct {
	bus  *MessageBus
	auto bool

	awaitMu sync.Mutex // one outstanding request at a time
	mu      sync.Mutex
	pending chan bool
}

// NewApprovalGate creates a gate. With autoApprove every request is granted immediately.
func NewApprovalGate(b *MessageBus, autoApprove bool) *ApprovalGate {
	return &ApprovalGate{bus: b, auto: autoApprove}
}

// Await publishes "<label>need_permission" from sender and waits for the verdict.
func (g *ApprovalGate) Await(ctx context.Context, sender, label string) (bool, error) {
	if g == nil || g.auto {
		return true, nil
	}

	g.awaitMu.Lock()
	defer g.awaitMu.Unlock()

	ch := make(chan bool, 1)
	g.mu.Lock()
	g.pending = ch
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.pending = nil
		g.mu.Unlock()
	}()

	req := protocol.NewRequest(sender, label+protocol.RequestNeedPermission)
	if err := g.bus.PublishOutbound(ctx, req); err != nil {
		return false, err
	}

	select {
	case approved := <-ch:
		return approved, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve delivers a verdict to the waiting request. Returns false if nothing was waiting.
func (g *ApprovalGate) Resolve(approved bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return false
	}
	select {
	case g.pending <- approved:
	default:
	}
	g.pending = nil
	return true
}
