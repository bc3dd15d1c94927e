// Package bus carries protocol messages between the client and the agents
// over two bounded queues, and routes inbound control messages.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

const defaultCapacity = 100

// ErrClosed is returned when publishing to a closed bus.
var ErrClosed = errors.New("bus closed")

// MessageBus holds the inbound (client -> agents) and outbound
// (agents -> client) queues.
type MessageBus struct {
	inbound  chan protocol.Message
	outbound chan protocol.Message

	// mu is held for reading by publishers so Close never closes a queue
	// under a pending send; done releases publishers blocked on a full queue.
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a bus whose queues hold capacity messages each (0 = 100).
func New(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MessageBus{
		inbound:  make(chan protocol.Message, capacity),
		outbound: make(chan protocol.Message, capacity),
		done:     make(chan struct{}),
	}
}

// PublishInbound queues a message from the client. Blocks while the queue is full.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg protocol.Message) error {
	return mb.publish(ctx, mb.inbound, msg)
}

func (mb *MessageBus) publish(ctx context.Context, ch chan protocol.Message, msg protocol.Message) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return ErrClosed
	}
	select {
	case ch <- msg:
		return nil
	case <-mb.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeInbound blocks until an inbound message is available or ctx is cancelled.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (protocol.Message, bool) {
	select {
	case msg, ok := <-mb.inbound:
		return msg, ok
	case <-ctx.Done():
		return protocol.Message{}, false
	}
}

// PollInbound waits at most timeout for an inbound message.
func (mb *MessageBus) PollInbound(timeout time.Duration) (protocol.Message, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case msg, ok := <-mb.inbound:
		return msg, ok
	case <-t.C:
		return protocol.Message{}, false
	}
}

// PublishOutbound queues a message for the client. Blocks while the queue is full.
func (mb *MessageBus) PublishOutbound(ctx context.Context, msg protocol.Message) error {
	return mb.publish(ctx, mb.outbound, msg)
}

// Emit queues a message for the client without blocking; it is dropped when
// the queue is full. Used for progress output that may be lost.
func (mb *MessageBus) Emit(msg protocol.Message) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	select {
	case mb.outbound <- msg:
	default:
		slog.Debug("bus: outbound full, dropping message", "sender", msg.Sender, "type", msg.Kind)
	}
}

// SubscribeOutbound blocks until an outbound message is available or ctx is cancelled.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (protocol.Message, bool) {
	select {
	case msg, ok := <-mb.outbound:
		return msg, ok
	case <-ctx.Done():
		return protocol.Message{}, false
	}
}

// Close shuts down both queues. Later publishes return ErrClosed; Emit
// becomes a no-op.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)
		mb.mu.Lock()
		defer mb.mu.Unlock()
		mb.closed = true
		close(mb.inbound)
		close(mb.outbound)
	})
}
