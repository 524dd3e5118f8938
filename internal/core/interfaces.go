package core

import (
	"context"

	"github.com/okatev/pulse/internal/domain"
)

// Frame is a raw outbound payload, already encoded for the wire.
type Frame []byte

// ConnID is process-local and unique per accepted socket.
type ConnID string

// Connection is one open bidirectional channel to a client.
// Owned by the adapter that accepted it; the adapter must Close() it.
type Connection interface {
	ID() ConnID
	User() domain.UserID

	// TrySend enqueues without blocking; ErrBackpressure when the
	// outbound queue is full.
	TrySend(Frame) error
	Close()
}

// Bus is the cross-process broadcast primitive the relay wraps. Delivery is
// at-least-once with no cross-publisher ordering; handlers must tolerate
// redelivery.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) error
	Close() error
}
