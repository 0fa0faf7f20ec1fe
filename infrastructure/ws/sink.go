package ws

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
)

// Sink is one connection's event inbox. The registry fans out into it; the
// write pump drains it onto the socket.
type Sink struct {
	events chan event.DomainEvent
}

func NewSink(bufferSize int) *Sink {
	return &Sink{events: make(chan event.DomainEvent, bufferSize)}
}

// Consume queues the event for the write pump. A full buffer that does not
// drain before ctx expires means the peer stopped reading; the registry
// treats that as a dropped connection.
func (s *Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: send buffer full", errors.ErrDeliveryFailure)
	}
}

// Events exposes the queue to the write pump.
func (s *Sink) Events() <-chan event.DomainEvent {
	return s.events
}
