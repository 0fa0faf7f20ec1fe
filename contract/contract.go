package contract

import (
	"chat-relay/domain/event"
	"context"
	"reflect"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself. Supervision, restarts and panic recovery
// belong to the supervisor.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// used for logging and supervision without forcing a naming method onto the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one live connection's inbox. Consume must respect ctx: a sink
// that cannot accept the event before ctx expires reports a delivery failure
// and is treated as dropped.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry is the authoritative in-memory view of live connections. It
// holds no durable truth and is rebuilt from nothing on process restart.
type IRegistry interface {
	Register(connectionID, identity string, sink EventSink) error
	Unregister(connectionID string)
	Subscribe(connectionID string, groupID uuid.UUID) error
	Unsubscribe(connectionID string, groupID uuid.UUID)
	ConnectionsForIdentity(identity string) []string
	ConnectionsForGroup(groupID uuid.UUID) []string
	Deliver(ctx context.Context, connectionIDs []string, e event.DomainEvent)
}
