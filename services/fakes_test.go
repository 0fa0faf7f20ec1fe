package services

import (
	"chat-relay/domain/event"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// RecordSink captures every delivered event; the registry fans out from
// goroutines, so access is synchronized.
type RecordSink struct {
	mu       sync.Mutex
	consumed []event.DomainEvent
}

func (s *RecordSink) Consume(ctx context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumed = append(s.consumed, e)
	return nil
}

func (s *RecordSink) Events() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.DomainEvent(nil), s.consumed...)
}

func (s *RecordSink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.consumed))
	for _, e := range s.consumed {
		names = append(names, e.EventName())
	}
	return names
}

// stack wires the full coordination layer on a throwaway database, the same
// shape the server assembles at boot.
type stack struct {
	registry    *runtime.Registry
	broker      IMessageBroker
	coordinator IGroupCoordinator
	messages    repositories.IMessageRepository
	memberships repositories.IMembershipRepository
	users       repositories.IUserRepository
	locks       *GroupLocks
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	messages := repositories.NewMessageRepository(db, log, nil)
	memberships := repositories.NewMembershipRepository(db)
	users := repositories.NewUserRepository(db)

	moderator, err := moderation.NewModerator([]string{"heck"}, '*')
	require.NoError(t, err)

	registry := runtime.NewRegistry(log, 100*time.Millisecond)
	gate := NewAuthorizationGate(memberships, users)
	groupLocks := NewGroupLocks()

	return &stack{
		registry: registry,
		broker: NewMessageBroker(log, gate, messages, memberships, registry,
			moderator, groupLocks, 256),
		coordinator: NewGroupCoordinator(log, gate, memberships,
			repositories.NewGroupCascade(db), registry, groupLocks),
		messages:    messages,
		memberships: memberships,
		users:       users,
		locks:       groupLocks,
	}
}

// connect registers a live connection for an identity and returns its sink.
func (s *stack) connect(t *testing.T, connectionID, identity string) *RecordSink {
	t.Helper()
	sink := &RecordSink{}
	require.NoError(t, s.registry.Register(connectionID, identity, sink))
	return sink
}

// newGroup creates a group with the given durable members and subscribes
// every already-live connection of those members.
func (s *stack) newGroup(t *testing.T, name string, members ...string) uuid.UUID {
	t.Helper()
	group, err := s.memberships.CreateGroup(name)
	require.NoError(t, err)
	for _, member := range members {
		require.NoError(t, s.memberships.AddMembership(member, group.ID))
		for _, connectionID := range s.registry.ConnectionsForIdentity(member) {
			require.NoError(t, s.registry.Subscribe(connectionID, group.ID))
		}
	}
	return group.ID
}
