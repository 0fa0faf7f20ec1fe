package runtime

import (
	"chat-relay/domain/event"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Sink struct {
	consumed []event.DomainEvent
}

func (s *Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	s.consumed = append(s.consumed, e)
	return nil
}

// BlockingSink never accepts; Consume fails once the delivery window closes.
type BlockingSink struct{}

func (BlockingSink) Consume(ctx context.Context, e event.DomainEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.Default(), 50*time.Millisecond)
}

func TestRegistry_Register_One_Identity_Two_Connections(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	identity := uuid.NewString()

	// Given nothing is connected
	connections, groups := registry.Stats()
	req.Zero(connections)
	req.Zero(groups)

	// When one identity registers from two devices
	req.NoError(registry.Register("conn-1", identity, &Sink{}))
	req.NoError(registry.Register("conn-2", identity, &Sink{}))

	// Then both connections resolve for the identity
	req.ElementsMatch([]string{"conn-1", "conn-2"}, registry.ConnectionsForIdentity(identity))
	connections, _ = registry.Stats()
	req.Equal(2, connections)
}

func TestRegistry_Register_Duplicate_Connection_Fails(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()

	// Given a registered connection
	req.NoError(registry.Register("conn-1", "alice", &Sink{}))

	// When the same connection id registers again
	err := registry.Register("conn-1", "alice", &Sink{})

	// Then the duplicate is rejected and the original stays intact
	req.Error(err)
	req.Equal([]string{"conn-1"}, registry.ConnectionsForIdentity("alice"))
}

func TestRegistry_Subscribe_One_Group_Multiple_Connections(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	groupID := uuid.New()

	// Given two live connections
	req.NoError(registry.Register("conn-1", "alice", &Sink{}))
	req.NoError(registry.Register("conn-2", "bob", &Sink{}))

	// When both subscribe to the same group
	req.NoError(registry.Subscribe("conn-1", groupID))
	req.NoError(registry.Subscribe("conn-2", groupID))

	// Then both are live subscribers
	req.ElementsMatch([]string{"conn-1", "conn-2"}, registry.ConnectionsForGroup(groupID))
}

func TestRegistry_Subscribe_Unknown_Connection_Fails(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()

	// When an unregistered connection subscribes
	err := registry.Subscribe("ghost", uuid.New())

	// Then the subscription is refused
	req.Error(err)
}

func TestRegistry_Unsubscribe_Reclaims_Empty_Group(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	groupID := uuid.New()

	// Given one subscriber
	req.NoError(registry.Register("conn-1", "alice", &Sink{}))
	req.NoError(registry.Subscribe("conn-1", groupID))
	_, groups := registry.Stats()
	req.Equal(1, groups)

	// When the last subscriber leaves
	registry.Unsubscribe("conn-1", groupID)

	// Then the group entry is gone
	req.Empty(registry.ConnectionsForGroup(groupID))
	_, groups = registry.Stats()
	req.Zero(groups)
}

func TestRegistry_Unregister_Removes_All_Subscriptions(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	groupA := uuid.New()
	groupB := uuid.New()

	// Given one connection subscribed to two groups, another holding groupA open
	req.NoError(registry.Register("conn-1", "alice", &Sink{}))
	req.NoError(registry.Register("conn-2", "bob", &Sink{}))
	req.NoError(registry.Subscribe("conn-1", groupA))
	req.NoError(registry.Subscribe("conn-1", groupB))
	req.NoError(registry.Subscribe("conn-2", groupA))

	// When the first connection unregisters
	registry.Unregister("conn-1")

	// Then it is gone from both groups and from the identity mapping
	req.Equal([]string{"conn-2"}, registry.ConnectionsForGroup(groupA))
	req.Empty(registry.ConnectionsForGroup(groupB))
	req.Empty(registry.ConnectionsForIdentity("alice"))
}

func TestRegistry_Unregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()

	// Given a registered then unregistered connection
	req.NoError(registry.Register("conn-1", "alice", &Sink{}))
	registry.Unregister("conn-1")

	// When the disconnect signal arrives a second time
	registry.Unregister("conn-1")

	// Then nothing changes
	connections, _ := registry.Stats()
	req.Zero(connections)
}

func TestRegistry_Deliver_Pushes_To_Every_Connection(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	sink1 := &Sink{}
	sink2 := &Sink{}

	// Given two live connections
	req.NoError(registry.Register("conn-1", "alice", sink1))
	req.NoError(registry.Register("conn-2", "alice", sink2))

	// When an event is delivered to both
	e := event.Error{Reason: "ping"}
	registry.Deliver(context.Background(), []string{"conn-1", "conn-2"}, e)

	// Then each sink consumed it exactly once
	req.Equal([]event.DomainEvent{e}, sink1.consumed)
	req.Equal([]event.DomainEvent{e}, sink2.consumed)
}

func TestRegistry_Deliver_Drops_Stalled_Connection(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	healthy := &Sink{}

	// Given one healthy and one stalled connection
	req.NoError(registry.Register("conn-1", "alice", healthy))
	req.NoError(registry.Register("conn-2", "bob", BlockingSink{}))

	// When delivery targets both
	registry.Deliver(context.Background(), []string{"conn-1", "conn-2"}, event.Error{Reason: "ping"})

	// Then the healthy connection got the event and the stalled one was dropped
	req.Len(healthy.consumed, 1)
	req.Empty(registry.ConnectionsForIdentity("bob"))
	req.Equal([]string{"conn-1"}, registry.ConnectionsForIdentity("alice"))
}

func TestRegistry_Concurrent_Subscribe_Never_Loses_Subscriber(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	groupID := uuid.New()

	// Churn register/subscribe/unregister on one group from many goroutines,
	// so the empty-group reclaim constantly races fresh subscriptions.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var lost []string
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			connectionID := fmt.Sprintf("conn-%d", w)
			identity := fmt.Sprintf("identity-%d", w)
			for i := 0; i < 2000; i++ {
				if err := registry.Register(connectionID, identity, &Sink{}); err != nil {
					continue
				}
				if err := registry.Subscribe(connectionID, groupID); err == nil {
					visible := false
					for _, id := range registry.ConnectionsForGroup(groupID) {
						if id == connectionID {
							visible = true
							break
						}
					}
					if !visible {
						mu.Lock()
						lost = append(lost, connectionID)
						mu.Unlock()
					}
				}
				registry.Unregister(connectionID)
			}
		}(w)
	}
	wg.Wait()

	// Then every acknowledged subscription stayed visible until its own
	// unregister
	req.Empty(lost)

	// And the churn left nothing behind
	connections, groups := registry.Stats()
	req.Zero(connections)
	req.Zero(groups)
}

func TestRegistry_Deliver_Skips_Unknown_Connections(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	sink := &Sink{}
	req.NoError(registry.Register("conn-1", "alice", sink))

	// When the target list contains a connection that already disconnected
	registry.Deliver(context.Background(), []string{"conn-1", "gone"}, event.Error{Reason: "ping"})

	// Then delivery still reaches the live one
	req.Len(sink.consumed, 1)
}
