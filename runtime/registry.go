// Package runtime tracks live connections and fans events out to them.
// It orchestrates delivery without containing business logic or domain rules.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Set map[string]struct{}

// connEntry is one live connection. Its own mutex guards the subscription
// set so concurrent subscribe calls for different connections never contend.
type connEntry struct {
	mu       sync.Mutex
	identity string
	sink     contract.EventSink
	groups   map[uuid.UUID]struct{}
	closed   bool
}

// groupEntry owns one group's live subscriber set behind its own lock, so
// fan-out for unrelated groups proceeds in parallel. A reclaimed entry is
// marked dead under its lock and must never accept new subscribers.
type groupEntry struct {
	mu   sync.RWMutex
	subs Set
	dead bool
}

// Registry is the authoritative mapping from connection to identity and from
// group to subscribed connections. Lock order is always topology lock, then
// connection entry, then group entry.
//
// The registry answers only "who is currently listening"; durable membership
// is always the source of truth for "who is a member".
type Registry struct {
	mu              sync.RWMutex // guards the three maps, not entry contents
	conns           map[string]*connEntry
	identities      map[string]Set // identity -> connection ids
	groups          map[uuid.UUID]*groupEntry
	log             *slog.Logger
	deliveryTimeout time.Duration
}

func NewRegistry(log *slog.Logger, deliveryTimeout time.Duration) *Registry {
	return &Registry{
		conns:           make(map[string]*connEntry),
		identities:      make(map[string]Set),
		groups:          make(map[uuid.UUID]*groupEntry),
		log:             log,
		deliveryTimeout: deliveryTimeout,
	}
}

// Register records a new live connection for an identity. Re-registration of
// a known connection id is a caller bug and fails with ErrConflict.
func (r *Registry) Register(connectionID, identity string, sink contract.EventSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connectionID]; ok {
		return fmt.Errorf("%w: connection %s", errors.ErrConflict, connectionID)
	}

	r.conns[connectionID] = &connEntry{
		identity: identity,
		sink:     sink,
		groups:   make(map[uuid.UUID]struct{}),
	}
	if _, ok := r.identities[identity]; !ok {
		r.identities[identity] = make(Set)
	}
	r.identities[identity][connectionID] = struct{}{}
	return nil
}

// Unregister removes the connection and every subscription it holds.
// Idempotent: duplicate disconnect signals are a no-op, not an error.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	conn, ok := r.conns[connectionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connectionID)
	if owned, exists := r.identities[conn.identity]; exists {
		delete(owned, connectionID)
		if len(owned) == 0 {
			delete(r.identities, conn.identity)
		}
	}
	r.mu.Unlock()

	conn.mu.Lock()
	conn.closed = true
	subscribed := make([]uuid.UUID, 0, len(conn.groups))
	for groupID := range conn.groups {
		subscribed = append(subscribed, groupID)
	}
	conn.groups = nil
	conn.mu.Unlock()

	for _, groupID := range subscribed {
		r.dropSubscriber(connectionID, groupID)
	}
}

// Subscribe adds the connection to a group's live subscriber set. The entry
// is re-checked once its lock is held: the empty-group reclaim may have
// retired it between lookup and insert, in which case a fresh entry is taken.
// Inserting into a retired entry would acknowledge the subscription while
// ConnectionsForGroup never sees it again.
func (r *Registry) Subscribe(connectionID string, groupID uuid.UUID) error {
	r.mu.RLock()
	conn, ok := r.conns[connectionID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrNotRegistered, connectionID)
	}

	for {
		g := r.entryForGroup(groupID)

		conn.mu.Lock()
		if conn.closed {
			conn.mu.Unlock()
			return fmt.Errorf("%w: %s", errors.ErrNotRegistered, connectionID)
		}
		g.mu.Lock()
		if g.dead {
			g.mu.Unlock()
			conn.mu.Unlock()
			continue
		}
		conn.groups[groupID] = struct{}{}
		g.subs[connectionID] = struct{}{}
		g.mu.Unlock()
		conn.mu.Unlock()
		return nil
	}
}

// entryForGroup returns the group's live entry, creating one when absent.
func (r *Registry) entryForGroup(groupID uuid.UUID) *groupEntry {
	r.mu.RLock()
	g := r.groups[groupID]
	r.mu.RUnlock()
	if g != nil {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g = r.groups[groupID]; g == nil {
		g = &groupEntry{subs: make(Set)}
		r.groups[groupID] = g
	}
	return g
}

// Unsubscribe removes the connection from the group's subscriber set.
// No-op when the connection is unknown or not currently subscribed.
func (r *Registry) Unsubscribe(connectionID string, groupID uuid.UUID) {
	r.mu.RLock()
	conn := r.conns[connectionID]
	r.mu.RUnlock()

	if conn != nil {
		conn.mu.Lock()
		if !conn.closed {
			delete(conn.groups, groupID)
		}
		conn.mu.Unlock()
	}
	r.dropSubscriber(connectionID, groupID)
}

// dropSubscriber removes one connection from a group entry and reclaims the
// entry once its subscriber set is empty.
func (r *Registry) dropSubscriber(connectionID string, groupID uuid.UUID) {
	r.mu.RLock()
	g := r.groups[groupID]
	r.mu.RUnlock()
	if g == nil {
		return
	}

	g.mu.Lock()
	delete(g.subs, connectionID)
	empty := len(g.subs) == 0
	g.mu.Unlock()

	if empty {
		r.mu.Lock()
		if g = r.groups[groupID]; g != nil {
			g.mu.Lock()
			if len(g.subs) == 0 {
				g.dead = true
				delete(r.groups, groupID)
			}
			g.mu.Unlock()
		}
		r.mu.Unlock()
	}
}

// ConnectionsForIdentity resolves every live connection owned by an
// identity, used for direct-message delivery across multiple devices.
func (r *Registry) ConnectionsForIdentity(identity string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned, ok := r.identities[identity]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(owned))
	for connectionID := range owned {
		ids = append(ids, connectionID)
	}
	return ids
}

// ConnectionsForGroup resolves the group's current live subscriber set.
func (r *Registry) ConnectionsForGroup(groupID uuid.UUID) []string {
	r.mu.RLock()
	g := r.groups[groupID]
	r.mu.RUnlock()
	if g == nil {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.subs))
	for connectionID := range g.subs {
		ids = append(ids, connectionID)
	}
	return ids
}

// Stats reports how many connections are live and how many groups currently
// have at least one subscriber. Used by the telemetry worker.
func (r *Registry) Stats() (connections, groups int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns), len(r.groups)
}

// Deliver pushes one event to each listed connection, best effort. Every
// connection gets its own timeout so a dead socket never blocks or fails
// delivery to the rest; a connection that cannot accept the event within the
// window is treated as dropped and unregistered.
func (r *Registry) Deliver(ctx context.Context, connectionIDs []string, e event.DomainEvent) {
	var wg sync.WaitGroup
	for _, connectionID := range connectionIDs {
		r.mu.RLock()
		conn := r.conns[connectionID]
		r.mu.RUnlock()
		if conn == nil {
			continue
		}

		wg.Add(1)
		go func(connectionID string, sink contract.EventSink) {
			defer wg.Done()
			deliveryCtx, cancel := context.WithTimeout(ctx, r.deliveryTimeout)
			defer cancel()

			if err := sink.Consume(deliveryCtx, e); err != nil {
				r.log.Warn("Delivery failed, dropping connection",
					"connection_id", connectionID,
					"event", e.EventName(),
					"error", err)
				r.Unregister(connectionID)
			}
		}(connectionID, conn.sink)
	}
	wg.Wait()
}
