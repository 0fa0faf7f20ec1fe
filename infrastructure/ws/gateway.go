// Package ws exposes the real-time surface: one WebSocket per device,
// authenticated before upgrade, registered in the connection registry for
// the lifetime of the socket.
package ws

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/repositories"
	"chat-relay/services"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Timeouts governing one socket. A peer that misses the pong window is
// treated as dropped and unregistered.
type Timeouts struct {
	Write        time.Duration
	PingInterval time.Duration
	PongWait     time.Duration
}

type Gateway struct {
	log         *slog.Logger
	upgrader    websocket.Upgrader
	registry    contract.IRegistry
	broker      services.IMessageBroker
	coordinator services.IGroupCoordinator
	memberships repositories.IMembershipRepository
	bufferSize  int
	timeouts    Timeouts
	maxFrame    int64
}

func NewGateway(log *slog.Logger, registry contract.IRegistry,
	broker services.IMessageBroker, coordinator services.IGroupCoordinator,
	memberships repositories.IMembershipRepository, bufferSize int,
	timeouts Timeouts, maxFrame int64) *Gateway {
	return &Gateway{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		registry:    registry,
		broker:      broker,
		coordinator: coordinator,
		memberships: memberships,
		bufferSize:  bufferSize,
		timeouts:    timeouts,
		maxFrame:    maxFrame,
	}
}

// ServeHTTP authenticates the handshake, upgrades, and runs the connection
// until the peer disconnects. Each physical socket gets its own connection
// id, so one identity may hold several live connections at once.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "identity not resolved", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	connectionID := uuid.NewString()
	sink := NewSink(g.bufferSize)
	if err := g.registry.Register(connectionID, identity, sink); err != nil {
		g.log.Error("Registration failed", "connection_id", connectionID, "error", err)
		_ = conn.Close()
		return
	}

	// The registry is rebuilt from nothing on restart: durable membership
	// decides which groups this fresh connection listens to.
	g.subscribeDurableGroups(connectionID, identity)

	g.log.Info(fmt.Sprintf("Identity %s connected with connection ID: %s", identity, connectionID))

	client := newClient(g.log, conn, connectionID, identity, sink, g.timeouts, g.maxFrame)
	go client.writePump()
	client.readLoop(r.Context(), g.dispatch)

	g.registry.Unregister(connectionID)
	client.close()
	g.log.Info(fmt.Sprintf("Identity %s disconnected.", identity))
}

func (g *Gateway) subscribeDurableGroups(connectionID, identity string) {
	groups, err := g.memberships.ListGroupsForIdentity(identity)
	if err != nil {
		g.log.Error("Failed to resolve durable groups", "identity", identity, "error", err)
		return
	}
	for _, group := range groups {
		if err := g.registry.Subscribe(connectionID, group.ID); err != nil {
			g.log.Warn("Initial subscription failed",
				"connection_id", connectionID, "group_id", group.ID, "error", err)
		}
	}
}
