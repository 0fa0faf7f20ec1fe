// Package event defines the named events pushed to live connections.
// Event names are part of the wire contract with clients.
package event

import (
	"chat-relay/domain"

	"github.com/google/uuid"
)

type DomainEvent interface {
	EventName() string
}

// MessageReceived is delivered to every live connection of a direct
// message's recipient.
type MessageReceived struct {
	Message domain.Message `json:"message"`
}

func (MessageReceived) EventName() string { return "MessageReceived" }

// MessageSentAck echoes a sent direct message back to the sender's own live
// connections so every device of a multi-device sender sees the send.
type MessageSentAck struct {
	Message domain.Message `json:"message"`
}

func (MessageSentAck) EventName() string { return "MessageSentAck" }

// GroupMessageReceived is the single group-addressed live broadcast for a
// group send. It carries one representative payload, not one event per
// persisted per-recipient row: live subscribers already know their own
// identity from their session.
type GroupMessageReceived struct {
	GroupID uuid.UUID      `json:"group_id"`
	Message domain.Message `json:"message"`
}

func (GroupMessageReceived) EventName() string { return "GroupMessageReceived" }

type MessageDeleted struct {
	MessageID   uuid.UUID  `json:"message_id"`
	GroupID     *uuid.UUID `json:"group_id,omitempty"`
	RecipientID string     `json:"recipient_id,omitempty"`
}

func (MessageDeleted) EventName() string { return "MessageDeleted" }

type MemberJoined struct {
	GroupID  uuid.UUID `json:"group_id"`
	Identity string    `json:"identity"`
}

func (MemberJoined) EventName() string { return "MemberJoined" }

type MemberLeft struct {
	GroupID  uuid.UUID `json:"group_id"`
	Identity string    `json:"identity"`
}

func (MemberLeft) EventName() string { return "MemberLeft" }

// Error reports a failed inbound operation back to the issuing connection.
type Error struct {
	Reason string `json:"reason"`
}

func (Error) EventName() string { return "Error" }
