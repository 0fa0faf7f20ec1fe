// Package domain contains core concepts of the chat system.
// This file defines Message records and related invariants.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable chat record. Exactly one logical address is set:
// a direct message carries RecipientID and no GroupID; a group send is
// materialized as one row per member with RecipientID set to that member and
// GroupID set to the group, so per-recipient read and delete state vary
// independently of the sibling rows.
type Message struct {
	ID            uuid.UUID  `json:"id"`
	SenderID      string     `json:"sender_id"`
	RecipientID   string     `json:"recipient_id"`
	GroupID       *uuid.UUID `json:"group_id,omitempty"`
	Content       string     `json:"content"`
	AttachmentURL string     `json:"attachment_url,omitempty"`
	Lang          string     `json:"lang,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Read          bool       `json:"read"`
}

// IsGroupMessage reports whether this row is a per-recipient copy of a
// group send.
func (m Message) IsGroupMessage() bool {
	return m.GroupID != nil
}
