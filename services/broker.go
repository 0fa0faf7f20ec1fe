package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageBroker interface {
	SendDirect(ctx context.Context, senderID, recipientID, content, attachmentURL string) (domain.Message, error)
	SendToGroup(ctx context.Context, senderID string, groupID uuid.UUID, content, attachmentURL string) ([]domain.Message, error)
	DeleteMessage(ctx context.Context, identity string, messageID uuid.UUID) (bool, error)
}

// MessageBroker performs validate, persist, fan-out for message sends and
// deletions. Persistence or authorization failures abort before any
// delivery; a message that was not persisted is never fanned out.
type MessageBroker struct {
	log              *slog.Logger
	gate             IAuthorizationGate
	messages         repositories.IMessageRepository
	memberships      repositories.IMembershipRepository
	registry         contract.IRegistry
	moderator        *moderation.Moderator
	groupLocks       *GroupLocks
	maxContentLength int
}

func NewMessageBroker(log *slog.Logger, gate IAuthorizationGate,
	messages repositories.IMessageRepository, memberships repositories.IMembershipRepository,
	registry contract.IRegistry, moderator *moderation.Moderator,
	groupLocks *GroupLocks, maxContentLength int) *MessageBroker {
	return &MessageBroker{
		log:              log,
		gate:             gate,
		messages:         messages,
		memberships:      memberships,
		registry:         registry,
		moderator:        moderator,
		groupLocks:       groupLocks,
		maxContentLength: maxContentLength,
	}
}

// SendDirect persists one message addressed to the recipient identity, then
// pushes MessageReceived to every live connection of the recipient and
// MessageSentAck to the sender's own connections (multi-device echo).
func (b *MessageBroker) SendDirect(ctx context.Context, senderID, recipientID,
	content, attachmentURL string) (domain.Message, error) {
	if err := b.validateContent(content, attachmentURL); err != nil {
		return domain.Message{}, err
	}

	allowed, err := b.gate.CanSendDirect(senderID, recipientID)
	if err != nil {
		return domain.Message{}, err
	}
	if !allowed {
		return domain.Message{}, fmt.Errorf("%w: direct send", errors.ErrForbidden)
	}

	message := b.compose(senderID, recipientID, nil, content, attachmentURL, time.Now().UTC())
	persisted, err := b.messages.Insert(message)
	if err != nil {
		return domain.Message{}, err
	}

	b.registry.Deliver(ctx, b.registry.ConnectionsForIdentity(recipientID),
		event.MessageReceived{Message: persisted})
	b.registry.Deliver(ctx, b.registry.ConnectionsForIdentity(senderID),
		event.MessageSentAck{Message: persisted})

	return persisted, nil
}

// SendToGroup persists one row per durable member in a single transaction
// and pushes exactly one GroupMessageReceived to the group's live
// subscribers. Sends for the same group serialize on the group lock, so
// delivery order matches persistence order.
func (b *MessageBroker) SendToGroup(ctx context.Context, senderID string,
	groupID uuid.UUID, content, attachmentURL string) ([]domain.Message, error) {
	unlock := b.groupLocks.Lock(groupID)
	defer unlock()

	allowed, err := b.gate.CanSendToGroup(senderID, groupID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("%w: group %s", errors.ErrForbidden, groupID)
	}

	if err := b.validateContent(content, attachmentURL); err != nil {
		return nil, err
	}

	members, err := b.memberships.ListMembers(groupID)
	if err != nil {
		return nil, err
	}

	// One per-recipient row per member, identical content and timestamp.
	createdAt := time.Now().UTC()
	template := b.compose(senderID, "", &groupID, content, attachmentURL, createdAt)
	rows := lo.Map(members, func(member string, _ int) domain.Message {
		row := template
		row.ID = uuid.New()
		row.RecipientID = member
		return row
	})

	persisted, err := b.messages.InsertBatch(rows)
	if err != nil {
		return nil, err
	}

	// The live broadcast is group-addressed: one shared payload, not one
	// event per persisted row. Subscribers know their own identity already.
	representative := template
	representative.ID = persisted[0].ID
	b.registry.Deliver(ctx, b.registry.ConnectionsForGroup(groupID),
		event.GroupMessageReceived{GroupID: groupID, Message: representative})

	return persisted, nil
}

// DeleteMessage removes one persisted row. For a group message only the
// addressed copy disappears; sibling rows delivered to other recipients keep
// their own deletion state.
func (b *MessageBroker) DeleteMessage(ctx context.Context, identity string,
	messageID uuid.UUID) (bool, error) {
	message, err := b.messages.FindByID(messageID)
	if err != nil {
		return false, err
	}

	if !b.gate.CanDeleteMessage(identity, message) {
		return false, fmt.Errorf("%w: message %s", errors.ErrForbidden, messageID)
	}

	deleted, err := b.messages.Delete(messageID)
	if err != nil || !deleted {
		return false, err
	}

	deletion := event.MessageDeleted{
		MessageID:   messageID,
		GroupID:     message.GroupID,
		RecipientID: message.RecipientID,
	}
	if message.IsGroupMessage() {
		b.registry.Deliver(ctx, b.registry.ConnectionsForGroup(*message.GroupID), deletion)
	} else {
		b.registry.Deliver(ctx, b.registry.ConnectionsForIdentity(message.RecipientID), deletion)
	}
	return true, nil
}

func (b *MessageBroker) validateContent(content, attachmentURL string) error {
	if content == "" && attachmentURL == "" {
		return fmt.Errorf("%w: empty message", errors.ErrInvalidArgument)
	}
	if b.maxContentLength > 0 && len(content) > b.maxContentLength {
		return fmt.Errorf("%w: content exceeds %d bytes", errors.ErrInvalidArgument, b.maxContentLength)
	}
	return nil
}

// compose applies moderation and language detection before the row is
// handed to persistence.
func (b *MessageBroker) compose(senderID, recipientID string, groupID *uuid.UUID,
	content, attachmentURL string, createdAt time.Time) domain.Message {
	if b.moderator != nil && content != "" {
		masked := b.moderator.Mask(content)
		if masked != content {
			b.log.Debug("Censored words masked", "sender_id", senderID)
			content = masked
		}
	}

	lang := ""
	if content != "" {
		info := whatlanggo.Detect(content)
		lang = whatlanggo.LangToString(info.Lang)
	}

	return domain.Message{
		ID:            uuid.New(),
		SenderID:      senderID,
		RecipientID:   recipientID,
		GroupID:       groupID,
		Content:       content,
		AttachmentURL: attachmentURL,
		Lang:          lang,
		CreatedAt:     createdAt,
	}
}
