package ws

import (
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// inbound is the envelope clients send. Op selects the operation; the rest
// of the fields matter per op.
type inbound struct {
	Op            string `json:"op"`
	RecipientID   string `json:"recipient_id,omitempty"`
	GroupID       string `json:"group_id,omitempty"`
	MessageID     string `json:"message_id,omitempty"`
	Identity      string `json:"identity,omitempty"`
	Content       string `json:"content,omitempty"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}

// dispatch routes one inbound frame. The sender identity always comes from
// the authenticated session, never from the frame itself.
func (g *Gateway) dispatch(ctx context.Context, c *client, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		c.pushError(ctx, "malformed frame")
		return
	}

	var err error
	switch in.Op {
	case "send_direct":
		err = g.handleSendDirect(ctx, c, in)
	case "send_group":
		err = g.handleSendGroup(ctx, c, in)
	case "delete_message":
		err = g.handleDeleteMessage(ctx, c, in)
	case "join_group":
		err = g.handleJoinGroup(ctx, c, in)
	case "leave_group":
		err = g.handleLeaveGroup(ctx, c, in)
	default:
		err = fmt.Errorf("%w: unknown op %q", errors.ErrInvalidArgument, in.Op)
	}

	if err != nil {
		g.log.Warn("Operation failed",
			"op", in.Op, "connection_id", c.connectionID, "error", err)
		c.pushError(ctx, err.Error())
	}
}

func (g *Gateway) handleSendDirect(ctx context.Context, c *client, in inbound) error {
	if in.RecipientID == "" {
		return fmt.Errorf("%w: recipient_id is required", errors.ErrInvalidArgument)
	}
	_, err := g.broker.SendDirect(ctx, c.identity, in.RecipientID, in.Content, in.AttachmentURL)
	return err
}

func (g *Gateway) handleSendGroup(ctx context.Context, c *client, in inbound) error {
	groupID, err := parseGroupID(in.GroupID)
	if err != nil {
		return err
	}
	_, err = g.broker.SendToGroup(ctx, c.identity, groupID, in.Content, in.AttachmentURL)
	return err
}

func (g *Gateway) handleDeleteMessage(ctx context.Context, c *client, in inbound) error {
	messageID, err := uuid.Parse(in.MessageID)
	if err != nil {
		return fmt.Errorf("%w: invalid message_id", errors.ErrInvalidArgument)
	}
	_, err = g.broker.DeleteMessage(ctx, c.identity, messageID)
	return err
}

func (g *Gateway) handleJoinGroup(ctx context.Context, c *client, in inbound) error {
	groupID, err := parseGroupID(in.GroupID)
	if err != nil {
		return err
	}
	// Omitted identity means the caller joins the group themselves.
	target := in.Identity
	if target == "" {
		target = c.identity
	}
	_, err = g.coordinator.AddMember(ctx, c.identity, target, groupID)
	return err
}

func (g *Gateway) handleLeaveGroup(ctx context.Context, c *client, in inbound) error {
	groupID, err := parseGroupID(in.GroupID)
	if err != nil {
		return err
	}
	target := in.Identity
	if target == "" {
		target = c.identity
	}
	_, err = g.coordinator.RemoveMember(ctx, c.identity, target, groupID)
	return err
}

func parseGroupID(raw string) (uuid.UUID, error) {
	groupID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid group_id", errors.ErrInvalidArgument)
	}
	return groupID, nil
}
