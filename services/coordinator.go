package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

type IGroupCoordinator interface {
	CreateGroup(ctx context.Context, name string) (domain.Group, error)
	DeleteGroup(ctx context.Context, actingID string, groupID uuid.UUID) (bool, error)
	AddMember(ctx context.Context, actingID, targetID string, groupID uuid.UUID) (bool, error)
	RemoveMember(ctx context.Context, actingID, targetID string, groupID uuid.UUID) (bool, error)
}

// GroupCoordinator owns membership changes and keeps the registry's live
// subscriptions consistent with durable membership: no connection stays
// subscribed to a group its identity left, and connections of an identity
// that joins are subscribed promptly.
type GroupCoordinator struct {
	log         *slog.Logger
	gate        IAuthorizationGate
	memberships repositories.IMembershipRepository
	cascade     repositories.IGroupCascade
	registry    contract.IRegistry
	groupLocks  *GroupLocks
}

func NewGroupCoordinator(log *slog.Logger, gate IAuthorizationGate,
	memberships repositories.IMembershipRepository, cascade repositories.IGroupCascade,
	registry contract.IRegistry, groupLocks *GroupLocks) *GroupCoordinator {
	return &GroupCoordinator{
		log:         log,
		gate:        gate,
		memberships: memberships,
		cascade:     cascade,
		registry:    registry,
		groupLocks:  groupLocks,
	}
}

func (c *GroupCoordinator) CreateGroup(ctx context.Context, name string) (domain.Group, error) {
	if name == "" {
		return domain.Group{}, fmt.Errorf("%w: group name required", errors.ErrInvalidArgument)
	}
	return c.memberships.CreateGroup(name)
}

// DeleteGroup cascades membership and message rows in one transaction and
// unsubscribes every live connection before the group record goes away, so
// no connection is left referencing a deleted group. Only members may
// delete; non-members get the same Forbidden whether the group exists or
// not.
func (c *GroupCoordinator) DeleteGroup(ctx context.Context, actingID string,
	groupID uuid.UUID) (bool, error) {
	unlock := c.groupLocks.Lock(groupID)
	defer unlock()

	member, err := c.memberships.IsMember(actingID, groupID)
	if err != nil {
		return false, err
	}
	if !member {
		return false, fmt.Errorf("%w: group %s", errors.ErrForbidden, groupID)
	}

	for _, connectionID := range c.registry.ConnectionsForGroup(groupID) {
		c.registry.Unsubscribe(connectionID, groupID)
	}

	existed, removed, err := c.cascade.Erase(groupID)
	if err != nil {
		return false, err
	}
	if removed > 0 {
		c.log.Info(fmt.Sprintf("Cascaded %d message rows for group %s", removed, groupID))
	}
	if existed {
		c.groupLocks.Release(groupID)
	}
	return existed, nil
}

// AddMember persists the membership row, subscribes every live connection of
// the target identity, then notifies the group's subscribers, the new member
// included. Adding an existing member is a no-op returning false.
func (c *GroupCoordinator) AddMember(ctx context.Context, actingID, targetID string,
	groupID uuid.UUID) (bool, error) {
	unlock := c.groupLocks.Lock(groupID)
	defer unlock()

	exists, err := c.memberships.GroupExists(groupID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("%w: group %s", errors.ErrNotFound, groupID)
	}

	allowed, err := c.gate.CanJoinGroup(actingID, targetID, groupID)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, fmt.Errorf("%w: join group %s", errors.ErrForbidden, groupID)
	}

	member, err := c.memberships.IsMember(targetID, groupID)
	if err != nil {
		return false, err
	}
	if member {
		return false, nil
	}

	if err := c.memberships.AddMembership(targetID, groupID); err != nil {
		return false, err
	}

	c.subscribeIdentity(targetID, groupID)
	c.registry.Deliver(ctx, c.registry.ConnectionsForGroup(groupID),
		event.MemberJoined{GroupID: groupID, Identity: targetID})
	return true, nil
}

// RemoveMember mirrors AddMember: persists the removal, unsubscribes every
// live connection of the target, then notifies the remaining subscribers.
func (c *GroupCoordinator) RemoveMember(ctx context.Context, actingID, targetID string,
	groupID uuid.UUID) (bool, error) {
	unlock := c.groupLocks.Lock(groupID)
	defer unlock()

	exists, err := c.memberships.GroupExists(groupID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("%w: group %s", errors.ErrNotFound, groupID)
	}

	allowed, err := c.gate.CanLeaveGroup(actingID, targetID, groupID)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, fmt.Errorf("%w: leave group %s", errors.ErrForbidden, groupID)
	}

	removed, err := c.memberships.RemoveMembership(targetID, groupID)
	if err != nil || !removed {
		return false, err
	}

	for _, connectionID := range c.registry.ConnectionsForIdentity(targetID) {
		c.registry.Unsubscribe(connectionID, groupID)
	}
	c.registry.Deliver(ctx, c.registry.ConnectionsForGroup(groupID),
		event.MemberLeft{GroupID: groupID, Identity: targetID})
	return true, nil
}

func (c *GroupCoordinator) subscribeIdentity(identity string, groupID uuid.UUID) {
	for _, connectionID := range c.registry.ConnectionsForIdentity(identity) {
		if err := c.registry.Subscribe(connectionID, groupID); err != nil {
			// The connection dropped between resolution and subscribe.
			c.log.Debug("Skipping vanished connection",
				"connection_id", connectionID, "group_id", groupID)
		}
	}
}
