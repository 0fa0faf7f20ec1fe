package services

import (
	"chat-relay/errors"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_CreateGroup_Requires_Name(t *testing.T) {
	req := require.New(t)
	s := newStack(t)

	// When creating a group without a name
	_, err := s.coordinator.CreateGroup(context.Background(), "")

	// Then creation is rejected
	req.ErrorIs(err, errors.ErrInvalidArgument)
}

func TestCoordinator_AddMember_Self_Join_Subscribes_Live_Connections(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()

	// Given an existing group and a connected identity
	group, err := s.coordinator.CreateGroup(ctx, "gophers")
	req.NoError(err)
	bobSink := s.connect(t, "bob-phone", "bob")

	// When bob joins the group himself
	added, err := s.coordinator.AddMember(ctx, "bob", "bob", group.ID)
	req.NoError(err)
	req.True(added)

	// Then durable membership and the live subscription both hold
	member, err := s.memberships.IsMember("bob", group.ID)
	req.NoError(err)
	req.True(member)
	req.Equal([]string{"bob-phone"}, s.registry.ConnectionsForGroup(group.ID))

	// And the new member saw the join notification
	req.Equal([]string{"MemberJoined"}, bobSink.Names())
}

func TestCoordinator_AddMember_Twice_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()
	group, err := s.coordinator.CreateGroup(ctx, "gophers")
	req.NoError(err)

	// Given bob already joined
	added, err := s.coordinator.AddMember(ctx, "bob", "bob", group.ID)
	req.NoError(err)
	req.True(added)

	// When he joins again
	added, err = s.coordinator.AddMember(ctx, "bob", "bob", group.ID)

	// Then nothing changes and no error is raised
	req.NoError(err)
	req.False(added)
	members, err := s.memberships.ListMembers(group.ID)
	req.NoError(err)
	req.Equal([]string{"bob"}, members)
}

func TestCoordinator_AddMember_Unknown_Group(t *testing.T) {
	req := require.New(t)
	s := newStack(t)

	// When joining a group that does not exist
	_, err := s.coordinator.AddMember(context.Background(), "bob", "bob", uuid.New())

	// Then the failure is a not-found
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestCoordinator_AddMember_For_Someone_Else_Requires_Admin(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()
	group, err := s.coordinator.CreateGroup(ctx, "gophers")
	req.NoError(err)

	// When a plain identity tries to add somebody else
	_, err = s.coordinator.AddMember(ctx, "alice", "bob", group.ID)

	// Then the change is forbidden and bob stays out
	req.ErrorIs(err, errors.ErrForbidden)
	member, err := s.memberships.IsMember("bob", group.ID)
	req.NoError(err)
	req.False(member)
}

func TestCoordinator_RemoveMember_Unsubscribes_And_Notifies_Remaining(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()

	// Given alice and bob live in the same group
	aliceSink := s.connect(t, "alice-phone", "alice")
	bobSink := s.connect(t, "bob-phone", "bob")
	groupID := s.newGroup(t, "gophers", "alice", "bob")

	// When bob leaves
	removed, err := s.coordinator.RemoveMember(ctx, "bob", "bob", groupID)
	req.NoError(err)
	req.True(removed)

	// Then bob's membership and subscription are gone
	member, err := s.memberships.IsMember("bob", groupID)
	req.NoError(err)
	req.False(member)
	req.Equal([]string{"alice-phone"}, s.registry.ConnectionsForGroup(groupID))

	// And only the remaining subscriber is notified
	req.Equal([]string{"MemberLeft"}, aliceSink.Names())
	req.Empty(bobSink.Names())
}

func TestCoordinator_RemoveMember_Not_A_Member(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()
	groupID := s.newGroup(t, "gophers", "alice")

	// When removing an identity that never joined
	removed, err := s.coordinator.RemoveMember(ctx, "carol", "carol", groupID)

	// Then nothing is removed and no error is raised
	req.NoError(err)
	req.False(removed)
}

func TestCoordinator_Add_Then_Remove_Restores_Initial_State(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()
	groupID := s.newGroup(t, "gophers", "alice")
	s.connect(t, "bob-phone", "bob")

	// When bob joins and immediately leaves
	added, err := s.coordinator.AddMember(ctx, "bob", "bob", groupID)
	req.NoError(err)
	req.True(added)
	removed, err := s.coordinator.RemoveMember(ctx, "bob", "bob", groupID)
	req.NoError(err)
	req.True(removed)

	// Then the group looks exactly as before
	members, err := s.memberships.ListMembers(groupID)
	req.NoError(err)
	req.Equal([]string{"alice"}, members)
	req.Empty(s.registry.ConnectionsForGroup(groupID))
	groups, err := s.memberships.ListGroupsForIdentity("bob")
	req.NoError(err)
	req.Empty(groups)
}

func TestCoordinator_DeleteGroup_Cascades_And_Unsubscribes(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()

	// Given a group with history and a live subscriber
	s.connect(t, "bob-phone", "bob")
	groupID := s.newGroup(t, "gophers", "alice", "bob")
	_, err := s.broker.SendToGroup(ctx, "alice", groupID, "to be erased", "")
	req.NoError(err)

	// When a member deletes the group
	deleted, err := s.coordinator.DeleteGroup(ctx, "alice", groupID)
	req.NoError(err)
	req.True(deleted)

	// Then the group, its history and every live subscription are gone
	exists, err := s.memberships.GroupExists(groupID)
	req.NoError(err)
	req.False(exists)
	history, err := s.messages.ListForGroup(groupID)
	req.NoError(err)
	req.Empty(history)
	req.Empty(s.registry.ConnectionsForGroup(groupID))
}

func TestCoordinator_DeleteGroup_Releases_Group_Lock(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()
	groupID := s.newGroup(t, "gophers", "alice")

	// Given the group's lock slot exists after a send
	_, err := s.broker.SendToGroup(ctx, "alice", groupID, "hello", "")
	req.NoError(err)
	_, held := s.locks.locks.Load(groupID)
	req.True(held)

	// When the group is deleted
	deleted, err := s.coordinator.DeleteGroup(ctx, "alice", groupID)
	req.NoError(err)
	req.True(deleted)

	// Then the slot is gone instead of lingering for the process lifetime
	_, held = s.locks.locks.Load(groupID)
	req.False(held)
}

func TestCoordinator_DeleteGroup_NonMember_Forbidden(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()
	groupID := s.newGroup(t, "gophers", "alice")

	// When an outsider tries to delete the group
	_, err := s.coordinator.DeleteGroup(ctx, "carol", groupID)

	// Then the answer is the same forbidden an unknown group would give
	req.ErrorIs(err, errors.ErrForbidden)
	_, err = s.coordinator.DeleteGroup(ctx, "carol", uuid.New())
	req.ErrorIs(err, errors.ErrForbidden)

	// And the group is untouched
	exists, err := s.memberships.GroupExists(groupID)
	req.NoError(err)
	req.True(exists)
}
