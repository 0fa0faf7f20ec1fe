package repositories

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Create_And_Get_Group(t *testing.T) {
	req := require.New(t)
	repository := NewMembershipRepository(openTestDB(t))

	// When a group is created
	group, err := repository.CreateGroup("gophers")
	req.NoError(err)
	req.NotEqual(uuid.Nil, group.ID)

	// Then it can be fetched back
	fetched, err := repository.GetGroup(group.ID)
	req.NoError(err)
	req.Equal(group, fetched)

	exists, err := repository.GroupExists(group.ID)
	req.NoError(err)
	req.True(exists)
}

func Test_Get_Unknown_Group(t *testing.T) {
	req := require.New(t)
	repository := NewMembershipRepository(openTestDB(t))

	// When fetching a group that was never created
	_, err := repository.GetGroup(uuid.New())
	req.Error(err)

	exists, err := repository.GroupExists(uuid.New())
	req.NoError(err)
	req.False(exists)
}

func Test_Add_And_List_Members(t *testing.T) {
	req := require.New(t)
	repository := NewMembershipRepository(openTestDB(t))
	group, err := repository.CreateGroup("gophers")
	req.NoError(err)

	// When two identities join
	req.NoError(repository.AddMembership("bob", group.ID))
	req.NoError(repository.AddMembership("alice", group.ID))

	// Then both are members and the listing is sorted
	members, err := repository.ListMembers(group.ID)
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, members)

	member, err := repository.IsMember("alice", group.ID)
	req.NoError(err)
	req.True(member)
	member, err = repository.IsMember("carol", group.ID)
	req.NoError(err)
	req.False(member)
}

func Test_Reverse_Index_Lists_Groups_Per_Identity(t *testing.T) {
	req := require.New(t)
	repository := NewMembershipRepository(openTestDB(t))
	groupA, err := repository.CreateGroup("gophers")
	req.NoError(err)
	groupB, err := repository.CreateGroup("rustaceans")
	req.NoError(err)

	// Given one identity in both groups and another in one
	req.NoError(repository.AddMembership("alice", groupA.ID))
	req.NoError(repository.AddMembership("alice", groupB.ID))
	req.NoError(repository.AddMembership("bob", groupA.ID))

	// When each identity's groups are resolved
	aliceGroups, err := repository.ListGroupsForIdentity("alice")
	req.NoError(err)
	bobGroups, err := repository.ListGroupsForIdentity("bob")
	req.NoError(err)

	// Then both directions of the membership are consistent
	req.Len(aliceGroups, 2)
	req.Len(bobGroups, 1)
	req.Equal(groupA.ID, bobGroups[0].ID)
}

func Test_Remove_Membership_Clears_Both_Directions(t *testing.T) {
	req := require.New(t)
	repository := NewMembershipRepository(openTestDB(t))
	group, err := repository.CreateGroup("gophers")
	req.NoError(err)
	req.NoError(repository.AddMembership("alice", group.ID))

	// When the membership is removed
	removed, err := repository.RemoveMembership("alice", group.ID)
	req.NoError(err)
	req.True(removed)

	// Then neither direction of the mapping remains
	member, err := repository.IsMember("alice", group.ID)
	req.NoError(err)
	req.False(member)
	groups, err := repository.ListGroupsForIdentity("alice")
	req.NoError(err)
	req.Empty(groups)

	// And removing again reports nothing removed
	removed, err = repository.RemoveMembership("alice", group.ID)
	req.NoError(err)
	req.False(removed)
}

func Test_DeleteGroup_Cascades_Memberships(t *testing.T) {
	req := require.New(t)
	repository := NewMembershipRepository(openTestDB(t))
	group, err := repository.CreateGroup("gophers")
	req.NoError(err)
	req.NoError(repository.AddMembership("alice", group.ID))
	req.NoError(repository.AddMembership("bob", group.ID))

	// When the group is deleted
	deleted, err := repository.DeleteGroup(group.ID)
	req.NoError(err)
	req.True(deleted)

	// Then the group and every membership row are gone
	exists, err := repository.GroupExists(group.ID)
	req.NoError(err)
	req.False(exists)
	groups, err := repository.ListGroupsForIdentity("alice")
	req.NoError(err)
	req.Empty(groups)

	// And deleting an unknown group reports nothing removed
	deleted, err = repository.DeleteGroup(uuid.New())
	req.NoError(err)
	req.False(deleted)
}
