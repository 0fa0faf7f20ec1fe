package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	stderrors "errors"

	"github.com/google/uuid"
)

// AdminRole is the capability required to manage other identities'
// membership.
const AdminRole = "admin"

// IAuthorizationGate centralizes every authorization decision so the broker
// and coordinator never embed ad hoc checks. Gate methods are pure reads:
// they return booleans and never error for "unauthorized".
type IAuthorizationGate interface {
	CanSendDirect(senderID, recipientID string) (bool, error)
	CanSendToGroup(senderID string, groupID uuid.UUID) (bool, error)
	CanDeleteMessage(identity string, message domain.Message) bool
	CanJoinGroup(actingID, targetID string, groupID uuid.UUID) (bool, error)
	CanLeaveGroup(actingID, targetID string, groupID uuid.UUID) (bool, error)
}

type AuthorizationGate struct {
	memberships repositories.IMembershipRepository
	users       repositories.IUserRepository
}

func NewAuthorizationGate(memberships repositories.IMembershipRepository,
	users repositories.IUserRepository) *AuthorizationGate {
	return &AuthorizationGate{memberships: memberships, users: users}
}

// CanSendDirect always allows: no blocking relationship is modeled. Kept so
// the direct-send path stays symmetric with the group path.
func (g *AuthorizationGate) CanSendDirect(senderID, recipientID string) (bool, error) {
	return true, nil
}

// CanSendToGroup allows only durable members. A missing group answers false
// rather than erroring, so a non-member probing a group id learns nothing
// about its existence.
func (g *AuthorizationGate) CanSendToGroup(senderID string, groupID uuid.UUID) (bool, error) {
	exists, err := g.memberships.GroupExists(groupID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	return g.memberships.IsMember(senderID, groupID)
}

// CanDeleteMessage allows only the original sender. Recipients, including
// group members other than the author, may never delete.
func (g *AuthorizationGate) CanDeleteMessage(identity string, message domain.Message) bool {
	return message.SenderID == identity
}

// CanJoinGroup allows self-join, or any target when the acting identity
// carries the admin role.
func (g *AuthorizationGate) CanJoinGroup(actingID, targetID string, groupID uuid.UUID) (bool, error) {
	if actingID == targetID {
		return true, nil
	}
	return g.isAdmin(actingID)
}

// CanLeaveGroup mirrors CanJoinGroup.
func (g *AuthorizationGate) CanLeaveGroup(actingID, targetID string, groupID uuid.UUID) (bool, error) {
	return g.CanJoinGroup(actingID, targetID, groupID)
}

func (g *AuthorizationGate) isAdmin(identity string) (bool, error) {
	user, err := g.users.GetUserByID(identity)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.HasRole(AdminRole), nil
}
