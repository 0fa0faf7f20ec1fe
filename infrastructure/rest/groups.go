package rest

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

type createGroupRequest struct {
	Name string `json:"name"`
}

type memberRequest struct {
	Identity string `json:"identity"`
}

type membersResponse struct {
	Members []string `json:"members"`
}

type groupsResponse struct {
	Groups []domain.Group `json:"groups"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	group, err := s.coordinator.CreateGroup(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The creator becomes the first member so the group is reachable.
	if _, err := s.coordinator.AddMember(r.Context(), identity, identity, group.ID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	groupID, err := parseGroupPath(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	deleted, err := s.coordinator.DeleteGroup(r.Context(), identity, groupID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !deleted {
		s.writeError(w, fmt.Errorf("%w: group %s", errors.ErrNotFound, groupID))
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	groupID, err := parseGroupPath(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if req.Identity == "" {
		req.Identity = identity
	}

	added, err := s.coordinator.AddMember(r.Context(), identity, req.Identity, groupID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !added {
		// Already a member; report success without side effects.
		s.writeJSON(w, http.StatusOK, nil)
		return
	}
	s.writeJSON(w, http.StatusCreated, nil)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	groupID, err := parseGroupPath(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	target := r.PathValue("identity")
	if target == "" {
		target = identity
	}

	removed, err := s.coordinator.RemoveMember(r.Context(), identity, target, groupID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !removed {
		s.writeError(w, fmt.Errorf("%w: %s is not a member", errors.ErrNotFound, target))
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

// handleListMembers hides membership of groups the caller does not belong
// to; outsiders cannot tell an unknown group from one they are excluded
// from.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	groupID, err := parseGroupPath(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	member, err := s.memberships.IsMember(identity, groupID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !member {
		s.writeError(w, fmt.Errorf("%w: group %s", errors.ErrNotFound, groupID))
		return
	}

	members, err := s.memberships.ListMembers(groupID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, membersResponse{Members: members})
}

func (s *Server) handleListMyGroups(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	groups, err := s.memberships.ListGroupsForIdentity(identity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, groupsResponse{Groups: groups})
}

func parseGroupPath(r *http.Request) (uuid.UUID, error) {
	groupID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid group id", errors.ErrInvalidArgument)
	}
	return groupID, nil
}
