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

type sendDirectRequest struct {
	RecipientID   string `json:"recipient_id"`
	Content       string `json:"content"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}

type sendGroupRequest struct {
	GroupID       uuid.UUID `json:"group_id"`
	Content       string    `json:"content"`
	AttachmentURL string    `json:"attachment_url,omitempty"`
}

type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

func (s *Server) handleSendDirect(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req sendDirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if req.RecipientID == "" {
		s.writeError(w, fmt.Errorf("%w: recipient_id is required", errors.ErrInvalidArgument))
		return
	}

	message, err := s.broker.SendDirect(r.Context(), identity, req.RecipientID,
		req.Content, req.AttachmentURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, message)
}

func (s *Server) handleSendGroup(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req sendGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	persisted, err := s.broker.SendToGroup(r.Context(), identity, req.GroupID,
		req.Content, req.AttachmentURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, messagesResponse{Messages: persisted})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid message id", errors.ErrInvalidArgument))
		return
	}

	deleted, err := s.broker.DeleteMessage(r.Context(), identity, messageID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !deleted {
		s.writeError(w, fmt.Errorf("%w: message %s", errors.ErrNotFound, messageID))
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

// handleListDirect returns the conversation between the caller and one other
// identity. The caller is always one end of the pair, so no further
// authorization applies.
func (s *Server) handleListDirect(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	other := r.PathValue("identity")
	if other == "" {
		s.writeError(w, fmt.Errorf("%w: identity is required", errors.ErrInvalidArgument))
		return
	}

	messages, err := s.messages.ListBetween(identity, other)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messagesResponse{Messages: messages})
}

// handleListGroup returns a group's history. Non-members get the same
// response as for a group that does not exist.
func (s *Server) handleListGroup(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	groupID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid group id", errors.ErrInvalidArgument))
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

	messages, err := s.messages.ListForGroup(groupID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messagesResponse{Messages: messages})
}
