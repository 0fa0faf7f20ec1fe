package rest

import (
	"chat-relay/errors"
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
		// Internal detail stays in the logs.
		s.writeJSON(w, status, errorBody{Error: http.StatusText(status)})
		return
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}
