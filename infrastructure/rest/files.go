package rest

import (
	"net/http"
)

type uploadResponse struct {
	URL string `json:"url"`
}

// handleUpload stores one attachment from a multipart form and returns the
// reference to embed in a message's attachment_url.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing file part"})
		return
	}
	defer func() { _ = file.Close() }()

	url, err := s.files.Save(file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, uploadResponse{URL: url})
}
