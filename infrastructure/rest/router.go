// Package rest exposes the request/response surface: account lifecycle,
// history queries, group administration and attachment uploads. Everything
// real-time lives on the WebSocket side.
package rest

import (
	"chat-relay/auth"
	"chat-relay/repositories"
	"chat-relay/services"
	"chat-relay/storage"
	"log/slog"
	"net/http"
)

type Server struct {
	log         *slog.Logger
	authService services.IAuthService
	broker      services.IMessageBroker
	coordinator services.IGroupCoordinator
	messages    repositories.IMessageRepository
	memberships repositories.IMembershipRepository
	files       *storage.DiskStore
}

func NewServer(log *slog.Logger, authService services.IAuthService,
	broker services.IMessageBroker, coordinator services.IGroupCoordinator,
	messages repositories.IMessageRepository,
	memberships repositories.IMembershipRepository,
	files *storage.DiskStore) *Server {
	return &Server{
		log:         log,
		authService: authService,
		broker:      broker,
		coordinator: coordinator,
		messages:    messages,
		memberships: memberships,
		files:       files,
	}
}

// Routes mounts every endpoint. Anything past /auth requires a valid token;
// the WebSocket handler is mounted by the caller under the same guard.
func (s *Server) Routes(tokens *auth.TokenManager, ws http.Handler) http.Handler {
	mux := http.NewServeMux()
	guard := auth.Middleware(tokens)

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)

	mux.Handle("GET /ws", guard(ws))

	mux.Handle("POST /messages/direct", guard(http.HandlerFunc(s.handleSendDirect)))
	mux.Handle("POST /messages/group", guard(http.HandlerFunc(s.handleSendGroup)))
	mux.Handle("DELETE /messages/{id}", guard(http.HandlerFunc(s.handleDeleteMessage)))
	mux.Handle("GET /messages/direct/{identity}", guard(http.HandlerFunc(s.handleListDirect)))
	mux.Handle("GET /messages/group/{id}", guard(http.HandlerFunc(s.handleListGroup)))

	mux.Handle("POST /groups", guard(http.HandlerFunc(s.handleCreateGroup)))
	mux.Handle("DELETE /groups/{id}", guard(http.HandlerFunc(s.handleDeleteGroup)))
	mux.Handle("POST /groups/{id}/members", guard(http.HandlerFunc(s.handleAddMember)))
	mux.Handle("DELETE /groups/{id}/members/{identity}", guard(http.HandlerFunc(s.handleRemoveMember)))
	mux.Handle("GET /groups/{id}/members", guard(http.HandlerFunc(s.handleListMembers)))
	mux.Handle("GET /groups/mine", guard(http.HandlerFunc(s.handleListMyGroups)))

	mux.Handle("POST /files", guard(http.HandlerFunc(s.handleUpload)))
	mux.Handle("GET /files/", http.StripPrefix("/files/",
		http.FileServer(http.Dir(s.files.Root()))))

	return mux
}
