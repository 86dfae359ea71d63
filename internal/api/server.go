package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"social/infrastructure"
	"social/internal/auth"
	"social/internal/chat"
	"social/internal/metrics"
	"social/internal/notifications"
	"social/internal/user"
)

// Handlers groups every HTTP surface the server mounts.
type Handlers struct {
	Auth          *auth.JSONHandler
	Middleware    *auth.Middleware
	Chat          *chat.JSONHandler
	Notifications *notifications.JSONHandler
	Users         *user.JSONHandler
	ChatService   *chat.Service
	ChatGateway   *chat.Gateway
	NotifyGateway *notifications.Gateway
	Gatherer      prometheus.Gatherer
}

type Server struct {
	router        *mux.Router
	chat          *chat.Gateway
	conversations *chat.Service
}

// NewServer routes REST, WebSocket and metrics endpoints. originPatterns
// gates cross-origin WebSocket upgrades.
func NewServer(h Handlers, rateLimitRPS int, originPatterns []string) *Server {
	router := mux.NewRouter()
	router.Use(Logger)

	s := &Server{router: router, chat: h.ChatGateway, conversations: h.ChatService}

	router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
	if h.Gatherer != nil {
		router.Handle("/metrics", metrics.Handler(h.Gatherer)).Methods(http.MethodGet)
	}

	router.Handle("/ws/chat", ServeWS(h.ChatGateway, chat.Namespace, originPatterns)).Methods(http.MethodGet)
	router.Handle("/ws/notifications", ServeWS(h.NotifyGateway, notifications.Namespace, originPatterns)).Methods(http.MethodGet)

	limited := router.NewRoute().Subrouter()
	limited.Use(RateLimitMiddleware(rateLimitRPS))
	h.Auth.Register(limited)
	h.Notifications.RegisterInternal(limited)

	authed := limited.NewRoute().Subrouter()
	authed.Use(h.Middleware.RequireUser)
	h.Chat.Register(authed)
	h.Notifications.Register(authed)
	h.Users.Register(authed)
	authed.HandleFunc("/users/{id}/online", s.userOnline).Methods(http.MethodGet)
	authed.HandleFunc("/conversations/{id}/online-count", s.onlineMemberCount).Methods(http.MethodGet)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	infrastructure.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) userOnline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	infrastructure.WriteJSON(w, http.StatusOK, map[string]any{
		"userId": id,
		"online": s.chat.IsUserOnline(id),
	})
}

// onlineMemberCount is visible to members of the conversation only.
func (s *Server) onlineMemberCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	if err := s.conversations.RequireMember(ctx, id, infrastructure.MustUserID(ctx)); err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	n, err := s.chat.OnlineMemberCount(ctx, id)
	if err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	infrastructure.WriteJSON(w, http.StatusOK, map[string]any{
		"conversationId": id,
		"online":         n,
	})
}
