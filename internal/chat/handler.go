package chat

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"social/infrastructure"
)

type JSONHandler struct {
	service *Service
}

func NewJSONHandler(service *Service) *JSONHandler {
	return &JSONHandler{service: service}
}

// Register mounts the conversation routes on r. r must already require an
// authenticated user.
func (h *JSONHandler) Register(r *mux.Router) {
	r.HandleFunc("/conversations", h.CreateConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations", h.ListConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations/unread-count", h.UnreadCount).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", h.Messages).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/leave", h.Leave).Methods(http.MethodPost)
}

func (h *JSONHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID := infrastructure.MustUserID(r.Context())
	var req struct {
		IsGroup        bool     `json:"isGroup"`
		ParticipantIDs []string `json:"participantIds"`
		Name           string   `json:"name"`
	}
	if err := infrastructure.DecodeJSON(r, &req); err != nil {
		infrastructure.WriteError(w, err)
		return
	}

	var (
		conv *Conversation
		err  error
	)
	if req.IsGroup {
		conv, err = h.service.CreateGroup(r.Context(), userID, req.Name, req.ParticipantIDs)
	} else {
		if len(req.ParticipantIDs) != 1 {
			infrastructure.WriteError(w, infrastructure.ErrInvalidInput)
			return
		}
		conv, err = h.service.FindOrCreateDirect(r.Context(), userID, req.ParticipantIDs[0])
	}
	if err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	infrastructure.WriteJSON(w, http.StatusCreated, conv)
}

func (h *JSONHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.service.ListConversations(r.Context(), infrastructure.MustUserID(r.Context()))
	if err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	infrastructure.WriteJSON(w, http.StatusOK, convs)
}

func (h *JSONHandler) Messages(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.service.Messages(r.Context(), mux.Vars(r)["id"], infrastructure.MustUserID(r.Context()), page, limit)
	if err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	infrastructure.WriteJSON(w, http.StatusOK, msgs)
}

func (h *JSONHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.UnreadCount(r.Context(), infrastructure.MustUserID(r.Context()))
	if err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	infrastructure.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *JSONHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Leave(r.Context(), mux.Vars(r)["id"], infrastructure.MustUserID(r.Context())); err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
