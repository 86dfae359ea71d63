package notifications

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"social/infrastructure"
)

const InternalTokenHeader = "X-Internal-Token"

type JSONHandler struct {
	service       *Service
	internalToken string
}

// NewJSONHandler creates the handler. An empty internalToken disables the
// internal ingestion route.
func NewJSONHandler(service *Service, internalToken string) *JSONHandler {
	return &JSONHandler{service: service, internalToken: internalToken}
}

// Register mounts the user-facing routes on an authenticated router.
func (h *JSONHandler) Register(r *mux.Router) {
	r.HandleFunc("/notifications", h.List).Methods(http.MethodGet)
	r.HandleFunc("/notifications/unread-count", h.UnreadCount).Methods(http.MethodGet)
	r.HandleFunc("/notifications/read-all", h.MarkAllAsRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{id}/read", h.MarkAsRead).Methods(http.MethodPost)
}

// RegisterInternal mounts the service-to-service ingestion route.
func (h *JSONHandler) RegisterInternal(r *mux.Router) {
	r.HandleFunc("/internal/notifications", h.Ingest).Methods(http.MethodPost)
}

func (h *JSONHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.service.List(r.Context(), infrastructure.MustUserID(r.Context()), page, limit)
	if err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	infrastructure.WriteJSON(w, http.StatusOK, list)
}

func (h *JSONHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.UnreadCount(r.Context(), infrastructure.MustUserID(r.Context()))
	if err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	infrastructure.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *JSONHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkAsRead(r.Context(), mux.Vars(r)["id"], infrastructure.MustUserID(r.Context())); err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JSONHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkAllAsRead(r.Context(), infrastructure.MustUserID(r.Context())); err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ingest accepts LIKE, COMMENT and FOLLOW events from trusted services.
func (h *JSONHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(InternalTokenHeader)
	if h.internalToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.internalToken)) != 1 {
		infrastructure.WriteError(w, infrastructure.ErrUnauthorized)
		return
	}
	var in CreateInput
	if err := infrastructure.DecodeJSON(r, &in); err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	n, err := h.service.Create(r.Context(), in)
	if err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	if n == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	infrastructure.WriteJSON(w, http.StatusCreated, n)
}
