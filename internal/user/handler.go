package user

import (
	"net/http"

	"github.com/gorilla/mux"

	"social/infrastructure"
)

type JSONHandler struct {
	repo Repository
}

func NewJSONHandler(repo Repository) *JSONHandler {
	return &JSONHandler{repo: repo}
}

// Register mounts the profile routes on an authenticated router.
func (h *JSONHandler) Register(r *mux.Router) {
	r.HandleFunc("/users/me", h.Me).Methods(http.MethodGet)
	r.HandleFunc("/users/me/notifications", h.SetNotifications).Methods(http.MethodPut)
}

func (h *JSONHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.repo.GetByID(r.Context(), infrastructure.MustUserID(r.Context()))
	if err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	infrastructure.WriteJSON(w, http.StatusOK, u)
}

func (h *JSONHandler) SetNotifications(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := infrastructure.DecodeJSON(r, &req); err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	if req.Enabled == nil {
		infrastructure.WriteError(w, infrastructure.ErrInvalidInput)
		return
	}
	if err := h.repo.SetNotificationEnabled(r.Context(), infrastructure.MustUserID(r.Context()), *req.Enabled); err != nil {
		infrastructure.WriteError(w, err)
		return
	}
	infrastructure.WriteJSON(w, http.StatusOK, map[string]bool{"notificationEnabled": *req.Enabled})
}
