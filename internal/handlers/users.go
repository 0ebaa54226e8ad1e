package handlers

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetUserByUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	user, err := h.users.GetByUsername(r.Context(), username)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":         valueToString(user["id"]),
		"username":   valueToString(user["username"]),
		"created_at": user["created_at"],
	})
}

func (h *Handler) resolveUserID(ctx context.Context, username, email string) (string, error) {
	if username != "" {
		user, err := h.users.GetByUsername(ctx, username)
		if err != nil {
			return "", err
		}
		return valueToString(user["id"]), nil
	}
	if email != "" {
		user, err := h.users.GetByEmail(ctx, email)
		if err != nil {
			return "", err
		}
		return valueToString(user["id"]), nil
	}
	return "", sql.ErrNoRows
}
