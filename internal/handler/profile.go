package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/karstlabs/guestpass/internal/profile"
)

type ProfileHandler struct {
	service *profile.Service
	logger  *slog.Logger
}

func NewProfileHandler(svc *profile.Service, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{service: svc, logger: logger}
}

// Lookup proxies a public profile fetch for the overlay UI. Failures
// carry enough debug detail for an operator to tell a format change
// from an IP block.
func (h *ProfileHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing username"})
		return
	}

	p, err := h.service.Lookup(username)
	if err != nil {
		var nf *profile.NotFoundError
		if errors.As(err, &nf) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": "profile not found",
				"debug": map[string]any{
					"status":  nf.Status,
					"blocked": nf.Blocked,
					"hint":    nf.Hint(),
				},
			})
			return
		}
		h.logger.Warn("profile lookup", "error", err, "username", username)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "profile lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": p})
}
