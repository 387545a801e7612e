package homepage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
)

type Store interface {
	GetActive(ctx context.Context) (Content, error)
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	content, err := h.store.GetActive(r.Context())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no homepage content found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "error fetching homepage content")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": content})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
