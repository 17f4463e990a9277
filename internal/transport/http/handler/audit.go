package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-auth-api/internal/domain"
	"github.com/go-chi/chi/v5"
)

// AuditLister reads back recorded audit entries.
type AuditLister interface {
	ListByUser(ctx context.Context, userID string, limit int32) ([]domain.AuditLog, error)
}

// AuditHandler exposes the audit trail to operators.
type AuditHandler struct {
	store AuditLister
}

func NewAuditHandler(store AuditLister) *AuditHandler { return &AuditHandler{store: store} }

// ListByUser returns the newest audit entries for a user, most recent first.
func (h *AuditHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	limit := int32(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = int32(n)
	}
	entries, err := h.store.ListByUser(r.Context(), userID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": entries})
}
