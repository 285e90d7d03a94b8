package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"conductor/passport"
)

// EntityTimeline returns the audit trail for a single entity, oldest first.
func (h *Handler) EntityTimeline(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "entityId")
	entries, err := h.passports.ListByEntity(r.Context(), entityType, entityID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []passport.Event{}
	}
	writeJSON(w, entries)
}

// RecentPassports returns the newest audit entries across all entities.
func (h *Handler) RecentPassports(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := h.passports.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []passport.Event{}
	}
	writeJSON(w, entries)
}
