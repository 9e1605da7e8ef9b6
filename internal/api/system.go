package api

import (
	"context"
	"net/http"

	"vff/internal/backend"
	"vff/internal/revision"
	"vff/internal/validation"
)

// StatsProvider is implemented by backends that can report repository stats.
type StatsProvider interface {
	Stats() (backend.Stats, error)
}

// InfoProvider is implemented by backends that expose revision records.
type InfoProvider interface {
	GetRevisionInfo(ctx context.Context, path, id string) (*revision.Revision, error)
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Stats serves repository stats when the backend provides them.
func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.backend.(StatsProvider)
	if !ok {
		http.Error(w, "stats not available", http.StatusNotImplemented)
		return
	}

	st, err := sp.Stats()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Info serves the revision record for ?rev=, or the latest one.
func (h *DocumentHandler) Info(w http.ResponseWriter, r *http.Request) {
	ip, ok := h.backend.(InfoProvider)
	if !ok {
		http.Error(w, "revision info not available", http.StatusNotImplemented)
		return
	}
	path, err := validation.DocumentPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rev, err := ip.GetRevisionInfo(r.Context(), path, r.URL.Query().Get("rev"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}
