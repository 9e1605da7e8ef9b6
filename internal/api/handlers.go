// internal/api/handlers.go
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"vff/internal/backend"
	"vff/internal/errors"
	"vff/internal/logging"
	"vff/internal/validation"
)

// MaxDocumentSize bounds request bodies of document writes.
const MaxDocumentSize = 32 << 20

// DocumentHandler serves the document API on top of a Backend
type DocumentHandler struct {
	backend backend.Backend
	logger  *logging.Logger
}

func NewDocumentHandler(b backend.Backend, logger *logging.Logger) *DocumentHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DocumentHandler{backend: b, logger: logger}
}

// Register mounts the document routes on mux.
func (h *DocumentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/documents/{path...}", h.Put)
	mux.HandleFunc("DELETE /api/documents/{path...}", h.Delete)
	mux.HandleFunc("GET /api/documents/{path...}", h.Get)
	mux.HandleFunc("GET /api/revisions/{path...}", h.List)
	mux.HandleFunc("GET /api/diff/{path...}", h.Diff)
	mux.HandleFunc("GET /api/info/{path...}", h.Info)
	mux.HandleFunc("GET /api/stats", h.Stats)
}

func (h *DocumentHandler) Put(w http.ResponseWriter, r *http.Request) {
	path, err := validation.DocumentPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	author, message, err := validation.CommitMetadata(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxDocumentSize))
	if err != nil {
		h.writeError(w, r, errors.ValidationError("invalid request body", err.Error()))
		return
	}

	rev, err := h.backend.AddRevision(r.Context(), content, path, message, author)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, rev)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	path, err := validation.DocumentPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	author, message, err := validation.CommitMetadata(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rev, err := h.backend.DelDocument(r.Context(), path, message, author)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rev)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	path, err := validation.DocumentPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	text, err := h.backend.GetRevision(r.Context(), path, r.URL.Query().Get("rev"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, text)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	path, err := validation.DocumentPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	count, offset, err := validation.Paging(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	revs, err := h.backend.ListRevisions(r.Context(), path, count, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, revs)
}

func (h *DocumentHandler) Diff(w http.ResponseWriter, r *http.Request) {
	path, err := validation.DocumentPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	from, to, err := validation.DiffRange(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	text, err := h.backend.GetDiff(r.Context(), path, from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, text)
}

// writeError maps err onto its status code and a JSON body.
func (h *DocumentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.StatusCode(err)
	body := &errors.Error{Type: errors.TypeOf(err), Message: err.Error(), Code: status}

	var e *errors.Error
	if errors.As(err, &e) {
		body.Details = e.Details
	}

	if status >= http.StatusInternalServerError {
		h.logger.WithRequestID(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
