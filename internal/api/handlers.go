package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tasklink/internal/apperr"
	"github.com/starford/tasklink/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Parse handles POST /api/parse.
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !readRequest(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.ParseLine(req.Line, req.File))
}

// Render handles POST /api/render.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if !readRequest(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, RenderResponse{Markdown: h.svc.RenderTask(req.Task, req.SingleLine)})
}

// SyncLines handles POST /api/sync/lines. Per-line failures are reported
// in the body with status 200; a concurrent edit of the note yields 409
// together with the per-line outcomes.
func (h *Handler) SyncLines(w http.ResponseWriter, r *http.Request) {
	var req SyncLinesRequest
	if !readRequest(w, r, &req) {
		return
	}
	end := req.Start
	if req.End != nil {
		end = *req.End
	}
	replace := req.Replace == nil || *req.Replace

	res, err := h.svc.SyncLines(r.Context(), req.Path, req.Start, end, replace)
	if err != nil {
		if res != nil && errors.Is(err, apperr.ErrConflict) {
			writeJSON(w, http.StatusConflict, res)
			return
		}
		writeServiceError(w, "sync lines", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SyncSection handles POST /api/sync/section.
func (h *Handler) SyncSection(w http.ResponseWriter, r *http.Request) {
	var req SyncSectionRequest
	if !readRequest(w, r, &req) {
		return
	}
	res, err := h.svc.SyncSection(r.Context(), req.Path, req.Line, req.Pull)
	if err != nil {
		writeServiceError(w, "sync section", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Link handles GET /api/links/{token}.
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, "resolve link", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// SearchLinks handles GET /api/links?q=.
func (h *Handler) SearchLinks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	refs, err := h.svc.SearchLinks(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, "search links", err)
		return
	}
	writeJSON(w, http.StatusOK, RefsResponse{Refs: refs})
}

// DanglingLinks handles GET /api/links/dangling.
func (h *Handler) DanglingLinks(w http.ResponseWriter, r *http.Request) {
	refs, err := h.svc.DanglingLinks(r.Context())
	if err != nil {
		writeServiceError(w, "dangling links", err)
		return
	}
	writeJSON(w, http.StatusOK, RefsResponse{Refs: refs})
}

// Today handles GET /api/today and returns Markdown.
func (h *Handler) Today(w http.ResponseWriter, r *http.Request) {
	md, err := h.svc.Today(r.Context())
	if err != nil {
		writeServiceError(w, "today", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type validatable interface {
	Validate() error
}

// readRequest decodes and validates the body, writing a 400 on failure.
func readRequest(w http.ResponseWriter, r *http.Request, req validatable) bool {
	if err := decodeJSON(w, r, req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}
