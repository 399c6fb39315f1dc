package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/voxnote/internal/apperr"
	"github.com/starford/voxnote/internal/genai"
	"github.com/starford/voxnote/internal/identity"
	"github.com/starford/voxnote/internal/workspace"
)

// forgetter is implemented by providers that cache verified credentials.
type forgetter interface {
	Forget(token string)
}

// Handler holds API route handlers.
type Handler struct {
	registry *workspace.Registry
	provider identity.Provider
}

// NewHandler creates a new Handler.
func NewHandler(registry *workspace.Registry, provider identity.Provider) *Handler {
	return &Handler{registry: registry, provider: provider}
}

// Session handles GET /api/session.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	ws := workspaceOf(r)
	id, _ := identity.FromContext(r.Context())
	writeJSON(w, http.StatusOK, SessionResponse{
		OwnerID:     id.OwnerID,
		DisplayName: id.DisplayName,
		NoteCount:   len(ws.Store.Notes()),
	})
}

// SignOut handles POST /api/session/signout. The owner's notes, selection
// and pending capture are dropped.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	owner, _ := ownerOf(r)
	h.registry.SignOut(owner)
	if f, ok := h.provider.(forgetter); ok {
		f.Forget(bearer(r))
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListNotes handles GET /api/notes. A non-blank q filters by title or
// content; otherwise all of the owner's notes are loaded.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	ws := workspaceOf(r)
	owner := ws.Identity.OwnerID
	q := r.URL.Query().Get("q")

	var err error
	if strings.TrimSpace(q) == "" {
		_, err = ws.Store.Load(r.Context(), owner)
	} else {
		_, err = ws.Store.Search(r.Context(), owner, q)
	}
	if err != nil {
		writeError(w, r, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, noteList(ws.Store.Notes()))
}

// CreateNote handles POST /api/notes. The new note is selected in edit mode.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	n, err := workspaceOf(r).Controller.Create(r.Context())
	if err != nil {
		writeError(w, r, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, noteResponse(n))
}

// GetNote handles GET /api/notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, ok := workspaceOf(r).Store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody(apperr.ErrNotFound.Error()))
		return
	}
	writeJSON(w, http.StatusOK, noteResponse(n))
}

// SelectNote handles POST /api/notes/{id}/select.
func (h *Handler) SelectNote(w http.ResponseWriter, r *http.Request) {
	ctrl := workspaceOf(r).Controller
	if _, err := ctrl.Select(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "select note", err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

// ToggleBookmark handles POST /api/notes/{id}/bookmark and returns the
// persisted flag.
func (h *Handler) ToggleBookmark(w http.ResponseWriter, r *http.Request) {
	n, err := workspaceOf(r).Controller.ToggleBookmark(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "toggle bookmark", err)
		return
	}
	writeJSON(w, http.StatusOK, noteResponse(n))
}

// RequestDelete handles POST /api/notes/{id}/delete. Nothing is removed
// until POST /api/selection/delete/confirm.
func (h *Handler) RequestDelete(w http.ResponseWriter, r *http.Request) {
	ctrl := workspaceOf(r).Controller
	if err := ctrl.RequestDelete(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "request delete", err)
		return
	}
	writeJSON(w, http.StatusAccepted, ctrl.View())
}

// Languages handles GET /api/languages.
func (h *Handler) Languages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"languages": genai.Languages(),
		"default":   genai.DefaultLanguage,
	})
}
