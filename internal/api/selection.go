package api

import (
	"net/http"

	"github.com/starford/voxnote/internal/genai"
)

// GetSelection handles GET /api/selection.
func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workspaceOf(r).Controller.View())
}

// BeginEdit handles POST /api/selection/edit.
func (h *Handler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	ctrl := workspaceOf(r).Controller
	if err := ctrl.BeginEdit(); err != nil {
		writeError(w, r, "begin edit", err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

// SetDraft handles PUT /api/selection/draft.
func (h *Handler) SetDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctrl := workspaceOf(r).Controller
	if err := ctrl.SetDraft(req.Title, req.Content); err != nil {
		writeError(w, r, "set draft", err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

// Save handles POST /api/selection/save. On failure the draft is kept.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	n, err := workspaceOf(r).Controller.Save(r.Context())
	if err != nil {
		writeError(w, r, "save note", err)
		return
	}
	writeJSON(w, http.StatusOK, noteResponse(n))
}

// CancelEdit handles POST /api/selection/cancel.
func (h *Handler) CancelEdit(w http.ResponseWriter, r *http.Request) {
	ctrl := workspaceOf(r).Controller
	ctrl.CancelEdit()
	writeJSON(w, http.StatusOK, ctrl.View())
}

// ConfirmDelete handles POST /api/selection/delete/confirm.
func (h *Handler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	if err := workspaceOf(r).Controller.ConfirmDelete(r.Context()); err != nil {
		writeError(w, r, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelDelete handles POST /api/selection/delete/cancel.
func (h *Handler) CancelDelete(w http.ResponseWriter, r *http.Request) {
	ctrl := workspaceOf(r).Controller
	ctrl.CancelDelete()
	writeJSON(w, http.StatusOK, ctrl.View())
}

// SetLanguage handles PUT /api/selection/language.
func (h *Handler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	var req LanguageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lang, err := genai.ParseLanguage(req.Language)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ctrl := workspaceOf(r).Controller
	ctrl.SetLanguage(lang)
	writeJSON(w, http.StatusOK, ctrl.View())
}

// Translate handles POST /api/selection/translate. A result that no longer
// matches the selection or language answers 409.
func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	ctrl := workspaceOf(r).Controller
	out, err := ctrl.Translate(r.Context())
	if err != nil {
		writeError(w, r, "translate", err)
		return
	}
	v := ctrl.View()
	resp := TranslationResponse{Language: v.Language, Translation: out}
	if v.Selected != nil {
		resp.NoteID = v.Selected.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
