package api

import (
	"net/http"
)

// GetVoice handles GET /api/voice.
func (h *Handler) GetVoice(w http.ResponseWriter, r *http.Request) {
	voice, err := workspaceOf(r).Controller.Voice()
	if err != nil {
		writeError(w, r, "voice", err)
		return
	}
	writeJSON(w, http.StatusOK, voice.Snapshot())
}

// StartVoice handles POST /api/voice/start.
func (h *Handler) StartVoice(w http.ResponseWriter, r *http.Request) {
	voice, err := workspaceOf(r).Controller.Voice()
	if err != nil {
		writeError(w, r, "start voice", err)
		return
	}
	if err := voice.Start(r.Context()); err != nil {
		writeError(w, r, "start voice", err)
		return
	}
	writeJSON(w, http.StatusOK, voice.Snapshot())
}

// CancelVoice handles POST /api/voice/cancel.
func (h *Handler) CancelVoice(w http.ResponseWriter, r *http.Request) {
	voice, err := workspaceOf(r).Controller.Voice()
	if err != nil {
		writeError(w, r, "cancel voice", err)
		return
	}
	if err := voice.Cancel(); err != nil {
		writeError(w, r, "cancel voice", err)
		return
	}
	writeJSON(w, http.StatusOK, voice.Snapshot())
}

// ConfirmVoice handles POST /api/voice/confirm. The created note becomes
// the selection.
func (h *Handler) ConfirmVoice(w http.ResponseWriter, r *http.Request) {
	n, err := workspaceOf(r).Controller.ConfirmVoiceNote(r.Context())
	if err != nil {
		writeError(w, r, "confirm voice", err)
		return
	}
	writeJSON(w, http.StatusCreated, noteResponse(n))
}
