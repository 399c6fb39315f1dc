package api

import (
	"github.com/starford/voxnote/internal/genai"
	"github.com/starford/voxnote/internal/models"
)

// NoteResponse is a note with its display fallbacks applied.
type NoteResponse struct {
	models.Note
	DisplayTitle   string `json:"display_title"`
	DisplayContent string `json:"display_content"`
}

func noteResponse(n models.Note) NoteResponse {
	return NoteResponse{Note: n, DisplayTitle: n.DisplayTitle(), DisplayContent: n.DisplayContent()}
}

// NoteListResponse wraps a note listing.
type NoteListResponse struct {
	Notes []NoteResponse `json:"notes"`
	Total int            `json:"total"`
}

func noteList(notes []models.Note) NoteListResponse {
	out := make([]NoteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, noteResponse(n))
	}
	return NoteListResponse{Notes: out, Total: len(out)}
}

// DraftRequest replaces the edit buffer.
type DraftRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// LanguageRequest sets the translation target.
type LanguageRequest struct {
	Language string `json:"language"`
}

// TranslationResponse is the result of a translation.
type TranslationResponse struct {
	NoteID      string         `json:"note_id"`
	Language    genai.Language `json:"language"`
	Translation string         `json:"translation"`
}

// SessionResponse describes the signed-in owner.
type SessionResponse struct {
	OwnerID     string `json:"owner_id"`
	DisplayName string `json:"display_name"`
	NoteCount   int    `json:"note_count"`
}
