// Package notesession holds the per-user interaction state (selection, edit
// buffer, pending delete, translation) and orchestrates the user verbs on
// top of the note store.
package notesession

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/voxnote/internal/apperr"
	"github.com/starford/voxnote/internal/genai"
	"github.com/starford/voxnote/internal/models"
	"github.com/starford/voxnote/internal/notestore"
	"github.com/starford/voxnote/internal/speech"
)

// Defaults for a note created with Create.
const (
	DefaultTitle   = "New Note"
	DefaultContent = ""
)

// Translator translates note content.
type Translator interface {
	Translate(ctx context.Context, text string, lang genai.Language) (string, error)
}

// EditBuffer is the draft of the selected note while editing.
type EditBuffer struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// View is a snapshot of the controller state for presentation.
type View struct {
	Selected      *models.Note    `json:"selected,omitempty"`
	Editing       bool            `json:"editing"`
	Draft         *EditBuffer     `json:"draft,omitempty"`
	PendingDelete string          `json:"pending_delete,omitempty"`
	Language      genai.Language  `json:"language"`
	Translation   string          `json:"translation,omitempty"`
	Voice         speech.Snapshot `json:"voice"`
	VoiceError    string          `json:"voice_error,omitempty"`
}

// Controller is the note session of one owner.
type Controller struct {
	owner      string
	store      *notestore.Store
	translator Translator
	voice      *speech.Session
	voiceErr   error
	logger     *slog.Logger

	mu            sync.Mutex
	selected      *models.Note
	editing       bool
	buffer        EditBuffer
	pendingDelete string
	language      genai.Language
	translation   string

	unsubscribe func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithTranslator sets the translator used by Translate.
func WithTranslator(t Translator) Option {
	return func(c *Controller) { c.translator = t }
}

// WithVoice attaches the speech session. err is the reason voice capture is
// unavailable when session is nil.
func WithVoice(session *speech.Session, err error) Option {
	return func(c *Controller) {
		c.voice = session
		c.voiceErr = err
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a controller for owner and subscribes it to store changes.
func New(owner string, store *notestore.Store, opts ...Option) *Controller {
	c := &Controller{
		owner:    owner,
		store:    store,
		logger:   slog.Default(),
		language: genai.DefaultLanguage,
	}
	for _, o := range opts {
		o(c)
	}
	if c.voice == nil && c.voiceErr == nil {
		c.voiceErr = fmt.Errorf("notesession: %w", apperr.ErrCaptureUnsupported)
	}
	c.unsubscribe = store.Subscribe(c.onChange)
	return c
}

// Owner returns the owner ID.
func (c *Controller) Owner() string { return c.owner }

// Store returns the underlying note store.
func (c *Controller) Store() *notestore.Store { return c.store }

// onChange keeps the selection in step with the store.
func (c *Controller) onChange(ch notestore.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ch.Kind {
	case notestore.ChangeRemoved:
		if c.pendingDelete == ch.NoteID {
			c.pendingDelete = ""
		}
		if c.selected != nil && c.selected.ID == ch.NoteID {
			c.clearSelectionLocked()
		}
	case notestore.ChangeUpdated:
		if c.selected != nil && c.selected.ID == ch.NoteID {
			n := ch.Note
			c.selected = &n
			if !c.editing {
				c.buffer = EditBuffer{Title: n.Title, Content: n.Content}
			}
		}
	case notestore.ChangeLoaded:
		// A search result may leave the selection out; a full load may not.
		if c.pendingDelete != "" && !ch.Filtered {
			if _, ok := c.store.Get(c.pendingDelete); !ok {
				c.pendingDelete = ""
			}
		}
		if c.selected != nil {
			if n, ok := c.store.Get(c.selected.ID); ok {
				c.selected = &n
			} else if !ch.Filtered {
				c.logger.Info("notesession: selected note no longer exists", slog.String("id", c.selected.ID))
				c.clearSelectionLocked()
			}
		}
	case notestore.ChangeCleared:
		c.resetLocked()
	}
}

func (c *Controller) clearSelectionLocked() {
	c.selected = nil
	c.editing = false
	c.buffer = EditBuffer{}
	c.translation = ""
}

func (c *Controller) resetLocked() {
	c.clearSelectionLocked()
	c.pendingDelete = ""
}

// lookup finds a note by id in the store or the current selection.
func (c *Controller) lookup(id string) (models.Note, bool) {
	if n, ok := c.store.Get(id); ok {
		return n, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected != nil && c.selected.ID == id {
		return *c.selected, true
	}
	return models.Note{}, false
}

// Select makes id the selected note, leaves edit mode and seeds the buffer.
func (c *Controller) Select(id string) (models.Note, error) {
	n, ok := c.store.Get(id)
	if !ok {
		return models.Note{}, fmt.Errorf("notesession: select %s: %w", id, apperr.ErrNotFound)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = &n
	c.editing = false
	c.buffer = EditBuffer{Title: n.Title, Content: n.Content}
	c.translation = ""
	return n, nil
}

// BeginEdit enters edit mode for the selection.
func (c *Controller) BeginEdit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return fmt.Errorf("notesession: begin edit: %w", apperr.ErrNoSelection)
	}
	if !c.editing {
		c.buffer = EditBuffer{Title: c.selected.Title, Content: c.selected.Content}
	}
	c.editing = true
	return nil
}

// SetDraft replaces the edit buffer.
func (c *Controller) SetDraft(title, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return fmt.Errorf("notesession: set draft: %w", apperr.ErrNoSelection)
	}
	if !c.editing {
		return fmt.Errorf("notesession: set draft outside edit mode: %w", apperr.ErrInvalidState)
	}
	c.buffer = EditBuffer{Title: title, Content: content}
	return nil
}

// CancelEdit discards the buffer and leaves edit mode.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing = false
	if c.selected != nil {
		c.buffer = EditBuffer{Title: c.selected.Title, Content: c.selected.Content}
	}
}

// Save writes the buffer to the selected note. On failure edit mode and the
// buffer are kept so the user can retry.
func (c *Controller) Save(ctx context.Context) (models.Note, error) {
	c.mu.Lock()
	if c.selected == nil {
		c.mu.Unlock()
		return models.Note{}, fmt.Errorf("notesession: save: %w", apperr.ErrNoSelection)
	}
	if !c.editing {
		c.mu.Unlock()
		return models.Note{}, fmt.Errorf("notesession: save outside edit mode: %w", apperr.ErrInvalidState)
	}
	id := c.selected.ID
	draft := c.buffer
	c.mu.Unlock()

	merged, err := c.store.Update(ctx, id, models.Fields{
		Title:   models.String(draft.Title),
		Content: models.String(draft.Content),
	})
	if err != nil {
		c.logger.Warn("notesession: save failed", slog.String("id", id), slog.String("error", err.Error()))
		return models.Note{}, err
	}

	c.mu.Lock()
	if c.selected != nil && c.selected.ID == id {
		c.selected = &merged
		c.editing = false
		c.buffer = EditBuffer{Title: merged.Title, Content: merged.Content}
	}
	c.mu.Unlock()
	return merged, nil
}

// Create makes a note with the default title and content, selects it and
// enters edit mode.
func (c *Controller) Create(ctx context.Context) (models.Note, error) {
	n, err := c.store.Create(ctx, c.owner, DefaultTitle, DefaultContent)
	if err != nil {
		return models.Note{}, err
	}
	c.mu.Lock()
	c.selected = &n
	c.editing = true
	c.buffer = EditBuffer{Title: n.Title, Content: n.Content}
	c.translation = ""
	c.mu.Unlock()
	return n, nil
}

// ToggleBookmark flips the stored bookmark flag of id. The selection picks
// up the new flag from the store's update notification.
func (c *Controller) ToggleBookmark(ctx context.Context, id string) (models.Note, error) {
	n, ok := c.lookup(id)
	if !ok {
		return models.Note{}, fmt.Errorf("notesession: toggle bookmark %s: %w", id, apperr.ErrNotFound)
	}
	return c.store.Update(ctx, id, models.Fields{IsBookmarked: models.Bool(!n.IsBookmarked)})
}

// RequestDelete marks id for deletion pending ConfirmDelete.
func (c *Controller) RequestDelete(id string) error {
	if _, ok := c.lookup(id); !ok {
		return fmt.Errorf("notesession: delete %s: %w", id, apperr.ErrNotFound)
	}
	c.mu.Lock()
	c.pendingDelete = id
	c.mu.Unlock()
	return nil
}

// CancelDelete drops the pending delete.
func (c *Controller) CancelDelete() {
	c.mu.Lock()
	c.pendingDelete = ""
	c.mu.Unlock()
}

// ConfirmDelete removes the note marked by RequestDelete. A failed delete
// stays pending.
func (c *Controller) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	id := c.pendingDelete
	c.mu.Unlock()
	if id == "" {
		return fmt.Errorf("notesession: no delete pending: %w", apperr.ErrInvalidState)
	}

	if err := c.store.Remove(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	if c.pendingDelete == id {
		c.pendingDelete = ""
	}
	if c.selected != nil && c.selected.ID == id {
		c.clearSelectionLocked()
	}
	c.mu.Unlock()
	return nil
}

// SetLanguage changes the translation target and drops any shown translation.
func (c *Controller) SetLanguage(lang genai.Language) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lang == "" {
		lang = genai.DefaultLanguage
	}
	if lang != c.language {
		c.translation = ""
	}
	c.language = lang
}

// Translate translates the selected note's content into the current
// language. If the selection or language changed while the call was in
// flight the result is dropped and apperr.ErrStaleResult returned.
func (c *Controller) Translate(ctx context.Context) (string, error) {
	if c.translator == nil {
		return "", fmt.Errorf("notesession: translate: %w", apperr.ErrGenerationUnavailable)
	}
	c.mu.Lock()
	if c.selected == nil {
		c.mu.Unlock()
		return "", fmt.Errorf("notesession: translate: %w", apperr.ErrNoSelection)
	}
	id, text, lang := c.selected.ID, c.selected.Content, c.language
	c.mu.Unlock()

	out, err := c.translator.Translate(ctx, text, lang)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil || c.selected.ID != id || c.language != lang {
		c.logger.Debug("notesession: discarding stale translation", slog.String("id", id), slog.String("language", string(lang)))
		return "", fmt.Errorf("notesession: translation for %s/%s: %w", id, lang, apperr.ErrStaleResult)
	}
	c.translation = out
	return out, nil
}

// Voice returns the speech session, or the reason it is unavailable.
func (c *Controller) Voice() (*speech.Session, error) {
	if c.voice == nil {
		return nil, c.voiceErr
	}
	return c.voice, nil
}

// ConfirmVoiceNote ends the capture, stores the note and selects it.
func (c *Controller) ConfirmVoiceNote(ctx context.Context) (models.Note, error) {
	voice, err := c.Voice()
	if err != nil {
		return models.Note{}, err
	}
	n, err := voice.Confirm(ctx)
	if err != nil {
		return models.Note{}, err
	}
	c.mu.Lock()
	c.selected = &n
	c.editing = false
	c.buffer = EditBuffer{Title: n.Title, Content: n.Content}
	c.translation = ""
	c.mu.Unlock()
	return n, nil
}

// Reset clears selection, edit buffer and pending delete.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// View returns a snapshot of the session state.
func (c *Controller) View() View {
	c.mu.Lock()
	v := View{
		Editing:       c.editing,
		PendingDelete: c.pendingDelete,
		Language:      c.language,
		Translation:   c.translation,
	}
	if c.selected != nil {
		n := *c.selected
		v.Selected = &n
	}
	if c.editing {
		b := c.buffer
		v.Draft = &b
	}
	c.mu.Unlock()

	if c.voice != nil {
		v.Voice = c.voice.Snapshot()
	} else {
		v.Voice = speech.Snapshot{State: speech.StateIdle}
		if c.voiceErr != nil {
			v.VoiceError = c.voiceErr.Error()
		}
	}
	return v
}

// Close detaches from the store and stops any running capture.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.voice != nil {
		c.voice.Close()
	}
}
