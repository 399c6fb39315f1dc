// Package notestore keeps one owner's in-memory note list consistent with a
// remote document store.
//
// The list only changes after the remote call it mirrors has succeeded, so a
// failed operation leaves memory exactly as it was. Remote calls never run
// under the store lock; operations issued concurrently interleave at call
// boundaries and the last write wins.
package notestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/voxnote/internal/apperr"
	"github.com/starford/voxnote/internal/docstore"
	"github.com/starford/voxnote/internal/models"
)

// Kind names the operation a Change reports.
type Kind string

const (
	ChangeLoaded  Kind = "loaded"
	ChangeCreated Kind = "created"
	ChangeUpdated Kind = "updated"
	ChangeRemoved Kind = "removed"
	ChangeCleared Kind = "cleared"
)

// Change is emitted after every successful mutation of the in-memory list.
// Note carries the affected note for created and updated changes. Filtered
// marks a load that holds only search matches.
type Change struct {
	Kind     Kind
	OwnerID  string
	NoteID   string
	Note     models.Note
	Filtered bool
}

// Store is the authoritative note cache for a single owner.
type Store struct {
	remote docstore.DocumentStore
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	owner string
	notes []models.Note

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObs   int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the clock used for provisional timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store over remote.
func New(remote docstore.DocumentStore, opts ...Option) *Store {
	s := &Store{
		remote:    remote,
		logger:    slog.Default(),
		now:       time.Now,
		notes:     []models.Note{},
		observers: make(map[int]func(Change)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers fn for every Change and returns a func that removes it.
// fn runs synchronously on the goroutine that completed the operation and
// must not block.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) emit(c Change) {
	s.obsMu.Lock()
	fns := make([]func(Change), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Owner returns the owner whose notes are held, or "" before the first load.
func (s *Store) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Notes returns a copy of the in-memory list.
func (s *Store) Notes() []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Note, len(s.notes))
	copy(out, s.notes)
	return out
}

// Get returns the in-memory note with id.
func (s *Store) Get(id string) (models.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.notes[i], true
	}
	return models.Note{}, false
}

// Load replaces the in-memory list with every note of ownerID, newest first.
func (s *Store) Load(ctx context.Context, ownerID string) ([]models.Note, error) {
	return s.fetch(ctx, ownerID, "")
}

// Search replaces the in-memory list with the owner's notes whose title or
// content contains text, case-insensitively. Blank text behaves as Load.
// Results are ordered newest first in both cases.
func (s *Store) Search(ctx context.Context, ownerID, text string) ([]models.Note, error) {
	return s.fetch(ctx, ownerID, strings.ToLower(strings.TrimSpace(text)))
}

func (s *Store) fetch(ctx context.Context, ownerID, query string) ([]models.Note, error) {
	all, err := s.remote.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.Warn("notestore: list failed",
			slog.String("owner", ownerID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("notestore: load: %w: %w", apperr.ErrStoreUnavailable, err)
	}

	notes := make([]models.Note, 0, len(all))
	for _, n := range all {
		if query == "" || n.Matches(query) {
			notes = append(notes, n)
		}
	}
	sortNewestFirst(notes)

	s.mu.Lock()
	s.owner = ownerID
	s.notes = notes
	out := make([]models.Note, len(notes))
	copy(out, notes)
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeLoaded, OwnerID: ownerID, Filtered: query != ""})
	return out, nil
}

// Create persists a new note and prepends it to the list. The ID always
// comes from the document store. When the store does not echo timestamps
// the local clock stands in and the note is marked Provisional until the
// next load.
func (s *Store) Create(ctx context.Context, ownerID, title, content string) (models.Note, error) {
	s.mu.Lock()
	if s.owner != "" && s.owner != ownerID {
		s.mu.Unlock()
		return models.Note{}, fmt.Errorf("notestore: create for %q while holding %q: %w", ownerID, s.owner, apperr.ErrInvalidState)
	}
	s.mu.Unlock()

	n, err := s.remote.Create(ctx, ownerID, title, content)
	if err != nil {
		s.logger.Warn("notestore: create failed", slog.String("owner", ownerID), slog.String("error", err.Error()))
		return models.Note{}, fmt.Errorf("notestore: create: %w: %w", apperr.ErrStoreWrite, err)
	}
	if n.ID == "" {
		return models.Note{}, fmt.Errorf("notestore: create: %w: store returned no id", apperr.ErrStoreWrite)
	}

	n.OwnerID = ownerID
	n.Title = title
	n.Content = content
	n.IsBookmarked = false
	if n.CreatedAt.IsZero() || n.UpdatedAt.IsZero() {
		now := s.now().UTC()
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if n.UpdatedAt.Before(n.CreatedAt) {
			n.UpdatedAt = n.CreatedAt
		}
		n.Provisional = true
	}

	s.mu.Lock()
	s.owner = ownerID
	if i := s.indexOf(n.ID); i >= 0 {
		s.notes[i] = n
	} else {
		s.notes = append([]models.Note{n}, s.notes...)
	}
	s.mu.Unlock()

	s.logger.Debug("notestore: created", slog.String("id", n.ID), slog.Bool("provisional", n.Provisional))
	s.emit(Change{Kind: ChangeCreated, OwnerID: ownerID, NoteID: n.ID, Note: n})
	return n, nil
}

// Update persists fields for noteID and merges them into the in-memory note
// once the store acknowledges the write.
func (s *Store) Update(ctx context.Context, noteID string, fields models.Fields) (models.Note, error) {
	base, err := s.owned(ctx, noteID)
	if err != nil {
		return models.Note{}, fmt.Errorf("notestore: update: %w: %w", apperr.ErrStoreWrite, err)
	}

	updatedAt, err := s.remote.Update(ctx, noteID, fields)
	if err != nil {
		s.logger.Warn("notestore: update failed", slog.String("id", noteID), slog.String("error", err.Error()))
		return models.Note{}, fmt.Errorf("notestore: update: %w: %w", apperr.ErrStoreWrite, err)
	}
	if updatedAt.IsZero() {
		updatedAt = s.now().UTC()
	}

	s.mu.Lock()
	merged := base
	if i := s.indexOf(noteID); i >= 0 {
		fields.Apply(&s.notes[i], updatedAt)
		merged = s.notes[i]
	} else {
		fields.Apply(&merged, updatedAt)
	}
	owner := s.owner
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeUpdated, OwnerID: owner, NoteID: noteID, Note: merged})
	return merged, nil
}

// Remove deletes noteID remotely and drops it from the list. Removing a
// note that does not exist succeeds without touching anything.
func (s *Store) Remove(ctx context.Context, noteID string) error {
	if _, err := s.owned(ctx, noteID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("notestore: remove: %w: %w", apperr.ErrStoreWrite, err)
	}

	if err := s.remote.Delete(ctx, noteID); err != nil {
		s.logger.Warn("notestore: delete failed", slog.String("id", noteID), slog.String("error", err.Error()))
		return fmt.Errorf("notestore: remove: %w: %w", apperr.ErrStoreWrite, err)
	}

	s.mu.Lock()
	if i := s.indexOf(noteID); i >= 0 {
		s.notes = append(s.notes[:i:i], s.notes[i+1:]...)
	}
	owner := s.owner
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeRemoved, OwnerID: owner, NoteID: noteID})
	return nil
}

// Clear drops every note and forgets the owner. Used on sign-out.
func (s *Store) Clear() {
	s.mu.Lock()
	owner := s.owner
	s.owner = ""
	s.notes = []models.Note{}
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeCleared, OwnerID: owner})
}

// owned returns the current note for id, consulting the remote store when it
// is not in memory (for example after a filtering search). Notes of another
// owner are reported as not found.
func (s *Store) owned(ctx context.Context, id string) (models.Note, error) {
	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 {
		n := s.notes[i]
		s.mu.Unlock()
		return n, nil
	}
	owner := s.owner
	s.mu.Unlock()

	n, err := s.remote.Get(ctx, id)
	if err != nil {
		return models.Note{}, err
	}
	if owner == "" || n.OwnerID != owner {
		return models.Note{}, apperr.ErrNotFound
	}
	return n, nil
}

// indexOf returns the list position of id or -1. Callers hold s.mu.
func (s *Store) indexOf(id string) int {
	for i := range s.notes {
		if s.notes[i].ID == id {
			return i
		}
	}
	return -1
}

func sortNewestFirst(notes []models.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
}
