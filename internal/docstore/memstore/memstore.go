// Package memstore is an in-memory document store. It backs the "memory"
// store driver and lets tests inject write and read failures.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/voxnote/internal/apperr"
	"github.com/starford/voxnote/internal/docstore"
	"github.com/starford/voxnote/internal/models"
)

// Op names a store operation for fault injection.
type Op string

const (
	OpCreate Op = "create"
	OpGet    Op = "get"
	OpList   Op = "list"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Store keeps notes in a map keyed by ID.
type Store struct {
	mu    sync.Mutex
	notes map[string]models.Note
	seq   map[string]int64 // insertion order, tie-break for equal timestamps
	next  int64
	fail  map[Op]error
	calls map[Op]int

	// Now is the server clock. Defaults to time.Now.
	Now func() time.Time
	// EchoTimestamps controls whether Create returns the assigned
	// timestamps. When false, callers must approximate them.
	EchoTimestamps bool
	// NewID generates note IDs. Defaults to uuid.NewString.
	NewID func() string
}

var _ docstore.DocumentStore = (*Store)(nil)

// New returns an empty store that echoes timestamps on create.
func New() *Store {
	return &Store{
		notes:          make(map[string]models.Note),
		seq:            make(map[string]int64),
		fail:           make(map[Op]error),
		calls:          make(map[Op]int),
		Now:            time.Now,
		EchoTimestamps: true,
		NewID:          uuid.NewString,
	}
}

// FailWith makes every subsequent call of op return err until cleared with
// a nil err.
func (s *Store) FailWith(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Put stores n as-is, bypassing ID and timestamp assignment. Used to seed
// state written by another client.
func (s *Store) Put(n models.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.notes[n.ID] = n
	s.seq[n.ID] = s.next
}

func (s *Store) enter(op Op) error {
	s.calls[op]++
	return s.fail[op]
}

// Create implements docstore.DocumentStore.
func (s *Store) Create(_ context.Context, ownerID, title, content string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCreate); err != nil {
		return models.Note{}, err
	}
	now := s.Now().UTC()
	n := models.Note{
		ID:        s.NewID(),
		OwnerID:   ownerID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.next++
	s.notes[n.ID] = n
	s.seq[n.ID] = s.next

	if !s.EchoTimestamps {
		n.CreatedAt, n.UpdatedAt = time.Time{}, time.Time{}
	}
	return n, nil
}

// Get implements docstore.DocumentStore.
func (s *Store) Get(_ context.Context, id string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGet); err != nil {
		return models.Note{}, err
	}
	n, ok := s.notes[id]
	if !ok {
		return models.Note{}, apperr.ErrNotFound
	}
	return n, nil
}

// ListByOwner implements docstore.DocumentStore.
func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpList); err != nil {
		return nil, err
	}
	out := []models.Note{}
	for _, n := range s.notes {
		if n.OwnerID == ownerID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	return out, nil
}

// Update implements docstore.DocumentStore.
func (s *Store) Update(_ context.Context, id string, fields models.Fields) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdate); err != nil {
		return time.Time{}, err
	}
	n, ok := s.notes[id]
	if !ok {
		return time.Time{}, apperr.ErrNotFound
	}
	fields.Apply(&n, s.Now().UTC())
	s.notes[id] = n
	return n.UpdatedAt, nil
}

// Delete implements docstore.DocumentStore.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDelete); err != nil {
		return err
	}
	delete(s.notes, id)
	delete(s.seq, id)
	return nil
}

// Close implements docstore.DocumentStore.
func (s *Store) Close() error { return nil }
