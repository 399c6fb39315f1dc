// Package docstore defines the remote document store contract backing notes.
package docstore

import (
	"context"
	"time"

	"github.com/starford/voxnote/internal/models"
)

// DocumentStore is a keyed note collection. Implementations assign IDs and
// timestamps at write time.
type DocumentStore interface {
	// Create persists a new note for owner and returns it with its assigned ID.
	// Stores that do not echo timestamps leave CreatedAt/UpdatedAt zero.
	Create(ctx context.Context, ownerID, title, content string) (models.Note, error)
	// Get returns a single note or apperr.ErrNotFound.
	Get(ctx context.Context, id string) (models.Note, error)
	// ListByOwner returns every note of owner ordered by CreatedAt descending.
	ListByOwner(ctx context.Context, ownerID string) ([]models.Note, error)
	// Update writes the set fields and returns the refreshed UpdatedAt.
	// A missing note yields apperr.ErrNotFound.
	Update(ctx context.Context, id string, fields models.Fields) (time.Time, error)
	// Delete removes the note. Deleting a missing note is not an error.
	Delete(ctx context.Context, id string) error
	// Close releases the underlying connection.
	Close() error
}
