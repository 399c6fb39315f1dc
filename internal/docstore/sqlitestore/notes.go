package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/voxnote/internal/apperr"
	"github.com/starford/voxnote/internal/models"
)

const noteColumns = `id, owner_id, title, content, is_bookmarked, created_at, updated_at`

// Create inserts a new note with a server-assigned ID and timestamps.
func (db *DB) Create(ctx context.Context, ownerID, title, content string) (models.Note, error) {
	now := db.now().UTC()
	n := models.Note{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, n.ID, n.OwnerID, n.Title, n.Content, now.UnixNano(), now.UnixNano())
	if err != nil {
		return models.Note{}, fmt.Errorf("sqlitestore: insert note: %w", err)
	}
	return n, nil
}

// Get returns the note with the given ID.
func (db *DB) Get(ctx context.Context, id string) (models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Note{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.Note{}, fmt.Errorf("sqlitestore: get note: %w", err)
	}
	return n, nil
}

// ListByOwner returns all notes of ownerID, newest first.
func (db *DB) ListByOwner(ctx context.Context, ownerID string) ([]models.Note, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list notes: %w", err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Update writes the set fields and refreshes updated_at.
func (db *DB) Update(ctx context.Context, id string, fields models.Fields) (time.Time, error) {
	now := db.now().UTC()

	sets := []string{"updated_at = max(?, created_at)"}
	args := []any{now.UnixNano()}
	if fields.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *fields.Title)
	}
	if fields.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *fields.Content)
	}
	if fields.IsBookmarked != nil {
		sets = append(sets, "is_bookmarked = ?")
		args = append(args, boolToInt(*fields.IsBookmarked))
	}
	args = append(args, id)

	// max() keeps updated_at >= created_at even if the clock stepped back.
	var stored int64
	err := db.conn.QueryRowContext(ctx,
		`UPDATE notes SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING updated_at`, args...).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, apperr.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlitestore: update note: %w", err)
	}
	return time.Unix(0, stored).UTC(), nil
}

// Delete removes a note. Missing notes are ignored.
func (db *DB) Delete(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlitestore: delete note: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (models.Note, error) {
	var (
		n                models.Note
		bookmarked       int
		created, updated int64
	)
	if err := s.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &bookmarked, &created, &updated); err != nil {
		return models.Note{}, err
	}
	n.IsBookmarked = bookmarked != 0
	n.CreatedAt = time.Unix(0, created).UTC()
	n.UpdatedAt = time.Unix(0, updated).UTC()
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
