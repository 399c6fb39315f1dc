// Package vault is a document store that keeps each note as a Markdown file
// with YAML frontmatter under <root>/<owner>/<id>.md.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/starford/voxnote/internal/apperr"
	"github.com/starford/voxnote/internal/checksum"
	"github.com/starford/voxnote/internal/docstore"
	"github.com/starford/voxnote/internal/models"
)

// Vault implements docstore.DocumentStore on the local file system.
type Vault struct {
	root string // absolute path to vault directory
	now  func() time.Time

	mu sync.Mutex
	// own tracks checksums of files this process wrote ("" for deletes)
	// so the watcher can skip its own events.
	own map[string]string
}

var _ docstore.DocumentStore = (*Vault)(nil)

// Open creates a vault rooted at dir, creating the directory if needed.
func Open(dir string) (*Vault, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("vault: create root: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault: root is not a directory: %s", abs)
	}
	return &Vault{root: abs, now: time.Now, own: make(map[string]string)}, nil
}

// Root returns the absolute vault directory.
func (v *Vault) Root() string { return v.root }

// ownerDir maps an owner ID onto a single path segment.
func ownerDir(ownerID string) (string, error) {
	dir := url.PathEscape(ownerID)
	if dir == "" || dir == "." || dir == ".." {
		return "", fmt.Errorf("vault: invalid owner id %q", ownerID)
	}
	return dir, nil
}

func notePath(ownerID, id string) (string, error) {
	dir, err := ownerDir(ownerID)
	if err != nil {
		return "", err
	}
	return path.Join(dir, id+".md"), nil
}

// Create writes a new note file with a fresh ID.
func (v *Vault) Create(_ context.Context, ownerID, title, content string) (models.Note, error) {
	now := v.now().UTC()
	n := models.Note{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rel, err := notePath(ownerID, n.ID)
	if err != nil {
		return models.Note{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.writeNote(rel, n); err != nil {
		return models.Note{}, err
	}
	return n, nil
}

// Get locates the note file by ID across owners.
func (v *Vault) Get(_ context.Context, id string) (models.Note, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n, _, err := v.find(id)
	return n, err
}

// ListByOwner reads every note file of ownerID, newest first.
func (v *Vault) ListByOwner(_ context.Context, ownerID string) ([]models.Note, error) {
	dir, err := ownerDir(ownerID)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	out := []models.Note{}
	matches, err := doublestar.Glob(os.DirFS(v.root), path.Join(dir, "**", "*.md"))
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}
	for _, rel := range matches {
		data, err := v.read(rel)
		if err != nil {
			return nil, err
		}
		n, err := decodeNote(data)
		if err != nil {
			return nil, fmt.Errorf("vault: %s: %w", rel, err)
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Update rewrites the note file with the set fields applied.
func (v *Vault) Update(_ context.Context, id string, fields models.Fields) (time.Time, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n, rel, err := v.find(id)
	if err != nil {
		return time.Time{}, err
	}
	fields.Apply(&n, v.now().UTC())
	if err := v.writeNote(rel, n); err != nil {
		return time.Time{}, err
	}
	return n.UpdatedAt, nil
}

// Delete removes the note file. Missing notes are ignored.
func (v *Vault) Delete(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, rel, err := v.find(id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	v.own[rel] = ""
	return v.remove(rel)
}

// Close implements docstore.DocumentStore.
func (v *Vault) Close() error { return nil }

// find resolves a note ID to its decoded note and relative path.
// Callers hold v.mu.
func (v *Vault) find(id string) (models.Note, string, error) {
	// IDs are UUIDs; anything else cannot name a vault file and must not
	// reach the glob pattern.
	if _, err := uuid.Parse(id); err != nil {
		return models.Note{}, "", apperr.ErrNotFound
	}
	matches, err := doublestar.Glob(os.DirFS(v.root), path.Join("*", "**", id+".md"))
	if err != nil {
		return models.Note{}, "", fmt.Errorf("vault: find: %w", err)
	}
	if len(matches) == 0 {
		return models.Note{}, "", apperr.ErrNotFound
	}
	rel := matches[0]
	data, err := v.read(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Note{}, "", apperr.ErrNotFound
		}
		return models.Note{}, "", err
	}
	n, err := decodeNote(data)
	if err != nil {
		return models.Note{}, "", fmt.Errorf("vault: %s: %w", rel, err)
	}
	return n, rel, nil
}

// writeNote encodes and atomically writes n. Callers hold v.mu.
func (v *Vault) writeNote(rel string, n models.Note) error {
	data, err := encodeNote(n)
	if err != nil {
		return err
	}
	if err := v.write(rel, data); err != nil {
		return err
	}
	v.own[rel] = checksum.Sum(data)
	return nil
}

// isOwnWrite reports whether the file at rel (with current contents data,
// nil when removed) was last written by this process.
func (v *Vault) isOwnWrite(rel string, data []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	sum, ok := v.own[rel]
	if !ok {
		return false
	}
	if data == nil {
		if sum == "" {
			delete(v.own, rel)
			return true
		}
		return false
	}
	return checksum.Matches(data, sum)
}

// splitRel splits "<owner>/.../<id>.md" into owner and note IDs.
func splitRel(rel string) (ownerID, noteID string, ok bool) {
	rel = filepath.ToSlash(rel)
	if !strings.HasSuffix(rel, ".md") {
		return "", "", false
	}
	parts := strings.Split(rel, "/")
	if len(parts) < 2 {
		return "", "", false
	}
	owner, err := url.PathUnescape(parts[0])
	if err != nil {
		return "", "", false
	}
	return owner, strings.TrimSuffix(parts[len(parts)-1], ".md"), true
}
