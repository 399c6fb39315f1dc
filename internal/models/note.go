// Package models defines the domain types for Voxnote.
package models

import (
	"strings"
	"time"
)

// Display fallbacks for empty fields. They are never written back to storage.
const (
	UntitledTitle = "Untitled Note"
	EmptyContent  = "No content"
)

// Note is a user-owned title/content record persisted in the document store.
type Note struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	IsBookmarked bool      `json:"is_bookmarked"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	// Provisional is set when CreatedAt/UpdatedAt were approximated locally
	// after a create. The next load replaces them with the stored values.
	Provisional bool `json:"provisional,omitempty"`
}

// DisplayTitle returns the title to show for n.
func (n Note) DisplayTitle() string {
	if strings.TrimSpace(n.Title) == "" {
		return UntitledTitle
	}
	return n.Title
}

// DisplayContent returns the content to show for n.
func (n Note) DisplayContent() string {
	if strings.TrimSpace(n.Content) == "" {
		return EmptyContent
	}
	return n.Content
}

// Matches reports whether query (already trimmed and lower-cased) is a
// substring of the title or content.
func (n Note) Matches(query string) bool {
	return strings.Contains(strings.ToLower(n.Title), query) ||
		strings.Contains(strings.ToLower(n.Content), query)
}

// Fields is a partial update. Nil fields are left untouched.
type Fields struct {
	Title        *string `json:"title,omitempty"`
	Content      *string `json:"content,omitempty"`
	IsBookmarked *bool   `json:"is_bookmarked,omitempty"`
}

// Empty reports whether no field is set.
func (f Fields) Empty() bool {
	return f.Title == nil && f.Content == nil && f.IsBookmarked == nil
}

// Apply merges the set fields into n and stamps updatedAt.
// UpdatedAt never moves before CreatedAt.
func (f Fields) Apply(n *Note, updatedAt time.Time) {
	if f.Title != nil {
		n.Title = *f.Title
	}
	if f.Content != nil {
		n.Content = *f.Content
	}
	if f.IsBookmarked != nil {
		n.IsBookmarked = *f.IsBookmarked
	}
	if updatedAt.Before(n.CreatedAt) {
		updatedAt = n.CreatedAt
	}
	n.UpdatedAt = updatedAt
}

// String returns a pointer to s. Convenience for building Fields.
func String(s string) *string { return &s }

// Bool returns a pointer to b. Convenience for building Fields.
func Bool(b bool) *bool { return &b }
