package vault

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/voxnote/internal/apperr"
	"github.com/starford/voxnote/internal/models"
)

func tempVault(t *testing.T) *Vault {
	t.Helper()
	v, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return v
}

func TestCreateAndGet(t *testing.T) {
	v := tempVault(t)
	ctx := context.Background()

	n, err := v.Create(ctx, "alice@example.com", "Hello", "first line\n\n---\nnot frontmatter\n")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := v.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != n.Content {
		t.Errorf("content = %q, want %q", got.Content, n.Content)
	}
	if got.Title != "Hello" || got.OwnerID != "alice@example.com" {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(n.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, n.CreatedAt)
	}
}

func TestEmptyTitleRoundTrip(t *testing.T) {
	v := tempVault(t)
	ctx := context.Background()
	n, _ := v.Create(ctx, "alice", "", "")
	got, err := v.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "" || got.Content != "" {
		t.Errorf("empty fields not preserved: %+v", got)
	}
}

func TestGet_InvalidOrMissingID(t *testing.T) {
	v := tempVault(t)
	for _, id := range []string{"../../etc/passwd", "*", "00000000-0000-0000-0000-000000000000"} {
		if _, err := v.Get(context.Background(), id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Get(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestListByOwner(t *testing.T) {
	v := tempVault(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	v.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	a, _ := v.Create(ctx, "alice", "a", "")
	b, _ := v.Create(ctx, "alice", "b", "")
	_, _ = v.Create(ctx, "bob", "c", "")

	notes, err := v.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("len = %d, want 2", len(notes))
	}
	if notes[0].ID != b.ID || notes[1].ID != a.ID {
		t.Errorf("expected newest first")
	}

	none, err := v.ListByOwner(ctx, "carol")
	if err != nil || len(none) != 0 {
		t.Errorf("unknown owner: %v, %d notes", err, len(none))
	}
}

func TestInvalidOwnerRejected(t *testing.T) {
	v := tempVault(t)
	for _, owner := range []string{"", ".", ".."} {
		if _, err := v.Create(context.Background(), owner, "t", "c"); err == nil {
			t.Errorf("owner %q should be rejected", owner)
		}
	}
}

func TestUpdateAndDelete(t *testing.T) {
	v := tempVault(t)
	ctx := context.Background()
	n, _ := v.Create(ctx, "alice", "t", "c")

	if _, err := v.Update(ctx, n.ID, models.Fields{IsBookmarked: models.Bool(true)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := v.Get(ctx, n.ID)
	if !got.IsBookmarked || got.Title != "t" {
		t.Errorf("got %+v", got)
	}

	if err := v.Delete(ctx, n.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := v.Get(ctx, n.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
	if err := v.Delete(ctx, n.ID); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if _, err := v.Update(ctx, n.ID, models.Fields{Title: models.String("x")}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Update after delete: %v", err)
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	v := tempVault(t)
	ctx := context.Background()
	n, _ := v.Create(ctx, "alice", "t", "v1")
	_, _ = v.Update(ctx, n.ID, models.Fields{Content: models.String("v2")})

	matches, _ := filepath.Glob(filepath.Join(v.root, "alice", ".voxnote-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestTraversalBlocked(t *testing.T) {
	v := tempVault(t)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow"} {
		if _, err := v.read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := v.write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatch_ReportsExternalChangesOnly(t *testing.T) {
	v := tempVault(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed the owner directory before the watcher starts.
	own, _ := v.Create(context.Background(), "alice", "mine", "")

	var mu sync.Mutex
	var changes []ExternalChange
	go v.Watch(ctx, logger, func(c ExternalChange) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	// Own write: must be skipped.
	_, _ = v.Update(context.Background(), own.ID, models.Fields{Title: models.String("mine v2")})

	// External write from another process.
	foreign := models.Note{
		ID:        "11111111-1111-1111-1111-111111111111",
		OwnerID:   "alice",
		Title:     "from elsewhere",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	data, _ := encodeNote(foreign)
	if err := os.WriteFile(filepath.Join(v.root, "alice", foreign.ID+".md"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range changes {
			if c.NoteID == foreign.ID && c.OwnerID == "alice" {
				return true
			}
		}
		return false
	}, "external change not reported")

	mu.Lock()
	defer mu.Unlock()
	for _, c := range changes {
		if c.NoteID == own.ID {
			t.Errorf("own write reported as external: %+v", c)
		}
	}
}
