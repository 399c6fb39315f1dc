package notesession

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/voxnote/internal/apperr"
	"github.com/starford/voxnote/internal/docstore/memstore"
	"github.com/starford/voxnote/internal/genai"
	"github.com/starford/voxnote/internal/models"
	"github.com/starford/voxnote/internal/notestore"
	"github.com/starford/voxnote/internal/speech"
)

const owner = "alice"

var errBoom = errors.New("boom")

func newController(t *testing.T, opts ...Option) (*Controller, *notestore.Store, *memstore.Store) {
	t.Helper()
	remote := memstore.New()
	store := notestore.New(remote)
	c := New(owner, store, opts...)
	t.Cleanup(c.Close)
	return c, store, remote
}

func TestCreateSelectsAndEdits(t *testing.T) {
	c, store, _ := newController(t)
	n, err := c.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.Title != DefaultTitle || n.Content != DefaultContent {
		t.Errorf("created = %+v", n)
	}
	v := c.View()
	if v.Selected == nil || v.Selected.ID != n.ID || !v.Editing {
		t.Fatalf("view = %+v", v)
	}
	if v.Draft == nil || v.Draft.Title != DefaultTitle {
		t.Errorf("draft = %+v", v.Draft)
	}
	if len(store.Notes()) != 1 {
		t.Error("note should be in the store")
	}
}

func TestSaveEmptyTitleKeepsStoredValue(t *testing.T) {
	c, store, remote := newController(t)
	ctx := context.Background()

	n, _ := c.Create(ctx)
	if err := c.SetDraft("", "abc"); err != nil {
		t.Fatalf("SetDraft: %v", err)
	}
	saved, err := c.Save(ctx)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.DisplayTitle() != models.UntitledTitle {
		t.Errorf("display title = %q", saved.DisplayTitle())
	}
	if saved.Title != "" {
		t.Errorf("stored title = %q, want empty", saved.Title)
	}

	persisted, _ := remote.Get(ctx, n.ID)
	if persisted.Title != "" || persisted.Content != "abc" {
		t.Errorf("persisted = %+v", persisted)
	}
	inMemory, _ := store.Get(n.ID)
	if inMemory.Title != "" {
		t.Errorf("in-memory title rewritten to %q", inMemory.Title)
	}
	if v := c.View(); v.Editing || v.Selected.Content != "abc" {
		t.Errorf("view after save = %+v", v)
	}
}

func TestSaveFailureStaysInEditMode(t *testing.T) {
	c, store, remote := newController(t)
	ctx := context.Background()
	n, _ := c.Create(ctx)
	_ = c.SetDraft("draft title", "draft body")

	remote.FailWith(memstore.OpUpdate, errBoom)
	if _, err := c.Save(ctx); !errors.Is(err, apperr.ErrStoreWrite) {
		t.Fatalf("err = %v, want ErrStoreWrite", err)
	}
	v := c.View()
	if !v.Editing || v.Draft.Title != "draft title" {
		t.Errorf("edit state lost: %+v", v)
	}
	if got, _ := store.Get(n.ID); got.Title != DefaultTitle {
		t.Errorf("store changed on failed save: %+v", got)
	}

	remote.FailWith(memstore.OpUpdate, nil)
	if _, err := c.Save(ctx); err != nil {
		t.Fatalf("retry Save: %v", err)
	}
	if c.View().Editing {
		t.Error("successful retry should leave edit mode")
	}
}

func TestPreconditions(t *testing.T) {
	c, _, _ := newController(t)
	ctx := context.Background()

	if err := c.BeginEdit(); !errors.Is(err, apperr.ErrNoSelection) {
		t.Errorf("BeginEdit: %v", err)
	}
	if _, err := c.Save(ctx); !errors.Is(err, apperr.ErrNoSelection) {
		t.Errorf("Save: %v", err)
	}
	if _, err := c.Select("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Select: %v", err)
	}
	if err := c.ConfirmDelete(ctx); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("ConfirmDelete: %v", err)
	}
	if _, err := c.Translate(ctx); !errors.Is(err, apperr.ErrGenerationUnavailable) {
		t.Errorf("Translate without translator: %v", err)
	}

	n, _ := c.Create(ctx)
	_, _ = c.Select(n.ID)
	if _, err := c.Save(ctx); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("Save outside edit mode: %v", err)
	}
	if err := c.SetDraft("x", "y"); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("SetDraft outside edit mode: %v", err)
	}
}

func TestSelectExitsEditModeAndSeedsBuffer(t *testing.T) {
	c, store, _ := newController(t)
	ctx := context.Background()
	other, _ := store.Create(ctx, owner, "other", "body")
	_, _ = c.Create(ctx)
	_ = c.SetDraft("unsaved", "")

	if _, err := c.Select(other.ID); err != nil {
		t.Fatal(err)
	}
	v := c.View()
	if v.Editing || v.Selected.ID != other.ID {
		t.Errorf("view = %+v", v)
	}
	_ = c.BeginEdit()
	if d := c.View().Draft; d.Title != "other" || d.Content != "body" {
		t.Errorf("draft = %+v", d)
	}
	c.CancelEdit()
	if c.View().Editing {
		t.Error("CancelEdit should leave edit mode")
	}
}

func TestToggleBookmarkRefreshesSelection(t *testing.T) {
	c, _, _ := newController(t)
	ctx := context.Background()
	n, _ := c.Create(ctx)

	toggled, err := c.ToggleBookmark(ctx, n.ID)
	if err != nil {
		t.Fatalf("ToggleBookmark: %v", err)
	}
	if !toggled.IsBookmarked || !c.View().Selected.IsBookmarked {
		t.Error("selection should show the bookmark")
	}
	again, _ := c.ToggleBookmark(ctx, n.ID)
	if again.IsBookmarked || c.View().Selected.IsBookmarked {
		t.Error("double toggle should restore the flag")
	}
}

func TestToggleBookmarkFailureKeepsFlag(t *testing.T) {
	c, _, remote := newController(t)
	ctx := context.Background()
	n, _ := c.Create(ctx)

	remote.FailWith(memstore.OpUpdate, errBoom)
	if _, err := c.ToggleBookmark(ctx, n.ID); !errors.Is(err, apperr.ErrStoreWrite) {
		t.Fatalf("err = %v", err)
	}
	if c.View().Selected.IsBookmarked {
		t.Error("failed toggle must not change the selection")
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	c, store, remote := newController(t)
	ctx := context.Background()
	n, _ := c.Create(ctx)

	if err := c.RequestDelete(n.ID); err != nil {
		t.Fatalf("RequestDelete: %v", err)
	}
	if remote.Calls(memstore.OpDelete) != 0 {
		t.Fatal("delete must wait for confirmation")
	}
	c.CancelDelete()
	if err := c.ConfirmDelete(ctx); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("confirm after cancel: %v", err)
	}

	_ = c.RequestDelete(n.ID)
	if c.View().PendingDelete != n.ID {
		t.Error("pending delete not shown")
	}
	if err := c.ConfirmDelete(ctx); err != nil {
		t.Fatalf("ConfirmDelete: %v", err)
	}
	v := c.View()
	if v.Selected != nil || v.PendingDelete != "" || v.Editing {
		t.Errorf("view after delete = %+v", v)
	}
	if len(store.Notes()) != 0 {
		t.Error("note should be gone")
	}
	if err := c.RequestDelete(n.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second RequestDelete: %v", err)
	}
}

func TestDeleteFailureKeepsSelection(t *testing.T) {
	c, _, remote := newController(t)
	ctx := context.Background()
	n, _ := c.Create(ctx)
	_ = c.RequestDelete(n.ID)

	remote.FailWith(memstore.OpDelete, errBoom)
	if err := c.ConfirmDelete(ctx); !errors.Is(err, apperr.ErrStoreWrite) {
		t.Fatalf("err = %v", err)
	}
	v := c.View()
	if v.Selected == nil || v.PendingDelete != n.ID {
		t.Errorf("view = %+v", v)
	}
}

func TestRemoveFromElsewhereClearsSelection(t *testing.T) {
	c, store, _ := newController(t)
	ctx := context.Background()
	n, _ := c.Create(ctx)

	if err := store.Remove(ctx, n.ID); err != nil {
		t.Fatal(err)
	}
	if c.View().Selected != nil {
		t.Error("selection should follow the store removal")
	}
}

func TestReloadDropsVanishedSelection(t *testing.T) {
	c, store, remote := newController(t)
	ctx := context.Background()
	n, _ := c.Create(ctx)
	if err := c.RequestDelete(n.ID); err != nil {
		t.Fatal(err)
	}

	// Deleted by another client.
	if err := remote.Delete(ctx, n.ID); err != nil {
		t.Fatal(err)
	}

	// A search that happens not to match keeps the selection.
	if _, err := store.Search(ctx, owner, "no such text"); err != nil {
		t.Fatal(err)
	}
	if v := c.View(); v.Selected == nil || v.PendingDelete != n.ID {
		t.Fatalf("search should not drop the selection: %+v", v)
	}

	if _, err := store.Load(ctx, owner); err != nil {
		t.Fatal(err)
	}
	v := c.View()
	if v.Selected != nil || v.Editing || v.PendingDelete != "" {
		t.Errorf("view after reload = %+v", v)
	}
	if _, err := c.Save(ctx); !errors.Is(err, apperr.ErrNoSelection) {
		t.Errorf("save after reload: %v, want ErrNoSelection", err)
	}
}

// stepTranslator lets a test change controller state while a call is in
// flight.
type stepTranslator struct {
	during func()
	out    string
	err    error
}

func (s *stepTranslator) Translate(_ context.Context, text string, lang genai.Language) (string, error) {
	if s.during != nil {
		s.during()
	}
	if s.err != nil {
		return "", s.err
	}
	return s.out + ":" + string(lang) + ":" + text, nil
}

func TestTranslate(t *testing.T) {
	tr := &stepTranslator{out: "tr"}
	c, _, _ := newController(t, WithTranslator(tr))
	ctx := context.Background()
	n, _ := c.Create(ctx)
	_ = c.SetDraft("t", "hello")
	_, _ = c.Save(ctx)
	_, _ = c.Select(n.ID)

	got, err := c.Translate(ctx)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "tr:kannada:hello" || c.View().Translation != got {
		t.Errorf("translation = %q", got)
	}

	c.SetLanguage(genai.Hindi)
	if c.View().Translation != "" {
		t.Error("changing language should drop the shown translation")
	}
}

func TestTranslate_StaleLanguageDiscarded(t *testing.T) {
	tr := &stepTranslator{out: "tr"}
	c, _, _ := newController(t, WithTranslator(tr))
	ctx := context.Background()
	_, _ = c.Create(ctx)
	tr.during = func() { c.SetLanguage(genai.French) }

	if _, err := c.Translate(ctx); !errors.Is(err, apperr.ErrStaleResult) {
		t.Fatalf("err = %v, want ErrStaleResult", err)
	}
	if c.View().Translation != "" {
		t.Error("stale translation must not be shown")
	}
}

func TestTranslate_StaleSelectionDiscarded(t *testing.T) {
	tr := &stepTranslator{out: "tr"}
	c, store, _ := newController(t, WithTranslator(tr))
	ctx := context.Background()
	other, _ := store.Create(ctx, owner, "other", "x")
	_, _ = c.Create(ctx)
	tr.during = func() { _, _ = c.Select(other.ID) }

	if _, err := c.Translate(ctx); !errors.Is(err, apperr.ErrStaleResult) {
		t.Fatalf("err = %v, want ErrStaleResult", err)
	}
}

func TestTranslate_FailureSurfaces(t *testing.T) {
	tr := &stepTranslator{err: apperr.ErrGenerationFailed}
	c, _, _ := newController(t, WithTranslator(tr))
	_, _ = c.Create(context.Background())
	if _, err := c.Translate(context.Background()); !errors.Is(err, apperr.ErrGenerationFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestResetAndClear(t *testing.T) {
	c, store, _ := newController(t)
	ctx := context.Background()
	n, _ := c.Create(ctx)
	_ = c.RequestDelete(n.ID)

	c.Reset()
	if v := c.View(); v.Selected != nil || v.PendingDelete != "" {
		t.Errorf("view after reset = %+v", v)
	}

	_, _ = c.Select(n.ID)
	store.Clear()
	if c.View().Selected != nil {
		t.Error("store clear should clear the selection")
	}
}

func TestVoiceUnavailable(t *testing.T) {
	c, _, _ := newController(t)
	if _, err := c.ConfirmVoiceNote(context.Background()); !errors.Is(err, apperr.ErrCaptureUnsupported) {
		t.Fatalf("err = %v, want ErrCaptureUnsupported", err)
	}
	if c.View().VoiceError == "" {
		t.Error("view should report why voice is unavailable")
	}
}

type oneShotStream struct{ ch chan speech.Segment }

func (s *oneShotStream) Segments() <-chan speech.Segment { return s.ch }
func (s *oneShotStream) Stop() error                     { close(s.ch); return nil }

type scriptedRecognizer struct{ segments []speech.Segment }

func (r *scriptedRecognizer) Probe(context.Context) error { return nil }

func (r *scriptedRecognizer) Start(context.Context) (speech.Stream, error) {
	ch := make(chan speech.Segment, len(r.segments))
	for _, s := range r.segments {
		ch <- s
	}
	return &oneShotStream{ch: ch}, nil
}

type failingTitler struct{}

func (failingTitler) Title(context.Context, string) (string, error) {
	return "", apperr.ErrGenerationFailed
}

func TestConfirmVoiceNote(t *testing.T) {
	remote := memstore.New()
	store := notestore.New(remote)
	rec := &scriptedRecognizer{segments: []speech.Segment{
		{Text: "hello"},
		{Text: "hello world", Final: true},
	}}
	ctx := context.Background()
	voice, err := speech.NewSession(ctx, rec, failingTitler{}, func(ctx context.Context, title, content string) (models.Note, error) {
		return store.Create(ctx, owner, title, content)
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := New(owner, store, WithVoice(voice, nil))
	defer c.Close()

	if err := voice.Start(ctx); err != nil {
		t.Fatal(err)
	}
	n, err := c.ConfirmVoiceNote(ctx)
	if err != nil {
		t.Fatalf("ConfirmVoiceNote: %v", err)
	}
	if n.Title != models.UntitledTitle || n.Content != "hello world" {
		t.Errorf("note = %+v", n)
	}
	if v := c.View(); v.Selected == nil || v.Selected.ID != n.ID {
		t.Error("voice note should be selected")
	}
	if len(store.Notes()) != 1 {
		t.Error("voice note should be in the store")
	}
}
