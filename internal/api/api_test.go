package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/voxnote/internal/docstore/memstore"
	"github.com/starford/voxnote/internal/genai"
	"github.com/starford/voxnote/internal/identity"
	"github.com/starford/voxnote/internal/models"
	"github.com/starford/voxnote/internal/notesession"
	"github.com/starford/voxnote/internal/speech"
	"github.com/starford/voxnote/internal/sse"
	"github.com/starford/voxnote/internal/workspace"
)

const (
	aliceToken = "alice-token"
	bobToken   = "bob-token"
)

type fakeTranslator struct {
	err error
}

func (f fakeTranslator) Translate(_ context.Context, text string, lang genai.Language) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return string(lang) + ":" + text, nil
}

type scriptedStream struct {
	ch   chan speech.Segment
	once sync.Once
}

func (s *scriptedStream) Segments() <-chan speech.Segment { return s.ch }

func (s *scriptedStream) Stop() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

// scriptedRecognizer emits the same final segments on every start.
type scriptedRecognizer struct {
	segments []string
}

func (r scriptedRecognizer) Probe(context.Context) error { return nil }

func (r scriptedRecognizer) Start(context.Context) (speech.Stream, error) {
	s := &scriptedStream{ch: make(chan speech.Segment, len(r.segments))}
	for _, text := range r.segments {
		s.ch <- speech.Segment{Text: text, Final: true}
	}
	return s, nil
}

// countingRecognizer records how often availability is checked.
type countingRecognizer struct {
	scriptedRecognizer
	checks atomic.Int32
}

func (r *countingRecognizer) Probe(context.Context) error {
	r.checks.Add(1)
	return nil
}

type fixedTitler string

func (t fixedTitler) Title(context.Context, string) (string, error) { return string(t), nil }

type env struct {
	remote   *memstore.Store
	registry *workspace.Registry
	router   http.Handler
}

type envOption func(*workspace.Deps)

func testEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	remote := memstore.New()
	broker := sse.NewBroker(time.Millisecond)
	deps := workspace.Deps{
		Remote:     remote,
		Translator: fakeTranslator{},
		Broker:     broker,
	}
	for _, o := range opts {
		o(&deps)
	}
	registry := workspace.NewRegistry(deps)
	t.Cleanup(func() {
		registry.Close()
		broker.Close()
	})

	provider := identity.NewTokens(map[string]identity.Identity{
		aliceToken: {OwnerID: "alice", DisplayName: "Alice"},
		bobToken:   {OwnerID: "bob", DisplayName: "Bob"},
	})
	return &env{remote: remote, registry: registry, router: NewRouter(registry, provider, broker)}
}

func (e *env) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestAuthRequired(t *testing.T) {
	e := testEnv(t)
	for _, token := range []string{"", "wrong"} {
		w := e.do(t, token, http.MethodGet, "/notes", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, w.Code)
		}
	}
}

func TestSession(t *testing.T) {
	e := testEnv(t)
	w := e.do(t, aliceToken, http.MethodGet, "/session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	s := decode[SessionResponse](t, w)
	if s.OwnerID != "alice" || s.DisplayName != "Alice" {
		t.Errorf("session = %+v", s)
	}
}

func TestCreateEditSave(t *testing.T) {
	e := testEnv(t)

	w := e.do(t, aliceToken, http.MethodPost, "/notes", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decode[NoteResponse](t, w)
	if created.Title != notesession.DefaultTitle || created.OwnerID != "alice" {
		t.Errorf("created = %+v", created)
	}

	view := decode[notesession.View](t, e.do(t, aliceToken, http.MethodGet, "/selection", nil))
	if view.Selected == nil || view.Selected.ID != created.ID || !view.Editing {
		t.Fatalf("view after create = %+v", view)
	}

	w = e.do(t, aliceToken, http.MethodPut, "/selection/draft", DraftRequest{Title: "", Content: "body"})
	if w.Code != http.StatusOK {
		t.Fatalf("draft status = %d", w.Code)
	}
	w = e.do(t, aliceToken, http.MethodPost, "/selection/save", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d, body = %s", w.Code, w.Body.String())
	}
	saved := decode[NoteResponse](t, w)
	if saved.Title != "" || saved.DisplayTitle != models.UntitledTitle || saved.Content != "body" {
		t.Errorf("saved = %+v", saved)
	}

	w = e.do(t, aliceToken, http.MethodGet, "/notes/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if got := decode[NoteResponse](t, w); got.Content != "body" {
		t.Errorf("stored content = %q", got.Content)
	}
}

func TestSaveFailureKeepsDraft(t *testing.T) {
	e := testEnv(t)
	e.do(t, aliceToken, http.MethodPost, "/notes", nil)
	e.do(t, aliceToken, http.MethodPut, "/selection/draft", DraftRequest{Title: "T", Content: "C"})

	e.remote.FailWith(memstore.OpUpdate, errors.New("offline"))
	w := e.do(t, aliceToken, http.MethodPost, "/selection/save", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("save status = %d, want 502", w.Code)
	}
	view := decode[notesession.View](t, e.do(t, aliceToken, http.MethodGet, "/selection", nil))
	if !view.Editing || view.Draft == nil || view.Draft.Title != "T" {
		t.Errorf("draft lost: %+v", view)
	}

	e.remote.FailWith(memstore.OpUpdate, nil)
	if w := e.do(t, aliceToken, http.MethodPost, "/selection/save", nil); w.Code != http.StatusOK {
		t.Errorf("retry status = %d", w.Code)
	}
}

func TestPreconditions(t *testing.T) {
	e := testEnv(t)
	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/selection/edit", http.StatusConflict},
		{http.MethodPost, "/selection/save", http.StatusConflict},
		{http.MethodPost, "/selection/translate", http.StatusConflict},
		{http.MethodPost, "/selection/delete/confirm", http.StatusConflict},
		{http.MethodGet, "/notes/missing", http.StatusNotFound},
		{http.MethodPost, "/notes/missing/select", http.StatusNotFound},
		{http.MethodPost, "/notes/missing/bookmark", http.StatusNotFound},
		{http.MethodPost, "/notes/missing/delete", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := e.do(t, aliceToken, tt.method, tt.path, nil)
		if w.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, w.Code, tt.want)
		}
	}
}

func TestListAndSearch(t *testing.T) {
	e := testEnv(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e.remote.Put(models.Note{ID: "a", OwnerID: "alice", Title: "Groceries", Content: "milk", CreatedAt: base, UpdatedAt: base})
	e.remote.Put(models.Note{ID: "b", OwnerID: "alice", Title: "Ideas", Content: "buy MILK later", CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)})
	e.remote.Put(models.Note{ID: "c", OwnerID: "alice", Title: "Work", Content: "standup", CreatedAt: base.Add(2 * time.Hour), UpdatedAt: base.Add(2 * time.Hour)})
	e.remote.Put(models.Note{ID: "x", OwnerID: "bob", Title: "Milk", CreatedAt: base, UpdatedAt: base})

	list := decode[NoteListResponse](t, e.do(t, aliceToken, http.MethodGet, "/notes", nil))
	if list.Total != 3 || list.Notes[0].ID != "c" || list.Notes[2].ID != "a" {
		t.Errorf("list = %+v", list)
	}

	found := decode[NoteListResponse](t, e.do(t, aliceToken, http.MethodGet, "/notes?q=+Milk+", nil))
	if found.Total != 2 || found.Notes[0].ID != "b" || found.Notes[1].ID != "a" {
		t.Errorf("search = %+v", found)
	}
}

func TestListStoreUnavailable(t *testing.T) {
	e := testEnv(t)
	e.remote.FailWith(memstore.OpList, errors.New("down"))
	if w := e.do(t, aliceToken, http.MethodGet, "/notes", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestOwnersAreIsolated(t *testing.T) {
	e := testEnv(t)
	created := decode[NoteResponse](t, e.do(t, aliceToken, http.MethodPost, "/notes", nil))

	if w := e.do(t, bobToken, http.MethodGet, "/notes/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("bob get = %d, want 404", w.Code)
	}
	if w := e.do(t, bobToken, http.MethodPost, "/notes/"+created.ID+"/bookmark", nil); w.Code != http.StatusNotFound {
		t.Errorf("bob bookmark = %d, want 404", w.Code)
	}
	list := decode[NoteListResponse](t, e.do(t, bobToken, http.MethodGet, "/notes", nil))
	if list.Total != 0 {
		t.Errorf("bob sees %d notes", list.Total)
	}
}

func TestToggleBookmark(t *testing.T) {
	e := testEnv(t)
	created := decode[NoteResponse](t, e.do(t, aliceToken, http.MethodPost, "/notes", nil))
	path := "/notes/" + created.ID + "/bookmark"

	if n := decode[NoteResponse](t, e.do(t, aliceToken, http.MethodPost, path, nil)); !n.IsBookmarked {
		t.Error("first toggle should bookmark")
	}
	if n := decode[NoteResponse](t, e.do(t, aliceToken, http.MethodPost, path, nil)); n.IsBookmarked {
		t.Error("second toggle should restore")
	}
}

func TestDeleteFlow(t *testing.T) {
	e := testEnv(t)
	created := decode[NoteResponse](t, e.do(t, aliceToken, http.MethodPost, "/notes", nil))

	w := e.do(t, aliceToken, http.MethodPost, "/notes/"+created.ID+"/delete", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("request delete = %d", w.Code)
	}
	if v := decode[notesession.View](t, w); v.PendingDelete != created.ID {
		t.Errorf("pending = %q", v.PendingDelete)
	}

	e.do(t, aliceToken, http.MethodPost, "/selection/delete/cancel", nil)
	if e.remote.Calls(memstore.OpDelete) != 0 {
		t.Fatal("cancel must not delete")
	}

	e.do(t, aliceToken, http.MethodPost, "/notes/"+created.ID+"/delete", nil)
	if w := e.do(t, aliceToken, http.MethodPost, "/selection/delete/confirm", nil); w.Code != http.StatusNoContent {
		t.Fatalf("confirm = %d", w.Code)
	}
	if w := e.do(t, aliceToken, http.MethodGet, "/notes/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", w.Code)
	}
	if v := decode[notesession.View](t, e.do(t, aliceToken, http.MethodGet, "/selection", nil)); v.Selected != nil {
		t.Error("selection should be cleared")
	}
}

func TestTranslate(t *testing.T) {
	e := testEnv(t)
	e.do(t, aliceToken, http.MethodPost, "/notes", nil)
	e.do(t, aliceToken, http.MethodPut, "/selection/draft", DraftRequest{Title: "T", Content: "hello"})
	e.do(t, aliceToken, http.MethodPost, "/selection/save", nil)

	if w := e.do(t, aliceToken, http.MethodPut, "/selection/language", LanguageRequest{Language: "klingon"}); w.Code != http.StatusBadRequest {
		t.Errorf("unsupported language = %d, want 400", w.Code)
	}
	w := e.do(t, aliceToken, http.MethodPut, "/selection/language", LanguageRequest{Language: "Hindi"})
	if v := decode[notesession.View](t, w); v.Language != genai.Hindi {
		t.Errorf("language = %q", v.Language)
	}

	w = e.do(t, aliceToken, http.MethodPost, "/selection/translate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("translate = %d, body = %s", w.Code, w.Body.String())
	}
	if tr := decode[TranslationResponse](t, w); tr.Translation != "hindi:hello" || tr.Language != genai.Hindi {
		t.Errorf("translation = %+v", tr)
	}
}

func TestTranslateUnavailable(t *testing.T) {
	e := testEnv(t, func(d *workspace.Deps) { d.Translator = nil })
	e.do(t, aliceToken, http.MethodPost, "/notes", nil)
	if w := e.do(t, aliceToken, http.MethodPost, "/selection/translate", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestVoice(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		e := testEnv(t)
		if w := e.do(t, aliceToken, http.MethodPost, "/voice/start", nil); w.Code != http.StatusNotImplemented {
			t.Errorf("status = %d, want 501", w.Code)
		}
	})

	t.Run("capture to note", func(t *testing.T) {
		e := testEnv(t, func(d *workspace.Deps) {
			d.Recognizer = scriptedRecognizer{segments: []string{"hello", "world"}}
			d.Titler = fixedTitler("Greeting")
		})
		if w := e.do(t, aliceToken, http.MethodPost, "/voice/confirm", nil); w.Code != http.StatusConflict {
			t.Errorf("confirm while idle = %d, want 409", w.Code)
		}
		w := e.do(t, aliceToken, http.MethodPost, "/voice/start", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("start = %d, body = %s", w.Code, w.Body.String())
		}
		w = e.do(t, aliceToken, http.MethodPost, "/voice/confirm", nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("confirm = %d, body = %s", w.Code, w.Body.String())
		}
		n := decode[NoteResponse](t, w)
		if n.Title != "Greeting" || n.Content != "hello world" {
			t.Errorf("voice note = %+v", n)
		}
		snap := decode[speech.Snapshot](t, e.do(t, aliceToken, http.MethodGet, "/voice", nil))
		if snap.State != speech.StateIdle {
			t.Errorf("state after confirm = %q", snap.State)
		}
	})

	t.Run("empty transcript", func(t *testing.T) {
		e := testEnv(t, func(d *workspace.Deps) { d.Recognizer = scriptedRecognizer{} })
		e.do(t, aliceToken, http.MethodPost, "/voice/start", nil)
		if w := e.do(t, aliceToken, http.MethodPost, "/voice/confirm", nil); w.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", w.Code)
		}
		if e.remote.Calls(memstore.OpCreate) != 0 {
			t.Error("empty transcript must not create a note")
		}
	})
}

func TestSignOut(t *testing.T) {
	e := testEnv(t)
	e.do(t, aliceToken, http.MethodPost, "/notes", nil)

	if w := e.do(t, aliceToken, http.MethodPost, "/session/signout", nil); w.Code != http.StatusNoContent {
		t.Fatalf("signout = %d", w.Code)
	}
	s := decode[SessionResponse](t, e.do(t, aliceToken, http.MethodGet, "/session", nil))
	if s.NoteCount != 0 {
		t.Errorf("notes after sign-out = %d", s.NoteCount)
	}
	if v := decode[notesession.View](t, e.do(t, aliceToken, http.MethodGet, "/selection", nil)); v.Selected != nil {
		t.Error("selection should be cleared")
	}
}

func TestSignOutWithoutWorkspace(t *testing.T) {
	rec := &countingRecognizer{}
	e := testEnv(t, func(d *workspace.Deps) { d.Recognizer = rec })

	if w := e.do(t, bobToken, http.MethodPost, "/session/signout", nil); w.Code != http.StatusNoContent {
		t.Fatalf("signout = %d", w.Code)
	}
	if _, ok := e.registry.Lookup("bob"); ok {
		t.Error("sign-out must not open a workspace")
	}
	if n := rec.checks.Load(); n != 0 {
		t.Errorf("voice availability checked %d times on sign-out", n)
	}
	if w := e.do(t, "", http.MethodPost, "/session/signout", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous signout = %d, want 401", w.Code)
	}
}

func TestEventsStream(t *testing.T) {
	e := testEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	lines := make(chan string, 16)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				lines <- string(buf[:n])
			}
			if err != nil {
				close(lines)
				return
			}
		}
	}()

	// The stream is subscribed once headers are flushed; retry the create
	// until its event arrives.
	deadline := time.After(2 * time.Second)
	for {
		e.do(t, aliceToken, http.MethodPost, "/notes", nil)
		select {
		case chunk := <-lines:
			if strings.Contains(chunk, "event: note.created") {
				return
			}
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no note.created event")
		}
	}
}
