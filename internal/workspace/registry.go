// Package workspace composes the per-owner note store, note session and
// voice capture, and forwards their changes to the SSE broker.
package workspace

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/voxnote/internal/apperr"
	"github.com/starford/voxnote/internal/docstore"
	"github.com/starford/voxnote/internal/identity"
	"github.com/starford/voxnote/internal/models"
	"github.com/starford/voxnote/internal/notesession"
	"github.com/starford/voxnote/internal/notestore"
	"github.com/starford/voxnote/internal/speech"
	"github.com/starford/voxnote/internal/sse"
)

// Workspace is the state of one signed-in owner.
type Workspace struct {
	Identity   identity.Identity
	Store      *notestore.Store
	Controller *notesession.Controller

	unsubscribe []func()
}

func (w *Workspace) close() {
	for _, fn := range w.unsubscribe {
		fn()
	}
	w.Controller.Close()
}

// Deps are the shared collaborators every workspace is built from.
type Deps struct {
	Remote     docstore.DocumentStore
	Titler     speech.Titler
	Translator notesession.Translator
	// Recognizer is nil when voice capture is not configured.
	Recognizer speech.Recognizer
	Broker     *sse.Broker
	Logger     *slog.Logger
}

// Registry owns the workspaces of all signed-in owners.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	spaces   map[string]*Workspace
	building singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Registry{deps: deps, spaces: make(map[string]*Workspace)}
}

// Get returns the workspace of id, creating it on first use. Voice capture
// is probed once at creation; when unavailable the workspace still works and
// reports why. Creation runs outside the registry lock and concurrent
// requests of one owner share a single build.
func (r *Registry) Get(ctx context.Context, id identity.Identity) (*Workspace, error) {
	if id.OwnerID == "" {
		return nil, apperr.ErrUnauthenticated
	}

	if ws, ok := r.existing(id); ok {
		return ws, nil
	}

	v, _, _ := r.building.Do(id.OwnerID, func() (any, error) {
		if ws, ok := r.existing(id); ok {
			return ws, nil
		}
		ws := r.build(ctx, id)

		r.mu.Lock()
		r.spaces[id.OwnerID] = ws
		r.mu.Unlock()

		r.deps.Logger.Info("workspace: opened", slog.String("owner", id.OwnerID))
		return ws, nil
	})
	return v.(*Workspace), nil
}

func (r *Registry) existing(id identity.Identity) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.spaces[id.OwnerID]
	if ok {
		ws.Identity.DisplayName = id.DisplayName
	}
	return ws, ok
}

func (r *Registry) build(ctx context.Context, id identity.Identity) *Workspace {
	owner := id.OwnerID
	logger := r.deps.Logger.With(slog.String("owner", owner))

	store := notestore.New(r.deps.Remote, notestore.WithLogger(logger))

	voice, voiceErr := speech.NewSession(ctx, r.deps.Recognizer, r.deps.Titler,
		func(ctx context.Context, title, content string) (models.Note, error) {
			return store.Create(ctx, owner, title, content)
		}, logger)
	if voiceErr != nil && r.deps.Recognizer != nil {
		logger.Warn("workspace: voice capture unavailable", slog.String("error", voiceErr.Error()))
	}

	ctrl := notesession.New(owner, store,
		notesession.WithTranslator(r.deps.Translator),
		notesession.WithVoice(voice, voiceErr),
		notesession.WithLogger(logger),
	)

	ws := &Workspace{Identity: id, Store: store, Controller: ctrl}

	if b := r.deps.Broker; b != nil {
		ws.unsubscribe = append(ws.unsubscribe, store.Subscribe(func(c notestore.Change) {
			switch c.Kind {
			case notestore.ChangeCreated, notestore.ChangeUpdated, notestore.ChangeRemoved:
				b.PublishNoteEvent(owner, string(c.Kind), c.NoteID)
			default:
				b.Publish(sse.Event{OwnerID: owner, Type: "notes." + string(c.Kind), Data: map[string]string{}})
			}
		}))
		if voice != nil {
			ws.unsubscribe = append(ws.unsubscribe, voice.Subscribe(func(s speech.Snapshot) {
				b.Publish(sse.Event{OwnerID: owner, Type: "voice.updated", Data: s})
			}))
		}
	}
	return ws
}

// Lookup returns an existing workspace without creating one.
func (r *Registry) Lookup(owner string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.spaces[owner]
	return ws, ok
}

// SignOut clears and drops the owner's workspace.
func (r *Registry) SignOut(owner string) {
	r.mu.Lock()
	ws, ok := r.spaces[owner]
	delete(r.spaces, owner)
	r.mu.Unlock()
	if !ok {
		return
	}

	ws.Controller.Reset()
	ws.Store.Clear()
	ws.close()
	r.deps.Logger.Info("workspace: signed out", slog.String("owner", owner))
}

// Hint tells owner's clients that a note changed outside this process.
// Nothing is merged; clients decide whether to reload.
func (r *Registry) Hint(owner, noteID, kind string) {
	if r.deps.Broker == nil {
		return
	}
	if _, ok := r.Lookup(owner); !ok {
		return
	}
	r.deps.Broker.Publish(sse.Event{
		OwnerID: owner,
		Type:    "note.external",
		Data:    map[string]string{"id": noteID, "kind": kind},
	})
}

// Close drops every workspace.
func (r *Registry) Close() {
	r.mu.Lock()
	spaces := r.spaces
	r.spaces = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, ws := range spaces {
		ws.close()
	}
}
