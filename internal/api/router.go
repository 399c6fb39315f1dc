package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/voxnote/internal/identity"
	"github.com/starford/voxnote/internal/sse"
	"github.com/starford/voxnote/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted. Every route
// runs behind AuthMiddleware; all but sign-out also open the owner's
// workspace. broker, if non-nil, serves GET /events.
func NewRouter(registry *workspace.Registry, provider identity.Provider, broker *sse.Broker) chi.Router {
	h := NewHandler(registry, provider)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(provider))

	// Sign-out only drops an existing workspace.
	r.Post("/session/signout", h.SignOut)

	r.Group(func(r chi.Router) {
		r.Use(WorkspaceMiddleware(registry))

		r.Get("/session", h.Session)
		r.Get("/languages", h.Languages)

		r.Route("/notes", func(r chi.Router) {
			r.Get("/", h.ListNotes)
			r.Post("/", h.CreateNote)
			r.Get("/{id}", h.GetNote)
			r.Post("/{id}/select", h.SelectNote)
			r.Post("/{id}/bookmark", h.ToggleBookmark)
			r.Post("/{id}/delete", h.RequestDelete)
		})

		r.Route("/selection", func(r chi.Router) {
			r.Get("/", h.GetSelection)
			r.Post("/edit", h.BeginEdit)
			r.Put("/draft", h.SetDraft)
			r.Post("/save", h.Save)
			r.Post("/cancel", h.CancelEdit)
			r.Post("/delete/confirm", h.ConfirmDelete)
			r.Post("/delete/cancel", h.CancelDelete)
			r.Put("/language", h.SetLanguage)
			r.Post("/translate", h.Translate)
		})

		r.Route("/voice", func(r chi.Router) {
			r.Get("/", h.GetVoice)
			r.Post("/start", h.StartVoice)
			r.Post("/cancel", h.CancelVoice)
			r.Post("/confirm", h.ConfirmVoice)
		})

		if broker != nil {
			r.Method(http.MethodGet, "/events", broker.Handler(ownerOf))
		}
	})

	return r
}
