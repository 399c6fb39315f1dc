// Package api implements the Voxnote REST API and change feed using chi.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/starford/voxnote/internal/identity"
	"github.com/starford/voxnote/internal/workspace"
)

type wsKey struct{}

// AuthMiddleware resolves the bearer credential into an identity. Requests
// that fail authentication get 401.
func AuthMiddleware(provider identity.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := provider.Authenticate(r.Context(), bearer(r))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
		})
	}
}

// WorkspaceMiddleware opens the authenticated owner's workspace. It runs
// after AuthMiddleware.
func WorkspaceMiddleware(registry *workspace.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := identity.FromContext(r.Context())
			ws, err := registry.Get(r.Context(), id)
			if err != nil {
				writeError(w, r, "open workspace", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), wsKey{}, ws)))
		})
	}
}

func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// workspaceOf returns the workspace attached by WorkspaceMiddleware.
func workspaceOf(r *http.Request) *workspace.Workspace {
	ws, _ := r.Context().Value(wsKey{}).(*workspace.Workspace)
	return ws
}

func ownerOf(r *http.Request) (string, bool) {
	id, ok := identity.FromContext(r.Context())
	return id.OwnerID, ok
}
