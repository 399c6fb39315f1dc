// Package identity resolves bearer credentials into an opaque owner identity.
package identity

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/starford/voxnote/internal/apperr"
)

// Identity is an authenticated user. OwnerID is stable and opaque;
// DisplayName is for presentation only.
type Identity struct {
	OwnerID     string `json:"owner_id"`
	DisplayName string `json:"display_name"`
}

// Provider authenticates a bearer credential.
type Provider interface {
	Authenticate(ctx context.Context, bearer string) (Identity, error)
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.OwnerID != ""
}

// Static accepts every request as one fixed identity. Used when auth is
// disabled for local single-user runs.
type Static struct {
	ID Identity
}

// Authenticate implements Provider.
func (s Static) Authenticate(context.Context, string) (Identity, error) {
	return s.ID, nil
}

// Tokens maps static bearer tokens onto identities.
type Tokens struct {
	entries []tokenEntry
}

type tokenEntry struct {
	token []byte
	id    Identity
}

// NewTokens builds a token table.
func NewTokens(table map[string]Identity) *Tokens {
	t := &Tokens{}
	for tok, id := range table {
		t.entries = append(t.entries, tokenEntry{token: []byte(tok), id: id})
	}
	return t
}

// Authenticate implements Provider. Comparison is constant-time per entry.
func (t *Tokens) Authenticate(_ context.Context, bearer string) (Identity, error) {
	if bearer == "" {
		return Identity{}, fmt.Errorf("identity: %w: missing token", apperr.ErrUnauthenticated)
	}
	b := []byte(bearer)
	for _, e := range t.entries {
		if subtle.ConstantTimeCompare(b, e.token) == 1 {
			return e.id, nil
		}
	}
	return Identity{}, fmt.Errorf("identity: %w: unknown token", apperr.ErrUnauthenticated)
}
