package identity

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/starford/voxnote/internal/apperr"
	"github.com/starford/voxnote/internal/checksum"
)

// Google verifies Google OAuth2 access tokens. A token must have been issued
// to one of the configured client IDs; the owner comes from userinfo.
// Verified tokens are cached so each request does not round-trip to Google.
type Google struct {
	audience []string
	endpoint string
	cache    *expirable.LRU[string, Identity]
}

// GoogleOption configures Google.
type GoogleOption func(*Google)

// WithUserinfoEndpoint overrides the Google API base URL.
func WithUserinfoEndpoint(url string) GoogleOption {
	return func(g *Google) { g.endpoint = url }
}

// NewGoogle creates a verifier accepting tokens issued to the audience
// client IDs and caching up to size identities for ttl. An empty audience
// accepts no token.
func NewGoogle(audience []string, size int, ttl time.Duration, opts ...GoogleOption) *Google {
	if size <= 0 {
		size = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	g := &Google{
		audience: audience,
		cache:    expirable.NewLRU[string, Identity](size, nil, ttl),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Authenticate implements Provider.
func (g *Google) Authenticate(ctx context.Context, bearer string) (Identity, error) {
	if bearer == "" {
		return Identity{}, fmt.Errorf("identity: %w: missing token", apperr.ErrUnauthenticated)
	}
	key := cacheKey(bearer)
	if id, ok := g.cache.Get(key); ok {
		return id, nil
	}

	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"})),
	}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: create userinfo service: %w", err)
	}
	ti, err := svc.Tokeninfo().AccessToken(bearer).Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("identity: %w: %w", apperr.ErrUnauthenticated, err)
	}
	if !g.issuedToClient(ti) {
		return Identity{}, fmt.Errorf("identity: %w: token issued to %q", apperr.ErrUnauthenticated, ti.Audience)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("identity: %w: %w", apperr.ErrUnauthenticated, err)
	}
	if info.Id == "" {
		return Identity{}, fmt.Errorf("identity: %w: userinfo has no subject", apperr.ErrUnauthenticated)
	}
	if ti.UserId != "" && ti.UserId != info.Id {
		return Identity{}, fmt.Errorf("identity: %w: token subject mismatch", apperr.ErrUnauthenticated)
	}

	id := Identity{OwnerID: "google:" + info.Id, DisplayName: info.Name}
	if id.DisplayName == "" {
		id.DisplayName = info.Email
	}
	g.cache.Add(key, id)
	return id, nil
}

func (g *Google) issuedToClient(ti *oauth2api.Tokeninfo) bool {
	aud := ti.Audience
	if aud == "" {
		aud = ti.IssuedTo
	}
	return aud != "" && slices.Contains(g.audience, aud)
}

// Forget drops a cached token, used on sign-out.
func (g *Google) Forget(bearer string) {
	g.cache.Remove(cacheKey(bearer))
}

func cacheKey(bearer string) string {
	return checksum.SumString(bearer)
}
