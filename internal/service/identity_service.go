package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Identity carries the display fields the external identity service
// returns. The engine never stores these beyond the cache TTL.
type Identity struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// IdentityResolver is the port to the external identity collaborator.
type IdentityResolver interface {
	ResolveUser(ctx context.Context, userID string) (Identity, error)
}

// Notifier is the port to the external notification collaborator.
// Delivery is fire-and-forget; the engine neither blocks nor retries.
type Notifier interface {
	Notify(ctx context.Context, userID string, event string) error
}

const identityCacheTTL = 10 * time.Minute

// StubIdentityResolver is the placeholder binding point for the external
// identity service. It derives display fields from the ID until the real
// collaborator endpoint is configured.
type StubIdentityResolver struct{}

// ResolveUser returns placeholder display fields.
func (StubIdentityResolver) ResolveUser(_ context.Context, userID string) (Identity, error) {
	return Identity{Username: "user-" + userID}, nil
}

// CachedIdentityResolver fronts a resolver with a Redis read-through
// cache. Cache failures fall back to the resolver.
type CachedIdentityResolver struct {
	inner  IdentityResolver
	client *redis.Client
}

// NewCachedIdentityResolver wraps the resolver. A nil client disables
// caching.
func NewCachedIdentityResolver(inner IdentityResolver, client *redis.Client) *CachedIdentityResolver {
	return &CachedIdentityResolver{inner: inner, client: client}
}

// ResolveUser returns cached display fields when fresh.
func (r *CachedIdentityResolver) ResolveUser(ctx context.Context, userID string) (Identity, error) {
	key := "identity:" + userID
	if r.client != nil {
		if raw, err := r.client.Get(ctx, key).Result(); err == nil {
			var identity Identity
			if json.Unmarshal([]byte(raw), &identity) == nil {
				return identity, nil
			}
		}
	}

	identity, err := r.inner.ResolveUser(ctx, userID)
	if err != nil {
		return Identity{}, err
	}

	if r.client != nil {
		if raw, err := json.Marshal(identity); err == nil {
			_ = r.client.Set(ctx, key, raw, identityCacheTTL).Err()
		}
	}
	return identity, nil
}
