package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"staffdesk.org/internal/auth"
)

// CachingProvider memoizes successful token verifications for a short TTL.
// Role changes made through SetRole evict every cached entry of that uid.
type CachingProvider struct {
	Provider
	cache *gocache.Cache
}

// NewCachingProvider wraps p. A non-positive ttl disables caching and
// returns p unchanged.
func NewCachingProvider(p Provider, ttl time.Duration) Provider {
	if ttl <= 0 {
		return p
	}
	return &CachingProvider{Provider: p, cache: gocache.New(ttl, 2*ttl)}
}

func (c *CachingProvider) Verify(ctx context.Context, token string) (Identity, error) {
	key := tokenKey(token)
	if v, ok := c.cache.Get(key); ok {
		if id, ok := v.(Identity); ok {
			return id, nil
		}
	}
	id, err := c.Provider.Verify(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	c.cache.SetDefault(key, id)
	return id, nil
}

func (c *CachingProvider) SetRole(ctx context.Context, uid string, role auth.Role) error {
	err := c.Provider.SetRole(ctx, uid, role)
	c.evict(uid)
	return err
}

func (c *CachingProvider) evict(uid string) {
	for key, item := range c.cache.Items() {
		if id, ok := item.Object.(Identity); ok && id.UID == uid {
			c.cache.Delete(key)
		}
	}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
