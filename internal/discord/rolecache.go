package discord

import (
	"time"

	"github.com/angelmondragon/lessongate-backend/pkg/config"
	"github.com/dgraph-io/ristretto/v2"
)

// RoleCache holds recent guild role lookups keyed by Discord user id. It is
// process-local and may be empty at any time; a nil cache always misses.
type RoleCache struct {
	cache *ristretto.Cache[string, []string]
	ttl   time.Duration
}

func NewRoleCache(cfg config.RoleCacheConfig) (*RoleCache, error) {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []string]{
		NumCounters: maxEntries * 10,
		// each entry costs 1, so MaxCost is an entry count
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &RoleCache{cache: cache, ttl: ttl}, nil
}

func (c *RoleCache) Get(discordID string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	roles, ok := c.cache.Get(discordID)
	if !ok {
		return nil, false
	}
	out := make([]string, len(roles))
	copy(out, roles)
	return out, true
}

func (c *RoleCache) Set(discordID string, roles []string) {
	if c == nil {
		return
	}
	stored := make([]string, len(roles))
	copy(stored, roles)
	c.cache.SetWithTTL(discordID, stored, 1, c.ttl)
	c.cache.Wait()
}

func (c *RoleCache) Invalidate(discordID string) {
	if c == nil {
		return
	}
	c.cache.Del(discordID)
}

func (c *RoleCache) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
