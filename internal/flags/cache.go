package flags

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rzbill/pulse/internal/protocol"
	"github.com/rzbill/pulse/internal/registry"
	"github.com/rzbill/pulse/internal/storage"
	logpkg "github.com/rzbill/pulse/pkg/log"
)

// Cache is the serialized owner of the tenant → flag-list mapping. Reads
// never touch storage and only take the short-held read lock. Mutations
// (Toggle, Refresh) additionally serialize on writeMu for their full span,
// storage write through broadcast, so concurrent toggles commit to storage,
// update the cache and broadcast in one and the same order.
type Cache struct {
	writeMu sync.Mutex

	mu     sync.Mutex
	flags  map[string][]storage.Flag
	store  storage.Store
	reg    *registry.Registry
	logger logpkg.Logger
}

// New returns an empty cache. Call Refresh to hydrate it.
func New(store storage.Store, reg *registry.Registry, logger logpkg.Logger) *Cache {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Cache{
		flags:  map[string][]storage.Flag{},
		store:  store,
		reg:    reg,
		logger: logger.WithComponent("flags"),
	}
}

// Refresh reloads the entire mapping from storage, replacing cache contents
// atomically. On storage failure the cache is left unchanged (stale but
// available) and the error is returned for the caller to log.
func (c *Cache) Refresh(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	loaded, err := c.store.FlagsGroupedByTenant(ctx)
	if err != nil {
		return fmt.Errorf("flags refresh: %w", err)
	}
	c.mu.Lock()
	c.flags = loaded
	c.mu.Unlock()
	return nil
}

// Get returns the cached flags for tenant, or an empty list when the tenant
// is unknown. Never blocks on storage.
func (c *Cache) Get(tenant string) []storage.Flag {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached := c.flags[tenant]
	out := make([]storage.Flag, len(cached))
	copy(out, cached)
	return out
}

// GetSerialized returns the tenant's flags pre-encoded in the wire flag-push
// format.
func (c *Cache) GetSerialized(tenant string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serializeLocked(tenant)
}

// Toggle writes the new enabled value to storage first; only on storage
// success does it update the cached entry and broadcast the full serialized
// flag set for the tenant. On storage failure cache and live connections are
// untouched and no broadcast happens. The whole sequence holds writeMu so a
// second toggle of the same key cannot interleave between the storage commit
// and the cache update.
func (c *Cache) Toggle(ctx context.Context, tenant, key string, enabled bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	updated, err := c.store.SetFlagEnabled(ctx, tenant, key, enabled)
	if err != nil {
		return fmt.Errorf("flags toggle %s/%s: %w", tenant, key, err)
	}

	c.mu.Lock()
	list := c.flags[tenant]
	replaced := false
	for i := range list {
		if list[i].Key == key {
			list[i] = updated
			replaced = true
			break
		}
	}
	if !replaced {
		// flag existed in storage but not in cache (created since the last
		// refresh); fold it in keeping key order
		list = append(list, updated)
		sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
		c.flags[tenant] = list
	}
	payload := c.serializeLocked(tenant)
	c.mu.Unlock()

	delivered := c.reg.Broadcast(tenant, payload)
	c.logger.Info("flag toggled",
		logpkg.Str("tenant", tenant),
		logpkg.Str("key", key),
		logpkg.Bool("enabled", enabled),
		logpkg.Int("delivered", delivered))
	return nil
}

func (c *Cache) serializeLocked(tenant string) []byte {
	list := c.flags[tenant]
	m := make(map[string]bool, len(list))
	for _, f := range list {
		m[f.Key] = f.Enabled
	}
	return protocol.EncodeFlags(m)
}
