package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rzbill/pulse/internal/batcher"
	cfgpkg "github.com/rzbill/pulse/internal/config"
	"github.com/rzbill/pulse/internal/flags"
	"github.com/rzbill/pulse/internal/registry"
	"github.com/rzbill/pulse/internal/storage"
	"github.com/rzbill/pulse/internal/storage/postgres"
	"github.com/rzbill/pulse/internal/tenant"
	"github.com/rzbill/pulse/pkg/id"
	logpkg "github.com/rzbill/pulse/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
	// Store overrides the Postgres store built from Config.DatabaseURL.
	// Tests inject fakes here.
	Store storage.Store
	// EnsureSchema creates tables on startup when the store is Postgres.
	// Dev convenience; production schemas are managed externally.
	EnsureSchema bool
}

// Runtime wires storage and the serialized owner components for a
// single-node instance.
type Runtime struct {
	cfg     cfgpkg.Config
	logger  logpkg.Logger
	store   storage.Store
	reg     *registry.Registry
	flags   *flags.Cache
	batcher *batcher.Batcher
	ids     *id.Generator
	tenants *tenant.Rules

	stopRefresh chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// Open connects storage, hydrates the flag cache, and starts the background
// flag refresh loop. The returned Runtime must be Closed.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = postgres.Open(postgres.Options{
			URL:          opts.Config.DatabaseURL,
			QueryTimeout: opts.Config.StorageTimeout(),
		})
		if err != nil {
			return nil, err
		}
	}
	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	if opts.EnsureSchema {
		if ps, ok := store.(*postgres.Store); ok {
			if err := ps.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
	}

	rules, err := tenant.FromConfig(opts.Config)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	rt := &Runtime{
		cfg:         opts.Config,
		logger:      logger,
		store:       store,
		reg:         registry.New(logger),
		ids:         id.NewGenerator(),
		tenants:     rules,
		stopRefresh: make(chan struct{}),
	}
	rt.flags = flags.New(store, rt.reg, logger)
	rt.batcher = batcher.New(store, logger, batcher.Options{
		BatchSize:     opts.Config.BatchSize,
		FlushInterval: opts.Config.FlushInterval(),
	})

	// initial hydration; a failure leaves an empty-but-serving cache
	if err := rt.flags.Refresh(ctx); err != nil {
		logger.Warn("initial flag refresh failed", logpkg.Err(err))
	}
	if interval := opts.Config.FlagRefreshInterval(); interval > 0 {
		rt.wg.Add(1)
		go rt.refreshLoop(interval)
	}
	return rt, nil
}

func (r *Runtime) refreshLoop(interval time.Duration) {
	defer r.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-r.stopRefresh:
			return
		case <-t.C:
			if err := r.flags.Refresh(context.Background()); err != nil {
				r.logger.Warn("flag refresh failed", logpkg.Err(err))
			}
		}
	}
}

// Close stops the refresh loop, flushes and stops the batcher, and closes
// the store.
func (r *Runtime) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stopRefresh)
		r.wg.Wait()
		r.batcher.Close(context.Background())
		err = r.store.Close()
	})
	return err
}

// CheckHealth verifies storage connectivity.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	return r.store.Ping(ctx)
}

// Flags returns the cached flags for tenant.
func (r *Runtime) Flags(tenant string) []storage.Flag { return r.flags.Get(tenant) }

// FlagsSerialized returns the tenant's flags in the wire push format.
func (r *Runtime) FlagsSerialized(tenant string) []byte { return r.flags.GetSerialized(tenant) }

// ToggleFlag persists and broadcasts a flag change.
func (r *Runtime) ToggleFlag(ctx context.Context, tenant, key string, enabled bool) error {
	return r.flags.Toggle(ctx, tenant, key, enabled)
}

// RefreshFlags reloads the flag cache from storage.
func (r *Runtime) RefreshFlags(ctx context.Context) error { return r.flags.Refresh(ctx) }

// Registry returns the connection registry.
func (r *Runtime) Registry() *registry.Registry { return r.reg }

// Batcher returns the event batcher.
func (r *Runtime) Batcher() *batcher.Batcher { return r.batcher }

// FlagCache returns the flag cache.
func (r *Runtime) FlagCache() *flags.Cache { return r.flags }

// Store returns the storage collaborator.
func (r *Runtime) Store() storage.Store { return r.store }

// IDs returns the connection id generator.
func (r *Runtime) IDs() *id.Generator { return r.ids }

// TenantRules returns the compiled tenant validation rules.
func (r *Runtime) TenantRules() *tenant.Rules { return r.tenants }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.cfg }

// Logger returns the process logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }
