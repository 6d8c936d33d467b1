package registry

import (
	"sync"

	"github.com/rzbill/pulse/internal/metrics"
	logpkg "github.com/rzbill/pulse/pkg/log"
)

// Sender delivers one payload to a live connection. Implementations belong
// to the protocol handler; a failed Send marks the connection dead from the
// registry's point of view.
type Sender interface {
	Send(payload []byte) error
}

// Registry is the serialized owner of the tenant → connection mapping.
// Connections are keyed by their generated connection id, never by transport
// handle identity.
type Registry struct {
	mu      sync.Mutex
	tenants map[string]map[string]Sender
	logger  logpkg.Logger
}

// New returns an empty registry.
func New(logger logpkg.Logger) *Registry {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Registry{
		tenants: map[string]map[string]Sender{},
		logger:  logger.WithComponent("registry"),
	}
}

// Register adds a connection to the tenant's set. Registering an id twice
// without an intervening Unregister is a caller bug; the last registration
// wins.
func (r *Registry) Register(tenant, connID string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.tenants[tenant]
	if set == nil {
		set = map[string]Sender{}
		r.tenants[tenant] = set
	}
	set[connID] = sender
	metrics.ActiveConnections.Inc()
}

// Unregister removes the connection with that id. A missing id is a no-op:
// a close can race a broadcast that already pruned the connection.
func (r *Registry) Unregister(tenant, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.tenants[tenant]
	if !ok {
		return
	}
	if _, ok := set[connID]; !ok {
		return
	}
	delete(set, connID)
	metrics.ActiveConnections.Dec()
	if len(set) == 0 {
		delete(r.tenants, tenant)
	}
}

// Broadcast sends payload to every registered connection for tenant and
// returns the number of successful deliveries. Any connection whose send
// fails is pruned as part of this call: after Broadcast the tenant's set
// contains exactly the connections that acknowledged the send. An unknown
// tenant behaves as an empty set.
func (r *Registry) Broadcast(tenant string, payload []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.tenants[tenant]
	if !ok {
		return 0
	}
	metrics.FlagBroadcastsTotal.Inc()
	survivors := make(map[string]Sender, len(set))
	delivered := 0
	pruned := 0
	for connID, sender := range set {
		if err := sender.Send(payload); err != nil {
			pruned++
			metrics.ActiveConnections.Dec()
			metrics.BroadcastPrunedTotal.Inc()
			r.logger.Warn("pruning dead connection",
				logpkg.Str("tenant", tenant),
				logpkg.Str("conn_id", connID),
				logpkg.Err(err))
			continue
		}
		survivors[connID] = sender
		delivered++
	}
	if pruned > 0 {
		r.logger.Info("broadcast pruned connections",
			logpkg.Str("tenant", tenant),
			logpkg.Int("pruned", pruned),
			logpkg.Int("delivered", delivered))
	}
	if len(survivors) == 0 {
		delete(r.tenants, tenant)
	} else {
		r.tenants[tenant] = survivors
	}
	return delivered
}

// Len returns the number of live connections for tenant.
func (r *Registry) Len(tenant string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tenants[tenant])
}
