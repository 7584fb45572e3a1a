// Package cache implements the client-side GATT attribute cache: the
// per-peer state machine, the multi-stage discovery pipeline that
// populates it, the Database Hash verification protocol, the persistence
// lifecycle policy and the request-multiplexing logic that makes discovery
// re-entrant from a caller's point of view.
package cache

import (
	"context"

	"github.com/leso-kn/gattcache/attrstore"
	"github.com/leso-kn/gattcache/ble"
	"github.com/leso-kn/gattcache/config"
	"github.com/leso-kn/gattcache/persist"
	"github.com/leso-kn/gattcache/remote"
)

// Cache is the top-level handle a host constructs once and uses for every
// connection's worth of attribute caching. There is no package-level
// mutable state.
type Cache struct {
	cfg      config.Config
	registry *Registry
	router   *Router
	connReg  ConnRegistry
	log      ble.Logger
}

// New constructs a Cache over its collaborators. transport drives the
// out-of-scope ATT/GATT wire procedures; backend is the
// persistence collaborator (nil disables persistence entirely, caching
// still works in-memory for the connection's lifetime); connReg resolves
// identity addresses for bonding transitions; queue is the host event
// loop's Enqueue surface.
func New(cfg config.Config, transport remote.Transport, backend persist.Backend, connReg ConnRegistry, queue EventQueue, log ble.Logger) *Cache {
	if log == nil {
		log = ble.NopLogger()
	}
	limits := attrstore.Limits{
		MaxServices:         cfg.MaxServices,
		MaxIncludedServices: cfg.MaxIncludedServices,
		MaxCharacteristics:  cfg.MaxCharacteristics,
		MaxDescriptors:      cfg.MaxDescriptors,
	}
	registry := NewRegistry(cfg.MaxConnections, limits, backend, log)
	router := NewRouter(registry, transport, backend, queue, connReg, cfg, log)
	return &Cache{cfg: cfg, registry: registry, router: router, connReg: connReg, log: log}
}

// Create allocates a peer cache entry for conn. The entry starts INVALID
// and immediately attempts a persistence load.
func (c *Cache) Create(conn uint16, addr ble.Addr) error {
	if !c.cfg.CachingEnabled {
		return ErrNotSupported
	}
	_, err := c.registry.Create(conn, addr)
	return err
}

// Broken destroys conn's entry on link disconnect.
func (c *Cache) Broken(conn uint16) {
	c.registry.DestroyByHandle(conn)
}

// BondingEstablished re-reads conn's identity address via the ConnRegistry
// collaborator and reindexes the entry under it.
func (c *Cache) BondingEstablished(conn uint16) error {
	addr, ok := c.connReg.IdentityAddress(conn)
	if !ok {
		return ErrNotConnected
	}
	return c.registry.BondingEstablished(conn, addr)
}

// BondingRestored is BondingEstablished plus the bonded-shortcut
// persistence load for a reconnecting bonded peer.
func (c *Cache) BondingRestored(conn uint16) error {
	addr, ok := c.connReg.IdentityAddress(conn)
	if !ok {
		return ErrNotConnected
	}
	return c.registry.BondingRestored(conn, addr)
}

// GetServiceChangedHandle returns the value handle of conn's cached Service
// Changed characteristic, if discovery has reached it — the handle a host
// would subscribe to in order to learn about a future invalidation.
func (c *Cache) GetServiceChangedHandle(conn uint16) (uint16, bool) {
	e, ok := c.registry.FindByHandle(conn)
	if !ok {
		return 0, false
	}
	chrs := e.Store.LookupCharacteristics(0x0001, 0xFFFF, ble.ServiceChangedUUID, 0, 1)
	if len(chrs) == 0 {
		return 0, false
	}
	return chrs[0].ValHandle, true
}

// Update invalidates conn's cache in response to a Service Changed
// indication covering [start,end]. The handle range the peer reported is
// not honoured — any Service Changed indication triggers a full rebuild
// (partial-range rediscovery is a known gap, inherited deliberately).
// Unless config.Config.DisableAutoRediscovery is set, rediscovery begins
// immediately; otherwise the entry sits INVALID until the next query
// triggers it.
func (c *Cache) Update(conn uint16, _, _ uint16) error {
	e, ok := c.registry.FindByHandle(conn)
	if !ok {
		return ErrNotConnected
	}
	if c.cfg.DisableAutoRediscovery {
		e.State = Invalid
		e.curServiceIdx = -1
		e.prevCharWatermark = 0
		return nil
	}
	c.router.beginDiscovery(e)
	return nil
}

// Router exposes the Query Router surface (search/structural inspection
// methods) for callers that need it directly, e.g. cmd/gattcachectl.
func (c *Cache) Router() *Router { return c.router }

// ChannelQueue is a concrete EventQueue backed by a buffered channel of
// closures, drained by a single goroutine — the host event loop every
// cache mutation runs on.
type ChannelQueue struct {
	ch chan func()
}

// NewChannelQueue constructs a ChannelQueue with the given channel buffer.
func NewChannelQueue(buffer int) *ChannelQueue {
	return &ChannelQueue{ch: make(chan func(), buffer)}
}

// Enqueue implements EventQueue.
func (q *ChannelQueue) Enqueue(fn func()) {
	q.ch <- fn
}

// Run drains the queue on the calling goroutine until ctx is cancelled.
// Exactly one goroutine should ever call Run for a given ChannelQueue: every
// Entry mutation happens on its stack, by design.
func (q *ChannelQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-q.ch:
			fn()
		}
	}
}
