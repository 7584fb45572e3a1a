package cache

import (
	"github.com/leso-kn/gattcache/attrstore"
	"github.com/leso-kn/gattcache/ble"
	"github.com/leso-kn/gattcache/persist"
	"github.com/pkg/errors"
)

// ErrExists is returned by Registry.Create when conn already has an entry.
var ErrExists = errors.New("cache: entry already exists")

// ErrOutOfCapacity is returned by Registry.Create when MaxConnections is
// already in use.
var ErrOutOfCapacity = errors.New("cache: registry at capacity")

// Registry is the set of all peer cache entries, indexed by connection
// handle and by identity address. Capacity is bounded at construction
// time.
type Registry struct {
	byHandle map[uint16]*Entry
	byAddr   map[ble.Addr]*Entry

	maxConnections int
	limits         attrstore.Limits
	backend        persist.Backend
	log            ble.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(maxConnections int, limits attrstore.Limits, backend persist.Backend, log ble.Logger) *Registry {
	return &Registry{
		byHandle:       make(map[uint16]*Entry),
		byAddr:         make(map[ble.Addr]*Entry),
		maxConnections: maxConnections,
		limits:         limits,
		backend:        backend,
		log:            log,
	}
}

// Create allocates an entry for conn in state Invalid, then attempts a
// persistence load, transitioning to Loaded on success.
func (r *Registry) Create(conn uint16, addr ble.Addr) (*Entry, error) {
	if _, ok := r.byHandle[conn]; ok {
		return nil, ErrExists
	}
	if r.maxConnections >= 0 && len(r.byHandle) >= r.maxConnections {
		return nil, ErrOutOfCapacity
	}

	e := newEntry(conn, addr, r.limits, r.log)
	r.byHandle[conn] = e
	r.byAddr[addr] = e

	if r.backend != nil {
		rec, ok, err := r.backend.Load(addr)
		if err != nil {
			r.log.Warnf("cache: persistence load failed for %s: %v", addr, err)
		} else if ok {
			if err := applyRecord(e.Store, rec); err != nil {
				r.log.Warnf("cache: discarding malformed persisted record for %s: %v", addr, err)
			} else {
				e.DatabaseHash = rec.DatabaseHash
				e.State = Loaded
			}
		}
	}
	return e, nil
}

// FindByHandle returns the entry for conn, if any.
func (r *Registry) FindByHandle(conn uint16) (*Entry, bool) {
	e, ok := r.byHandle[conn]
	return e, ok
}

// FindByAddress returns the entry for addr, if any.
func (r *Registry) FindByAddress(addr ble.Addr) (*Entry, bool) {
	e, ok := r.byAddr[addr]
	return e, ok
}

// DestroyByHandle removes conn's entry, cascading to its attribute store.
func (r *Registry) DestroyByHandle(conn uint16) {
	e, ok := r.byHandle[conn]
	if !ok {
		return
	}
	delete(r.byHandle, conn)
	delete(r.byAddr, e.Addr)
	e.Store = nil
}

// BondingEstablished re-reads the peer's identity address — the original
// connection may have used a resolvable random address now resolved — and
// reindexes the entry under it.
func (r *Registry) BondingEstablished(conn uint16, identity ble.Addr) error {
	e, ok := r.byHandle[conn]
	if !ok {
		return ErrNotConnected
	}
	if !e.Addr.Equal(identity) {
		delete(r.byAddr, e.Addr)
		e.Addr = identity
		r.byAddr[identity] = e
	}
	return nil
}

// BondingRestored re-reads the identity address like BondingEstablished,
// and additionally attempts a persistence load if the entry is still
// Invalid. A successful load — or an entry already Loaded at this point —
// transitions directly to Verified: the bond guarantees database stability
// per the GATT specification, so no hash round trip is needed.
func (r *Registry) BondingRestored(conn uint16, identity ble.Addr) error {
	e, ok := r.byHandle[conn]
	if !ok {
		return ErrNotConnected
	}
	if !e.Addr.Equal(identity) {
		delete(r.byAddr, e.Addr)
		e.Addr = identity
		r.byAddr[identity] = e
	}

	if e.State == Invalid && r.backend != nil {
		rec, loaded, err := r.backend.Load(identity)
		if err != nil {
			r.log.Warnf("cache: persistence load failed for %s: %v", identity, err)
		} else if loaded {
			if err := applyRecord(e.Store, rec); err != nil {
				r.log.Warnf("cache: discarding malformed persisted record for %s: %v", identity, err)
			} else {
				e.DatabaseHash = rec.DatabaseHash
				e.State = Verified
				return nil
			}
		}
	}
	if e.State == Loaded {
		e.State = Verified
	}
	return nil
}

// applyRecord reconstructs e's attribute store from a loaded persistence
// record, leaving the store empty if the replay fails. The replay rejects a
// child record with no parent to attach to; it does not check that service
// ranges are disjoint or that each characteristic and descriptor handle lies
// within its parent's range.
func applyRecord(store *attrstore.Store, rec persist.Record) error {
	store.Reset()
	if err := rec.Replay(store); err != nil {
		store.Reset()
		return errors.Wrap(err, "replay persisted record")
	}
	return nil
}
