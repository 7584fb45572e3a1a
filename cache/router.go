package cache

import (
	"github.com/leso-kn/gattcache/ble"
	"github.com/leso-kn/gattcache/config"
	"github.com/leso-kn/gattcache/persist"
	"github.com/leso-kn/gattcache/remote"
)

// ConnRegistry is the host's connection/bond registry collaborator: the
// source of truth for a connection's current identity address, consulted
// on bonding_established/bonding_restored. A real host already owns this;
// the cache only ever reads it.
type ConnRegistry interface {
	IdentityAddress(conn uint16) (ble.Addr, bool)
	Bonded(conn uint16) bool
}

// EventQueue is the host event loop collaborator: Enqueue
// schedules fn to run later on the same single-goroutine loop that drives
// the rest of the cache, used for the Query Router's deferred completion
// events.
type EventQueue interface {
	Enqueue(fn func())
}

// Router is the Discovery Driver, Hash Verifier and Query Router combined
// into one collaborator set: they mutate the same Entry under the same
// single-goroutine contract and have no independent lifecycle from one
// another.
type Router struct {
	registry  *Registry
	transport remote.Transport
	backend   persist.Backend
	queue     EventQueue
	connReg   ConnRegistry
	cfg       config.Config
	log       ble.Logger
}

// NewRouter wires a Router over its collaborators.
func NewRouter(registry *Registry, transport remote.Transport, backend persist.Backend, queue EventQueue, connReg ConnRegistry, cfg config.Config, log ble.Logger) *Router {
	return &Router{
		registry:  registry,
		transport: transport,
		backend:   backend,
		queue:     queue,
		connReg:   connReg,
		cfg:       cfg,
		log:       log,
	}
}

func (r *Router) fail(e *Entry, err error) {
	e.log.Warnf("cache: discovery/verify failed, invalidating: %v", err)
	e.Store.Reset()
	e.State = Invalid
	e.curServiceIdx = -1
	e.prevCharWatermark = 0
	r.completePending(e, err)
}

// completePending hands e's current state to whatever is waiting: a
// pending caller request, re-dispatched now that the blocking condition
// has resolved.
func (r *Router) completePending(e *Entry, err error) {
	p := e.pending
	e.pending = nil
	if p == nil {
		return
	}
	if err != nil {
		r.failPending(p, err)
		return
	}
	p.reissue(r, e)
}

// failPending reports err to whichever callback shape p carries, as a single
// invocation with a nil result; no ErrDone invocation follows it.
func (r *Router) failPending(p pendingOp, err error) {
	switch op := p.(type) {
	case pendingAllServices:
		op.cb(nil, err)
	case pendingServiceByUUID:
		op.cb(nil, err)
	case pendingIncludedServices:
		op.cb(nil, err)
	case pendingAllCharacteristics:
		op.cb(nil, err)
	case pendingCharacteristicsByUUID:
		op.cb(nil, err)
	case pendingAllDescriptors:
		op.cb(nil, err)
	}
}
