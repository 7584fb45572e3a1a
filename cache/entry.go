package cache

import (
	"github.com/leso-kn/gattcache/attrstore"
	"github.com/leso-kn/gattcache/ble"
)

// Entry is one peer cache entry: everything the cache tracks for a single
// live connection. It is mutated only by the Discovery
// Driver, the Hash Verifier and the Query Router, and only on the host
// event thread — it carries no mutex of its own.
type Entry struct {
	ConnHandle uint16
	Addr       ble.Addr
	Store      *attrstore.Store
	State      State

	DatabaseHash [16]byte

	// curServiceIdx is the Discovery Driver's cursor into Store.Services
	// while a *_IN_PROGRESS state is active; an index rather than a
	// pointer, so growing Store.Services by append can never invalidate it
	//.
	curServiceIdx int

	// prevCharWatermark is the monotonic descriptor-discovery watermark
	//: 0 means "not discovering", reset to 1 when discovery
	// starts.
	prevCharWatermark uint16

	// pending holds at most one in-flight caller request. A second enqueue
	// silently replaces the first; inherited behavior, kept (see
	// DESIGN.md).
	pending pendingOp

	log ble.Logger
}

func newEntry(connHandle uint16, addr ble.Addr, limits attrstore.Limits, log ble.Logger) *Entry {
	return &Entry{
		ConnHandle:    connHandle,
		Addr:          addr,
		Store:         attrstore.New(limits),
		State:         Invalid,
		curServiceIdx: -1,
		log:           log.ChildLogger(map[string]interface{}{"conn": connHandle, "addr": addr.String()}),
	}
}

// curService returns the service the Discovery Driver is currently
// discovering into, or nil if curServiceIdx doesn't point at a live entry
// (only valid while State.InProgress()).
func (e *Entry) curService() *attrstore.Service {
	if e.curServiceIdx < 0 || e.curServiceIdx >= len(e.Store.Services) {
		return nil
	}
	return &e.Store.Services[e.curServiceIdx]
}
