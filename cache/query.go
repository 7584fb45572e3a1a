package cache

import (
	"github.com/leso-kn/gattcache/attrstore"
	"github.com/leso-kn/gattcache/ble"
)

// dispatch is the per-call contract shared by all six public search
// methods: look up the entry, run verify(), then act on the resulting
// state. enqueue is called when the cache can answer immediately (state
// VERIFIED); op is stored as e.pending otherwise, and discovery is kicked
// off from INVALID.
func (r *Router) dispatch(conn uint16, op pendingOp, enqueue func(e *Entry)) error {
	e, ok := r.registry.FindByHandle(conn)
	if !ok {
		return ErrNotConnected
	}
	r.verify(e)

	switch {
	case e.State == Verified:
		enqueue(e)
	case e.State.InProgress():
		e.pending = op
	case e.State == Invalid:
		e.pending = op
		r.beginDiscovery(e)
	}
	return nil
}

// SearchAllServices enumerates every discovered service.
func (r *Router) SearchAllServices(conn uint16, cb ServiceCB) error {
	return r.dispatch(conn, pendingAllServices{cb: cb}, func(e *Entry) { r.dispatchSearchAllServices(e, cb) })
}

func (r *Router) dispatchSearchAllServices(e *Entry, cb ServiceCB) {
	svcs := append([]attrstore.Service(nil), e.Store.Services...)
	r.queue.Enqueue(func() {
		for i := range svcs {
			cb(serviceResult(&svcs[i]), nil)
		}
		cb(nil, ErrDone)
	})
}

// SearchServiceByUUID enumerates discovered services matching uuid.
func (r *Router) SearchServiceByUUID(conn uint16, uuid ble.UUID, cb ServiceCB) error {
	return r.dispatch(conn, pendingServiceByUUID{uuid: uuid, cb: cb}, func(e *Entry) {
		r.dispatchSearchServiceByUUID(e, uuid, cb)
	})
}

func (r *Router) dispatchSearchServiceByUUID(e *Entry, uuid ble.UUID, cb ServiceCB) {
	svcs := e.Store.LookupServiceByUUID(uuid, 0, -1)
	r.queue.Enqueue(func() {
		for i := range svcs {
			cb(serviceResult(&svcs[i]), nil)
		}
		cb(nil, ErrDone)
	})
}

// SearchIncludedServices enumerates included-service declarations within
// [start,end].
func (r *Router) SearchIncludedServices(conn uint16, start, end uint16, cb InclCB) error {
	return r.dispatch(conn, pendingIncludedServices{start: start, end: end, cb: cb}, func(e *Entry) {
		r.dispatchSearchIncludedServices(e, start, end, cb)
	})
}

func (r *Router) dispatchSearchIncludedServices(e *Entry, start, end uint16, cb InclCB) {
	incls := e.Store.LookupIncludedServices(start, end, ble.UUID{}, 0, -1)
	r.queue.Enqueue(func() {
		for i := range incls {
			in := &incls[i]
			cb(&InclResult{Handle: in.Handle, InclStartHandle: in.InclStartHandle, InclEndHandle: in.InclEndHandle, UUID: in.UUID}, nil)
		}
		cb(nil, ErrDone)
	})
}

// SearchAllCharacteristics enumerates characteristics within [start,end].
func (r *Router) SearchAllCharacteristics(conn uint16, start, end uint16, cb CharCB) error {
	return r.dispatch(conn, pendingAllCharacteristics{start: start, end: end, cb: cb}, func(e *Entry) {
		r.dispatchSearchAllCharacteristics(e, start, end, cb)
	})
}

func (r *Router) dispatchSearchAllCharacteristics(e *Entry, start, end uint16, cb CharCB) {
	results := charResultsInRange(e.Store, start, end, ble.UUID{}, 0, -1)
	r.queue.Enqueue(func() {
		for i := range results {
			cb(&results[i], nil)
		}
		cb(nil, ErrDone)
	})
}

// SearchCharacteristicsByUUID enumerates characteristics within [start,end]
// matching uuid.
func (r *Router) SearchCharacteristicsByUUID(conn uint16, start, end uint16, uuid ble.UUID, cb CharCB) error {
	return r.dispatch(conn, pendingCharacteristicsByUUID{start: start, end: end, uuid: uuid, cb: cb}, func(e *Entry) {
		r.dispatchSearchCharacteristicsByUUID(e, start, end, uuid, cb)
	})
}

func (r *Router) dispatchSearchCharacteristicsByUUID(e *Entry, start, end uint16, uuid ble.UUID, cb CharCB) {
	results := charResultsInRange(e.Store, start, end, uuid, 0, -1)
	r.queue.Enqueue(func() {
		for i := range results {
			cb(&results[i], nil)
		}
		cb(nil, ErrDone)
	})
}

// SearchAllDescriptors enumerates descriptors within [start,end].
func (r *Router) SearchAllDescriptors(conn uint16, start, end uint16, cb DescCB) error {
	return r.dispatch(conn, pendingAllDescriptors{start: start, end: end, cb: cb}, func(e *Entry) {
		r.dispatchSearchAllDescriptors(e, start, end, cb)
	})
}

func (r *Router) dispatchSearchAllDescriptors(e *Entry, start, end uint16, cb DescCB) {
	dscs := e.Store.LookupDescriptors(start, end, ble.UUID{}, 0, -1)
	r.queue.Enqueue(func() {
		for i := range dscs {
			cb(&DescResult{Handle: dscs[i].Handle, UUID: dscs[i].UUID}, nil)
		}
		cb(nil, ErrDone)
	})
}

func serviceResult(svc *attrstore.Service) *ServiceResult {
	return &ServiceResult{
		Primary:     svc.Kind == attrstore.Primary,
		StartHandle: svc.StartHandle,
		EndHandle:   svc.EndHandle,
		UUID:        svc.UUID,
	}
}

// charResultsInRange walks the store directly instead of going through
// Store.LookupCharacteristics because each result's EndHandle is computed
// from the owning service, which a bare Characteristic no longer knows.
// Pagination semantics match the attrstore lookups (limit < 0 unbounded).
func charResultsInRange(store *attrstore.Store, start, end uint16, uuid ble.UUID, offset, limit int) []CharResult {
	var out []CharResult
	skipped := 0
	for si := range store.Services {
		svc := &store.Services[si]
		for ci := range svc.Characteristics {
			chr := &svc.Characteristics[ci]
			if chr.ValHandle < start || chr.ValHandle > end {
				continue
			}
			if !uuid.Zero() && !chr.UUID.Equal(uuid) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			out = append(out, CharResult{
				DefHandle:  chr.DefHandle,
				ValHandle:  chr.ValHandle,
				EndHandle:  svc.CharEndHandle(ci),
				Properties: chr.Properties,
				UUID:       chr.UUID,
			})
			if limit >= 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// --- Structural inspection APIs ---
//
// These read the store's current contents directly: they are synchronous
// snapshots, not subject to the six search methods' verify/defer/pending
// contract — a caller wanting cache-coherent results should prefer the
// search methods.

// GetServiceWithUUID returns cached services matching uuid, skipping the
// first offset matches and returning at most limit results (limit < 0
// means unbounded).
func (r *Router) GetServiceWithUUID(conn uint16, uuid ble.UUID, offset, limit int) ([]ServiceResult, error) {
	e, ok := r.registry.FindByHandle(conn)
	if !ok {
		return nil, ErrNotConnected
	}
	svcs := e.Store.LookupServiceByUUID(uuid, offset, limit)
	out := make([]ServiceResult, len(svcs))
	for i := range svcs {
		out[i] = *serviceResult(&svcs[i])
	}
	return out, nil
}

// DBOpKind selects get-db-with-operation's filter semantics.
type DBOpKind uint8

const (
	OpCharByUUID DBOpKind = iota
	OpDescByUUID
	OpDescByHandle
	OpInclByUUID
)

// DBOp is the discriminated operation argument to GetDBWithOperation.
// Offset/Limit page through the result set; a zero Limit means unbounded,
// so the zero value of DBOp still selects everything.
type DBOp struct {
	Kind   DBOpKind
	Start  uint16
	End    uint16
	UUID   ble.UUID
	Handle uint16 // OpDescByHandle: the owning characteristic's value handle
	Offset int
	Limit  int
}

// GetDBWithOperation answers a filtered structural query selected by op's
// discriminant.
func (r *Router) GetDBWithOperation(conn uint16, op DBOp) (interface{}, error) {
	e, ok := r.registry.FindByHandle(conn)
	if !ok {
		return nil, ErrNotConnected
	}
	limit := op.Limit
	if limit == 0 {
		limit = -1
	}
	switch op.Kind {
	case OpCharByUUID:
		return charResultsInRange(e.Store, op.Start, op.End, op.UUID, op.Offset, limit), nil
	case OpDescByUUID:
		return e.Store.LookupDescriptors(op.Start, op.End, op.UUID, op.Offset, limit), nil
	case OpDescByHandle:
		return e.Store.DescriptorsByCharHandle(op.Handle, op.UUID, op.Offset, limit), nil
	case OpInclByUUID:
		return e.Store.LookupIncludedServices(op.Start, op.End, op.UUID, op.Offset, limit), nil
	default:
		return nil, ErrInvalidArgument
	}
}

// GetDBInRange returns every currently cached attribute whose handle falls
// within [start,end], in ascending handle order.
func (r *Router) GetDBInRange(conn uint16, start, end uint16) ([]attrstore.AttrRef, error) {
	e, ok := r.registry.FindByHandle(conn)
	if !ok {
		return nil, ErrNotConnected
	}
	return e.Store.AttrsInRange(start, end), nil
}

// AttrCount returns the count of attrstore entries of kind within
// [start,end], qualified by chrHandle when kind is KindDescriptor.
func (r *Router) AttrCount(conn uint16, kind attrstore.AttrKind, start, end, chrHandle uint16) (int, error) {
	e, ok := r.registry.FindByHandle(conn)
	if !ok {
		return 0, ErrNotConnected
	}
	return e.Store.SizeWithKind(kind, start, end, chrHandle), nil
}

// GetDBSizeInRange returns the total attribute count within [start,end].
func (r *Router) GetDBSizeInRange(conn uint16, start, end uint16) (int, error) {
	e, ok := r.registry.FindByHandle(conn)
	if !ok {
		return 0, ErrNotConnected
	}
	return e.Store.SizeWithRange(start, end), nil
}
