package cache

import "github.com/leso-kn/gattcache/ble"

// ServiceCB, InclCB, CharCB and DescCB are the four completion-callback
// shapes the public surface uses; err==ErrDone marks the terminal
// invocation.
type ServiceCB func(svc *ServiceResult, err error)
type InclCB func(incl *InclResult, err error)
type CharCB func(chr *CharResult, err error)
type DescCB func(dsc *DescResult, err error)

// ServiceResult, InclResult, CharResult and DescResult are the result
// records delivered to each callback shape, matching attrstore's stored
// shape but decoupled from it so the Query Router can hand out copies
// without aliasing the live store.
type ServiceResult struct {
	Primary     bool
	StartHandle uint16
	EndHandle   uint16
	UUID        ble.UUID
}

type InclResult struct {
	Handle          uint16
	InclStartHandle uint16
	InclEndHandle   uint16
	UUID            ble.UUID
}

type CharResult struct {
	DefHandle  uint16
	ValHandle  uint16
	EndHandle  uint16
	Properties uint8
	UUID       ble.UUID
}

type DescResult struct {
	Handle uint16
	UUID   ble.UUID
}

// pendingOp is the tagged union Design Note 3 calls for: one concrete type
// per discovery-equivalent call, re-dispatched through its reissue method
// (and switched on by type only to report a failure) instead of conflating
// six callback signatures behind a void pointer.
type pendingOp interface {
	// reissue re-invokes the operation this pendingOp represents against
	// router, now that the cache state that blocked it has resolved.
	reissue(r *Router, e *Entry)
}

type pendingAllServices struct{ cb ServiceCB }

func (p pendingAllServices) reissue(r *Router, e *Entry) { r.dispatchSearchAllServices(e, p.cb) }

type pendingServiceByUUID struct {
	uuid ble.UUID
	cb   ServiceCB
}

func (p pendingServiceByUUID) reissue(r *Router, e *Entry) { r.dispatchSearchServiceByUUID(e, p.uuid, p.cb) }

type pendingIncludedServices struct {
	start, end uint16
	cb         InclCB
}

func (p pendingIncludedServices) reissue(r *Router, e *Entry) {
	r.dispatchSearchIncludedServices(e, p.start, p.end, p.cb)
}

type pendingAllCharacteristics struct {
	start, end uint16
	cb         CharCB
}

func (p pendingAllCharacteristics) reissue(r *Router, e *Entry) {
	r.dispatchSearchAllCharacteristics(e, p.start, p.end, p.cb)
}

type pendingCharacteristicsByUUID struct {
	start, end uint16
	uuid       ble.UUID
	cb         CharCB
}

func (p pendingCharacteristicsByUUID) reissue(r *Router, e *Entry) {
	r.dispatchSearchCharacteristicsByUUID(e, p.start, p.end, p.uuid, p.cb)
}

type pendingAllDescriptors struct {
	start, end uint16
	cb         DescCB
}

func (p pendingAllDescriptors) reissue(r *Router, e *Entry) {
	r.dispatchSearchAllDescriptors(e, p.start, p.end, p.cb)
}

// driverOpTag is a private marker type, never exposed. No pendingOp carries
// it and the Query Router performs no runtime reentry check: the driver's
// own re-dispatch goes through unexported methods a caller cannot reach, so
// a caller can never hand the driver's internal callback back to it (see
// DESIGN.md).
type driverOpTag struct{}
