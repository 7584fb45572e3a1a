package cache

import (
	"github.com/leso-kn/gattcache/attrstore"
	"github.com/leso-kn/gattcache/ble"
	"github.com/leso-kn/gattcache/remote"
)

// beginDiscovery wipes e's store and starts the service-discovery phase.
func (r *Router) beginDiscovery(e *Entry) {
	e.Store.Reset()
	e.State = SvcDiscInProgress
	e.curServiceIdx = -1
	e.prevCharWatermark = 0

	conn := e.ConnHandle
	r.transport.DiscAllSvcs(conn, func(svc remote.GattSvc, err error) {
		r.queue.Enqueue(func() {
			ent, ok := r.liveInState(conn, e, SvcDiscInProgress)
			if !ok {
				return
			}
			if err == remote.ErrDone {
				r.startIncludedDiscovery(ent)
				return
			}
			if err != nil {
				r.fail(ent, peerFailure(err, 0x0001))
				return
			}
			kind := attrstore.Primary
			if !svc.IsPrimary {
				kind = attrstore.Secondary
			}
			if _, ierr := ent.Store.InsertService(kind, attrstore.Service{
				StartHandle: svc.StartHandle,
				EndHandle:   svc.EndHandle,
				UUID:        svc.UUID,
			}); ierr != nil {
				r.fail(ent, ierr)
				return
			}
			// "cur_service <- null": no service is being
			// discovered into yet during this phase.
			ent.curServiceIdx = -1
		})
	})
}

// liveInState re-fetches the entry for conn and confirms it is still the
// same Entry in the expected state, guarding every discovery callback
// against a disconnect (which destroys the entry) or a stale re-entrant
// callback racing a newer operation.
func (r *Router) liveInState(conn uint16, want *Entry, state State) (*Entry, bool) {
	ent, ok := r.registry.FindByHandle(conn)
	if !ok || ent != want || ent.State != state {
		return nil, false
	}
	return ent, true
}

// startIncludedDiscovery begins the INC_DISC_IN_PROGRESS phase:
// find-included-services against each discovered service in turn. With
// IncludeServicesEnabled unset (option B), the phase is skipped outright
// and any secondary service the peer reported during primary discovery is
// already sitting in the main list.
func (r *Router) startIncludedDiscovery(e *Entry) {
	if !r.cfg.IncludeServicesEnabled {
		r.startCharacteristicDiscovery(e)
		return
	}
	e.State = IncDiscInProgress
	if len(e.Store.Services) == 0 {
		r.startCharacteristicDiscovery(e)
		return
	}
	e.curServiceIdx = 0
	r.dispatchIncludedForCurrentService(e)
}

func (r *Router) dispatchIncludedForCurrentService(e *Entry) {
	svc := e.curService()
	if svc == nil {
		r.startCharacteristicDiscovery(e)
		return
	}
	conn := e.ConnHandle
	svcStart, svcEnd := svc.StartHandle, svc.EndHandle

	r.transport.FindIncSvcs(conn, svcStart, svcEnd, func(incl remote.GattInclSvc, err error) {
		r.queue.Enqueue(func() {
			ent, ok := r.liveInState(conn, e, IncDiscInProgress)
			if !ok {
				return
			}
			if err == remote.ErrDone {
				ent.curServiceIdx = nextServiceIndexAfter(ent.Store, svcStart)
				r.dispatchIncludedForCurrentService(ent)
				return
			}
			if err != nil {
				// A peer rejecting find-included-services for one service
				// doesn't doom the pass; skip ahead to characteristic
				// discovery with whatever was gathered so far.
				ent.log.Infof("cache: included-service discovery failed at 0x%04x, advancing: %v", svcStart, err)
				r.startCharacteristicDiscovery(ent)
				return
			}
			if _, ierr := ent.Store.InsertIncluded(svcStart, attrstore.IncludedService{
				Handle:          incl.Handle,
				InclStartHandle: incl.InclStartHandle,
				InclEndHandle:   incl.InclEndHandle,
				UUID:            incl.UUID,
			}); ierr != nil {
				r.fail(ent, ierr)
				return
			}
			// Option A: a secondary service surfaced only
			// through another service's Included declaration is inserted
			// into the main list if not already present, when its UUID
			// arrived inline (the peer includes it only for 16-bit UUIDs).
			if !incl.UUID.Zero() {
				if _, ierr := ent.Store.InsertService(attrstore.Secondary, attrstore.Service{
					StartHandle: incl.InclStartHandle,
					EndHandle:   incl.InclEndHandle,
					UUID:        incl.UUID,
				}); ierr != nil {
					r.fail(ent, ierr)
					return
				}
			}
		})
	})
}

// startCharacteristicDiscovery begins the CHR_DISC_IN_PROGRESS phase.
func (r *Router) startCharacteristicDiscovery(e *Entry) {
	e.State = ChrDiscInProgress
	e.curServiceIdx = findNextForCharDisc(e.Store, 0)
	r.dispatchCharsForCurrentService(e)
}

func (r *Router) dispatchCharsForCurrentService(e *Entry) {
	if e.curServiceIdx < 0 {
		r.startDescriptorDiscovery(e)
		return
	}
	svc := e.curService()
	conn := e.ConnHandle
	svcStart, svcEnd := svc.StartHandle, svc.EndHandle

	r.transport.DiscAllChrs(conn, svcStart, svcEnd, func(chr remote.GattChr, err error) {
		r.queue.Enqueue(func() {
			ent, ok := r.liveInState(conn, e, ChrDiscInProgress)
			if !ok {
				return
			}
			if err == remote.ErrDone {
				ent.curServiceIdx = findNextForCharDisc(ent.Store, svcStart)
				r.dispatchCharsForCurrentService(ent)
				return
			}
			if err != nil {
				r.fail(ent, peerFailure(err, svcStart))
				return
			}
			if _, ierr := ent.Store.InsertCharacteristic(svcStart, attrstore.Characteristic{
				DefHandle:  chr.DefHandle,
				ValHandle:  chr.ValHandle,
				Properties: chr.Properties,
				UUID:       chr.UUID,
			}); ierr != nil {
				r.fail(ent, ierr)
				return
			}
			if chr.UUID.Equal(ble.DatabaseHashUUID) {
				r.captureDatabaseHash(ent, chr.ValHandle)
			}
		})
	})
}

// captureDatabaseHash reads the value of a Database Hash characteristic
// encountered mid-discovery: the freshly discovered database's own hash is
// captured so a verification pass on a subsequent reconnect has something
// to compare against.
func (r *Router) captureDatabaseHash(e *Entry, valHandle uint16) {
	conn := e.ConnHandle
	r.transport.Read(conn, valHandle, func(data []byte, err error) {
		r.queue.Enqueue(func() {
			ent, ok := r.registry.FindByHandle(conn)
			if !ok || ent != e || !ent.State.InProgress() {
				return
			}
			if err != nil || len(data) != 16 {
				r.log.Warnf("cache: database hash capture failed for conn=%d: %v", conn, err)
				return
			}
			copy(ent.DatabaseHash[:], data)
		})
	})
}

// startDescriptorDiscovery begins the DSC_DISC_IN_PROGRESS phase,
// resuming from the monotonic value-handle watermark.
func (r *Router) startDescriptorDiscovery(e *Entry) {
	e.State = DscDiscInProgress
	e.prevCharWatermark = 1
	r.dispatchDescriptorsFromWatermark(e)
}

func (r *Router) dispatchDescriptorsFromWatermark(e *Entry) {
	svcIdx, chrIdx, found := findNextForDscDisc(e.Store, e.prevCharWatermark-1)
	if !found {
		r.finishDiscovery(e)
		return
	}
	svc := &e.Store.Services[svcIdx]
	chr := &svc.Characteristics[chrIdx]
	conn := e.ConnHandle
	chrValHandle := chr.ValHandle
	chrEnd := svc.CharEndHandle(chrIdx)

	r.transport.DiscAllDscs(conn, chrValHandle, chrEnd, func(dsc remote.GattDsc, err error) {
		r.queue.Enqueue(func() {
			ent, ok := r.liveInState(conn, e, DscDiscInProgress)
			if !ok {
				return
			}
			if err == remote.ErrDone {
				ent.prevCharWatermark = chrValHandle + 1
				r.dispatchDescriptorsFromWatermark(ent)
				return
			}
			if err != nil {
				r.fail(ent, peerFailure(err, chrValHandle))
				return
			}
			if _, ierr := ent.Store.InsertDescriptor(chrValHandle, attrstore.Descriptor{
				Handle: dsc.Handle,
				UUID:   dsc.UUID,
			}); ierr != nil {
				r.fail(ent, ierr)
				return
			}
		})
	})
}

// finishDiscovery runs the sanity pass, persists the result and settles the
// entry at VERIFIED, re-dispatching any request that queued up during the
// rebuild.
func (r *Router) finishDiscovery(e *Entry) {
	e.Store.SanityPass()
	e.prevCharWatermark = 0
	e.curServiceIdx = -1
	e.State = Verified

	if r.backend != nil {
		if err := r.backend.Save(e.Addr, e.DatabaseHash, e.Store); err != nil {
			r.log.Warnf("cache: persistence save failed for %s: %v", e.Addr, err)
		}
	}
	r.completePending(e, nil)
}

// nextServiceIndexAfter returns the index of the first service in store
// whose StartHandle exceeds afterStart, or -1 if none. Re-deriving the
// cursor from the handle watermark, rather than incrementing a raw index,
// keeps it correct even when option-A included-service discovery inserts a
// secondary service earlier in the (handle-ordered) slice mid-pass.
func nextServiceIndexAfter(store *attrstore.Store, afterStart uint16) int {
	for i := range store.Services {
		if store.Services[i].StartHandle > afterStart {
			return i
		}
	}
	return -1
}

// findNextForCharDisc returns the index of the next service after
// afterStart with room for characteristics and none discovered yet.
func findNextForCharDisc(store *attrstore.Store, afterStart uint16) int {
	for i := range store.Services {
		svc := &store.Services[i]
		if svc.StartHandle <= afterStart {
			continue
		}
		if svc.EndHandle <= svc.StartHandle {
			continue
		}
		if len(svc.Characteristics) > 0 {
			continue
		}
		return i
	}
	return -1
}

// findNextForDscDisc scans for the next characteristic, in ascending
// value-handle order, with room for descriptors and none discovered yet.
// The monotonic watermark (afterValHandle) is what guarantees forward
// progress; rescanning from the start of the list on every
// call is cheap at the attribute counts this cache targets.
func findNextForDscDisc(store *attrstore.Store, afterValHandle uint16) (svcIdx, chrIdx int, found bool) {
	for si := range store.Services {
		svc := &store.Services[si]
		for ci := range svc.Characteristics {
			chr := &svc.Characteristics[ci]
			if chr.ValHandle <= afterValHandle {
				continue
			}
			if svc.CharEndHandle(ci) <= chr.ValHandle {
				continue
			}
			if len(chr.Descriptors) > 0 {
				continue
			}
			return si, ci, true
		}
	}
	return 0, 0, false
}
