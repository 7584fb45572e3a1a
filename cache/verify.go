package cache

import "github.com/leso-kn/gattcache/ble"

// verify is the Hash Verifier's entry point and the Query Router's per-call
// step 2: depending on e's state, it may dispatch the hash
// read and return immediately without blocking the caller.
func (r *Router) verify(e *Entry) {
	switch e.State {
	case Loaded:
		if r.connReg != nil && r.connReg.Bonded(e.ConnHandle) {
			// A bond already guarantees database stability; no need to
			// round-trip the peer.
			e.State = Verified
			return
		}
		r.startVerify(e)
	default:
		// VERIFIED and every *_IN_PROGRESS state are already handled by
		// the caller (Query Router's step 3); INVALID has nothing to
		// verify against.
	}
}

// startVerify issues the Database Hash read over the full handle range and
// moves e to VERIFY_IN_PROGRESS.
func (r *Router) startVerify(e *Entry) {
	e.State = VerifyInProgress
	conn := e.ConnHandle
	delivered := false

	r.transport.ReadByUUID(conn, 0x0001, 0xFFFF, ble.DatabaseHashUUID, func(data []byte, err error) {
		r.queue.Enqueue(func() {
			ent, ok := r.registry.FindByHandle(conn)
			if !ok || ent != e || ent.State != VerifyInProgress {
				return
			}
			// "On the first completion ... ignore subsequent 'done'
			// follow-ups": one real value or one error
			// settles verification; anything the transport calls after
			// that is a terminal status we don't need.
			if delivered {
				return
			}
			delivered = true
			r.onVerifyResult(ent, data, err)
		})
	})
}

func (r *Router) onVerifyResult(e *Entry, data []byte, err error) {
	if err != nil {
		r.log.Infof("cache: hash read failed for conn=%d, rediscovering: %v", e.ConnHandle, err)
		r.beginDiscovery(e)
		return
	}
	if len(data) != 16 {
		r.log.Infof("cache: hash read returned %d bytes for conn=%d, rediscovering", len(data), e.ConnHandle)
		r.beginDiscovery(e)
		return
	}
	var got [16]byte
	copy(got[:], data)
	if got == e.DatabaseHash {
		e.State = Verified
		r.completePending(e, nil)
		return
	}
	r.log.Infof("cache: database hash mismatch for conn=%d, rediscovering", e.ConnHandle)
	r.beginDiscovery(e)
}
