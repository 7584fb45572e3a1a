package cache

import (
	"errors"
	"fmt"

	"github.com/leso-kn/gattcache/attrstore"
	"github.com/leso-kn/gattcache/ble"
)

// ErrOutOfMemory and ErrParentMissing are
// the same sentinels attrstore reports; the Discovery Driver passes them to
// the pending callback unwrapped, and errors.Is also matches them through
// the pkg/errors wrapping persist applies on replay.
var (
	ErrNotConnected    = errors.New("cache: not connected")
	ErrNotSupported    = errors.New("cache: caching disabled")
	ErrInvalidArgument = errors.New("cache: invalid argument")
	ErrOutOfMemory     = attrstore.ErrOutOfMemory
	ErrParentMissing   = attrstore.ErrParentMissing

	// ErrDone is the synthetic terminal status every completion callback
	// receives once after its last real result.
	ErrDone = errors.New("cache: done")
)

// PeerError is an ATT procedure's non-Done error status, propagated
// verbatim to the caller's completion callback.
type PeerError struct {
	Status int
	Handle uint16
}

func (e PeerError) Error() string {
	return fmt.Sprintf("cache: peer error status=%d handle=0x%04x", e.Status, e.Handle)
}

// peerFailure converts a transport-level ATT error status into a PeerError
// anchored at the handle the failing procedure was operating over; any
// other error passes through verbatim.
func peerFailure(err error, handle uint16) error {
	var att ble.ATTError
	if errors.As(err, &att) {
		return PeerError{Status: int(att), Handle: handle}
	}
	return err
}
