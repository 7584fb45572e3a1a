// Package remote specifies the ATT/GATT wire procedures themselves: the
// core never talks to a radio, it drives a Transport and reacts to the
// completions it delivers. Transport is the interface boundary; Simulated
// is the one concrete implementation this repository ships, built against
// the same discovery-loop shape as a real Linux GATT client, for use by the
// cmd/gattcachectl demo.
package remote

import (
	"errors"

	"github.com/leso-kn/gattcache/ble"
)

// ErrDone is delivered as the final callback invocation of a multi-result
// procedure, terminating the sequence.
var ErrDone = errors.New("remote: done")

// GattSvc is one primary or secondary service reported by DiscAllSvcs.
type GattSvc struct {
	IsPrimary   bool
	StartHandle uint16
	EndHandle   uint16
	UUID        ble.UUID
}

// GattInclSvc is one included-service reference reported by FindIncSvcs.
type GattInclSvc struct {
	Handle          uint16
	InclStartHandle uint16
	InclEndHandle   uint16
	UUID            ble.UUID
}

// GattChr is one characteristic reported by DiscAllChrs.
type GattChr struct {
	DefHandle  uint16
	ValHandle  uint16
	Properties uint8
	UUID       ble.UUID
}

// GattDsc is one descriptor reported by DiscAllDscs.
type GattDsc struct {
	Handle uint16
	UUID   ble.UUID
}

// Transport is every remote procedure the Discovery Driver and Hash
// Verifier invoke. Every multi-result method calls cb once per match and a
// final time with ErrDone (or a non-nil, non-ErrDone error on protocol
// failure).
type Transport interface {
	// DiscAllSvcs runs "discover-all-primary-services" over the whole
	// handle range.
	DiscAllSvcs(conn uint16, cb func(svc GattSvc, err error))

	// FindIncSvcs runs "find-included-services" over [svcStart,svcEnd].
	FindIncSvcs(conn uint16, svcStart, svcEnd uint16, cb func(incl GattInclSvc, err error))

	// DiscAllChrs runs "discover-characteristics-by-uuid" (wildcard UUID)
	// over [svcStart,svcEnd].
	DiscAllChrs(conn uint16, svcStart, svcEnd uint16, cb func(chr GattChr, err error))

	// DiscAllDscs runs "discover-descriptors" over [chrValHandle+1,chrEnd].
	DiscAllDscs(conn uint16, chrValHandle, chrEnd uint16, cb func(dsc GattDsc, err error))

	// ReadByUUID runs a single-completion "read-by-uuid" over [start,end].
	ReadByUUID(conn uint16, start, end uint16, uuid ble.UUID, cb func(data []byte, err error))

	// Read runs a single-completion "read" of one handle.
	Read(conn uint16, handle uint16, cb func(data []byte, err error))
}
