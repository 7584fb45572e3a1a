// Package persist serialises one peer's discovered attribute store to a
// byte-exact per-peer record and reconstructs it on load.
package persist

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/leso-kn/gattcache/attrstore"
	"github.com/leso-kn/gattcache/ble"
)

// AttrType tags one serialised attribute record.
type AttrType uint8

const (
	AttrService AttrType = iota
	AttrIncludedService
	AttrCharacteristic
	AttrDescriptor
)

var (
	// ErrTruncated means the record ended before a length-prefixed field
	// could be read in full.
	ErrTruncated = errors.New("persist: truncated record")
	// ErrMalformed means a field decoded but failed a structural check —
	// an unknown attr_type or UUID discriminant.
	ErrMalformed = errors.New("persist: malformed record")
)

// AttrRecord is one depth-first traversal step: a service, an included
// service, a characteristic or a descriptor, carrying only the fields that
// apply to its Type — the rest read back as zero.
type AttrRecord struct {
	Type            AttrType
	StartHandle     uint16 // service start handle / incl/char/desc handle
	EndHandle       uint16 // services only
	IsPrimary       bool   // services only
	Properties      uint8  // characteristics only
	InclStartHandle uint16 // included services only
	InclEndHandle   uint16 // included services only
	UUID            ble.UUID
}

// Record is the full per-peer persistence record: identity, database hash
// and the depth-first attribute traversal that rebuilds the store.
type Record struct {
	Addr         ble.Addr
	DatabaseHash [16]byte
	Attrs        []AttrRecord
}

// FromStore captures store's current contents as a Record ready to be
// marshalled, in depth-first traversal order.
func FromStore(addr ble.Addr, hash [16]byte, store *attrstore.Store) Record {
	rec := Record{Addr: addr, DatabaseHash: hash}
	for _, svc := range store.Services {
		rec.Attrs = append(rec.Attrs, AttrRecord{
			Type:        AttrService,
			StartHandle: svc.StartHandle,
			EndHandle:   svc.EndHandle,
			IsPrimary:   svc.Kind == attrstore.Primary,
			UUID:        svc.UUID,
		})
		for _, incl := range svc.IncludedService {
			rec.Attrs = append(rec.Attrs, AttrRecord{
				Type:            AttrIncludedService,
				StartHandle:     incl.Handle,
				InclStartHandle: incl.InclStartHandle,
				InclEndHandle:   incl.InclEndHandle,
				UUID:            incl.UUID,
			})
		}
		for _, chr := range svc.Characteristics {
			rec.Attrs = append(rec.Attrs, AttrRecord{
				Type:        AttrCharacteristic,
				StartHandle: chr.DefHandle,
				Properties:  chr.Properties,
				UUID:        chr.UUID,
			})
			for _, dsc := range chr.Descriptors {
				rec.Attrs = append(rec.Attrs, AttrRecord{
					Type:        AttrDescriptor,
					StartHandle: dsc.Handle,
					UUID:        dsc.UUID,
				})
			}
		}
	}
	return rec
}

// Replay reconstructs store from rec by replaying the depth-first
// traversal: services become open containers; subsequent included service,
// characteristic and descriptor records attach to the most recently opened
// service, or — for descriptors — the most recently opened characteristic
//. store must already be empty (callers Reset it first).
func (rec Record) Replay(store *attrstore.Store) error {
	var curSvcStart uint16
	var haveSvc bool
	var curChrValHandle uint16
	var haveChr bool

	for _, a := range rec.Attrs {
		switch a.Type {
		case AttrService:
			kind := attrstore.Secondary
			if a.IsPrimary {
				kind = attrstore.Primary
			}
			if _, err := store.InsertService(kind, attrstore.Service{
				StartHandle: a.StartHandle,
				EndHandle:   a.EndHandle,
				UUID:        a.UUID,
			}); err != nil {
				return errors.Wrap(err, "replay service")
			}
			curSvcStart, haveSvc = a.StartHandle, true
			haveChr = false

		case AttrIncludedService:
			if !haveSvc {
				return errors.Wrap(attrstore.ErrParentMissing, "replay included service")
			}
			if _, err := store.InsertIncluded(curSvcStart, attrstore.IncludedService{
				Handle:          a.StartHandle,
				InclStartHandle: a.InclStartHandle,
				InclEndHandle:   a.InclEndHandle,
				UUID:            a.UUID,
			}); err != nil {
				return errors.Wrap(err, "replay included service")
			}

		case AttrCharacteristic:
			if !haveSvc {
				return errors.Wrap(attrstore.ErrParentMissing, "replay characteristic")
			}
			// The value declaration sits immediately after the
			// characteristic declaration, so the value handle is
			// recomputed rather than stored (end_handle stays 0 for
			// non-service records).
			valHandle := a.StartHandle + 1
			if _, err := store.InsertCharacteristic(curSvcStart, attrstore.Characteristic{
				DefHandle:  a.StartHandle,
				ValHandle:  valHandle,
				Properties: a.Properties,
				UUID:       a.UUID,
			}); err != nil {
				return errors.Wrap(err, "replay characteristic")
			}
			curChrValHandle, haveChr = valHandle, true

		case AttrDescriptor:
			if !haveChr {
				return errors.Wrap(attrstore.ErrParentMissing, "replay descriptor")
			}
			if _, err := store.InsertDescriptor(curChrValHandle, attrstore.Descriptor{
				Handle: a.StartHandle,
				UUID:   a.UUID,
			}); err != nil {
				return errors.Wrap(err, "replay descriptor")
			}

		default:
			return ErrMalformed
		}
	}

	store.SanityPass()
	return nil
}

// Marshal encodes rec byte-exactly: 16-byte address, 16-byte hash, 4-byte
// little-endian count, then each attribute record.
func (rec Record) Marshal() []byte {
	buf := make([]byte, 0, 36+len(rec.Attrs)*29)

	var addrField [16]byte
	addrField[0] = byte(rec.Addr.Type)
	copy(addrField[1:7], rec.Addr.Bytes[:])
	buf = append(buf, addrField[:]...)

	buf = append(buf, rec.DatabaseHash[:]...)

	var countField [4]byte
	binary.LittleEndian.PutUint32(countField[:], uint32(len(rec.Attrs)))
	buf = append(buf, countField[:]...)

	for _, a := range rec.Attrs {
		buf = appendAttr(buf, a)
	}
	return buf
}

func appendAttr(buf []byte, a AttrRecord) []byte {
	var h [2]byte

	binary.LittleEndian.PutUint16(h[:], a.StartHandle)
	buf = append(buf, h[:]...)
	binary.LittleEndian.PutUint16(h[:], a.EndHandle)
	buf = append(buf, h[:]...)

	buf = append(buf, byte(a.Type))
	buf = append(buf, a.Properties)
	if a.IsPrimary {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	binary.LittleEndian.PutUint16(h[:], a.InclStartHandle)
	buf = append(buf, h[:]...)
	binary.LittleEndian.PutUint16(h[:], a.InclEndHandle)
	buf = append(buf, h[:]...)

	uuidBytes := a.UUID.Bytes()
	buf = append(buf, byte(len(uuidBytes)))
	buf = append(buf, uuidBytes...)
	return buf
}

// Unmarshal decodes a Record from data, the inverse of Marshal. It reports
// ErrTruncated on a short buffer and ErrMalformed on an invalid attr_type or
// UUID length, so a corrupted record fails closed.
func Unmarshal(data []byte) (Record, error) {
	if len(data) < 36 {
		return Record{}, ErrTruncated
	}
	var rec Record
	rec.Addr.Type = ble.AddrType(data[0])
	copy(rec.Addr.Bytes[:], data[1:7])
	copy(rec.DatabaseHash[:], data[16:32])
	count := binary.LittleEndian.Uint32(data[32:36])

	off := 36
	for i := uint32(0); i < count; i++ {
		a, n, err := parseAttr(data[off:])
		if err != nil {
			return Record{}, err
		}
		rec.Attrs = append(rec.Attrs, a)
		off += n
	}
	return rec, nil
}

func parseAttr(data []byte) (AttrRecord, int, error) {
	if len(data) < 12 {
		return AttrRecord{}, 0, ErrTruncated
	}
	var a AttrRecord
	a.StartHandle = binary.LittleEndian.Uint16(data[0:2])
	a.EndHandle = binary.LittleEndian.Uint16(data[2:4])
	a.Type = AttrType(data[4])
	if a.Type > AttrDescriptor {
		return AttrRecord{}, 0, ErrMalformed
	}
	a.Properties = data[5]
	a.IsPrimary = data[6] != 0
	a.InclStartHandle = binary.LittleEndian.Uint16(data[7:9])
	a.InclEndHandle = binary.LittleEndian.Uint16(data[9:11])

	uuidLen := int(data[11])
	if uuidLen != 2 && uuidLen != 4 && uuidLen != 16 {
		return AttrRecord{}, 0, ErrMalformed
	}
	if len(data) < 12+uuidLen {
		return AttrRecord{}, 0, ErrTruncated
	}
	uuid, err := ble.ParseUUID(data[12 : 12+uuidLen])
	if err != nil {
		return AttrRecord{}, 0, errors.Wrap(err, "parse attr uuid")
	}
	a.UUID = uuid
	return a, 12 + uuidLen, nil
}
