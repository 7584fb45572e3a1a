package ble

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// bluetoothBaseUUID is the 128-bit Bluetooth Base UUID that 16- and 32-bit
// UUIDs are shorthand for: 0000xxxx-0000-1000-8000-00805F9B34FB, stored
// little-endian the way it travels on the wire.
var bluetoothBaseUUID = [16]byte{
	0xFB, 0x34, 0x9B, 0x5F, 0x80, 0x00, 0x00, 0x80,
	0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// UUID is the sum of the 16-bit, 32-bit and 128-bit GATT UUID forms. It is
// stored little-endian, exactly as it arrives in an ATT PDU, and compares
// canonically: a 16-bit UUID and its 128-bit Bluetooth-Base expansion are
// Equal.
type UUID struct {
	b [16]byte
	n int // 2, 4 or 16 significant bytes starting at b[0]
}

// UUID16 constructs a UUID from its 16-bit form.
func UUID16(v uint16) UUID {
	var u UUID
	binary.LittleEndian.PutUint16(u.b[:2], v)
	u.n = 2
	return u
}

// UUID32 constructs a UUID from its 32-bit form.
func UUID32(v uint32) UUID {
	var u UUID
	binary.LittleEndian.PutUint32(u.b[:4], v)
	u.n = 4
	return u
}

// ParseUUID builds a UUID from raw little-endian wire bytes. Only 2, 4 and
// 16 byte lengths are valid GATT UUID encodings.
func ParseUUID(b []byte) (UUID, error) {
	var u UUID
	switch len(b) {
	case 2, 4, 16:
		copy(u.b[:], b)
		u.n = len(b)
		return u, nil
	default:
		return UUID{}, fmt.Errorf("ble: invalid uuid length %d", len(b))
	}
}

// MustParseUUID is ParseUUID for callers that already know the bytes are
// well-formed (constants, tests).
func MustParseUUID(b []byte) UUID {
	u, err := ParseUUID(b)
	if err != nil {
		panic(err)
	}
	return u
}

// Len reports how many significant bytes (2, 4 or 16) the UUID carries.
func (u UUID) Len() int { return u.n }

// Bytes returns the little-endian wire encoding at its native width.
func (u UUID) Bytes() []byte {
	b := make([]byte, u.n)
	copy(b, u.b[:u.n])
	return b
}

// canonical128 expands any width to the full 128-bit Bluetooth Base form so
// that UUID16(0x2A00) and its 128-bit expansion compare equal.
func (u UUID) canonical128() [16]byte {
	if u.n == 16 {
		return u.b
	}
	var out [16]byte
	out = bluetoothBaseUUID
	// The short value occupies the xxxx(xxxx) field, bytes 12..15 of the
	// little-endian base.
	copy(out[12:12+u.n], u.b[:u.n])
	return out
}

// Equal reports canonical equality: width is irrelevant, only the expanded
// 128-bit value matters.
func (u UUID) Equal(o UUID) bool {
	return u.canonical128() == o.canonical128()
}

// Zero reports whether the UUID was never set.
func (u UUID) Zero() bool { return u.n == 0 }

// String renders the UUID in the conventional hyphenated hex form for a
// 128-bit value, or bare hex for 16/32-bit forms.
func (u UUID) String() string {
	if u.n != 16 {
		// little-endian on the wire, printed big-endian by convention.
		rev := make([]byte, u.n)
		for i := 0; i < u.n; i++ {
			rev[i] = u.b[u.n-1-i]
		}
		return hex.EncodeToString(rev)
	}
	rev := make([]byte, 16)
	for i := 0; i < 16; i++ {
		rev[i] = u.b[15-i]
	}
	s := hex.EncodeToString(rev)
	return fmt.Sprintf("%s-%s-%s-%s-%s", s[0:8], s[8:12], s[12:16], s[16:20], s[20:32])
}

// Contains reports whether uuid appears (canonically) in the list.
func Contains(list []UUID, uuid UUID) bool {
	for _, u := range list {
		if u.Equal(uuid) {
			return true
		}
	}
	return false
}

// Well-known UUIDs the cache's discovery and verification logic consumes
// directly, pared to what the Discovery Driver and Hash Verifier reference
// by name.
var (
	PrimaryServiceUUID   = UUID16(0x2800)
	SecondaryServiceUUID = UUID16(0x2801)
	IncludeUUID          = UUID16(0x2802)
	CharacteristicUUID   = UUID16(0x2803)

	ClientCharacteristicConfigUUID = UUID16(0x2902)

	ServiceChangedUUID = UUID16(0x2A05)

	// DatabaseHashUUID (0x2B2A) is the characteristic whose value the Hash
	// Verifier compares against the persisted database_hash on reconnect.
	DatabaseHashUUID = UUID16(0x2B2A)

	// ClientSupportedFeaturesUUID (0x2B29) is read alongside the hash by a
	// full caching-aware GATT service; the cache does not need its value but
	// the discovery driver must not choke if a peer advertises it.
	ClientSupportedFeaturesUUID = UUID16(0x2B29)
)
