package ble

import "fmt"

// AddrType distinguishes public from random addresses, and — once the
// controller resolves a resolvable-private address — identifies the
// address as an identity address. Only identity addresses are safe to key
// a persisted cache by.
type AddrType uint8

const (
	AddrTypePublic AddrType = iota
	AddrTypeRandom
)

// Addr is a Bluetooth device address: a type byte plus 6 address bytes, the
// same shape as the platform ble_addr_t the persistence record layout
// mirrors byte-for-byte.
type Addr struct {
	Type  AddrType
	Bytes [6]byte
}

// ParseAddr builds an Addr from a "AA:BB:CC:DD:EE:FF" string, MSB first as
// conventionally printed (the reverse of the little-endian wire order).
func ParseAddr(s string, t AddrType) (Addr, error) {
	var a Addr
	a.Type = t
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x",
		&a.Bytes[5], &a.Bytes[4], &a.Bytes[3], &a.Bytes[2], &a.Bytes[1], &a.Bytes[0])
	if err != nil || n != 6 {
		return Addr{}, fmt.Errorf("ble: invalid address %q", s)
	}
	return a, nil
}

// Equal compares type and bytes; two addresses of different type are never
// equal even if the bytes match, since a resolved identity address and the
// resolvable-private address it resolved from must not collide.
func (a Addr) Equal(o Addr) bool {
	return a.Type == o.Type && a.Bytes == o.Bytes
}

func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		a.Bytes[5], a.Bytes[4], a.Bytes[3], a.Bytes[2], a.Bytes[1], a.Bytes[0])
}
