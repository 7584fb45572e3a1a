// Package attrstore holds one peer's discovered GATT attribute hierarchy:
// services, their included services, characteristics and descriptors, kept
// in ascending-handle order. It has no behaviour beyond ordered insertion
// and lookup — the Discovery Driver in package cache drives it, and the
// Query Router reads it.
package attrstore

import "github.com/leso-kn/gattcache/ble"

// ServiceKind distinguishes a primary service, directly discoverable, from
// a secondary one, only reachable via another service's Included list.
type ServiceKind uint8

const (
	Primary ServiceKind = iota
	Secondary
)

// AttrKind tags a result record with its attribute type, used by
// size/filter queries that span kinds.
type AttrKind uint8

const (
	KindService AttrKind = iota
	KindIncludedService
	KindCharacteristic
	KindDescriptor
)

// Descriptor is a metadata attribute attached to a characteristic.
type Descriptor struct {
	Handle uint16
	UUID   ble.UUID
}

// Characteristic is a typed value attribute preceded by its definition
// attribute. EndHandle is intentionally absent: it is computed from
// neighbouring attributes, never stored, so it can never grow stale as
// siblings are inserted out of order during discovery.
type Characteristic struct {
	DefHandle   uint16
	ValHandle   uint16
	Properties  uint8
	UUID        ble.UUID
	Descriptors []Descriptor
}

// IncludedService is a reference from one service to another, declared by a
// dedicated attribute at Handle.
type IncludedService struct {
	Handle          uint16
	InclStartHandle uint16
	InclEndHandle   uint16
	UUID            ble.UUID
}

// Service is one primary or secondary service and everything discovered
// under it.
type Service struct {
	Kind            ServiceKind
	StartHandle     uint16
	EndHandle       uint16
	UUID            ble.UUID
	IncludedService []IncludedService
	Characteristics []Characteristic
}

// CharEndHandle computes a characteristic's effective end handle: the
// handle immediately before the next characteristic's definition handle, or
// the owning service's EndHandle for the last characteristic.
func (s *Service) CharEndHandle(idx int) uint16 {
	if idx < 0 || idx >= len(s.Characteristics) {
		return s.EndHandle
	}
	if idx+1 < len(s.Characteristics) {
		return s.Characteristics[idx+1].DefHandle - 1
	}
	return s.EndHandle
}

// Contains reports whether handle falls within this service's range.
func (s *Service) Contains(handle uint16) bool {
	return handle >= s.StartHandle && handle <= s.EndHandle
}
