package attrstore

import (
	"errors"

	"github.com/leso-kn/gattcache/ble"
)

// ErrParentMissing means a discovered child attribute has no enclosing
// parent in the store: a protocol invariant breach, fatal to the in-flight
// discovery pass.
var ErrParentMissing = errors.New("attrstore: parent missing")

// ErrOutOfMemory means a capacity limit configured on the Store was
// exceeded.
var ErrOutOfMemory = errors.New("attrstore: out of memory")

// Limits bounds how many of each attribute kind a single Store will
// accept, so a misbehaving peer cannot grow the store without bound.
type Limits struct {
	MaxServices         int
	MaxIncludedServices int
	MaxCharacteristics  int
	MaxDescriptors      int
}

// Unbounded disables all capacity checks — the zero value is unusable
// (everything looks "full"), so tests and callers that don't care about
// limits should use this explicitly.
var Unbounded = Limits{MaxServices: -1, MaxIncludedServices: -1, MaxCharacteristics: -1, MaxDescriptors: -1}

// Store is one peer's discovered GATT database. It holds no behaviour
// beyond ordered insertion and lookup.
type Store struct {
	Services []Service
	limits   Limits

	totalIncl int
	totalChrs int
	totalDscs int
}

// New returns an empty Store enforcing limits.
func New(limits Limits) *Store {
	return &Store{limits: limits}
}

// Reset empties the store in place, used when discovery restarts.
func (s *Store) Reset() {
	s.Services = nil
	s.totalIncl, s.totalChrs, s.totalDscs = 0, 0, 0
}

func (s *Store) svcIndexByStart(start uint16) int {
	for i := range s.Services {
		if s.Services[i].StartHandle == start {
			return i
		}
	}
	return -1
}

func (s *Store) svcIndexByRange(handle uint16) int {
	for i := range s.Services {
		if s.Services[i].Contains(handle) {
			return i
		}
	}
	return -1
}

// InsertService inserts a primary/secondary service in ascending
// start-handle order. Idempotent on StartHandle: a second insert of the
// same StartHandle is a no-op reporting dup=true.
func (s *Store) InsertService(kind ServiceKind, svc Service) (dup bool, err error) {
	if i := s.svcIndexByStart(svc.StartHandle); i >= 0 {
		return true, nil
	}
	if s.limits.MaxServices >= 0 && len(s.Services) >= s.limits.MaxServices {
		return false, ErrOutOfMemory
	}
	svc.Kind = kind
	svc.IncludedService = nil
	svc.Characteristics = nil

	idx := 0
	for idx < len(s.Services) && s.Services[idx].StartHandle < svc.StartHandle {
		idx++
	}
	s.Services = append(s.Services, Service{})
	copy(s.Services[idx+1:], s.Services[idx:])
	s.Services[idx] = svc
	return false, nil
}

// InsertIncluded inserts an included-service record under the service whose
// range contains containerHandle. Idempotent on incl.Handle.
func (s *Store) InsertIncluded(containerHandle uint16, incl IncludedService) (dup bool, err error) {
	si := s.svcIndexByRange(containerHandle)
	if si < 0 {
		return false, ErrParentMissing
	}
	svc := &s.Services[si]
	for i := range svc.IncludedService {
		if svc.IncludedService[i].Handle == incl.Handle {
			return true, nil
		}
	}
	if s.limits.MaxIncludedServices >= 0 && s.totalIncl >= s.limits.MaxIncludedServices {
		return false, ErrOutOfMemory
	}
	idx := 0
	for idx < len(svc.IncludedService) && svc.IncludedService[idx].Handle < incl.Handle {
		idx++
	}
	svc.IncludedService = append(svc.IncludedService, IncludedService{})
	copy(svc.IncludedService[idx+1:], svc.IncludedService[idx:])
	svc.IncludedService[idx] = incl
	s.totalIncl++
	return false, nil
}

// InsertCharacteristic inserts a characteristic. If svcStartHandleHint is
// nonzero the owning service is located by an exact StartHandle match;
// otherwise by range containment of chr.ValHandle. Idempotent on
// chr.DefHandle.
func (s *Store) InsertCharacteristic(svcStartHandleHint uint16, chr Characteristic) (dup bool, err error) {
	var si int
	if svcStartHandleHint != 0 {
		si = s.svcIndexByStart(svcStartHandleHint)
	} else {
		si = s.svcIndexByRange(chr.ValHandle)
	}
	if si < 0 {
		return false, ErrParentMissing
	}
	svc := &s.Services[si]
	for i := range svc.Characteristics {
		if svc.Characteristics[i].DefHandle == chr.DefHandle {
			return true, nil
		}
	}
	if s.limits.MaxCharacteristics >= 0 && s.totalChrs >= s.limits.MaxCharacteristics {
		return false, ErrOutOfMemory
	}
	chr.Descriptors = nil
	idx := 0
	for idx < len(svc.Characteristics) && svc.Characteristics[idx].ValHandle < chr.ValHandle {
		idx++
	}
	svc.Characteristics = append(svc.Characteristics, Characteristic{})
	copy(svc.Characteristics[idx+1:], svc.Characteristics[idx:])
	svc.Characteristics[idx] = chr
	s.totalChrs++
	return false, nil
}

// InsertDescriptor inserts a descriptor. The enclosing service is found by
// range containment of dsc.Handle; the characteristic either by an exact
// ValHandle match (chrValHandleHint nonzero) or by the largest ValHandle <=
// dsc.Handle. Idempotent on dsc.Handle.
func (s *Store) InsertDescriptor(chrValHandleHint uint16, dsc Descriptor) (dup bool, err error) {
	si := s.svcIndexByRange(dsc.Handle)
	if si < 0 {
		return false, ErrParentMissing
	}
	svc := &s.Services[si]

	ci := -1
	if chrValHandleHint != 0 {
		for i := range svc.Characteristics {
			if svc.Characteristics[i].ValHandle == chrValHandleHint {
				ci = i
				break
			}
		}
	} else {
		for i := range svc.Characteristics {
			if svc.Characteristics[i].ValHandle <= dsc.Handle &&
				(ci < 0 || svc.Characteristics[i].ValHandle > svc.Characteristics[ci].ValHandle) {
				ci = i
			}
		}
	}
	if ci < 0 {
		return false, ErrParentMissing
	}
	chr := &svc.Characteristics[ci]
	for i := range chr.Descriptors {
		if chr.Descriptors[i].Handle == dsc.Handle {
			return true, nil
		}
	}
	if s.limits.MaxDescriptors >= 0 && s.totalDscs >= s.limits.MaxDescriptors {
		return false, ErrOutOfMemory
	}
	idx := 0
	for idx < len(chr.Descriptors) && chr.Descriptors[idx].Handle < dsc.Handle {
		idx++
	}
	chr.Descriptors = append(chr.Descriptors, Descriptor{})
	copy(chr.Descriptors[idx+1:], chr.Descriptors[idx:])
	chr.Descriptors[idx] = dsc
	s.totalDscs++
	return false, nil
}

// LookupServiceByUUID enumerates services matching uuid (or all, if uuid is
// the zero value) in ascending handle order, honouring offset/limit
// pagination.
func (s *Store) LookupServiceByUUID(uuid ble.UUID, offset, limit int) []Service {
	var out []Service
	skipped := 0
	for _, svc := range s.Services {
		if !uuid.Zero() && !svc.UUID.Equal(uuid) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, svc)
		if limit >= 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// LookupCharacteristics enumerates characteristics whose ValHandle falls in
// [start,end], optionally filtered by uuid, honouring offset/limit
// pagination (limit < 0 means unbounded).
func (s *Store) LookupCharacteristics(start, end uint16, uuid ble.UUID, offset, limit int) []Characteristic {
	var out []Characteristic
	skipped := 0
	for _, svc := range s.Services {
		for _, chr := range svc.Characteristics {
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
			out = append(out, chr)
			if limit >= 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// LookupIncludedServices enumerates included-service records declared by
// services overlapping [start,end], optionally filtered by uuid, honouring
// offset/limit pagination (limit < 0 means unbounded).
func (s *Store) LookupIncludedServices(start, end uint16, uuid ble.UUID, offset, limit int) []IncludedService {
	var out []IncludedService
	skipped := 0
	for _, svc := range s.Services {
		if svc.EndHandle < start || svc.StartHandle > end {
			continue
		}
		for _, inc := range svc.IncludedService {
			if !uuid.Zero() && !inc.UUID.Equal(uuid) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			out = append(out, inc)
			if limit >= 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// LookupDescriptors enumerates descriptors in [start,end], optionally
// filtered by uuid, honouring offset/limit pagination (limit < 0 means
// unbounded).
func (s *Store) LookupDescriptors(start, end uint16, uuid ble.UUID, offset, limit int) []Descriptor {
	var out []Descriptor
	skipped := 0
	for _, svc := range s.Services {
		for _, chr := range svc.Characteristics {
			for _, dsc := range chr.Descriptors {
				if dsc.Handle < start || dsc.Handle > end {
					continue
				}
				if !uuid.Zero() && !dsc.UUID.Equal(uuid) {
					continue
				}
				if skipped < offset {
					skipped++
					continue
				}
				out = append(out, dsc)
				if limit >= 0 && len(out) >= limit {
					return out
				}
			}
		}
	}
	return out
}

// DescriptorsByCharHandle enumerates descriptors of the characteristic
// whose ValHandle is chrHandle, optionally filtered by uuid, honouring
// offset/limit pagination (limit < 0 means unbounded).
func (s *Store) DescriptorsByCharHandle(chrHandle uint16, uuid ble.UUID, offset, limit int) []Descriptor {
	for _, svc := range s.Services {
		for _, chr := range svc.Characteristics {
			if chr.ValHandle != chrHandle {
				continue
			}
			var out []Descriptor
			skipped := 0
			for _, dsc := range chr.Descriptors {
				if !uuid.Zero() && !dsc.UUID.Equal(uuid) {
					continue
				}
				if skipped < offset {
					skipped++
					continue
				}
				out = append(out, dsc)
				if limit >= 0 && len(out) >= limit {
					return out
				}
			}
			return out
		}
	}
	return nil
}

// AttrRef is one attribute in a flattened range snapshot, tagged with its
// kind so a caller can tell a service declaration from the characteristic
// definitions and descriptors interleaved with it.
type AttrRef struct {
	Kind   AttrKind
	Handle uint16
	UUID   ble.UUID
}

// AttrsInRange enumerates every attribute whose handle falls within
// [start,end], in depth-first traversal order (which, for a well-formed
// database, is ascending handle order).
func (s *Store) AttrsInRange(start, end uint16) []AttrRef {
	var out []AttrRef
	in := func(h uint16) bool { return h >= start && h <= end }
	for _, svc := range s.Services {
		if in(svc.StartHandle) {
			out = append(out, AttrRef{Kind: KindService, Handle: svc.StartHandle, UUID: svc.UUID})
		}
		for _, inc := range svc.IncludedService {
			if in(inc.Handle) {
				out = append(out, AttrRef{Kind: KindIncludedService, Handle: inc.Handle, UUID: inc.UUID})
			}
		}
		for _, chr := range svc.Characteristics {
			if in(chr.DefHandle) {
				out = append(out, AttrRef{Kind: KindCharacteristic, Handle: chr.DefHandle, UUID: chr.UUID})
			}
			for _, dsc := range chr.Descriptors {
				if in(dsc.Handle) {
					out = append(out, AttrRef{Kind: KindDescriptor, Handle: dsc.Handle, UUID: dsc.UUID})
				}
			}
		}
	}
	return out
}

// SizeWithRange counts every attribute (service, included service,
// characteristic, descriptor) whose handle falls within [start,end].
func (s *Store) SizeWithRange(start, end uint16) int {
	n := 0
	for _, svc := range s.Services {
		if svc.StartHandle >= start && svc.StartHandle <= end {
			n++
		}
		for _, inc := range svc.IncludedService {
			if inc.Handle >= start && inc.Handle <= end {
				n++
			}
		}
		for _, chr := range svc.Characteristics {
			if chr.DefHandle >= start && chr.DefHandle <= end {
				n++
			}
			for _, dsc := range chr.Descriptors {
				if dsc.Handle >= start && dsc.Handle <= end {
					n++
				}
			}
		}
	}
	return n
}

// SizeWithKind counts attributes of one kind within [start,end]; for
// KindDescriptor, chrHandle narrows the count to one characteristic's
// descriptors.
func (s *Store) SizeWithKind(kind AttrKind, start, end, chrHandle uint16) int {
	n := 0
	switch kind {
	case KindService:
		for _, svc := range s.Services {
			if svc.StartHandle >= start && svc.StartHandle <= end {
				n++
			}
		}
	case KindIncludedService:
		for _, svc := range s.Services {
			for _, inc := range svc.IncludedService {
				if inc.Handle >= start && inc.Handle <= end {
					n++
				}
			}
		}
	case KindCharacteristic:
		for _, svc := range s.Services {
			for _, chr := range svc.Characteristics {
				if chr.DefHandle >= start && chr.DefHandle <= end {
					n++
				}
			}
		}
	case KindDescriptor:
		for _, svc := range s.Services {
			for _, chr := range svc.Characteristics {
				if chrHandle != 0 && chr.ValHandle != chrHandle {
					continue
				}
				for _, dsc := range chr.Descriptors {
					if dsc.Handle >= start && dsc.Handle <= end {
						n++
					}
				}
			}
		}
	}
	return n
}

// TotalAttrCount is the total number of attributes (services + included +
// characteristics + descriptors) in the store.
func (s *Store) TotalAttrCount() int {
	n := 0
	for _, svc := range s.Services {
		n++
		n += len(svc.IncludedService)
		n += len(svc.Characteristics)
		for _, chr := range svc.Characteristics {
			n += len(chr.Descriptors)
		}
	}
	return n
}

// SanityPass rewrites any service's EndHandle=0xFFFF (the peer had no
// successor service to bound it) to the handle of its last discovered
// attribute.
func (s *Store) SanityPass() {
	for i := range s.Services {
		svc := &s.Services[i]
		if svc.EndHandle != 0xFFFF {
			continue
		}
		if len(svc.Characteristics) == 0 {
			continue
		}
		last := &svc.Characteristics[len(svc.Characteristics)-1]
		if len(last.Descriptors) > 0 {
			svc.EndHandle = last.Descriptors[len(last.Descriptors)-1].Handle
		} else {
			svc.EndHandle = last.ValHandle
		}
	}
}
