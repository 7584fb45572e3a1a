package remote

import (
	"sort"
	"sync"

	"github.com/leso-kn/gattcache/ble"
)

// Simulated is an in-memory Transport standing in for a real ATT/GATT wire
// connection, since there is nothing to talk to over a socket here. Each
// discovery method reports the attributes registered through AddService/
// AddIncluded/AddCharacteristic/AddDescriptor for the requested service or
// characteristic, under the callback-per-result-then-Done contract the core
// requires, with its callbacks run
// on their own goroutine so a caller can never observe a completion before
// the call that triggered it returns.
type Simulated struct {
	mu    sync.Mutex
	peers map[uint16]*simPeer
}

type simPeer struct {
	svcs     []GattSvc
	incl     map[uint16][]GattInclSvc // keyed by containing service's StartHandle
	chrs     map[uint16][]GattChr     // keyed by owning service's StartHandle
	dscs     map[uint16][]GattDsc     // keyed by owning characteristic's ValHandle
	readVals map[uint16][]byte        // handle -> value, for Read/ReadByUUID
}

// NewSimulated returns an empty simulated transport.
func NewSimulated() *Simulated {
	return &Simulated{peers: make(map[uint16]*simPeer)}
}

func (s *Simulated) peer(conn uint16) *simPeer {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[conn]
	if !ok {
		p = &simPeer{
			incl:     make(map[uint16][]GattInclSvc),
			chrs:     make(map[uint16][]GattChr),
			dscs:     make(map[uint16][]GattDsc),
			readVals: make(map[uint16][]byte),
		}
		s.peers[conn] = p
	}
	return p
}

// AddService registers a primary/secondary service on conn's simulated
// peer database.
func (s *Simulated) AddService(conn uint16, svc GattSvc) {
	p := s.peer(conn)
	s.mu.Lock()
	defer s.mu.Unlock()
	p.svcs = append(p.svcs, svc)
	sort.Slice(p.svcs, func(i, j int) bool { return p.svcs[i].StartHandle < p.svcs[j].StartHandle })
}

// AddIncluded registers an included-service reference under the service
// starting at svcStart.
func (s *Simulated) AddIncluded(conn uint16, svcStart uint16, incl GattInclSvc) {
	p := s.peer(conn)
	s.mu.Lock()
	defer s.mu.Unlock()
	p.incl[svcStart] = append(p.incl[svcStart], incl)
}

// AddCharacteristic registers a characteristic under the service starting
// at svcStart.
func (s *Simulated) AddCharacteristic(conn uint16, svcStart uint16, chr GattChr) {
	p := s.peer(conn)
	s.mu.Lock()
	defer s.mu.Unlock()
	p.chrs[svcStart] = append(p.chrs[svcStart], chr)
	sort.Slice(p.chrs[svcStart], func(i, j int) bool { return p.chrs[svcStart][i].ValHandle < p.chrs[svcStart][j].ValHandle })
}

// AddDescriptor registers a descriptor under the characteristic whose value
// handle is chrValHandle.
func (s *Simulated) AddDescriptor(conn uint16, chrValHandle uint16, dsc GattDsc) {
	p := s.peer(conn)
	s.mu.Lock()
	defer s.mu.Unlock()
	p.dscs[chrValHandle] = append(p.dscs[chrValHandle], dsc)
	sort.Slice(p.dscs[chrValHandle], func(i, j int) bool { return p.dscs[chrValHandle][i].Handle < p.dscs[chrValHandle][j].Handle })
}

// SetReadValue fixes the value Read/ReadByUUID returns for handle, e.g. the
// Database Hash characteristic's current value.
func (s *Simulated) SetReadValue(conn uint16, handle uint16, value []byte) {
	p := s.peer(conn)
	s.mu.Lock()
	defer s.mu.Unlock()
	p.readVals[handle] = value
}

func (s *Simulated) DiscAllSvcs(conn uint16, cb func(svc GattSvc, err error)) {
	p := s.peer(conn)
	go func() {
		s.mu.Lock()
		svcs := append([]GattSvc(nil), p.svcs...)
		s.mu.Unlock()
		for _, svc := range svcs {
			cb(svc, nil)
		}
		cb(GattSvc{}, ErrDone)
	}()
}

func (s *Simulated) FindIncSvcs(conn uint16, svcStart, svcEnd uint16, cb func(incl GattInclSvc, err error)) {
	p := s.peer(conn)
	go func() {
		s.mu.Lock()
		incl := append([]GattInclSvc(nil), p.incl[svcStart]...)
		s.mu.Unlock()
		for _, inc := range incl {
			cb(inc, nil)
		}
		cb(GattInclSvc{}, ErrDone)
	}()
}

func (s *Simulated) DiscAllChrs(conn uint16, svcStart, svcEnd uint16, cb func(chr GattChr, err error)) {
	p := s.peer(conn)
	go func() {
		s.mu.Lock()
		chrs := append([]GattChr(nil), p.chrs[svcStart]...)
		s.mu.Unlock()
		for _, chr := range chrs {
			if chr.ValHandle < svcStart || chr.ValHandle > svcEnd {
				continue
			}
			cb(chr, nil)
		}
		cb(GattChr{}, ErrDone)
	}()
}

func (s *Simulated) DiscAllDscs(conn uint16, chrValHandle, chrEnd uint16, cb func(dsc GattDsc, err error)) {
	p := s.peer(conn)
	go func() {
		s.mu.Lock()
		dscs := append([]GattDsc(nil), p.dscs[chrValHandle]...)
		s.mu.Unlock()
		for _, dsc := range dscs {
			if dsc.Handle <= chrValHandle || dsc.Handle > chrEnd {
				continue
			}
			cb(dsc, nil)
		}
		cb(GattDsc{}, ErrDone)
	}()
}

func (s *Simulated) ReadByUUID(conn uint16, start, end uint16, uuid ble.UUID, cb func(data []byte, err error)) {
	p := s.peer(conn)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// The simulated peer's only read-by-uuid client is the Database
		// Hash verifier, so locate the characteristic by UUID across all
		// services and return its fixed value.
		for _, chrs := range p.chrs {
			for _, chr := range chrs {
				if chr.ValHandle < start || chr.ValHandle > end {
					continue
				}
				if !chr.UUID.Equal(uuid) {
					continue
				}
				if v, ok := p.readVals[chr.ValHandle]; ok {
					cb(v, nil)
					return
				}
			}
		}
		cb(nil, ble.ErrAttrNotFound)
	}()
}

func (s *Simulated) Read(conn uint16, handle uint16, cb func(data []byte, err error)) {
	p := s.peer(conn)
	go func() {
		s.mu.Lock()
		v, ok := p.readVals[handle]
		s.mu.Unlock()
		if !ok {
			cb(nil, ble.ErrAttrNotFound)
			return
		}
		cb(v, nil)
	}()
}
