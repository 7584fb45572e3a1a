package cache

import "github.com/leso-kn/gattcache/remote"
import "github.com/leso-kn/gattcache/ble"

// fakeTransport is a synchronous, single-goroutine remote.Transport fake:
// every callback fires inline rather than on its own goroutine, so tests
// can single-step the Discovery Driver deterministically by draining a
// testQueue between assertions instead of racing a background goroutine.
type fakeTransport struct {
	svcs []remote.GattSvc
	incl map[uint16][]remote.GattInclSvc
	chrs map[uint16][]remote.GattChr
	dscs map[uint16][]remote.GattDsc

	hashVal []byte
	hashErr error

	// per-phase error injection: when set, the phase delivers the error
	// instead of its fixtures.
	svcErr  error
	inclErr error
	chrErr  error
	dscErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		incl: make(map[uint16][]remote.GattInclSvc),
		chrs: make(map[uint16][]remote.GattChr),
		dscs: make(map[uint16][]remote.GattDsc),
	}
}

func (f *fakeTransport) DiscAllSvcs(conn uint16, cb func(svc remote.GattSvc, err error)) {
	if f.svcErr != nil {
		cb(remote.GattSvc{}, f.svcErr)
		return
	}
	for _, s := range f.svcs {
		cb(s, nil)
	}
	cb(remote.GattSvc{}, remote.ErrDone)
}

func (f *fakeTransport) FindIncSvcs(conn uint16, svcStart, svcEnd uint16, cb func(incl remote.GattInclSvc, err error)) {
	if f.inclErr != nil {
		cb(remote.GattInclSvc{}, f.inclErr)
		return
	}
	for _, in := range f.incl[svcStart] {
		cb(in, nil)
	}
	cb(remote.GattInclSvc{}, remote.ErrDone)
}

func (f *fakeTransport) DiscAllChrs(conn uint16, svcStart, svcEnd uint16, cb func(chr remote.GattChr, err error)) {
	if f.chrErr != nil {
		cb(remote.GattChr{}, f.chrErr)
		return
	}
	for _, c := range f.chrs[svcStart] {
		cb(c, nil)
	}
	cb(remote.GattChr{}, remote.ErrDone)
}

func (f *fakeTransport) DiscAllDscs(conn uint16, chrValHandle, chrEnd uint16, cb func(dsc remote.GattDsc, err error)) {
	if f.dscErr != nil {
		cb(remote.GattDsc{}, f.dscErr)
		return
	}
	for _, d := range f.dscs[chrValHandle] {
		cb(d, nil)
	}
	cb(remote.GattDsc{}, remote.ErrDone)
}

func (f *fakeTransport) ReadByUUID(conn uint16, start, end uint16, uuid ble.UUID, cb func(data []byte, err error)) {
	cb(f.hashVal, f.hashErr)
}

func (f *fakeTransport) Read(conn uint16, handle uint16, cb func(data []byte, err error)) {
	for _, chrs := range f.chrs {
		for _, c := range chrs {
			if c.ValHandle == handle {
				cb(f.hashVal, f.hashErr)
				return
			}
		}
	}
	cb(nil, ble.ErrAttrNotFound)
}

// testQueue collects deferred events without running them, so a test can
// advance the state machine one peer transaction at a time.
type testQueue struct {
	fns []func()
}

func (q *testQueue) Enqueue(fn func()) { q.fns = append(q.fns, fn) }

// Drain runs every currently queued event, including ones newly enqueued by
// events it runs, until the queue is empty.
func (q *testQueue) Drain() {
	for len(q.fns) > 0 {
		fn := q.fns[0]
		q.fns = q.fns[1:]
		fn()
	}
}

type testConnRegistry struct {
	addr   ble.Addr
	bonded bool
}

func (r testConnRegistry) IdentityAddress(conn uint16) (ble.Addr, bool) { return r.addr, true }
func (r testConnRegistry) Bonded(conn uint16) bool                      { return r.bonded }

type noKeyProvider struct{}

func (noKeyProvider) BondKey(addr ble.Addr) ([16]byte, bool) { return [16]byte{}, false }
