package persist

import (
	"crypto/aes"
	"sync"

	"github.com/aead/cmac"
	"github.com/pkg/errors"

	"github.com/leso-kn/gattcache/attrstore"
	"github.com/leso-kn/gattcache/ble"
)

// ErrTampered means a stored record's CMAC tag didn't match its bytes —
// the record is discarded rather than handed back corrupted.
var ErrTampered = errors.New("persist: record failed integrity check")

// Backend is the persistence collaborator: load a
// peer's record on entry creation or bond restoration, save it on
// discovery completion, and reset it when the peer's identity is removed.
type Backend interface {
	Load(addr ble.Addr) (Record, bool, error)
	Save(addr ble.Addr, hash [16]byte, store *attrstore.Store) error
	Reset(addr ble.Addr) error
}

// BondKeyProvider hands back the LTK-derived key material a bonded peer's
// record is authenticated under. A real host already holds this from
// pairing; this module never performs key agreement itself.
type BondKeyProvider interface {
	BondKey(addr ble.Addr) (key [16]byte, ok bool)
}

// CMACBackend is an in-memory Backend that CMAC-tags every saved record
// under the peer's bond key before storing it, and verifies the tag on
// load, failing closed on a mismatch.
//
// It stands in for a flash- or file-backed bond store; a real deployment
// would swap the map for one without touching the tagging logic.
type CMACBackend struct {
	keys BondKeyProvider

	mu      sync.Mutex
	records map[ble.Addr]taggedRecord
}

type taggedRecord struct {
	data []byte
	tag  []byte
}

// NewCMACBackend constructs an empty CMACBackend keyed by keys.
func NewCMACBackend(keys BondKeyProvider) *CMACBackend {
	return &CMACBackend{keys: keys, records: make(map[ble.Addr]taggedRecord)}
}

// Save marshals store's current contents and CMAC-tags them under addr's
// bond key before storing. An unbonded peer (no key available) is stored
// untagged: caching works for unbonded peers too, just
// without the integrity check a bond provides.
func (b *CMACBackend) Save(addr ble.Addr, hash [16]byte, store *attrstore.Store) error {
	data := FromStore(addr, hash, store).Marshal()

	b.mu.Lock()
	defer b.mu.Unlock()

	tr := taggedRecord{data: data}
	if key, ok := b.keys.BondKey(addr); ok {
		tag, err := tagFor(key, data)
		if err != nil {
			return errors.Wrap(err, "persist: tag record")
		}
		tr.tag = tag
	}
	b.records[addr] = tr
	return nil
}

// Load returns the record for addr, verifying its CMAC tag first if one was
// stored and a bond key is still available. A tamper or key mismatch is
// ErrTampered, not a silent false; the caller treats it the same as "found
// nothing" but the error is preserved for logging.
func (b *CMACBackend) Load(addr ble.Addr) (Record, bool, error) {
	b.mu.Lock()
	tr, ok := b.records[addr]
	b.mu.Unlock()
	if !ok {
		return Record{}, false, nil
	}

	if tr.tag != nil {
		key, ok := b.keys.BondKey(addr)
		if !ok {
			return Record{}, false, ErrTampered
		}
		want, err := tagFor(key, tr.data)
		if err != nil {
			return Record{}, false, errors.Wrap(err, "persist: compute tag")
		}
		if !constantTimeEqual(want, tr.tag) {
			return Record{}, false, ErrTampered
		}
	}

	rec, err := Unmarshal(tr.data)
	if err != nil {
		return Record{}, false, errors.Wrap(err, "persist: unmarshal record")
	}
	return rec, true, nil
}

// Reset discards addr's stored record, if any.
func (b *CMACBackend) Reset(addr ble.Addr) error {
	b.mu.Lock()
	delete(b.records, addr)
	b.mu.Unlock()
	return nil
}

func tagFor(key [16]byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cmac.Sum(data, block, 16)
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
