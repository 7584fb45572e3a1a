package persist

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leso-kn/gattcache/attrstore"
	"github.com/leso-kn/gattcache/ble"
)

type fixedKeyProvider struct {
	key [16]byte
	has bool
}

func (f fixedKeyProvider) BondKey(addr ble.Addr) ([16]byte, bool) { return f.key, f.has }

func TestCMACBackendRoundTrip(t *testing.T) {
	keys := fixedKeyProvider{key: [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, has: true}
	b := NewCMACBackend(keys)

	addr := ble.Addr{Bytes: [6]byte{1, 1, 1, 1, 1, 1}}
	store := attrstore.New(attrstore.Unbounded)
	_, err := store.InsertService(attrstore.Primary, attrstore.Service{StartHandle: 1, EndHandle: 9, UUID: ble.UUID16(0x1800)})
	require.NoError(t, err)
	hash := [16]byte{9, 9, 9}

	require.NoError(t, b.Save(addr, hash, store))

	got, ok, err := b.Load(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, got.DatabaseHash)
	require.Len(t, got.Attrs, 1)
}

func TestCMACBackendDetectsTamper(t *testing.T) {
	keys := fixedKeyProvider{key: [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, has: true}
	b := NewCMACBackend(keys)

	addr := ble.Addr{Bytes: [6]byte{2, 2, 2, 2, 2, 2}}
	store := attrstore.New(attrstore.Unbounded)
	_, err := store.InsertService(attrstore.Primary, attrstore.Service{StartHandle: 1, EndHandle: 9, UUID: ble.UUID16(0x1800)})
	require.NoError(t, err)
	require.NoError(t, b.Save(addr, [16]byte{}, store))

	tr := b.records[addr]
	tr.data[0] ^= 0xFF
	b.records[addr] = tr

	_, ok, err := b.Load(addr)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrTampered)
}

func TestCMACBackendMissingReturnsNotFound(t *testing.T) {
	b := NewCMACBackend(fixedKeyProvider{})
	_, ok, err := b.Load(ble.Addr{Bytes: [6]byte{3, 3, 3, 3, 3, 3}})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCMACBackendUnbondedSavesUntagged(t *testing.T) {
	b := NewCMACBackend(fixedKeyProvider{has: false})
	addr := ble.Addr{Bytes: [6]byte{4, 4, 4, 4, 4, 4}}
	store := attrstore.New(attrstore.Unbounded)
	require.NoError(t, b.Save(addr, [16]byte{}, store))

	got, ok, err := b.Load(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, got.Attrs)
}

func TestCMACBackendReset(t *testing.T) {
	b := NewCMACBackend(fixedKeyProvider{has: true, key: [16]byte{1}})
	addr := ble.Addr{Bytes: [6]byte{5, 5, 5, 5, 5, 5}}
	store := attrstore.New(attrstore.Unbounded)
	require.NoError(t, b.Save(addr, [16]byte{}, store))

	require.NoError(t, b.Reset(addr))
	_, ok, err := b.Load(addr)
	require.NoError(t, err)
	require.False(t, ok)
}
