package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leso-kn/gattcache/attrstore"
	"github.com/leso-kn/gattcache/ble"
	"github.com/leso-kn/gattcache/persist"
)

func TestRegistryCreateFindDestroy(t *testing.T) {
	r := NewRegistry(2, attrstore.Unbounded, nil, ble.NopLogger())
	addr := testAddr(1)

	e, err := r.Create(0, addr)
	require.NoError(t, err)
	require.Equal(t, Invalid, e.State)

	found, ok := r.FindByHandle(0)
	require.True(t, ok)
	require.Same(t, e, found)

	found, ok = r.FindByAddress(addr)
	require.True(t, ok)
	require.Same(t, e, found)

	r.DestroyByHandle(0)
	_, ok = r.FindByHandle(0)
	require.False(t, ok)
	_, ok = r.FindByAddress(addr)
	require.False(t, ok)
}

func TestRegistryCreateRejectsDuplicateAndOverCapacity(t *testing.T) {
	r := NewRegistry(1, attrstore.Unbounded, nil, ble.NopLogger())
	_, err := r.Create(0, testAddr(1))
	require.NoError(t, err)

	_, err = r.Create(0, testAddr(2))
	require.ErrorIs(t, err, ErrExists)

	_, err = r.Create(1, testAddr(2))
	require.ErrorIs(t, err, ErrOutOfCapacity)
}

func TestRegistryBondingEstablishedReindexesAddress(t *testing.T) {
	r := NewRegistry(4, attrstore.Unbounded, nil, ble.NopLogger())
	rpa := testAddr(0xAA)
	identity := testAddr(0xBB)

	_, err := r.Create(0, rpa)
	require.NoError(t, err)

	require.NoError(t, r.BondingEstablished(0, identity))

	_, ok := r.FindByAddress(rpa)
	require.False(t, ok)
	e, ok := r.FindByAddress(identity)
	require.True(t, ok)
	require.True(t, e.Addr.Equal(identity))
}

func TestRegistryBondingRestoredLoadedTransitionsToVerified(t *testing.T) {
	addr := testAddr(7)
	backend := persist.NewCMACBackend(noKeyProvider{})
	seed := attrstore.New(attrstore.Unbounded)
	require.NoError(t, backend.Save(addr, [16]byte{}, seed))

	r := NewRegistry(4, attrstore.Unbounded, backend, ble.NopLogger())
	e, err := r.Create(0, addr)
	require.NoError(t, err)
	require.Equal(t, Loaded, e.State)

	require.NoError(t, r.BondingRestored(0, addr))
	require.Equal(t, Verified, e.State)
}

func TestRegistryBondingRestoredLoadsWhileInvalid(t *testing.T) {
	addr := testAddr(8)
	backend := persist.NewCMACBackend(noKeyProvider{})
	seed := attrstore.New(attrstore.Unbounded)
	require.NoError(t, backend.Save(addr, [16]byte{0x01}, seed))

	r := NewRegistry(4, attrstore.Unbounded, nil, ble.NopLogger())
	e, err := r.Create(0, addr) // no backend at Create time: stays INVALID
	require.NoError(t, err)
	require.Equal(t, Invalid, e.State)

	r.backend = backend
	require.NoError(t, r.BondingRestored(0, addr))
	require.Equal(t, Verified, e.State)
	require.Equal(t, [16]byte{0x01}, e.DatabaseHash)
}
