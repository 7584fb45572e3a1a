package persist

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leso-kn/gattcache/attrstore"
	"github.com/leso-kn/gattcache/ble"
)

func buildStore(t *testing.T) *attrstore.Store {
	t.Helper()
	s := attrstore.New(attrstore.Unbounded)
	_, err := s.InsertService(attrstore.Primary, attrstore.Service{StartHandle: 1, EndHandle: 9, UUID: ble.UUID16(0x1800)})
	require.NoError(t, err)
	_, err = s.InsertCharacteristic(1, attrstore.Characteristic{DefHandle: 3, ValHandle: 4, Properties: 0x02, UUID: ble.UUID16(0x2A00)})
	require.NoError(t, err)
	_, err = s.InsertCharacteristic(1, attrstore.Characteristic{DefHandle: 5, ValHandle: 6, Properties: 0x02, UUID: ble.UUID16(0x2A01)})
	require.NoError(t, err)
	_, err = s.InsertDescriptor(6, attrstore.Descriptor{Handle: 7, UUID: ble.ClientCharacteristicConfigUUID})
	require.NoError(t, err)
	return s
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	s := buildStore(t)
	addr := ble.Addr{Type: ble.AddrTypePublic, Bytes: [6]byte{6, 5, 4, 3, 2, 1}}
	hash := [16]byte{0xAA, 0xBB}

	rec := FromStore(addr, hash, s)
	require.Len(t, rec.Attrs, 4)

	data := rec.Marshal()
	got, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, addr, got.Addr)
	require.Equal(t, hash, got.DatabaseHash)
	require.Equal(t, rec.Attrs, got.Attrs)
}

func TestReplayReconstructsStore(t *testing.T) {
	s := buildStore(t)
	addr := ble.Addr{Bytes: [6]byte{1, 2, 3, 4, 5, 6}}
	rec := FromStore(addr, [16]byte{}, s)

	out := attrstore.New(attrstore.Unbounded)
	require.NoError(t, rec.Replay(out))

	require.Len(t, out.Services, 1)
	require.Equal(t, s.Services[0].StartHandle, out.Services[0].StartHandle)
	require.Len(t, out.Services[0].Characteristics, 2)
	require.Len(t, out.Services[0].Characteristics[1].Descriptors, 1)
	require.Equal(t, s.TotalAttrCount(), out.TotalAttrCount())
}

func TestReplayRejectsOrphanedCharacteristic(t *testing.T) {
	rec := Record{Attrs: []AttrRecord{
		{Type: AttrCharacteristic, StartHandle: 3, UUID: ble.UUID16(0x2A00)},
	}}
	out := attrstore.New(attrstore.Unbounded)
	err := rec.Replay(out)
	require.ErrorIs(t, err, attrstore.ErrParentMissing)
}

func TestUnmarshalTruncated(t *testing.T) {
	_, err := Unmarshal([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestUnmarshalRejectsUnknownAttrType(t *testing.T) {
	s := buildStore(t)
	rec := FromStore(ble.Addr{}, [16]byte{}, s)
	data := rec.Marshal()
	// Corrupt the first attribute's type byte (offset 36+4) to an
	// out-of-range value.
	data[36+4] = 0xFF
	_, err := Unmarshal(data)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestCharacteristicRecordKeepsEndHandleZero(t *testing.T) {
	s := buildStore(t)
	rec := FromStore(ble.Addr{}, [16]byte{}, s)
	for _, a := range rec.Attrs {
		if a.Type == AttrCharacteristic {
			require.Zero(t, a.EndHandle)
		}
	}

	// The value handle comes back as def_handle+1, the slot the value
	// declaration always occupies.
	out := attrstore.New(attrstore.Unbounded)
	require.NoError(t, rec.Replay(out))
	require.Equal(t, uint16(4), out.Services[0].Characteristics[0].ValHandle)
	require.Equal(t, uint16(6), out.Services[0].Characteristics[1].ValHandle)
}
