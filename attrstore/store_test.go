package attrstore

import (
	"testing"

	"github.com/leso-kn/gattcache/ble"
	"github.com/stretchr/testify/require"
)

func TestInsertServiceOrderingAndIdempotence(t *testing.T) {
	s := New(Unbounded)

	dup, err := s.InsertService(Primary, Service{StartHandle: 0x0010, EndHandle: 0x0020, UUID: ble.UUID16(0x1801)})
	require.NoError(t, err)
	require.False(t, dup)

	dup, err = s.InsertService(Primary, Service{StartHandle: 0x0001, EndHandle: 0x000F, UUID: ble.UUID16(0x1800)})
	require.NoError(t, err)
	require.False(t, dup)

	require.Len(t, s.Services, 2)
	require.Equal(t, uint16(0x0001), s.Services[0].StartHandle)
	require.Equal(t, uint16(0x0010), s.Services[1].StartHandle)

	before := s.Services[0]
	dup, err = s.InsertService(Primary, Service{StartHandle: 0x0001, EndHandle: 0x000F, UUID: ble.UUID16(0x1800)})
	require.NoError(t, err)
	require.True(t, dup)
	require.Equal(t, before, s.Services[0])
	require.Len(t, s.Services, 2)
}

func TestInsertCharacteristicParentMissing(t *testing.T) {
	s := New(Unbounded)
	_, err := s.InsertCharacteristic(0, Characteristic{DefHandle: 3, ValHandle: 4, UUID: ble.UUID16(0x2A00)})
	require.ErrorIs(t, err, ErrParentMissing)
}

func TestInsertCharacteristicByRangeContainment(t *testing.T) {
	s := New(Unbounded)
	_, _ = s.InsertService(Primary, Service{StartHandle: 1, EndHandle: 9, UUID: ble.UUID16(0x1800)})

	dup, err := s.InsertCharacteristic(0, Characteristic{DefHandle: 3, ValHandle: 4, UUID: ble.UUID16(0x2A00)})
	require.NoError(t, err)
	require.False(t, dup)

	dup, err = s.InsertCharacteristic(0, Characteristic{DefHandle: 5, ValHandle: 6, UUID: ble.UUID16(0x2A01)})
	require.NoError(t, err)
	require.False(t, dup)

	require.Len(t, s.Services[0].Characteristics, 2)
	require.Equal(t, uint16(4), s.Services[0].Characteristics[0].ValHandle)
	require.Equal(t, uint16(6), s.Services[0].Characteristics[1].ValHandle)
}

func TestCharEndHandleComputed(t *testing.T) {
	s := New(Unbounded)
	_, _ = s.InsertService(Primary, Service{StartHandle: 1, EndHandle: 9, UUID: ble.UUID16(0x1800)})
	_, _ = s.InsertCharacteristic(0, Characteristic{DefHandle: 3, ValHandle: 4, UUID: ble.UUID16(0x2A00)})
	_, _ = s.InsertCharacteristic(0, Characteristic{DefHandle: 5, ValHandle: 6, UUID: ble.UUID16(0x2A01)})

	svc := &s.Services[0]
	require.Equal(t, uint16(4), svc.CharEndHandle(0))
	require.Equal(t, uint16(9), svc.CharEndHandle(1))
}

func TestInsertDescriptorByWatermarkAndRange(t *testing.T) {
	s := New(Unbounded)
	_, _ = s.InsertService(Primary, Service{StartHandle: 1, EndHandle: 9, UUID: ble.UUID16(0x1800)})
	_, _ = s.InsertCharacteristic(0, Characteristic{DefHandle: 3, ValHandle: 4, UUID: ble.UUID16(0x2A00)})
	_, _ = s.InsertCharacteristic(0, Characteristic{DefHandle: 5, ValHandle: 6, UUID: ble.UUID16(0x2A01)})

	dup, err := s.InsertDescriptor(0, Descriptor{Handle: 7, UUID: ble.ClientCharacteristicConfigUUID})
	require.NoError(t, err)
	require.False(t, dup)

	require.Len(t, s.Services[0].Characteristics[1].Descriptors, 1)
	require.Len(t, s.Services[0].Characteristics[0].Descriptors, 0)

	dup, err = s.InsertDescriptor(0, Descriptor{Handle: 7, UUID: ble.ClientCharacteristicConfigUUID})
	require.NoError(t, err)
	require.True(t, dup)
}

func TestInsertDescriptorParentMissing(t *testing.T) {
	s := New(Unbounded)
	_, err := s.InsertDescriptor(0, Descriptor{Handle: 7, UUID: ble.ClientCharacteristicConfigUUID})
	require.ErrorIs(t, err, ErrParentMissing)
}

func TestOutOfMemory(t *testing.T) {
	s := New(Limits{MaxServices: 1, MaxIncludedServices: -1, MaxCharacteristics: -1, MaxDescriptors: -1})
	_, err := s.InsertService(Primary, Service{StartHandle: 1, EndHandle: 9})
	require.NoError(t, err)
	_, err = s.InsertService(Primary, Service{StartHandle: 10, EndHandle: 19})
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestSanityPassRewritesOpenEndedService(t *testing.T) {
	s := New(Unbounded)
	_, _ = s.InsertService(Primary, Service{StartHandle: 1, EndHandle: 0xFFFF, UUID: ble.UUID16(0x1800)})
	_, _ = s.InsertCharacteristic(0, Characteristic{DefHandle: 3, ValHandle: 4, UUID: ble.UUID16(0x2A00)})
	_, _ = s.InsertDescriptor(0, Descriptor{Handle: 5, UUID: ble.ClientCharacteristicConfigUUID})

	s.SanityPass()
	require.Equal(t, uint16(5), s.Services[0].EndHandle)
}

func TestSanityPassLeavesEmptyServiceAlone(t *testing.T) {
	s := New(Unbounded)
	_, _ = s.InsertService(Primary, Service{StartHandle: 1, EndHandle: 0xFFFF, UUID: ble.UUID16(0x1800)})
	s.SanityPass()
	require.Equal(t, uint16(0xFFFF), s.Services[0].EndHandle)
}

func TestSizeWithRangeMatchesTotalAttrCount(t *testing.T) {
	s := New(Unbounded)
	_, _ = s.InsertService(Primary, Service{StartHandle: 1, EndHandle: 9, UUID: ble.UUID16(0x1800)})
	_, _ = s.InsertCharacteristic(0, Characteristic{DefHandle: 3, ValHandle: 4, UUID: ble.UUID16(0x2A00)})
	_, _ = s.InsertDescriptor(0, Descriptor{Handle: 5, UUID: ble.ClientCharacteristicConfigUUID})

	require.Equal(t, s.TotalAttrCount(), s.SizeWithRange(0x0001, 0xFFFF))
}

func TestAttrsInRangeOrderAndBounds(t *testing.T) {
	s := New(Unbounded)
	_, _ = s.InsertService(Primary, Service{StartHandle: 1, EndHandle: 9, UUID: ble.UUID16(0x1800)})
	_, _ = s.InsertCharacteristic(0, Characteristic{DefHandle: 3, ValHandle: 4, UUID: ble.UUID16(0x2A00)})
	_, _ = s.InsertDescriptor(0, Descriptor{Handle: 5, UUID: ble.ClientCharacteristicConfigUUID})

	all := s.AttrsInRange(0x0001, 0xFFFF)
	require.Len(t, all, 3)
	require.Equal(t, KindService, all[0].Kind)
	require.Equal(t, KindCharacteristic, all[1].Kind)
	require.Equal(t, KindDescriptor, all[2].Kind)
	require.Equal(t, s.SizeWithRange(0x0001, 0xFFFF), len(all))

	narrowed := s.AttrsInRange(4, 5)
	require.Len(t, narrowed, 1)
	require.Equal(t, uint16(5), narrowed[0].Handle)
}

func TestLookupPagination(t *testing.T) {
	s := New(Unbounded)
	_, _ = s.InsertService(Primary, Service{StartHandle: 1, EndHandle: 20, UUID: ble.UUID16(0x1800)})
	_, _ = s.InsertCharacteristic(0, Characteristic{DefHandle: 3, ValHandle: 4, UUID: ble.UUID16(0x2A00)})
	_, _ = s.InsertCharacteristic(0, Characteristic{DefHandle: 5, ValHandle: 6, UUID: ble.UUID16(0x2A01)})
	_, _ = s.InsertCharacteristic(0, Characteristic{DefHandle: 7, ValHandle: 8, UUID: ble.UUID16(0x2A02)})
	_, _ = s.InsertDescriptor(0, Descriptor{Handle: 9, UUID: ble.ClientCharacteristicConfigUUID})
	_, _ = s.InsertDescriptor(0, Descriptor{Handle: 10, UUID: ble.UUID16(0x2901)})

	page := s.LookupCharacteristics(0x0001, 0xFFFF, ble.UUID{}, 1, 1)
	require.Len(t, page, 1)
	require.Equal(t, uint16(6), page[0].ValHandle)

	require.Empty(t, s.LookupCharacteristics(0x0001, 0xFFFF, ble.UUID{}, 3, -1))

	dscs := s.LookupDescriptors(0x0001, 0xFFFF, ble.UUID{}, 1, -1)
	require.Len(t, dscs, 1)
	require.Equal(t, uint16(10), dscs[0].Handle)

	byChr := s.DescriptorsByCharHandle(8, ble.UUID{}, 0, 1)
	require.Len(t, byChr, 1)
	require.Equal(t, uint16(9), byChr[0].Handle)
}
