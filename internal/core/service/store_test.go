package service

import (
	"testing"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreReplacesWholeReading(t *testing.T) {

	require := require.New(t)

	store := NewDeviceStore()

	first := domain.InverterReading{
		DeviceId:   "inverter1",
		BatterySoC: domain.Float(60),
		LoadPower:  domain.Float(500),
	}
	store.SetReading(first)

	// the second record has no load power: the field must read as absent,
	// not retain the old value
	second := domain.InverterReading{
		DeviceId:   "inverter1",
		BatterySoC: domain.Float(59),
	}
	store.SetReading(second)

	got, ok := store.Reading("inverter1")
	require.True(ok)
	assert.Equal(t, 59.0, *got.BatterySoC)
	assert.Nil(t, got.LoadPower)
}

func TestStoreUnknownDevice(t *testing.T) {

	store := NewDeviceStore()
	_, ok := store.Reading("nope")
	assert.False(t, ok)
	_, ok = store.Cells("nope")
	assert.False(t, ok)
}

func TestStoreDeviceIdsSorted(t *testing.T) {

	store := NewDeviceStore()
	store.SetReading(domain.InverterReading{DeviceId: "zeta"})
	store.SetReading(domain.InverterReading{DeviceId: "alpha"})
	store.SetCells(domain.CellReading{DeviceId: "mid", Timestamp: time.Now()})

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, store.DeviceIds())
}
