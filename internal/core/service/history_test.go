package service

import (
	"testing"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAppendAndSeries(t *testing.T) {

	require := require.New(t)

	store := NewHistoryStore()
	at := time.Date(2026, 8, 20, 12, 0, 0, 0, time.Local)

	reading := domain.InverterReading{
		DeviceId:     "inverter1",
		PVTotalPower: domain.Float(1500),
		BatterySoC:   domain.Float(80),
	}
	store.Append("inverter1", Sample(reading, at))
	store.Append("inverter1", Sample(reading, at.Add(5*time.Minute)))

	points, ok := store.Series("inverter1", domain.DayKeyFor(at))
	require.True(ok)
	require.Len(points, 2)
	assert.Equal(t, 1500.0, *points[0].PVPower)
	assert.Equal(t, 80.0, *points[0].BatterySoC)
	assert.Nil(t, points[0].GridPower)

	// unknown day and unknown device are both "not collected"
	_, ok = store.Series("inverter1", domain.DayKey("2000-01-01"))
	assert.False(t, ok)
	_, ok = store.Series("other", domain.DayKeyFor(at))
	assert.False(t, ok)
}

func TestHistoryRetention(t *testing.T) {

	require := require.New(t)

	store := NewHistoryStore()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.Local)
	store.now = func() time.Time { return now }

	reading := domain.InverterReading{DeviceId: "inverter1", LoadPower: domain.Float(400)}

	// one sample per day for the last 9 days
	for i := 0; i < 9; i++ {
		store.Append("inverter1", Sample(reading, now.AddDate(0, 0, -i)))
	}
	store.Purge(7)

	days := store.KnownDays("inverter1")
	require.Len(days, 8)

	// day 8 ago is gone, the cutoff day itself is kept
	_, ok := store.Series("inverter1", domain.DayKeyFor(now.AddDate(0, 0, -8)))
	assert.False(t, ok)
	_, ok = store.Series("inverter1", domain.DayKeyFor(now.AddDate(0, 0, -7)))
	assert.True(t, ok)
	_, ok = store.Series("inverter1", domain.DayKeyFor(now))
	assert.True(t, ok)
}

func TestHistoryKnownDaysSorted(t *testing.T) {

	store := NewHistoryStore()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.Local)
	reading := domain.InverterReading{DeviceId: "inverter1", LoadPower: domain.Float(10)}

	store.Append("inverter1", Sample(reading, now))
	store.Append("inverter1", Sample(reading, now.AddDate(0, 0, -2)))
	store.Append("inverter1", Sample(reading, now.AddDate(0, 0, -1)))

	days := store.KnownDays("inverter1")
	assert.Equal(t, []domain.DayKey{
		domain.DayKeyFor(now.AddDate(0, 0, -2)),
		domain.DayKeyFor(now.AddDate(0, 0, -1)),
		domain.DayKeyFor(now),
	}, days)
}

func TestSampleLeavesAbsentFieldsNil(t *testing.T) {

	at := time.Now()
	p := Sample(domain.InverterReading{DeviceId: "inverter1", GridPower: domain.Float(0)}, at)

	assert.Equal(t, 0.0, *p.GridPower)
	assert.Nil(t, p.PVPower)
	assert.Nil(t, p.BatterySoC)
	assert.Nil(t, p.LoadPower)
	assert.Equal(t, at, p.Timestamp)
}
