package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellStatsIgnoresSilentCells(t *testing.T) {

	reading := CellReading{
		DeviceId:  "inverter1",
		Timestamp: time.Now(),
		Cells: []CellVoltage{
			{Name: "cell_01", Voltage: 3.30},
			{Name: "cell_02", Voltage: 0},
			{Name: "cell_03", Voltage: 3.28},
			{Name: "cell_04", Voltage: 3.31},
		},
	}

	stats := reading.Stats()

	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 3.2966, stats.Average, 0.001)
	assert.Equal(t, 3.28, stats.Min)
	assert.Equal(t, 3.31, stats.Max)
	assert.InDelta(t, 0.03, stats.Spread, 0.0001)
	assert.Equal(t, []string{"cell_02"}, stats.Silent)
}

func TestCellStatsAllSilent(t *testing.T) {

	reading := CellReading{
		Cells: []CellVoltage{
			{Name: "cell_01", Voltage: 0},
			{Name: "cell_02", Voltage: 0},
		},
	}

	stats := reading.Stats()

	assert.Equal(t, 0, stats.Count)
	assert.Equal(t, float64(0), stats.Average)
	assert.Len(t, stats.Silent, 2)
}

func TestDayKeyRoundTrip(t *testing.T) {

	require := require.New(t)

	at := time.Date(2026, 3, 9, 23, 45, 0, 0, time.Local)
	key := DayKeyFor(at)
	require.Equal(DayKey("2026-03-09"), key)

	parsed, err := ParseDayKey("2026-03-09")
	require.NoError(err)
	require.Equal(key, parsed)

	_, err = ParseDayKey("09/03/2026")
	require.Error(err)
}

func TestDayKeyUsesLocalWallClock(t *testing.T) {

	// a minute before and after local midnight land in different buckets
	before := time.Date(2026, 3, 9, 23, 59, 0, 0, time.Local)
	after := time.Date(2026, 3, 10, 0, 1, 0, 0, time.Local)

	assert.NotEqual(t, DayKeyFor(before), DayKeyFor(after))
}

func TestStatusFromPower(t *testing.T) {

	assert.Equal(t, BatteryStatusCharging, BatteryStatusFromPower(-500))
	assert.Equal(t, BatteryStatusDischarging, BatteryStatusFromPower(500))
	assert.Equal(t, BatteryStatusIdle, BatteryStatusFromPower(0))

	assert.Equal(t, GridStatusImporting, GridStatusFromPower(300))
	assert.Equal(t, GridStatusExporting, GridStatusFromPower(-300))
	assert.Equal(t, GridStatusIdle, GridStatusFromPower(0))
}

func TestEmptyReading(t *testing.T) {

	r := InverterReading{DeviceId: "inverter1", Timestamp: time.Now(), Source: SourcePush}
	assert.True(t, r.Empty())

	r.BatterySoC = Float(55)
	assert.False(t, r.Empty())
}
