package hub

import (
	"context"
	"testing"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/util"
	"github.com/dimencity996-star/lighearth-pro-dev/pkg/hastates"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStates() []hastates.EntityState {
	return []hastates.EntityState{
		{EntityId: "sensor.inv_garage_pv1_power", State: "800"},
		{EntityId: "sensor.inv_garage_pv2_power", State: "450"},
		{EntityId: "sensor.inv_garage_battery_soc", State: "76.5"},
		{EntityId: "sensor.inv_garage_battery_power", State: "-1200"},
		{EntityId: "sensor.inv_garage_grid_voltage", State: "231.2"},
		{EntityId: "sensor.inv_garage_grid_power", State: "0"},
		{EntityId: "sensor.inv_garage_load_power", State: hastates.STATE_UNAVAILABLE},
		{EntityId: "sensor.inv_cabin_battery_soc", State: "44"},
		{EntityId: "sensor.inv_cabin_work_mode", State: "Battery First"},
		{EntityId: "sensor.unrelated_thing", State: "1"},
	}
}

func newTestCache(client *hastates.TestStatesClient) *StateCache {
	cfg := util.LoadTestConfig().Hub
	return NewStateCache(client, cfg, zap.NewNop())
}

func TestReadingAbsentIsNotZero(t *testing.T) {

	require := require.New(t)

	client := hastates.CreateTestStatesClient(testStates())
	cache := newTestCache(client)

	reading, ok := cache.Reading(context.Background(), "garage")
	require.True(ok)

	assert.Equal(t, 76.5, *reading.BatterySoC)
	assert.Equal(t, 231.2, *reading.GridVoltage)
	// reported zero stays zero
	assert.Equal(t, 0.0, *reading.GridPower)
	// unavailable and missing sensors stay nil
	assert.Nil(t, reading.LoadPower)
	assert.Nil(t, reading.Temperature)
}

func TestReadingReconstructsPVTotal(t *testing.T) {

	require := require.New(t)

	client := hastates.CreateTestStatesClient(testStates())
	cache := newTestCache(client)

	reading, ok := cache.Reading(context.Background(), "garage")
	require.True(ok)

	// no aggregate pv_power sensor: total comes from the per-string values
	require.NotNil(reading.PVTotalPower)
	assert.Equal(t, 1250.0, *reading.PVTotalPower)

	// derived battery status from signed power, negative = charging
	require.NotNil(reading.BatteryStatus)
	assert.Equal(t, "charging", *reading.BatteryStatus)
}

func TestReadingUnknownDevice(t *testing.T) {

	client := hastates.CreateTestStatesClient(testStates())
	cache := newTestCache(client)

	_, ok := cache.Reading(context.Background(), "nonexistent")
	assert.False(t, ok)
}

func TestSnapshotTTLCachesFetches(t *testing.T) {

	client := hastates.CreateTestStatesClient(testStates())
	cache := newTestCache(client)

	for i := 0; i < 5; i++ {
		cache.Reading(context.Background(), "garage")
	}
	// all reads inside the TTL share one fetch
	assert.Equal(t, 1, client.CallCount())

	// moving the clock past the TTL triggers exactly one more
	cache.now = func() time.Time { return time.Now().Add(11 * time.Second) }
	cache.Reading(context.Background(), "garage")
	cache.Reading(context.Background(), "garage")
	assert.Equal(t, 2, client.CallCount())
}

func TestForceRefreshBypassesTTL(t *testing.T) {

	client := hastates.CreateTestStatesClient(testStates())
	cache := newTestCache(client)

	cache.Reading(context.Background(), "garage")
	require.NoError(t, cache.ForceRefresh(context.Background()))
	assert.Equal(t, 2, client.CallCount())
}

func TestFetchFailureKeepsStaleSnapshot(t *testing.T) {

	require := require.New(t)

	client := hastates.CreateTestStatesClient(testStates())
	cache := newTestCache(client)

	reading, ok := cache.Reading(context.Background(), "garage")
	require.True(ok)
	require.Equal(76.5, *reading.BatterySoC)

	// hub goes down, TTL expires: readers still get the last snapshot
	client.Fail = true
	cache.now = func() time.Time { return time.Now().Add(11 * time.Second) }

	reading, ok = cache.Reading(context.Background(), "garage")
	require.True(ok)
	assert.Equal(t, 76.5, *reading.BatterySoC)
	assert.False(t, cache.Available(context.Background()))
}

func TestKnownDevicesScan(t *testing.T) {

	client := hastates.CreateTestStatesClient(testStates())
	cache := newTestCache(client)

	devices := cache.KnownDevices(context.Background())
	// cabin has a battery_soc anchor, the unrelated sensor does not match
	assert.Equal(t, []string{"cabin", "garage"}, devices)
}

func TestAvailabilityProbeIsRateLimited(t *testing.T) {

	client := hastates.CreateTestStatesClient(testStates())
	cache := newTestCache(client)

	assert.True(t, cache.Available(context.Background()))

	// a failure inside the probe interval is not observed yet
	client.Fail = true
	assert.True(t, cache.Available(context.Background()))

	cache.now = func() time.Time { return time.Now().Add(31 * time.Second) }
	assert.False(t, cache.Available(context.Background()))
}

func TestHistoryPassthrough(t *testing.T) {

	require := require.New(t)

	client := hastates.CreateTestStatesClient(testStates())
	cache := newTestCache(client)

	at := time.Now().Add(-1 * time.Hour)
	client.SetHistory("sensor.inv_garage_pv_power", []hastates.EntityState{
		{EntityId: "sensor.inv_garage_pv_power", State: "500", LastUpdated: at},
		{EntityId: "sensor.inv_garage_pv_power", State: hastates.STATE_UNKNOWN, LastUpdated: at.Add(time.Minute)},
		{EntityId: "sensor.inv_garage_pv_power", State: "750", LastUpdated: at.Add(2 * time.Minute)},
	})

	points, err := cache.History(context.Background(), "garage", FIELD_PV_POWER, at.Add(-time.Hour), time.Now())
	require.NoError(err)
	require.Len(points, 2)
	assert.Equal(t, 500.0, *points[0].PVPower)
	assert.Equal(t, 750.0, *points[1].PVPower)
}
