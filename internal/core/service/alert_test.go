package service

import (
	"testing"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() AlertPolicy {
	return PolicyFromConfig(util.LoadTestConfig().AlertsConfig)
}

func voltageReading(voltage float64) domain.InverterReading {
	return domain.InverterReading{
		DeviceId:     "inverter1",
		GridVoltage:  domain.Float(voltage),
		PVTotalPower: domain.Float(1200),
		BatterySoC:   domain.Float(80),
		LoadPower:    domain.Float(600),
	}
}

func socReading(soc float64) domain.InverterReading {
	return domain.InverterReading{
		DeviceId:   "inverter1",
		BatterySoC: domain.Float(soc),
	}
}

func TestOutageSingleNotificationPerEvent(t *testing.T) {

	require := require.New(t)

	tracker := NewDeviceAlertTracker("inverter1", testPolicy())
	now := time.Now()

	// voltage dips below threshold and flaps back within a minute:
	// exactly one power_lost, no restore
	var all []domain.Notification
	sequence := []float64{150, 90, 95, 150}
	for i, v := range sequence {
		all = append(all, tracker.Observe(voltageReading(v), now.Add(time.Duration(i)*15*time.Second))...)
	}

	require.Len(all, 1)
	assert.Equal(t, domain.NOTIFY_KIND_POWER_LOST, all[0].Kind)
	assert.Contains(t, all[0].Message, "inverter1")
}

func TestOutageRestoreAfterMinDuration(t *testing.T) {

	require := require.New(t)

	tracker := NewDeviceAlertTracker("inverter1", testPolicy())
	now := time.Now()

	lost := tracker.Observe(voltageReading(90), now)
	require.Len(lost, 1)
	require.Equal(domain.NOTIFY_KIND_POWER_LOST, lost[0].Kind)

	// still out
	require.Empty(tracker.Observe(voltageReading(85), now.Add(1*time.Minute)))

	restored := tracker.Observe(voltageReading(230), now.Add(2*time.Minute))
	require.Len(restored, 1)
	assert.Equal(t, domain.NOTIFY_KIND_POWER_RESTORED, restored[0].Kind)
}

func TestOutageCooldownSuppressesSecondEvent(t *testing.T) {

	require := require.New(t)

	tracker := NewDeviceAlertTracker("inverter1", testPolicy())
	now := time.Now()

	require.Len(tracker.Observe(voltageReading(90), now), 1)
	// long outage, audible restore
	require.Len(tracker.Observe(voltageReading(230), now.Add(2*time.Minute)), 1)

	// second outage within the 5 min cooldown stays silent
	require.Empty(tracker.Observe(voltageReading(90), now.Add(3*time.Minute)))

	// sub-minute blip also recovers silently
	require.Empty(tracker.Observe(voltageReading(230), now.Add(3*time.Minute+30*time.Second)))
	notifs := tracker.Observe(voltageReading(90), now.Add(10*time.Minute))
	require.Len(notifs, 1)
	assert.Equal(t, domain.NOTIFY_KIND_POWER_LOST, notifs[0].Kind)
}

func TestOutageNoJudgmentWithoutVoltage(t *testing.T) {

	tracker := NewDeviceAlertTracker("inverter1", testPolicy())

	// a reading with no grid voltage must not enter nor exit outage
	assert.Empty(t, tracker.Observe(domain.InverterReading{DeviceId: "inverter1", BatterySoC: domain.Float(50)}, time.Now()))
	assert.False(t, tracker.State().Outage)
}

func TestBatteryTiersFireOnceAndOnlyDownwards(t *testing.T) {

	require := require.New(t)

	tracker := NewDeviceAlertTracker("inverter1", testPolicy())
	now := time.Now()

	var all []domain.Notification
	sequence := []float64{25, 18, 22, 4, 3, 0.5}
	for i, soc := range sequence {
		all = append(all, tracker.Observe(socReading(soc), now.Add(time.Duration(i)*15*time.Second))...)
	}

	require.Len(all, 3)
	assert.Equal(t, domain.NOTIFY_KIND_BATTERY_TIER1, all[0].Kind)
	assert.Equal(t, domain.NOTIFY_KIND_BATTERY_TIER2, all[1].Kind)
	assert.Equal(t, domain.NOTIFY_KIND_BATTERY_TIER3, all[2].Kind)
}

func TestBatteryRearmIsSilent(t *testing.T) {

	require := require.New(t)

	tracker := NewDeviceAlertTracker("inverter1", testPolicy())
	now := time.Now()

	require.Len(tracker.Observe(socReading(15), now), 1)
	// recovery above the re-arm level produces no notification
	require.Empty(tracker.Observe(socReading(35), now.Add(15*time.Second)))
	require.Equal(domain.TierNone, tracker.State().Tier)

	// a new discharge fires tier1 again
	notifs := tracker.Observe(socReading(15), now.Add(30*time.Second))
	require.Len(notifs, 1)
	assert.Equal(t, domain.NOTIFY_KIND_BATTERY_TIER1, notifs[0].Kind)
}

func TestBatteryNoRearmBelowThreshold(t *testing.T) {

	require := require.New(t)

	tracker := NewDeviceAlertTracker("inverter1", testPolicy())
	now := time.Now()

	require.Len(tracker.Observe(socReading(15), now), 1)
	// bouncing to 25 is below the re-arm level: tier stays armed
	require.Empty(tracker.Observe(socReading(25), now.Add(15*time.Second)))
	require.Empty(tracker.Observe(socReading(15), now.Add(30*time.Second)))
	require.Equal(domain.Tier1, tracker.State().Tier)
}
