package service

import (
	"fmt"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"

	"github.com/google/uuid"
)

// AlertPolicy is the tunable part of the alert rules.
type AlertPolicy struct {
	OutageVoltageThreshold  float64
	OutageCooldown          time.Duration
	OutageMinNotifyDuration time.Duration
	Tier1SoC                float64
	Tier2SoC                float64
	Tier3SoC                float64
	RearmSoC                float64
}

func PolicyFromConfig(cfg config.AlertsConfig) AlertPolicy {
	return AlertPolicy{
		OutageVoltageThreshold:  cfg.OutageVoltageThreshold,
		OutageCooldown:          time.Duration(cfg.OutageCooldownSeconds) * time.Second,
		OutageMinNotifyDuration: time.Duration(cfg.OutageMinDurationSeconds) * time.Second,
		Tier1SoC:                cfg.BatteryTier1SoC,
		Tier2SoC:                cfg.BatteryTier2SoC,
		Tier3SoC:                cfg.BatteryTier3SoC,
		RearmSoC:                cfg.BatteryRearmSoC,
	}
}

// DeviceAlertTracker runs the two independent alert conditions for one
// device: grid outage and battery depletion tiers. It consumes canonical
// readings and returns the notifications that must be delivered.
//
// Outage triggers on AC input voltage, not grid power: grid power
// legitimately reads zero whenever on-site generation covers the load.
type DeviceAlertTracker struct {
	deviceId string
	policy   AlertPolicy
	state    domain.AlertState
}

func NewDeviceAlertTracker(deviceId string, policy AlertPolicy) *DeviceAlertTracker {
	return &DeviceAlertTracker{
		deviceId: deviceId,
		policy:   policy,
	}
}

func (t *DeviceAlertTracker) State() domain.AlertState {
	return t.state
}

func (t *DeviceAlertTracker) Observe(r domain.InverterReading, now time.Time) []domain.Notification {
	var out []domain.Notification
	out = append(out, t.observeOutage(r, now)...)
	out = append(out, t.observeBattery(r, now)...)
	return out
}

func (t *DeviceAlertTracker) observeOutage(r domain.InverterReading, now time.Time) []domain.Notification {
	// no voltage reading, no judgment
	if r.GridVoltage == nil {
		return nil
	}
	voltage := *r.GridVoltage

	if !t.state.Outage && voltage < t.policy.OutageVoltageThreshold {
		t.state.Outage = true
		t.state.OutageStart = now
		if now.Sub(t.state.LastOutageNotify) < t.policy.OutageCooldown {
			return nil
		}
		t.state.LastOutageNotify = now
		return []domain.Notification{t.notification(domain.NOTIFY_KIND_POWER_LOST,
			fmt.Sprintf("Grid power lost on %s (input %.1f V). PV %s W, battery %s%%, load %s W.",
				t.deviceId, voltage, fmtFloat(r.PVTotalPower), fmtFloat(r.BatterySoC), fmtFloat(r.LoadPower)), now)}
	}

	if t.state.Outage && voltage >= t.policy.OutageVoltageThreshold {
		duration := now.Sub(t.state.OutageStart)
		t.state.Outage = false
		// sub-minute blips recover silently
		if duration < t.policy.OutageMinNotifyDuration {
			return nil
		}
		return []domain.Notification{t.notification(domain.NOTIFY_KIND_POWER_RESTORED,
			fmt.Sprintf("Grid power restored on %s after %s.", t.deviceId, duration.Round(time.Second)), now)}
	}

	return nil
}

// observeBattery advances the stored tier only when the new tier is
// strictly worse. Each tier fires exactly once per discharge cycle; the
// re-arm at RearmSoC is silent.
func (t *DeviceAlertTracker) observeBattery(r domain.InverterReading, now time.Time) []domain.Notification {
	if r.BatterySoC == nil {
		return nil
	}
	soc := *r.BatterySoC

	if soc >= t.policy.RearmSoC {
		t.state.Tier = domain.TierNone
		return nil
	}

	tier := t.tierFor(soc)
	if tier <= t.state.Tier {
		return nil
	}
	t.state.Tier = tier

	return []domain.Notification{t.notification(batteryNotifyKind(tier),
		fmt.Sprintf("Battery on %s down to %.1f%% (%s).", t.deviceId, soc, tier), now)}
}

func (t *DeviceAlertTracker) tierFor(soc float64) domain.BatteryTier {
	switch {
	case soc <= t.policy.Tier3SoC:
		return domain.Tier3
	case soc <= t.policy.Tier2SoC:
		return domain.Tier2
	case soc <= t.policy.Tier1SoC:
		return domain.Tier1
	default:
		return domain.TierNone
	}
}

func (t *DeviceAlertTracker) notification(kind, message string, now time.Time) domain.Notification {
	return domain.Notification{
		Id:       uuid.NewString(),
		DeviceId: t.deviceId,
		Kind:     kind,
		Message:  message,
		At:       now,
	}
}

func batteryNotifyKind(tier domain.BatteryTier) string {
	switch tier {
	case domain.Tier3:
		return domain.NOTIFY_KIND_BATTERY_TIER3
	case domain.Tier2:
		return domain.NOTIFY_KIND_BATTERY_TIER2
	default:
		return domain.NOTIFY_KIND_BATTERY_TIER1
	}
}

func fmtFloat(v *float64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%.0f", *v)
}
