package domain

import (
	"fmt"
	"time"
)

// Source identifies which acquisition channel produced a reading, or which
// channel is currently authoritative.
type Source string

const (
	SourceNone Source = "none"
	SourcePush Source = "push"
	SourcePull Source = "pull"
)

const (
	BatteryStatusCharging    = "charging"
	BatteryStatusDischarging = "discharging"
	BatteryStatusIdle        = "idle"

	GridStatusImporting = "importing"
	GridStatusExporting = "exporting"
	GridStatusIdle      = "idle"
)

// InverterReading is the canonical, source-agnostic telemetry record for one
// device. All numeric fields are optional: nil means "not observed yet", a
// zero value is a real reading.
//
// Battery power sign convention: negative = charging, positive = discharging.
// Both sources are normalized into this convention at their adapter.
type InverterReading struct {
	DeviceId  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`

	PV1Power     *float64 `json:"pv1_power,omitempty"`
	PV1Voltage   *float64 `json:"pv1_voltage,omitempty"`
	PV2Power     *float64 `json:"pv2_power,omitempty"`
	PV2Voltage   *float64 `json:"pv2_voltage,omitempty"`
	PVTotalPower *float64 `json:"pv_total_power,omitempty"`

	BatterySoC     *float64 `json:"battery_soc,omitempty"`
	BatteryPower   *float64 `json:"battery_power,omitempty"`
	BatteryVoltage *float64 `json:"battery_voltage,omitempty"`
	BatteryCurrent *float64 `json:"battery_current,omitempty"`
	BatteryStatus  *string  `json:"battery_status,omitempty"`

	GridPower     *float64 `json:"grid_power,omitempty"`
	GridVoltage   *float64 `json:"grid_voltage,omitempty"`
	GridFrequency *float64 `json:"grid_frequency,omitempty"`
	GridStatus    *string  `json:"grid_status,omitempty"`

	ACOutputPower     *float64 `json:"ac_output_power,omitempty"`
	ACOutputVoltage   *float64 `json:"ac_output_voltage,omitempty"`
	ACOutputFrequency *float64 `json:"ac_output_frequency,omitempty"`

	LoadPower *float64 `json:"load_power,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	WorkMode    *string  `json:"work_mode,omitempty"`
}

// Empty reports whether no field has ever been observed.
func (r InverterReading) Empty() bool {
	return r.PV1Power == nil && r.PV2Power == nil && r.PVTotalPower == nil &&
		r.BatterySoC == nil && r.BatteryPower == nil && r.BatteryVoltage == nil &&
		r.GridPower == nil && r.GridVoltage == nil && r.ACOutputPower == nil &&
		r.LoadPower == nil && r.Temperature == nil
}

// BatteryStatusFromPower derives a status label from signed battery power
// in the canonical convention (negative = charging).
func BatteryStatusFromPower(power float64) string {
	switch {
	case power < 0:
		return BatteryStatusCharging
	case power > 0:
		return BatteryStatusDischarging
	default:
		return BatteryStatusIdle
	}
}

// GridStatusFromPower derives a status label from signed grid power
// (positive = importing).
func GridStatusFromPower(power float64) string {
	switch {
	case power > 0:
		return GridStatusImporting
	case power < 0:
		return GridStatusExporting
	default:
		return GridStatusIdle
	}
}

// CellVoltage is one battery cell voltage sample. A voltage of 0 means the
// cell is not reporting, not that it sits at 0 V.
type CellVoltage struct {
	Name    string  `json:"name"`
	Voltage float64 `json:"voltage"`
}

// CellReading carries the ordered per-cell voltages of one device's battery.
type CellReading struct {
	DeviceId  string        `json:"device_id"`
	Timestamp time.Time     `json:"timestamp"`
	Cells     []CellVoltage `json:"cells"`
}

// CellStats are derived from the non-zero subset of cell voltages only.
// Silent lists the cells excluded from the statistics.
type CellStats struct {
	Count   int      `json:"count"`
	Average float64  `json:"average"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Spread  float64  `json:"spread"`
	Silent  []string `json:"silent,omitempty"`
}

func (r CellReading) Stats() CellStats {
	var stats CellStats
	var sum float64
	for _, c := range r.Cells {
		if c.Voltage <= 0 {
			stats.Silent = append(stats.Silent, c.Name)
			continue
		}
		if stats.Count == 0 {
			stats.Min = c.Voltage
			stats.Max = c.Voltage
		} else {
			if c.Voltage < stats.Min {
				stats.Min = c.Voltage
			}
			if c.Voltage > stats.Max {
				stats.Max = c.Voltage
			}
		}
		sum += c.Voltage
		stats.Count++
	}
	if stats.Count > 0 {
		stats.Average = sum / float64(stats.Count)
		stats.Spread = stats.Max - stats.Min
	}
	return stats
}

// SourceState is per-source bookkeeping. Attempted distinguishes "never
// tried" from "tried and failed".
type SourceState struct {
	Configured          bool       `json:"configured"`
	Attempted           bool       `json:"attempted"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	ConsecutiveFailures uint       `json:"consecutive_failures"`
}

// SourceStatus is the failover manager's externally visible state.
type SourceStatus struct {
	Active     Source      `json:"active"`
	Push       SourceState `json:"push"`
	Pull       SourceState `json:"pull"`
	PushGaveUp bool        `json:"push_gave_up"`
}

// DayKey buckets history samples by device-local calendar day.
type DayKey string

const dayKeyLayout = "2006-01-02"

func DayKeyFor(t time.Time) DayKey {
	return DayKey(t.Local().Format(dayKeyLayout))
}

func ParseDayKey(s string) (DayKey, error) {
	if _, err := time.ParseInLocation(dayKeyLayout, s, time.Local); err != nil {
		return "", fmt.Errorf("invalid day key %q: %w", s, err)
	}
	return DayKey(s), nil
}

// Time returns the start of the keyed day in local time.
func (k DayKey) Time() time.Time {
	t, _ := time.ParseInLocation(dayKeyLayout, string(k), time.Local)
	return t
}

// HistoryPoint is one sampled power snapshot. Absent fields stay nil
// (leave-null fill policy; battery power legitimately crosses zero).
type HistoryPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	PVPower      *float64  `json:"pv_power,omitempty"`
	BatteryPower *float64  `json:"battery_power,omitempty"`
	BatterySoC   *float64  `json:"battery_soc,omitempty"`
	GridPower    *float64  `json:"grid_power,omitempty"`
	LoadPower    *float64  `json:"load_power,omitempty"`
}

// BatteryTier is an ordered low-battery severity level.
type BatteryTier int

const (
	TierNone BatteryTier = iota
	Tier1
	Tier2
	Tier3
)

func (t BatteryTier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	default:
		return "none"
	}
}

// AlertState is the per-device alert condition memory. Created on first
// observation, reset only by its own transition rules.
type AlertState struct {
	Outage           bool
	OutageStart      time.Time
	LastOutageNotify time.Time
	Tier             BatteryTier
}

// Notification is an alert the core decided to emit. Delivery mechanics are
// the notifier adapter's concern.
type Notification struct {
	Id       string    `json:"id"`
	DeviceId string    `json:"device_id"`
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

const (
	NOTIFY_KIND_POWER_LOST     = "power_lost"
	NOTIFY_KIND_POWER_RESTORED = "power_restored"
	NOTIFY_KIND_BATTERY_TIER1  = "battery_tier1"
	NOTIFY_KIND_BATTERY_TIER2  = "battery_tier2"
	NOTIFY_KIND_BATTERY_TIER3  = "battery_tier3"
)

func Float(v float64) *float64 {
	return &v
}

func String(v string) *string {
	return &v
}
