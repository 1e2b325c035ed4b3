package hub

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/pkg/hastates"

	"go.uber.org/zap"
)

// Entity naming convention: sensor.<prefix><deviceId>_<field>
const (
	FIELD_PV1_POWER      = "pv1_power"
	FIELD_PV1_VOLTAGE    = "pv1_voltage"
	FIELD_PV2_POWER      = "pv2_power"
	FIELD_PV2_VOLTAGE    = "pv2_voltage"
	FIELD_PV_POWER       = "pv_power"
	FIELD_BATTERY_SOC    = "battery_soc"
	FIELD_BATTERY_POWER  = "battery_power"
	FIELD_BATTERY_VOLT   = "battery_voltage"
	FIELD_BATTERY_CURR   = "battery_current"
	FIELD_BATTERY_STATUS = "battery_status"
	FIELD_GRID_POWER     = "grid_power"
	FIELD_GRID_VOLTAGE   = "grid_voltage"
	FIELD_GRID_FREQ      = "grid_frequency"
	FIELD_GRID_STATUS    = "grid_status"
	FIELD_AC_POWER       = "ac_output_power"
	FIELD_AC_VOLTAGE     = "ac_output_voltage"
	FIELD_AC_FREQ        = "ac_output_frequency"
	FIELD_LOAD_POWER     = "load_power"
	FIELD_TEMPERATURE    = "temperature"
	FIELD_WORK_MODE      = "work_mode"
)

// anchor fields used for device discovery and existence checks
var deviceKeyFields = []string{
	FIELD_BATTERY_SOC,
	FIELD_PV_POWER,
	FIELD_GRID_VOLTAGE,
	FIELD_LOAD_POWER,
	FIELD_BATTERY_POWER,
}

func EntityId(prefix, deviceId, field string) string {
	return fmt.Sprintf("sensor.%s%s_%s", prefix, deviceId, field)
}

func deviceScanExtractor(prefix string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`^sensor\.%s(.+)_(battery_soc|pv_power|grid_voltage|load_power|battery_power)$`,
		regexp.QuoteMeta(prefix)))
}

type snapshot map[string]hastates.EntityState

func indexStates(states []hastates.EntityState) snapshot {
	idx := make(snapshot, len(states))
	for _, s := range states {
		idx[s.EntityId] = s
	}
	return idx
}

// floatField returns nil for missing, unavailable or unparseable states.
// Absence is "unknown", never zero.
func (c *StateCache) floatField(idx snapshot, deviceId, field string) *float64 {
	s, ok := idx[EntityId(c.cfg.EntityPrefix, deviceId, field)]
	if !ok || !s.Reported() {
		return nil
	}
	v, err := strconv.ParseFloat(s.State, 64)
	if err != nil {
		c.logger.Debug("hub unparseable field", zap.String("entity", s.EntityId), zap.String("state", s.State))
		return nil
	}
	return &v
}

func (c *StateCache) stringField(idx snapshot, deviceId, field string) *string {
	s, ok := idx[EntityId(c.cfg.EntityPrefix, deviceId, field)]
	if !ok || !s.Reported() {
		return nil
	}
	v := s.State
	return &v
}

func (c *StateCache) mapReading(idx snapshot, deviceId string, at time.Time) domain.InverterReading {
	r := domain.InverterReading{
		DeviceId:  deviceId,
		Timestamp: at,
		Source:    domain.SourcePull,

		PV1Power:     c.floatField(idx, deviceId, FIELD_PV1_POWER),
		PV1Voltage:   c.floatField(idx, deviceId, FIELD_PV1_VOLTAGE),
		PV2Power:     c.floatField(idx, deviceId, FIELD_PV2_POWER),
		PV2Voltage:   c.floatField(idx, deviceId, FIELD_PV2_VOLTAGE),
		PVTotalPower: c.floatField(idx, deviceId, FIELD_PV_POWER),

		BatterySoC:     c.floatField(idx, deviceId, FIELD_BATTERY_SOC),
		BatteryPower:   c.floatField(idx, deviceId, FIELD_BATTERY_POWER),
		BatteryVoltage: c.floatField(idx, deviceId, FIELD_BATTERY_VOLT),
		BatteryCurrent: c.floatField(idx, deviceId, FIELD_BATTERY_CURR),
		BatteryStatus:  c.stringField(idx, deviceId, FIELD_BATTERY_STATUS),

		GridPower:     c.floatField(idx, deviceId, FIELD_GRID_POWER),
		GridVoltage:   c.floatField(idx, deviceId, FIELD_GRID_VOLTAGE),
		GridFrequency: c.floatField(idx, deviceId, FIELD_GRID_FREQ),
		GridStatus:    c.stringField(idx, deviceId, FIELD_GRID_STATUS),

		ACOutputPower:     c.floatField(idx, deviceId, FIELD_AC_POWER),
		ACOutputVoltage:   c.floatField(idx, deviceId, FIELD_AC_VOLTAGE),
		ACOutputFrequency: c.floatField(idx, deviceId, FIELD_AC_FREQ),

		LoadPower: c.floatField(idx, deviceId, FIELD_LOAD_POWER),

		Temperature: c.floatField(idx, deviceId, FIELD_TEMPERATURE),
		WorkMode:    c.stringField(idx, deviceId, FIELD_WORK_MODE),
	}

	// reconstruct total PV power from per-string values only when the
	// aggregate sensor is absent
	if r.PVTotalPower == nil && (r.PV1Power != nil || r.PV2Power != nil) {
		var total float64
		if r.PV1Power != nil {
			total += *r.PV1Power
		}
		if r.PV2Power != nil {
			total += *r.PV2Power
		}
		r.PVTotalPower = &total
	}

	// derive status labels from signed power when the status sensor is absent
	if r.BatteryStatus == nil && r.BatteryPower != nil {
		r.BatteryStatus = domain.String(domain.BatteryStatusFromPower(*r.BatteryPower))
	}
	if r.GridStatus == nil && r.GridPower != nil {
		r.GridStatus = domain.String(domain.GridStatusFromPower(*r.GridPower))
	}

	return r
}

func (c *StateCache) deviceInSnapshot(idx snapshot, deviceId string) bool {
	for _, field := range deviceKeyFields {
		if s, ok := idx[EntityId(c.cfg.EntityPrefix, deviceId, field)]; ok && s.Reported() {
			return true
		}
	}
	return false
}

func (c *StateCache) scanDevices(idx snapshot) []string {
	extractor := deviceScanExtractor(c.cfg.EntityPrefix)
	seen := map[string]bool{}
	var devices []string
	for entityId := range idx {
		matches := extractor.FindAllStringSubmatch(entityId, 1)
		if len(matches) == 0 {
			continue
		}
		id := matches[0][1]
		if !seen[id] {
			seen[id] = true
			devices = append(devices, id)
		}
	}
	return devices
}
