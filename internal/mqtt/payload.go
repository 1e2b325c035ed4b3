package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
)

// devicePayload mirrors the broker's JSON frame. Pointer fields keep
// "absent" distinguishable from a real zero.
type devicePayload struct {
	Ts *int64 `json:"ts"`

	PV1Power     *float64 `json:"pv1_power"`
	PV1Voltage   *float64 `json:"pv1_voltage"`
	PV2Power     *float64 `json:"pv2_power"`
	PV2Voltage   *float64 `json:"pv2_voltage"`
	PVTotalPower *float64 `json:"pv_power"`

	BatterySoC     *float64 `json:"battery_soc"`
	BatteryPower   *float64 `json:"battery_power"`
	BatteryVoltage *float64 `json:"battery_voltage"`
	BatteryCurrent *float64 `json:"battery_current"`
	BatteryStatus  *string  `json:"battery_status"`

	GridPower     *float64 `json:"grid_power"`
	GridVoltage   *float64 `json:"grid_voltage"`
	GridFrequency *float64 `json:"grid_frequency"`
	GridStatus    *string  `json:"grid_status"`

	ACOutputPower     *float64 `json:"ac_output_power"`
	ACOutputVoltage   *float64 `json:"ac_output_voltage"`
	ACOutputFrequency *float64 `json:"ac_output_frequency"`

	LoadPower *float64 `json:"load_power"`

	Temperature *float64 `json:"temperature"`
	WorkMode    *string  `json:"work_mode"`
}

type cellsPayload struct {
	Ts       *int64    `json:"ts"`
	Voltages []float64 `json:"voltages"`
}

// ParseDeviceData decodes a broker data frame into a canonical reading,
// normalizing the battery power sign into the canonical convention
// (negative = charging) when the broker reports the opposite.
func (c *MQTTClient) ParseDeviceData(deviceId string, payload []byte, now time.Time) (*domain.InverterReading, error) {
	var p devicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("device data decode: %w", err)
	}

	timestamp := now
	if p.Ts != nil {
		timestamp = time.Unix(*p.Ts, 0)
	}

	batteryPower := p.BatteryPower
	if batteryPower != nil && c.invertBatteryPower {
		batteryPower = domain.Float(-*batteryPower)
	}

	r := domain.InverterReading{
		DeviceId:  deviceId,
		Timestamp: timestamp,
		Source:    domain.SourcePush,

		PV1Power:     p.PV1Power,
		PV1Voltage:   p.PV1Voltage,
		PV2Power:     p.PV2Power,
		PV2Voltage:   p.PV2Voltage,
		PVTotalPower: p.PVTotalPower,

		BatterySoC:     p.BatterySoC,
		BatteryPower:   batteryPower,
		BatteryVoltage: p.BatteryVoltage,
		BatteryCurrent: p.BatteryCurrent,
		BatteryStatus:  p.BatteryStatus,

		GridPower:     p.GridPower,
		GridVoltage:   p.GridVoltage,
		GridFrequency: p.GridFrequency,
		GridStatus:    p.GridStatus,

		ACOutputPower:     p.ACOutputPower,
		ACOutputVoltage:   p.ACOutputVoltage,
		ACOutputFrequency: p.ACOutputFrequency,

		LoadPower: p.LoadPower,

		Temperature: p.Temperature,
		WorkMode:    p.WorkMode,
	}

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
	if r.BatteryStatus == nil && r.BatteryPower != nil {
		r.BatteryStatus = domain.String(domain.BatteryStatusFromPower(*r.BatteryPower))
	}
	if r.GridStatus == nil && r.GridPower != nil {
		r.GridStatus = domain.String(domain.GridStatusFromPower(*r.GridPower))
	}

	return &r, nil
}

// ParseCellData decodes a broker cell frame. Voltages keep their reported
// values, zeros included: a zero marks a non-reporting cell and is excluded
// from statistics downstream, not here.
func (c *MQTTClient) ParseCellData(deviceId string, payload []byte, now time.Time) (*domain.CellReading, error) {
	var p cellsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("cell data decode: %w", err)
	}
	if len(p.Voltages) == 0 {
		return nil, fmt.Errorf("cell data without voltages")
	}

	timestamp := now
	if p.Ts != nil {
		timestamp = time.Unix(*p.Ts, 0)
	}

	cells := make([]domain.CellVoltage, 0, len(p.Voltages))
	for i, v := range p.Voltages {
		cells = append(cells, domain.CellVoltage{
			Name:    fmt.Sprintf("cell_%02d", i+1),
			Voltage: v,
		})
	}

	return &domain.CellReading{
		DeviceId:  deviceId,
		Timestamp: timestamp,
		Cells:     cells,
	}, nil
}
