package util

import (
	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Hub: config.HubConfig{
			BaseURL:              "http://localhost:8123",
			Token:                "test-token",
			EntityPrefix:         "inv_",
			SnapshotTTLMillis:    10000,
			DeviceScanTTLMillis:  300000,
			ProbeIntervalMillis:  30000,
			RequestTimeoutMillis: 5000,
		},
		MQTT: config.MQTTConfig{
			Host:            "localhost",
			Port:            1883,
			BaseTopic:       "lighearth",
			Devices:         []string{"inverter1"},
			ConnectAttempts: 3,
		},
		MonitorConfig: config.MonitorConfig{
			HealthCheckIntervalMillis: 30000,
			PushSilenceTimeoutMillis:  30000,
			SampleIntervalMinutes:     5,
			HistoryRetentionDays:      7,
		},
		AlertsConfig: config.AlertsConfig{
			TickIntervalMillis:       15000,
			OutageVoltageThreshold:   100,
			OutageCooldownSeconds:    300,
			OutageMinDurationSeconds: 60,
			BatteryTier1SoC:          20,
			BatteryTier2SoC:          5,
			BatteryTier3SoC:          1,
			BatteryRearmSoC:          30,
			DefaultRecipient:         "default",
		},
		Port: 8080,
	}
}
