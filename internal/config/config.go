package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Hub      HubConfig  `mapstructure:"hub"`
	MQTT     MQTTConfig `mapstructure:"mqtt"`

	MonitorConfig MonitorConfig `mapstructure:"monitor"`
	AlertsConfig  AlertsConfig  `mapstructure:"alerts"`
	OwnersConfig  OwnersConfig  `mapstructure:"owners"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

// HubConfig is the pull source: an automation hub exposing per-sensor
// entity states over REST.
type HubConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	Token                string
	EntityPrefix         string `mapstructure:"entity_prefix"`
	SnapshotTTLMillis    uint32 `mapstructure:"snapshot_ttl_millis"`
	DeviceScanTTLMillis  uint32 `mapstructure:"device_scan_ttl_millis"`
	ProbeIntervalMillis  uint32 `mapstructure:"probe_interval_millis"`
	RequestTimeoutMillis uint32 `mapstructure:"request_timeout_millis"`
}

func (c HubConfig) Configured() bool {
	return c.BaseURL != ""
}

// MQTTConfig is the push source: a broker session delivering unsolicited
// readings for the listed devices.
type MQTTConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	BaseTopic          string   `mapstructure:"base_topic"`
	Devices            []string `mapstructure:"devices"`
	InvertBatteryPower bool     `mapstructure:"invert_battery_power"`
	ConnectAttempts    uint     `mapstructure:"connect_attempts"`
}

func (c MQTTConfig) Configured() bool {
	return c.Host != ""
}

type MonitorConfig struct {
	HealthCheckIntervalMillis uint32 `mapstructure:"health_check_interval_millis"`
	PushSilenceTimeoutMillis  uint32 `mapstructure:"push_silence_timeout_millis"`
	SampleIntervalMinutes     uint32 `mapstructure:"sample_interval_minutes"`
	HistoryRetentionDays      uint32 `mapstructure:"history_retention_days"`
}

// AlertsConfig holds alert policy. The thresholds are deliberately config,
// not constants: deployments disagree on what "recovered" means.
type AlertsConfig struct {
	TickIntervalMillis       uint32  `mapstructure:"tick_interval_millis"`
	OutageVoltageThreshold   float64 `mapstructure:"outage_voltage_threshold"`
	OutageCooldownSeconds    uint32  `mapstructure:"outage_cooldown_seconds"`
	OutageMinDurationSeconds uint32  `mapstructure:"outage_min_duration_seconds"`
	BatteryTier1SoC          float64 `mapstructure:"battery_tier1_soc"`
	BatteryTier2SoC          float64 `mapstructure:"battery_tier2_soc"`
	BatteryTier3SoC          float64 `mapstructure:"battery_tier3_soc"`
	BatteryRearmSoC          float64 `mapstructure:"battery_rearm_soc"`
	DefaultRecipient         string  `mapstructure:"default_recipient"`
}

type OwnersConfig struct {
	RedisAddr string            `mapstructure:"redis_addr"`
	Static    map[string]string `mapstructure:"static"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
