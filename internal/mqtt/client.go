package mqtt

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"

	TELEMETRY_KIND_DATA  = "data"
	TELEMETRY_KIND_CELLS = "cells"
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("lighearth_%d", rand.Intn(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	// the broker session is managed by the failover manager's retry budget,
	// not by the paho auto-reconnect loop
	opts.SetAutoReconnect(false)
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:             mqtt.NewClient(opts),
		cfg:                cfg.MQTT,
		telemetryRegexp:    telemetryTopicExtractor(cfg.MQTT.BaseTopic),
		invertBatteryPower: cfg.MQTT.InvertBatteryPower,
	}
}

type MQTTClient struct {
	client             mqtt.Client
	cfg                config.MQTTConfig
	telemetryRegexp    *regexp.Regexp
	invertBatteryPower bool
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

func (c *MQTTClient) DeviceDataTopic(deviceId string) string {
	return fmt.Sprintf("%s/device/%s/data", c.baseTopic(), deviceId)
}

func (c *MQTTClient) DeviceCellsTopic(deviceId string) string {
	return fmt.Sprintf("%s/device/%s/cells", c.baseTopic(), deviceId)
}

func (c *MQTTClient) DeviceRefreshTopic(deviceId string) string {
	return fmt.Sprintf("%s/device/%s/refresh", c.baseTopic(), deviceId)
}

// TelemetryMessage is an inbound session message resolved to a device and
// payload kind.
type TelemetryMessage struct {
	DeviceId string
	Kind     string
	Payload  []byte
}

func (c *MQTTClient) ParseTelemetryMessage(msg mqtt.Message) (*TelemetryMessage, error) {
	matches := c.telemetryRegexp.FindAllStringSubmatch(msg.Topic(), 1)
	if len(matches) == 0 {
		return nil, errors.New("not a telemetry topic")
	}
	if len(matches[0]) != 3 {
		return nil, errors.New("invalid telemetry topic")
	}
	return &TelemetryMessage{
		DeviceId: matches[0][1],
		Kind:     matches[0][2],
		Payload:  msg.Payload(),
	}, nil
}

// SubscribeToDevice subscribes to the data and cell topics of one device.
func (c *MQTTClient) SubscribeToDevice(deviceId string, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	filters := map[string]byte{
		c.DeviceDataTopic(deviceId):  1,
		c.DeviceCellsTopic(deviceId): 1,
	}
	token := c.client.SubscribeMultiple(filters, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) UnsubscribeFromDevice(deviceId string, continuation func(error), timeout time.Duration) {
	token := c.client.Unsubscribe(c.DeviceDataTopic(deviceId), c.DeviceCellsTopic(deviceId))
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT unsubscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

// RequestDeviceRefresh asks the device firmware for an immediate report.
// Best effort: the device may or may not honor it.
func (c *MQTTClient) RequestDeviceRefresh(deviceId string, continuation func(error), timeout time.Duration) {
	c.Publish(c.DeviceRefreshTopic(deviceId), "refresh", 1, false, continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func telemetryTopicExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/device/([a-zA-Z0-9_-]+)/(data|cells)$", baseTopic))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
