package actor

import (
	"fmt"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/metrics"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/mqtt"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// PushActor owns the live broker session. It subscribes to the configured
// devices' telemetry topics and forwards every parsed reading to its parent
// (the failover manager). Session loss panics; the parent observes the
// Terminated child and applies its retry budget.
type PushActor struct {
	config   *config.Config
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   *mqtt.MQTTClient
	logger   *zap.Logger
}

type PushConnected struct {
}

type PushSubscribed struct {
}

type PushConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

func NewPushActor(config *config.Config, logger *zap.Logger) *PushActor {
	act := &PushActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_PUSH, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PushActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PushActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("push@starting started")

		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), PushConnectionLost{Error: err})
		})

		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), PushConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), PushConnected{})
			}
		}, 10*time.Second)

	case PushConnected:
		state.logger.Debug("push@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		state.subscribeDevices(ctx, state.config.MQTT.Devices, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), PushConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), PushSubscribed{})
			}
		})
	case PushSubscribed:
		state.logger.Debug("push@starting subscribed")
		ctx.Send(ctx.Parent(), domain.PushSessionUp{})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case PushConnectionLost:
		state.logger.Error("push@starting connection lost", zap.Error(msg.Error))
		metrics.PushConnectFailures.Inc()
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("push@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PushActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("push@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_PUSH,
			Healthy: true,
			State:   "connected",
		})
	case domain.PushReadingReceived:
		// inbound telemetry goes straight to the failover manager
		ctx.Send(ctx.Parent(), msg)
	case domain.PushCellsReceived:
		ctx.Send(ctx.Parent(), msg)
	case domain.PushRefreshRequest:
		state.logger.Debug("push@default PushRefreshRequest", zap.String("device", msg.DeviceId))
		replyTo := actorutil.ForRequest(msg).ReplyTo(ctx)
		state.client.RequestDeviceRefresh(msg.DeviceId, func(err error) {
			ctx.Send(ctx.Self(), publishResult{ReplyTo: replyTo, Error: err})
		}, 5*time.Second)
		state.behavior.BecomeStacked(state.PublishResultReceive)
	case PushConnectionLost:
		state.logger.Error("push@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("push@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PushActor) PublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("push@publishing refresh publish failed", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PushRefreshResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	default:
		state.logger.Debug("push@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// subscribeDevices chains per-device subscriptions and calls done once all
// of them are acknowledged. The paho handler runs on the client goroutine,
// so it only parses and sends a message to self.
func (state *PushActor) subscribeDevices(ctx actor.Context, devices []string, done func(error)) {
	if len(devices) == 0 {
		done(nil)
		return
	}
	handler := func(_ pahomqtt.Client, m pahomqtt.Message) {
		state.handleTelemetry(ctx, m)
	}
	remaining := devices[1:]
	state.client.SubscribeToDevice(devices[0], handler, func(err error) {
		if err != nil {
			done(err)
			return
		}
		state.subscribeDevices(ctx, remaining, done)
	}, 5*time.Second)
}

func (state *PushActor) handleTelemetry(ctx actor.Context, m pahomqtt.Message) {
	tm, err := state.client.ParseTelemetryMessage(m)
	if err != nil {
		return
	}
	now := time.Now()
	switch tm.Kind {
	case mqtt.TELEMETRY_KIND_DATA:
		reading, err := state.client.ParseDeviceData(tm.DeviceId, tm.Payload, now)
		if err != nil {
			state.logger.Warn("push telemetry payload dropped", zap.String("device", tm.DeviceId), zap.Error(err))
			return
		}
		ctx.Send(ctx.Self(), domain.PushReadingReceived{Reading: *reading})
	case mqtt.TELEMETRY_KIND_CELLS:
		cells, err := state.client.ParseCellData(tm.DeviceId, tm.Payload, now)
		if err != nil {
			state.logger.Warn("push cell payload dropped", zap.String("device", tm.DeviceId), zap.Error(err))
			return
		}
		ctx.Send(ctx.Self(), domain.PushCellsReceived{Cells: *cells})
	}
}

// NewTestPushActor skips the broker session entirely: it reports the
// session as up and echoes telemetry messages to its parent. Used by actor
// tests to drive the failover manager without a broker.
func NewTestPushActor(config *config.Config, logger *zap.Logger) *PushActor {
	act := &PushActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_PUSH, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *PushActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		ctx.Send(ctx.Parent(), domain.PushSessionUp{})
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_PUSH,
			Healthy: true,
			State:   "idle",
		})
	case domain.PushReadingReceived:
		ctx.Send(ctx.Parent(), msg)
	case domain.PushCellsReceived:
		ctx.Send(ctx.Parent(), msg)
	case domain.PushRefreshRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.PushRefreshResponse{})
	}
}

func (state *PushActor) stop() {
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 200*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}
