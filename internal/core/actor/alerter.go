package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/port"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/service"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/metrics"
	. "github.com/dimencity996-star/lighearth-pro-dev/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const notifyTimeout = 5 * time.Second

// AlerterActor evaluates the alert rules over the latest stored readings on
// a fixed tick. One tracker per device carries the outage and battery-tier
// state between ticks; delivery runs as a background task so a slow
// notifier cannot stall evaluation.
type AlerterActor struct {
	config    config.Config
	behavior  actor.Behavior
	scheduler *scheduler.TimerScheduler

	store    *service.DeviceStore
	policy   service.AlertPolicy
	trackers map[string]*service.DeviceAlertTracker
	notifier port.Notifier
	owners   port.OwnerRegistry

	logger *zap.Logger
}

type alertTick struct {
}

func NewAlerterActor(cfg config.Config, store *service.DeviceStore, notifier port.Notifier,
	owners port.OwnerRegistry, logger *zap.Logger) *AlerterActor {

	act := &AlerterActor{
		config:   cfg,
		behavior: actor.NewBehavior(),
		store:    store,
		policy:   service.PolicyFromConfig(cfg.AlertsConfig),
		trackers: map[string]*service.DeviceAlertTracker{},
		notifier: notifier,
		owners:   owners,
		logger:   ActorLogger(domain.ACTOR_ID_ALERTER, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *AlerterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *AlerterActor) tickInterval() time.Duration {
	return time.Duration(state.config.AlertsConfig.TickIntervalMillis) * time.Millisecond
}

func (state *AlerterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("alerter@default started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.scheduler.RequestOnce(state.tickInterval(), ctx.Self(), alertTick{})

	case alertTick:
		state.scheduler.RequestOnce(state.tickInterval(), ctx.Self(), alertTick{})
		state.evaluate(ctx)

	case domain.ActorHealthRequest:
		ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_ALERTER,
			Healthy: true,
			State:   "idle",
		})

	default:
		state.logger.Debug("alerter@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *AlerterActor) evaluate(ctx actor.Context) {
	now := time.Now()
	for _, reading := range state.store.Readings() {
		tracker, ok := state.trackers[reading.DeviceId]
		if !ok {
			tracker = service.NewDeviceAlertTracker(reading.DeviceId, state.policy)
			state.trackers[reading.DeviceId] = tracker
		}
		for _, n := range tracker.Observe(reading, now) {
			state.deliver(ctx, n)
		}
	}
}

// deliver resolves the recipient and sends in the background. Delivery
// failures are logged, never retried: the next rule transition produces the
// next notification.
func (state *AlerterActor) deliver(ctx actor.Context, n domain.Notification) {
	state.logger.Info("alerter notification",
		zap.String("device", n.DeviceId), zap.String("kind", n.Kind), zap.String("message", n.Message))
	metrics.NotificationsSent.WithLabelValues(n.Kind).Inc()

	notification := n
	NewBackgroundTask(ctx, func() (*domain.Notification, error) {
		bgCtx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		recipient := state.config.AlertsConfig.DefaultRecipient
		if owner, err := state.owners.OwnerOf(bgCtx, notification.DeviceId); err == nil && owner != "" {
			recipient = owner
		}
		if err := state.notifier.Send(bgCtx, recipient, notification); err != nil {
			return nil, err
		}
		return &notification, nil
	}).OnError(func(err error) {
		state.logger.Error("alerter delivery failed",
			zap.String("device", notification.DeviceId), zap.String("kind", notification.Kind), zap.Error(err))
	}).WithTimeout(notifyTimeout + time.Second).Run()
}
