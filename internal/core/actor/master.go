package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "github.com/dimencity996-star/lighearth-pro-dev/internal/adapter/actor"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/port"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/service"
	. "github.com/dimencity996-star/lighearth-pro-dev/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type HubActorProvider func() *adactor.HubActor

// MasterActor supervises the whole tree: the hub adapter (when the pull
// source is configured), the failover manager, the sampler and the alerter.
// External callers only ever talk to the master; source requests are
// forwarded to the failover manager so the sender sees a single front door.
type MasterActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream

	store   *service.DeviceStore
	history *service.HistoryStore

	hubActor      *actor.PID
	failoverActor *actor.PID
	samplerActor  *actor.PID
	alerterActor  *actor.PID

	hubProvider  HubActorProvider
	pushProvider PushActorProvider
	notifier     port.Notifier
	owners       port.OwnerRegistry

	logger *zap.Logger
}

type healthCheckResult struct {
	healthyById    map[string]bool
	expectedChecks int
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterActor(config config.Config, store *service.DeviceStore, history *service.HistoryStore,
	hubProvider HubActorProvider, pushProvider PushActorProvider,
	notifier port.Notifier, owners port.OwnerRegistry, logger *zap.Logger) *MasterActor {

	act := &MasterActor{
		config:       config,
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		logger:       ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:  &eventstream.EventStream{},
		store:        store,
		history:      history,
		hubProvider:  hubProvider,
		pushProvider: pushProvider,
		notifier:     notifier,
		owners:       owners,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) EventStream() *eventstream.EventStream {
	return state.eventStream
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset(0)

		if state.hubProvider != nil {
			hubActorPID, err := state.startHubActor(ctx)
			if err != nil {
				panic(err)
			}
			state.hubActor = hubActorPID
		}

		failoverActorPID, err := state.startFailoverActor(ctx)
		if err != nil {
			panic(err)
		}
		state.failoverActor = failoverActorPID

		samplerActorPID, err := state.startSamplerActor(ctx)
		if err != nil {
			panic(err)
		}
		state.samplerActor = samplerActorPID

		alerterActorPID, err := state.startAlerterActor(ctx)
		if err != nil {
			panic(err)
		}
		state.alerterActor = alerterActorPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		children := state.healthCheckTargets()
		state.currentHealthCheck.reset(len(children))
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range children {
			childId := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      childId,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)

	case domain.GetSourceStatusRequest:
		ctx.Forward(state.failoverActor)
	case domain.GetReadingRequest:
		ctx.Forward(state.failoverActor)
	case domain.GetKnownDevicesRequest:
		ctx.Forward(state.failoverActor)
	case domain.RefreshDeviceRequest:
		ctx.Forward(state.failoverActor)
	case domain.GetHubHistoryRequest:
		ctx.Forward(state.failoverActor)

	case *actor.Terminated:
		// the failover manager owns all source state; without it there is
		// nothing to monitor with
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_FAILOVER) {
			state.logger.Error("master@default failover terminated")
			panic(errors.New("failover terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// a child that does not answer counts as unhealthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthyById[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) healthCheckTargets() map[string]*actor.PID {
	targets := map[string]*actor.PID{
		domain.ACTOR_ID_FAILOVER: state.failoverActor,
		domain.ACTOR_ID_SAMPLER:  state.samplerActor,
		domain.ACTOR_ID_ALERTER:  state.alerterActor,
	}
	if state.hubActor != nil {
		targets[domain.ACTOR_ID_HUB] = state.hubActor
	}
	return targets
}

func (state *MasterActor) startHubActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	hubProps := actor.PropsFromProducer(func() actor.Actor {
		return state.hubProvider()
	}, actor.WithSupervisor(supervisor))
	hubActorPID, err := ctx.SpawnNamed(hubProps, domain.ACTOR_ID_HUB)
	if err != nil {
		return nil, err
	}

	return hubActorPID, nil
}

func (state *MasterActor) startFailoverActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	failoverProps := actor.PropsFromProducer(func() actor.Actor {
		return NewFailoverActor(state.config, state.store, state.hubActor, state.pushProvider, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	failoverActorPID, err := ctx.SpawnNamed(failoverProps, domain.ACTOR_ID_FAILOVER)
	if err != nil {
		return nil, err
	}

	return failoverActorPID, nil
}

func (state *MasterActor) startSamplerActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	samplerProps := actor.PropsFromProducer(func() actor.Actor {
		return NewSamplerActor(state.config, state.store, state.history, state.hubActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	samplerActorPID, err := ctx.SpawnNamed(samplerProps, domain.ACTOR_ID_SAMPLER)
	if err != nil {
		return nil, err
	}

	return samplerActorPID, nil
}

func (state *MasterActor) startAlerterActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	alerterProps := actor.PropsFromProducer(func() actor.Actor {
		return NewAlerterActor(state.config, state.store, state.notifier, state.owners, state.logger)
	}, actor.WithSupervisor(supervisor))
	alerterActorPID, err := ctx.SpawnNamed(alerterProps, domain.ACTOR_ID_ALERTER)
	if err != nil {
		return nil, err
	}

	return alerterActorPID, nil
}

func (state *healthCheckResult) reset(expected int) {
	state.healthyById = map[string]bool{}
	state.expectedChecks = expected
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.expectedChecks
}

func (state *healthCheckResult) allHealthy() bool {
	if len(state.healthyById) < state.expectedChecks {
		return false
	}
	for _, healthy := range state.healthyById {
		if !healthy {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
