package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/hub"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

const hubRequestTimeout = 10 * time.Second

// HubActor serializes access to the pull-source state cache. Network calls
// run as background tasks; while one is in flight the actor stacks into
// WaitingHub and stashes everything else.
type HubActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	cache    *hub.StateCache
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewHubActor(cache *hub.StateCache, log *zap.Logger) *HubActor {
	act := &HubActor{
		cache:    cache,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_HUB, log),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *HubActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HubActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("hub@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HUB,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetHubReadingRequest:
		state.logger.Debug("hub@default GetHubReadingRequest", zap.String("device", msg.DeviceId))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		deviceId := msg.DeviceId
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.GetHubReadingResponse, error) {
			return state.getReading(deviceId)
		}), mapTaskResult[domain.GetHubReadingResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetHubReadingResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(hubRequestTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingHub)
	case domain.GetHubReadingsRequest:
		state.logger.Debug("hub@default GetHubReadingsRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getReadings),
			mapTaskResult[domain.GetHubReadingsResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetHubReadingsResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(hubRequestTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingHub)
	case domain.ScanDevicesRequest:
		state.logger.Debug("hub@default ScanDevicesRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.scanDevices),
			mapTaskResult[domain.ScanDevicesResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ScanDevicesResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(hubRequestTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingHub)
	case domain.HubProbeRequest:
		state.logger.Debug("hub@default HubProbeRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.probe),
			mapTaskResult[domain.HubProbeResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.HubProbeResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(hubRequestTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingHub)
	case domain.GetHubHistoryRequest:
		state.logger.Debug("hub@default GetHubHistoryRequest",
			zap.String("device", msg.DeviceId), zap.String("field", msg.Field))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		request := msg
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.GetHubHistoryResponse, error) {
			return state.getHistory(request)
		}), mapTaskResult[domain.GetHubHistoryResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetHubHistoryResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(hubRequestTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingHub)
	case domain.HubForceRefreshRequest:
		state.logger.Debug("hub@default HubForceRefreshRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.forceRefresh),
			mapTaskResult[domain.HubForceRefreshResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.HubForceRefreshResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(hubRequestTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingHub)
	default:
		state.logger.Debug("hub@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HubActor) WaitingHub(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("hub@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hub@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *HubActor) getReading(deviceId string) (*domain.GetHubReadingResponse, error) {
	reading, exists := a.cache.Reading(context.Background(), deviceId)
	return &domain.GetHubReadingResponse{
		Reading: reading,
		Exists:  exists,
	}, nil
}

func (a *HubActor) getReadings() (*domain.GetHubReadingsResponse, error) {
	return &domain.GetHubReadingsResponse{
		Readings: a.cache.Readings(context.Background()),
	}, nil
}

func (a *HubActor) scanDevices() (*domain.ScanDevicesResponse, error) {
	return &domain.ScanDevicesResponse{
		Devices: a.cache.KnownDevices(context.Background()),
	}, nil
}

func (a *HubActor) probe() (*domain.HubProbeResponse, error) {
	return &domain.HubProbeResponse{
		Available: a.cache.Available(context.Background()),
	}, nil
}

func (a *HubActor) getHistory(req domain.GetHubHistoryRequest) (*domain.GetHubHistoryResponse, error) {
	points, err := a.cache.History(context.Background(), req.DeviceId, req.Field, req.Start, req.End)
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetHubHistoryResponse{Points: points}, nil
}

func (a *HubActor) forceRefresh() (*domain.HubForceRefreshResponse, error) {
	if err := a.cache.ForceRefresh(context.Background()); err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.HubForceRefreshResponse{}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
