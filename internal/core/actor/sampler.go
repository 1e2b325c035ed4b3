package actor

import (
	"fmt"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/service"
	. "github.com/dimencity996-star/lighearth-pro-dev/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// SamplerActor takes a periodic snapshot of every known device into the
// history store and enforces the retention window. Hub devices are sampled
// from a fresh snapshot; devices only ever seen over push are sampled from
// the shared store so both sources end up in the same day buckets.
type SamplerActor struct {
	config    config.Config
	behavior  actor.Behavior
	scheduler *scheduler.TimerScheduler

	store    *service.DeviceStore
	history  *service.HistoryStore
	hubActor *actor.PID

	logger *zap.Logger
}

type sampleTick struct {
}

func NewSamplerActor(cfg config.Config, store *service.DeviceStore, history *service.HistoryStore,
	hubActor *actor.PID, logger *zap.Logger) *SamplerActor {

	act := &SamplerActor{
		config:   cfg,
		behavior: actor.NewBehavior(),
		store:    store,
		history:  history,
		hubActor: hubActor,
		logger:   ActorLogger(domain.ACTOR_ID_SAMPLER, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *SamplerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *SamplerActor) sampleInterval() time.Duration {
	return time.Duration(state.config.MonitorConfig.SampleIntervalMinutes) * time.Minute
}

func (state *SamplerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("sampler@default started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.scheduler.RequestOnce(state.sampleInterval(), ctx.Self(), sampleTick{})

	case sampleTick:
		state.logger.Debug("sampler@default sampleTick")
		state.scheduler.RequestOnce(state.sampleInterval(), ctx.Self(), sampleTick{})
		if state.hubActor != nil {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.hubActor, domain.GetHubReadingsRequest{}, hubAskTimeout), func(err error) any {
				return domain.GetHubReadingsResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				}
			})
		} else {
			state.sample(nil)
		}

	case domain.GetHubReadingsResponse:
		if msg.HasResponseError() {
			state.logger.Warn("sampler hub readings failed, sampling stored data only", zap.Error(msg.GetResponseError()))
			state.sample(nil)
			return
		}
		state.sample(msg.Readings)

	case domain.ActorHealthRequest:
		ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SAMPLER,
			Healthy: true,
			State:   "idle",
		})

	default:
		state.logger.Debug("sampler@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// sample folds the hub snapshot plus any store-only devices into the
// history buckets, then drops days past the retention window.
func (state *SamplerActor) sample(hubReadings []domain.InverterReading) {
	now := time.Now()
	sampled := map[string]bool{}
	for _, reading := range hubReadings {
		if reading.Empty() {
			continue
		}
		state.history.Append(reading.DeviceId, service.Sample(reading, now))
		sampled[reading.DeviceId] = true
	}
	for _, reading := range state.store.Readings() {
		if sampled[reading.DeviceId] || reading.Empty() {
			continue
		}
		state.history.Append(reading.DeviceId, service.Sample(reading, now))
		sampled[reading.DeviceId] = true
	}
	state.history.Purge(int(state.config.MonitorConfig.HistoryRetentionDays))
	state.logger.Debug("sampler pass done", zap.Int("devices", len(sampled)))
}
