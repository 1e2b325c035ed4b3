package actor

import (
	"errors"
	"fmt"
	"sort"
	"time"

	adactor "github.com/dimencity996-star/lighearth-pro-dev/internal/adapter/actor"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/service"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/metrics"
	. "github.com/dimencity996-star/lighearth-pro-dev/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type PushActorProvider func() *adactor.PushActor

const (
	hubAskTimeout = 8 * time.Second
)

// FailoverActor owns which telemetry source is authoritative and all
// mutation of the shared reading store. The push session and the pull hub
// have different failure and latency profiles, so they are a tagged state
// {None, Push, Pull}, not interchangeable clients behind one interface.
//
// Transitions:
//
//	boot        -> Pull when the hub probe answers, else Push is attempted
//	Push -> Pull when the session stays silent past the timeout and the
//	               hub answers its probe
//	Pull -> Push opportunistically on every health tick (push is the
//	               lower-latency source once it can be re-established)
//	None -> any  periodically, paced by the reconnect backoff
//
// Push connects are capped by a retry budget; once exhausted the manager
// stops hammering the broker and runs on pull alone until restart.
type FailoverActor struct {
	config    config.Config
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	store        *service.DeviceStore
	eventStream  *eventstream.EventStream
	hubActor     *actor.PID
	pushProvider PushActorProvider

	pushActor       *actor.PID
	pushUp          bool
	pushAttempts    uint
	nextPushAttempt time.Time
	pushBackoff     *backoff.ExponentialBackOff
	lastPushData    time.Time

	status domain.SourceStatus

	logger *zap.Logger
}

type healthTick struct {
}

type pullRefreshTick struct {
}

func NewFailoverActor(cfg config.Config, store *service.DeviceStore, hubActor *actor.PID,
	pushProvider PushActorProvider, eventStream *eventstream.EventStream, logger *zap.Logger) *FailoverActor {

	// reconnect pacing rides on the health tick cadence: the backoff only
	// keeps a failed attempt from being retried on the very next tick
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(cfg.MonitorConfig.HealthCheckIntervalMillis) * time.Millisecond / 2
	bo.MaxInterval = 10 * time.Duration(cfg.MonitorConfig.HealthCheckIntervalMillis) * time.Millisecond
	bo.MaxElapsedTime = 0

	act := &FailoverActor{
		config:       cfg,
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		store:        store,
		eventStream:  eventStream,
		hubActor:     hubActor,
		pushProvider: pushProvider,
		pushBackoff:  bo,
		logger:       ActorLogger(domain.ACTOR_ID_FAILOVER, logger),
	}
	act.status = domain.SourceStatus{
		Active: domain.SourceNone,
		Push:   domain.SourceState{Configured: cfg.MQTT.Configured()},
		Pull:   domain.SourceState{Configured: cfg.Hub.Configured() && hubActor != nil},
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *FailoverActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *FailoverActor) healthInterval() time.Duration {
	return time.Duration(state.config.MonitorConfig.HealthCheckIntervalMillis) * time.Millisecond
}

func (state *FailoverActor) pushSilenceTimeout() time.Duration {
	return time.Duration(state.config.MonitorConfig.PushSilenceTimeoutMillis) * time.Millisecond
}

func (state *FailoverActor) pullRefreshInterval() time.Duration {
	return time.Duration(state.config.Hub.SnapshotTTLMillis) * time.Millisecond
}

func (state *FailoverActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("failover@default started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		// first evaluation runs almost immediately, then at the fixed cadence
		state.scheduler.RequestOnce(500*time.Millisecond, ctx.Self(), healthTick{})
		if state.status.Pull.Configured {
			state.scheduler.RequestOnce(1*time.Second, ctx.Self(), pullRefreshTick{})
		}

	case healthTick:
		state.logger.Debug("failover@default healthTick", zap.String("active", string(state.status.Active)))
		state.scheduler.RequestOnce(state.healthInterval(), ctx.Self(), healthTick{})
		state.evaluate(ctx)

	case pullRefreshTick:
		state.scheduler.RequestOnce(state.pullRefreshInterval(), ctx.Self(), pullRefreshTick{})
		state.requestHubReadings(ctx)

	case domain.HubProbeResponse:
		state.handleHubProbe(ctx, msg)

	case domain.GetHubReadingsResponse:
		state.handleHubReadings(msg)

	case domain.PushSessionUp:
		state.logger.Info("failover@default push session up")
		state.pushUp = true
		state.pushAttempts = 0
		state.pushBackoff.Reset()
		state.status.Push.Attempted = true
		// the silence clock starts at session-up, so a fresh session gets
		// a full timeout before its first reading is due
		state.lastPushData = time.Now()
		state.setActive(domain.SourcePush)

	case domain.PushReadingReceived:
		reading := msg.Reading
		if reading.Empty() {
			return
		}
		now := time.Now()
		state.store.SetReading(reading)
		state.lastPushData = now
		state.status.Push.LastSuccess = &now
		state.status.Push.ConsecutiveFailures = 0
		metrics.ReadingsReceived.WithLabelValues(string(domain.SourcePush)).Inc()
		state.eventStream.Publish(domain.ReadingUpdatedEvent{DeviceId: reading.DeviceId, Source: domain.SourcePush, At: now})
		if state.status.Active == domain.SourceNone {
			state.setActive(domain.SourcePush)
		}

	case domain.PushCellsReceived:
		state.store.SetCells(msg.Cells)

	case *actor.Terminated:
		state.handleTerminated(ctx, msg)

	case domain.GetSourceStatusRequest:
		ForRequest(msg).Respond(ctx, domain.GetSourceStatusResponse{Status: state.status})

	case domain.GetReadingRequest:
		state.handleGetReading(ctx, msg)

	case domain.GetKnownDevicesRequest:
		state.handleGetKnownDevices(ctx, msg)

	case domain.RefreshDeviceRequest:
		state.handleRefresh(ctx, msg)

	case domain.GetHubHistoryRequest:
		state.handleGetHubHistory(ctx, msg)

	case domain.ActorHealthRequest:
		ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_FAILOVER,
			Healthy: true,
			State:   string(state.status.Active),
		})

	default:
		state.logger.Debug("failover@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// evaluate runs the periodic source state machine. It only probes and
// promotes/demotes; reading mutation happens on the data paths.
func (state *FailoverActor) evaluate(ctx actor.Context) {
	switch state.status.Active {
	case domain.SourcePush:
		if state.pushSilent() {
			state.logger.Warn("failover push source silent", zap.Duration("timeout", state.pushSilenceTimeout()))
			state.probeHub(ctx)
		}
	case domain.SourcePull:
		// a session that survived a silence demotion and is delivering
		// again takes authority back
		if state.pushUp && state.pushActor != nil && !state.pushSilent() {
			state.setActive(domain.SourcePush)
			return
		}
		state.probeHub(ctx)
		state.maybeAttemptPush(ctx)
	case domain.SourceNone:
		state.probeHub(ctx)
		// pull is preferred at boot; push is only attempted once pull is
		// unconfigured or failing its probes
		if !state.status.Pull.Configured || state.status.Pull.ConsecutiveFailures > 0 {
			state.maybeAttemptPush(ctx)
		}
	}
}

func (state *FailoverActor) pushSilent() bool {
	return state.lastPushData.IsZero() || time.Since(state.lastPushData) > state.pushSilenceTimeout()
}

func (state *FailoverActor) probeHub(ctx actor.Context) {
	if state.hubActor == nil {
		return
	}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.hubActor, domain.HubProbeRequest{}, hubAskTimeout), func(err error) any {
		return domain.HubProbeResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		}
	})
}

// maybeAttemptPush spawns a push session child when the budget and the
// backoff pacing allow another attempt.
func (state *FailoverActor) maybeAttemptPush(ctx actor.Context) {
	if !state.status.Push.Configured || state.status.PushGaveUp || state.pushActor != nil {
		return
	}
	if time.Now().Before(state.nextPushAttempt) {
		return
	}
	state.pushAttempts++
	state.status.Push.Attempted = true
	state.logger.Info("failover push connect attempt", zap.Uint("attempt", state.pushAttempts))

	// a session failure must stop the child, never restart it: the retry
	// budget lives here
	supervisor := actor.NewOneForOneStrategy(0, 10*time.Second, func(reason interface{}) actor.Directive {
		return actor.StopDirective
	})
	props := actor.PropsFromProducer(func() actor.Actor {
		return state.pushProvider()
	}, actor.WithSupervisor(supervisor))
	pid, err := ctx.SpawnNamed(props, fmt.Sprintf("%s-%d", domain.ACTOR_ID_PUSH, state.pushAttempts))
	if err != nil {
		state.logger.Error("failover push spawn failed", zap.Error(err))
		state.registerPushFailure()
		return
	}
	state.pushActor = pid
}

func (state *FailoverActor) handleHubProbe(ctx actor.Context, msg domain.HubProbeResponse) {
	state.status.Pull.Attempted = true
	available := !msg.HasResponseError() && msg.Available
	state.logger.Debug("failover@default HubProbeResponse", zap.Bool("available", available))

	if !available {
		state.status.Pull.ConsecutiveFailures++
		if state.status.Active == domain.SourcePull {
			state.setActive(domain.SourceNone)
		}
		return
	}

	switch state.status.Active {
	case domain.SourceNone:
		state.setActive(domain.SourcePull)
	case domain.SourcePush:
		if state.pushSilent() {
			state.setActive(domain.SourcePull)
		}
	}
}

func (state *FailoverActor) requestHubReadings(ctx actor.Context) {
	if state.hubActor == nil {
		return
	}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.hubActor, domain.GetHubReadingsRequest{}, hubAskTimeout), func(err error) any {
		return domain.GetHubReadingsResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		}
	})
}

func (state *FailoverActor) handleHubReadings(msg domain.GetHubReadingsResponse) {
	if msg.HasResponseError() {
		state.logger.Warn("failover hub readings failed", zap.Error(msg.GetResponseError()))
		state.status.Pull.Attempted = true
		state.status.Pull.ConsecutiveFailures++
		return
	}
	now := time.Now()
	updated := 0
	for _, reading := range msg.Readings {
		if reading.Empty() {
			continue
		}
		state.store.SetReading(reading)
		metrics.ReadingsReceived.WithLabelValues(string(domain.SourcePull)).Inc()
		state.eventStream.Publish(domain.ReadingUpdatedEvent{DeviceId: reading.DeviceId, Source: domain.SourcePull, At: now})
		updated++
	}
	state.status.Pull.Attempted = true
	if updated > 0 {
		state.status.Pull.LastSuccess = &now
		state.status.Pull.ConsecutiveFailures = 0
		if state.status.Active == domain.SourceNone {
			state.setActive(domain.SourcePull)
		}
	}
}

func (state *FailoverActor) handleTerminated(ctx actor.Context, msg *actor.Terminated) {
	if state.pushActor == nil || msg.Who.Id != state.pushActor.Id {
		return
	}
	state.logger.Warn("failover push session terminated", zap.Uint("attempts", state.pushAttempts))
	state.pushActor = nil
	state.pushUp = false
	state.registerPushFailure()

	if state.status.Active == domain.SourcePush {
		state.setActive(domain.SourceNone)
		// immediately check the fallback instead of waiting a full tick
		state.probeHub(ctx)
	}
}

func (state *FailoverActor) registerPushFailure() {
	state.status.Push.ConsecutiveFailures++
	if state.pushAttempts >= state.config.MQTT.ConnectAttempts {
		if !state.status.PushGaveUp {
			state.logger.Warn("failover push retry budget exhausted, relying on pull source",
				zap.Uint("attempts", state.pushAttempts))
		}
		state.status.PushGaveUp = true
		return
	}
	state.nextPushAttempt = time.Now().Add(state.pushBackoff.NextBackOff())
}

func (state *FailoverActor) handleGetReading(ctx actor.Context, msg domain.GetReadingRequest) {
	if reading, ok := state.store.Reading(msg.DeviceId); ok {
		ForRequest(msg).Respond(ctx, domain.GetReadingResponse{Reading: &reading, Known: true})
		return
	}
	if state.hubActor == nil {
		ForRequest(msg).Respond(ctx, domain.GetReadingResponse{Known: false})
		return
	}
	// nothing in the store yet: ask the hub directly so a cold start can
	// still answer "does this device exist"
	replyTo := ForRequest(msg).ReplyTo(ctx)
	deviceId := msg.DeviceId
	ctx.ReenterAfter(ctx.RequestFuture(state.hubActor, domain.GetHubReadingRequest{DeviceId: deviceId}, hubAskTimeout), func(res any, err error) {
		if err != nil {
			ctx.Send(replyTo, domain.GetReadingResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
			return
		}
		hubRes, ok := res.(domain.GetHubReadingResponse)
		if !ok || hubRes.HasResponseError() {
			ctx.Send(replyTo, domain.GetReadingResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: hubResponseError(res)},
			})
			return
		}
		if hubRes.Reading != nil && !hubRes.Reading.Empty() {
			state.store.SetReading(*hubRes.Reading)
		}
		ctx.Send(replyTo, domain.GetReadingResponse{Reading: hubRes.Reading, Known: hubRes.Exists})
	})
}

func (state *FailoverActor) handleGetKnownDevices(ctx actor.Context, msg domain.GetKnownDevicesRequest) {
	stored := state.store.DeviceIds()
	if state.hubActor == nil {
		ForRequest(msg).Respond(ctx, domain.GetKnownDevicesResponse{Devices: stored})
		return
	}
	replyTo := ForRequest(msg).ReplyTo(ctx)
	ctx.ReenterAfter(ctx.RequestFuture(state.hubActor, domain.ScanDevicesRequest{}, hubAskTimeout), func(res any, err error) {
		devices := stored
		if scan, ok := res.(domain.ScanDevicesResponse); err == nil && ok && !scan.HasResponseError() {
			devices = mergeDeviceIds(stored, scan.Devices)
		}
		ctx.Send(replyTo, domain.GetKnownDevicesResponse{Devices: devices})
	})
}

// handleGetHubHistory relays recorder queries to the hub. Only the pull
// source keeps long-term history, so there is no push path here.
func (state *FailoverActor) handleGetHubHistory(ctx actor.Context, msg domain.GetHubHistoryRequest) {
	if state.hubActor == nil {
		ForRequest(msg).Respond(ctx, domain.GetHubHistoryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: errors.New("pull source not configured")},
		})
		return
	}
	replyTo := ForRequest(msg).ReplyTo(ctx)
	request := msg
	request.ReplyToRef = nil
	ctx.ReenterAfter(ctx.RequestFuture(state.hubActor, request, hubAskTimeout), func(res any, err error) {
		if err != nil {
			ctx.Send(replyTo, domain.GetHubHistoryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
			return
		}
		if hubRes, ok := res.(domain.GetHubHistoryResponse); ok {
			ctx.Send(replyTo, hubRes)
			return
		}
		ctx.Send(replyTo, domain.GetHubHistoryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: hubResponseError(res)},
		})
	})
}

// handleRefresh serves requestRefresh(): over push it asks the device for
// an immediate report, over pull it bypasses the snapshot TTL.
func (state *FailoverActor) handleRefresh(ctx actor.Context, msg domain.RefreshDeviceRequest) {
	replyTo := ForRequest(msg).ReplyTo(ctx)

	if state.status.Active == domain.SourcePush && state.pushActor != nil && state.pushUp {
		ctx.ReenterAfter(ctx.RequestFuture(state.pushActor, domain.PushRefreshRequest{DeviceId: msg.DeviceId}, hubAskTimeout), func(res any, err error) {
			ctx.Send(replyTo, domain.RefreshDeviceResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
		})
		return
	}

	if state.hubActor != nil {
		ctx.ReenterAfter(ctx.RequestFuture(state.hubActor, domain.HubForceRefreshRequest{}, hubAskTimeout), func(res any, err error) {
			if err == nil {
				// fold the fresh snapshot into the store right away
				state.requestHubReadings(ctx)
			}
			ctx.Send(replyTo, domain.RefreshDeviceResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
		})
		return
	}

	ctx.Send(replyTo, domain.RefreshDeviceResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: errors.New("no source configured")},
	})
}

func (state *FailoverActor) setActive(source domain.Source) {
	if state.status.Active == source {
		return
	}
	previous := state.status.Active
	state.status.Active = source
	metrics.SourceSwitches.WithLabelValues(string(previous), string(source)).Inc()
	state.logger.Info("failover source changed",
		zap.String("from", string(previous)), zap.String("to", string(source)))
	state.eventStream.Publish(domain.SourceChangedEvent{Previous: previous, Current: source, At: time.Now()})
}

func hubResponseError(res any) error {
	if resp, ok := res.(domain.ActorResponse); ok && resp.HasResponseError() {
		return resp.GetResponseError()
	}
	return errors.New("unexpected hub response")
}

func mergeDeviceIds(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range append(append([]string{}, a...), b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
