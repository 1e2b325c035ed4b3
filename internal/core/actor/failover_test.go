package actor

import (
	"fmt"
	"testing"
	"time"

	adactor "github.com/dimencity996-star/lighearth-pro-dev/internal/adapter/actor"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/service"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/hub"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/util"
	"github.com/dimencity996-star/lighearth-pro-dev/pkg/hastates"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTestHub(t *testing.T, context *actor.RootContext, cfg config.Config, client *hastates.TestStatesClient, logger *zap.Logger) *actor.PID {
	cache := hub.NewStateCache(client, cfg.Hub, logger)
	props := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewHubActor(cache, logger)
	})
	pid, err := context.SpawnNamed(props, "hub")
	require.NoError(t, err)
	return pid
}

func spawnFailover(t *testing.T, context *actor.RootContext, cfg config.Config, store *service.DeviceStore,
	hubPID *actor.PID, pushProvider PushActorProvider, logger *zap.Logger) *actor.PID {
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewFailoverActor(cfg, store, hubPID, pushProvider, &eventstream.EventStream{}, logger)
	})
	pid, err := context.SpawnNamed(props, "failover")
	require.NoError(t, err)
	return pid
}

func getStatus(t *testing.T, context *actor.RootContext, pid *actor.PID) domain.SourceStatus {
	res, err := context.RequestFuture(pid, domain.GetSourceStatusRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetSourceStatusResponse)
	require.True(t, ok)
	return resp.Status
}

func TestFailoverPrefersPushWhenSessionUp(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.MonitorConfig.HealthCheckIntervalMillis = 1000
	logger := zap.NewNop()

	store := service.NewDeviceStore()
	client := hastates.CreateTestStatesClient(testHubStates())
	hubPID := spawnTestHub(t, context, cfg, client, logger)

	pid := spawnFailover(t, context, cfg, store, hubPID, func() *adactor.PushActor {
		return adactor.NewTestPushActor(&cfg, logger)
	}, logger)

	// first tick settles on pull, the next one brings the session up
	time.Sleep(2 * time.Second)

	status := getStatus(t, context, pid)
	fmt.Printf("Source status: %+v\n", status)
	assert.Equal(t, domain.SourcePush, status.Active)
	assert.True(t, status.Push.Attempted)
	assert.False(t, status.PushGaveUp)

	// push telemetry lands in the store and is served back
	context.Send(pid, domain.PushReadingReceived{Reading: domain.InverterReading{
		DeviceId:   "inverter1",
		Timestamp:  time.Now(),
		Source:     domain.SourcePush,
		BatterySoC: domain.Float(58),
	}})
	time.Sleep(200 * time.Millisecond)

	res, err := context.RequestFuture(pid, domain.GetReadingRequest{DeviceId: "inverter1"}, 5*time.Second).Result()
	require.NoError(t, err)
	readingResp, ok := res.(domain.GetReadingResponse)
	require.True(t, ok)
	require.True(t, readingResp.Known)
	assert.Equal(t, 58.0, *readingResp.Reading.BatterySoC)

	context.Stop(pid)
	as.Shutdown()
}

func TestFailoverPullOnlyWithoutPushConfig(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.MQTT.Host = ""
	logger := zap.NewNop()

	store := service.NewDeviceStore()
	client := hastates.CreateTestStatesClient(testHubStates())
	hubPID := spawnTestHub(t, context, cfg, client, logger)

	pid := spawnFailover(t, context, cfg, store, hubPID, nil, logger)

	time.Sleep(2 * time.Second)

	status := getStatus(t, context, pid)
	assert.Equal(t, domain.SourcePull, status.Active)
	assert.False(t, status.Push.Configured)
	assert.True(t, status.Pull.Attempted)

	// the pull refresh tick has folded the hub snapshot into the store
	reading, ok := store.Reading("inverter1")
	require.True(t, ok)
	assert.Equal(t, 62.0, *reading.BatterySoC)
	assert.Equal(t, domain.SourcePull, reading.Source)

	context.Stop(pid)
	as.Shutdown()
}

func TestFailoverPushRetryBudget(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	// nothing listens here: every session attempt fails fast
	cfg.MQTT.Host = "127.0.0.1"
	cfg.MQTT.Port = 1
	cfg.MonitorConfig.HealthCheckIntervalMillis = 1000
	logger := zap.NewNop()

	store := service.NewDeviceStore()
	client := hastates.CreateTestStatesClient(testHubStates())
	hubPID := spawnTestHub(t, context, cfg, client, logger)

	pid := spawnFailover(t, context, cfg, store, hubPID, func() *adactor.PushActor {
		return adactor.NewPushActor(&cfg, logger)
	}, logger)

	// three paced attempts plus slack
	time.Sleep(8 * time.Second)

	status := getStatus(t, context, pid)
	fmt.Printf("Source status: %+v\n", status)
	assert.True(t, status.PushGaveUp, "push retry budget must be exhausted")
	assert.Equal(t, uint(3), status.Push.ConsecutiveFailures)
	// pull keeps working while push has given up
	assert.Equal(t, domain.SourcePull, status.Active)

	// the budget is final: wait two more ticks, no further attempts
	before := status.Push.ConsecutiveFailures
	time.Sleep(2500 * time.Millisecond)
	status = getStatus(t, context, pid)
	assert.Equal(t, before, status.Push.ConsecutiveFailures)

	context.Stop(pid)
	as.Shutdown()
}

func TestFailoverRegainsPushAfterSilence(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.MonitorConfig.HealthCheckIntervalMillis = 1000
	cfg.MonitorConfig.PushSilenceTimeoutMillis = 1000
	logger := zap.NewNop()

	store := service.NewDeviceStore()
	client := hastates.CreateTestStatesClient(testHubStates())
	hubPID := spawnTestHub(t, context, cfg, client, logger)

	pid := spawnFailover(t, context, cfg, store, hubPID, func() *adactor.PushActor {
		return adactor.NewTestPushActor(&cfg, logger)
	}, logger)

	time.Sleep(2 * time.Second)
	require.Equal(t, domain.SourcePush, getStatus(t, context, pid).Active)

	// the session stays up but delivers nothing: silence demotes to pull
	time.Sleep(2500 * time.Millisecond)
	require.Equal(t, domain.SourcePull, getStatus(t, context, pid).Active)

	// telemetry resumes over the live session
	for i := 0; i < 6; i++ {
		context.Send(pid, domain.PushReadingReceived{Reading: domain.InverterReading{
			DeviceId:   "inverter1",
			Timestamp:  time.Now(),
			Source:     domain.SourcePush,
			BatterySoC: domain.Float(44),
		}})
		time.Sleep(300 * time.Millisecond)
	}

	// the next health tick hands authority back to push
	status := getStatus(t, context, pid)
	assert.Equal(t, domain.SourcePush, status.Active)

	context.Stop(pid)
	as.Shutdown()
}

func TestFailoverRelaysHubHistory(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.MQTT.Host = ""
	logger := zap.NewNop()

	store := service.NewDeviceStore()
	client := hastates.CreateTestStatesClient(testHubStates())
	hubPID := spawnTestHub(t, context, cfg, client, logger)

	at := time.Now().Add(-time.Hour)
	client.SetHistory("sensor.inv_inverter1_pv_power", []hastates.EntityState{
		{EntityId: "sensor.inv_inverter1_pv_power", State: "400", LastUpdated: at},
		{EntityId: "sensor.inv_inverter1_pv_power", State: "650", LastUpdated: at.Add(time.Minute)},
	})

	pid := spawnFailover(t, context, cfg, store, hubPID, nil, logger)

	res, err := context.RequestFuture(pid, domain.GetHubHistoryRequest{
		DeviceId: "inverter1",
		Field:    hub.FIELD_PV_POWER,
		Start:    at.Add(-time.Hour),
		End:      time.Now(),
	}, 5*time.Second).Result()
	require.NoError(t, err)
	historyResp, ok := res.(domain.GetHubHistoryResponse)
	require.True(t, ok)
	require.False(t, historyResp.HasResponseError())
	require.Len(t, historyResp.Points, 2)
	assert.Equal(t, 400.0, *historyResp.Points[0].PVPower)

	context.Stop(pid)
	as.Shutdown()
}

func TestFailoverRefreshOverPull(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.MQTT.Host = ""
	logger := zap.NewNop()

	store := service.NewDeviceStore()
	client := hastates.CreateTestStatesClient(testHubStates())
	hubPID := spawnTestHub(t, context, cfg, client, logger)

	pid := spawnFailover(t, context, cfg, store, hubPID, nil, logger)

	time.Sleep(2 * time.Second)
	callsBefore := client.CallCount()

	res, err := context.RequestFuture(pid, domain.RefreshDeviceRequest{DeviceId: "inverter1"}, 5*time.Second).Result()
	require.NoError(t, err)
	refreshResp, ok := res.(domain.RefreshDeviceResponse)
	require.True(t, ok)
	assert.False(t, refreshResp.HasResponseError())
	// the refresh bypassed the snapshot TTL
	assert.Greater(t, client.CallCount(), callsBefore)

	context.Stop(pid)
	as.Shutdown()
}
