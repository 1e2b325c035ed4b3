package actor

import (
	"fmt"
	"testing"
	"time"

	adactor "github.com/dimencity996-star/lighearth-pro-dev/internal/adapter/actor"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/adapter/notify"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/adapter/owners"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/service"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/hub"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/util"
	"github.com/dimencity996-star/lighearth-pro-dev/pkg/hastates"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testHubProvider(cfg config.Config, client *hastates.TestStatesClient, logger *zap.Logger) HubActorProvider {
	cache := hub.NewStateCache(client, cfg.Hub, logger)
	return func() *adactor.HubActor {
		return adactor.NewHubActor(cache, logger)
	}
}

func testHubStates() []hastates.EntityState {
	return []hastates.EntityState{
		{EntityId: "sensor.inv_inverter1_battery_soc", State: "62"},
		{EntityId: "sensor.inv_inverter1_grid_voltage", State: "230.1"},
		{EntityId: "sensor.inv_inverter1_pv_power", State: "900"},
	}
}

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	store := service.NewDeviceStore()
	history := service.NewHistoryStore()
	client := hastates.CreateTestStatesClient(testHubStates())

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterActor(cfg, store, history,
			testHubProvider(cfg, client, logger), func() *adactor.PushActor {
				return adactor.NewTestPushActor(&cfg, logger)
			}, notify.NewTestNotifier(), owners.NewStaticRegistry(nil), logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)
	assert.NotNil(t, healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")

	context.Stop(pid)

	as.Shutdown()
}

func TestMasterForwardsSourceRequests(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logger := zap.NewNop()

	store := service.NewDeviceStore()
	history := service.NewHistoryStore()
	client := hastates.CreateTestStatesClient(testHubStates())

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterActor(cfg, store, history,
			testHubProvider(cfg, client, logger), func() *adactor.PushActor {
				return adactor.NewTestPushActor(&cfg, logger)
			}, notify.NewTestNotifier(), owners.NewStaticRegistry(nil), logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.GetSourceStatusRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	statusResp, ok := res.(domain.GetSourceStatusResponse)
	assert.True(t, ok)
	assert.True(t, statusResp.Status.Push.Configured)
	assert.True(t, statusResp.Status.Pull.Configured)
	assert.NotEqual(t, domain.SourceNone, statusResp.Status.Active)

	res, err = context.RequestFuture(pid, domain.GetKnownDevicesRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	devicesResp, ok := res.(domain.GetKnownDevicesResponse)
	assert.True(t, ok)
	assert.Contains(t, devicesResp.Devices, "inverter1")

	context.Stop(pid)

	as.Shutdown()
}
