package actor

import (
	"testing"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/service"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSamplerCombinesHubAndStoreDevices(t *testing.T) {

	require := require.New(t)

	cfg := util.LoadTestConfig()
	store := service.NewDeviceStore()
	history := service.NewHistoryStore()

	// a device only the push channel has seen
	store.SetReading(domain.InverterReading{
		DeviceId:  "pushonly",
		Timestamp: time.Now(),
		Source:    domain.SourcePush,
		LoadPower: domain.Float(350),
	})
	// the same device the hub also reports must not be double-sampled
	store.SetReading(domain.InverterReading{
		DeviceId:   "inverter1",
		Timestamp:  time.Now(),
		Source:     domain.SourcePush,
		BatterySoC: domain.Float(50),
	})

	sampler := NewSamplerActor(cfg, store, history, nil, zap.NewNop())
	sampler.sample([]domain.InverterReading{
		{
			DeviceId:     "inverter1",
			Timestamp:    time.Now(),
			Source:       domain.SourcePull,
			BatterySoC:   domain.Float(62),
			PVTotalPower: domain.Float(900),
		},
	})

	today := domain.DayKeyFor(time.Now())

	points, ok := history.Series("inverter1", today)
	require.True(ok)
	require.Len(points, 1)
	// the hub snapshot wins for devices both channels know
	assert.Equal(t, 62.0, *points[0].BatterySoC)

	points, ok = history.Series("pushonly", today)
	require.True(ok)
	require.Len(points, 1)
	assert.Equal(t, 350.0, *points[0].LoadPower)
}

func TestSamplerSkipsEmptyReadings(t *testing.T) {

	cfg := util.LoadTestConfig()
	store := service.NewDeviceStore()
	history := service.NewHistoryStore()

	store.SetReading(domain.InverterReading{DeviceId: "ghost", Timestamp: time.Now()})

	sampler := NewSamplerActor(cfg, store, history, nil, zap.NewNop())
	sampler.sample(nil)

	_, ok := history.Series("ghost", domain.DayKeyFor(time.Now()))
	assert.False(t, ok)
}
