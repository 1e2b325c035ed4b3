package hub

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/config"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/port"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/metrics"

	"go.uber.org/zap"
)

// StateCache turns the hub's expensive "fetch every sensor state" call into
// a bounded-rate source of canonical readings for any number of devices.
//
// Failure semantics: fetch errors never surface to readers. The last good
// snapshot stays in place and staleness is visible through SnapshotAge();
// reachability is tracked by a separate availability flag with its own
// recheck interval.
type StateCache struct {
	client port.StatesClient
	cfg    config.HubConfig
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	snapshot    snapshot
	snapshotAt  time.Time
	devices     []string
	devicesAt   time.Time
	available   bool
	availableAt time.Time
}

func NewStateCache(client port.StatesClient, cfg config.HubConfig, logger *zap.Logger) *StateCache {
	return &StateCache{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "hub_cache")),
		now:    time.Now,
	}
}

func (c *StateCache) snapshotTTL() time.Duration {
	return time.Duration(c.cfg.SnapshotTTLMillis) * time.Millisecond
}

func (c *StateCache) deviceScanTTL() time.Duration {
	return time.Duration(c.cfg.DeviceScanTTLMillis) * time.Millisecond
}

func (c *StateCache) probeInterval() time.Duration {
	return time.Duration(c.cfg.ProbeIntervalMillis) * time.Millisecond
}

// RefreshSnapshot fetches the full state list if the cached one is older
// than the refresh interval or missing. Errors degrade availability but are
// swallowed: callers keep reading the stale snapshot.
func (c *StateCache) RefreshSnapshot(ctx context.Context) {
	c.mu.Lock()
	fresh := c.snapshot != nil && c.now().Sub(c.snapshotAt) < c.snapshotTTL()
	c.mu.Unlock()
	if fresh {
		return
	}
	c.fetchSnapshot(ctx)
}

// ForceRefresh bypasses the TTL. Used when a caller needs the freshest
// possible value, not just whatever is cached.
func (c *StateCache) ForceRefresh(ctx context.Context) error {
	return c.fetchSnapshot(ctx)
}

// fetchSnapshot does the network call without holding the lock, then swaps
// the snapshot in one critical section.
func (c *StateCache) fetchSnapshot(ctx context.Context) error {
	states, err := c.client.States(ctx)
	now := c.now()
	if err != nil {
		metrics.HubFetchFailures.Inc()
		c.logger.Warn("hub snapshot fetch failed, keeping stale snapshot", zap.Error(err))
		c.mu.Lock()
		c.available = false
		c.availableAt = now
		c.mu.Unlock()
		return err
	}
	idx := indexStates(states)
	c.mu.Lock()
	c.snapshot = idx
	c.snapshotAt = now
	c.available = true
	c.availableAt = now
	c.mu.Unlock()
	return nil
}

// Reading maps the device's slice of the snapshot into a canonical reading.
// The second return is false when the snapshot holds no reported field for
// the device at all.
func (c *StateCache) Reading(ctx context.Context, deviceId string) (*domain.InverterReading, bool) {
	c.RefreshSnapshot(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil || !c.deviceInSnapshot(c.snapshot, deviceId) {
		return nil, false
	}
	r := c.mapReading(c.snapshot, deviceId, c.snapshotAt)
	return &r, true
}

// Readings returns a canonical reading for every known device.
func (c *StateCache) Readings(ctx context.Context) []domain.InverterReading {
	devices := c.KnownDevices(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil
	}
	readings := make([]domain.InverterReading, 0, len(devices))
	for _, id := range devices {
		readings = append(readings, c.mapReading(c.snapshot, id, c.snapshotAt))
	}
	return readings
}

// KnownDevices derives the device set purely by pattern-matching entity
// names. Device sets change rarely, so the scan is cached on a longer
// interval than the snapshot itself.
func (c *StateCache) KnownDevices(ctx context.Context) []string {
	c.RefreshSnapshot(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.devices != nil && c.now().Sub(c.devicesAt) < c.deviceScanTTL() {
		return c.devices
	}
	if c.snapshot == nil {
		return nil
	}
	devices := c.scanDevices(c.snapshot)
	sort.Strings(devices)
	c.devices = devices
	c.devicesAt = c.now()
	return devices
}

func (c *StateCache) DeviceExists(ctx context.Context, deviceId string) bool {
	c.RefreshSnapshot(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot != nil && c.deviceInSnapshot(c.snapshot, deviceId)
}

// Available reports hub reachability, rechecking with a cheap ping at most
// once per probe interval.
func (c *StateCache) Available(ctx context.Context) bool {
	c.mu.Lock()
	if !c.availableAt.IsZero() && c.now().Sub(c.availableAt) < c.probeInterval() {
		available := c.available
		c.mu.Unlock()
		return available
	}
	c.mu.Unlock()

	err := c.client.Ping(ctx)
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = err == nil
	c.availableAt = now
	return c.available
}

// SnapshotAge is the staleness of the current snapshot. Readers use it to
// distinguish "fresh" from "best known" data.
func (c *StateCache) SnapshotAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshotAt.IsZero() {
		return -1
	}
	return c.now().Sub(c.snapshotAt)
}

// History passes the hub's optional recorder query through unchanged.
func (c *StateCache) History(ctx context.Context, deviceId, field string, start, end time.Time) ([]domain.HistoryPoint, error) {
	states, err := c.client.History(ctx, EntityId(c.cfg.EntityPrefix, deviceId, field), start, end)
	if err != nil {
		return nil, err
	}
	points := make([]domain.HistoryPoint, 0, len(states))
	for _, s := range states {
		if !s.Reported() {
			continue
		}
		v := c.floatField(snapshot{s.EntityId: s}, deviceId, field)
		if v == nil {
			continue
		}
		p := domain.HistoryPoint{Timestamp: s.LastUpdated}
		switch field {
		case FIELD_PV_POWER:
			p.PVPower = v
		case FIELD_BATTERY_POWER:
			p.BatteryPower = v
		case FIELD_GRID_POWER:
			p.GridPower = v
		case FIELD_LOAD_POWER:
			p.LoadPower = v
		case FIELD_BATTERY_SOC:
			p.BatterySoC = v
		}
		points = append(points, p)
	}
	return points, nil
}
