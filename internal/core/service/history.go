package service

import (
	"sort"
	"sync"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
)

// HistoryStore keeps a bounded in-memory power time series per device and
// local calendar day. It exists because the hub frequently does not retain
// history for fast-changing power sensors. Volatile by design: the series
// is rebuilt from live sampling after a restart.
type HistoryStore struct {
	mu   sync.Mutex
	days map[string]map[domain.DayKey][]domain.HistoryPoint
	now  func() time.Time
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		days: map[string]map[domain.DayKey][]domain.HistoryPoint{},
		now:  time.Now,
	}
}

// Append records one sample under the device's current local day. Every
// tick appends; duplicate or missing ticks are sampling jitter, not
// corrected.
func (s *HistoryStore) Append(deviceId string, p domain.HistoryPoint) {
	key := domain.DayKeyFor(p.Timestamp)
	s.mu.Lock()
	defer s.mu.Unlock()
	byDay, ok := s.days[deviceId]
	if !ok {
		byDay = map[domain.DayKey][]domain.HistoryPoint{}
		s.days[deviceId] = byDay
	}
	byDay[key] = append(byDay[key], p)
}

// Sample builds a history point from a canonical reading. Absent fields
// stay nil; no forward-fill.
func Sample(r domain.InverterReading, at time.Time) domain.HistoryPoint {
	return domain.HistoryPoint{
		Timestamp:    at,
		PVPower:      r.PVTotalPower,
		BatteryPower: r.BatteryPower,
		BatterySoC:   r.BatterySoC,
		GridPower:    r.GridPower,
		LoadPower:    r.LoadPower,
	}
}

// Purge drops whole day-keys older than the retention window. Granularity
// is per day, not per point.
func (s *HistoryStore) Purge(retentionDays int) {
	cutoff := domain.DayKeyFor(s.now().AddDate(0, 0, -retentionDays))
	s.mu.Lock()
	defer s.mu.Unlock()
	for deviceId, byDay := range s.days {
		for key := range byDay {
			if key < cutoff {
				delete(byDay, key)
			}
		}
		if len(byDay) == 0 {
			delete(s.days, deviceId)
		}
	}
}

// Series returns the points for one device+day. ok is false when that key
// was never collected; KnownDays then lets the caller tell "wrong date"
// from "never collected".
func (s *HistoryStore) Series(deviceId string, day domain.DayKey) ([]domain.HistoryPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDay, ok := s.days[deviceId]
	if !ok {
		return nil, false
	}
	points, ok := byDay[day]
	if !ok {
		return nil, false
	}
	out := make([]domain.HistoryPoint, len(points))
	copy(out, points)
	return out, true
}

func (s *HistoryStore) KnownDays(deviceId string) []domain.DayKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDay := s.days[deviceId]
	keys := make([]domain.DayKey, 0, len(byDay))
	for key := range byDay {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
