package service

import (
	"sort"
	"sync"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
)

// DeviceStore holds the latest canonical reading and cell reading per
// device. Updates replace the whole record, so a reader never observes a
// torn mix of two updates; across updates the last completed write wins.
//
// The store is shared between the push-session callback goroutine, the
// failover actor and the read-only consumers (sampler, alerter, HTTP), so
// access is serialized here rather than in any single owner.
type DeviceStore struct {
	mu       sync.RWMutex
	readings map[string]domain.InverterReading
	cells    map[string]domain.CellReading
}

func NewDeviceStore() *DeviceStore {
	return &DeviceStore{
		readings: map[string]domain.InverterReading{},
		cells:    map[string]domain.CellReading{},
	}
}

func (s *DeviceStore) SetReading(r domain.InverterReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[r.DeviceId] = r
}

func (s *DeviceStore) Reading(deviceId string) (domain.InverterReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings[deviceId]
	return r, ok
}

func (s *DeviceStore) SetCells(c domain.CellReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells[c.DeviceId] = c
}

func (s *DeviceStore) Cells(deviceId string) (domain.CellReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cells[deviceId]
	return c, ok
}

func (s *DeviceStore) Readings() []domain.InverterReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.InverterReading, 0, len(s.readings))
	for _, r := range s.readings {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceId < out[j].DeviceId })
	return out
}

// DeviceIds lists every device seen on any channel, including devices that
// so far only delivered cell telemetry.
func (s *DeviceStore) DeviceIds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool, len(s.readings))
	ids := make([]string, 0, len(s.readings))
	for id := range s.readings {
		seen[id] = true
		ids = append(ids, id)
	}
	for id := range s.cells {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
