package hastates

import "time"

// EntityState is one sensor entity as reported by the hub's REST API.
type EntityState struct {
	EntityId    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}

const (
	STATE_UNKNOWN     = "unknown"
	STATE_UNAVAILABLE = "unavailable"
)

// Reported is false for the hub's "I have no value" sentinels.
func (s EntityState) Reported() bool {
	return s.State != "" && s.State != STATE_UNKNOWN && s.State != STATE_UNAVAILABLE
}
