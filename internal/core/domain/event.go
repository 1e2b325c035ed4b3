package domain

import "time"

// Events published on the actor system event stream.

// SourceChangedEvent fires whenever the failover manager switches the
// authoritative source. Consumers may use it to annotate responses.
type SourceChangedEvent struct {
	Previous Source
	Current  Source
	At       time.Time
}

// ReadingUpdatedEvent fires after a completed reading update for a device.
type ReadingUpdatedEvent struct {
	DeviceId string
	Source   Source
	At       time.Time
}
