package domain

import "time"

const (
	ACTOR_ID_MASTER   = "master"
	ACTOR_ID_FAILOVER = "failover"
	ACTOR_ID_HUB      = "hub"
	ACTOR_ID_PUSH     = "push"
	ACTOR_ID_SAMPLER  = "sampler"
	ACTOR_ID_ALERTER  = "alerter"
)

// Hub (pull source) actor messages

type GetHubReadingRequest struct {
	ActorRequestMixIn
	DeviceId string
}

type GetHubReadingResponse struct {
	ActorResponseMixIn
	Reading *InverterReading
	Exists  bool
}

type GetHubReadingsRequest struct {
	ActorRequestMixIn
}

type GetHubReadingsResponse struct {
	ActorResponseMixIn
	Readings []InverterReading
}

type ScanDevicesRequest struct {
	ActorRequestMixIn
}

type ScanDevicesResponse struct {
	ActorResponseMixIn
	Devices []string
}

type HubProbeRequest struct {
	ActorRequestMixIn
}

type HubProbeResponse struct {
	ActorResponseMixIn
	Available bool
}

type HubForceRefreshRequest struct {
	ActorRequestMixIn
}

type HubForceRefreshResponse struct {
	ActorResponseMixIn
}

// GetHubHistoryRequest asks the hub recorder for one field of one device
// between two instants. Served read-through, never cached.
type GetHubHistoryRequest struct {
	ActorRequestMixIn
	DeviceId string
	Field    string
	Start    time.Time
	End      time.Time
}

type GetHubHistoryResponse struct {
	ActorResponseMixIn
	Points []HistoryPoint
}

// Push session actor messages

// PushReadingReceived is sent by the push adapter to its parent for every
// unsolicited device reading delivered over the live session.
type PushReadingReceived struct {
	Reading InverterReading
}

// PushCellsReceived is the cell-level counterpart of PushReadingReceived.
type PushCellsReceived struct {
	Cells CellReading
}

// PushSessionUp signals that the session is connected and subscribed.
type PushSessionUp struct {
}

type PushRefreshRequest struct {
	ActorRequestMixIn
	DeviceId string
}

type PushRefreshResponse struct {
	ActorResponseMixIn
}

// Failover manager messages

type GetSourceStatusRequest struct {
	ActorRequestMixIn
}

type GetSourceStatusResponse struct {
	ActorResponseMixIn
	Status SourceStatus
}

type GetReadingRequest struct {
	ActorRequestMixIn
	DeviceId string
}

type GetReadingResponse struct {
	ActorResponseMixIn
	Reading *InverterReading
	Known   bool
}

type GetKnownDevicesRequest struct {
	ActorRequestMixIn
}

type GetKnownDevicesResponse struct {
	ActorResponseMixIn
	Devices []string
}

type RefreshDeviceRequest struct {
	ActorRequestMixIn
	DeviceId string
}

type RefreshDeviceResponse struct {
	ActorResponseMixIn
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
