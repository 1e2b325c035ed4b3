package server

import (
	"net/http"
	"time"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
	"github.com/dimencity996-star/lighearth-pro-dev/internal/hub"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const askTimeout = 10 * time.Second

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)
	e.GET("/devices", s.DevicesHandler)
	e.GET("/devices/:id/reading", s.ReadingHandler)
	e.GET("/devices/:id/cells", s.CellsHandler)
	e.GET("/devices/:id/history/:day", s.HistoryHandler)
	e.POST("/devices/:id/refresh", s.RefreshHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, askTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StatusHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetSourceStatusRequest{}, askTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.GetSourceStatusResponse)
	if !ok || response.HasResponseError() {
		return c.JSON(http.StatusServiceUnavailable, errorBody(responseError(res)))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"version": versioninfo.Short(),
		"source":  response.Status,
	})
}

func (s *Server) DevicesHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetKnownDevicesRequest{}, askTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.GetKnownDevicesResponse)
	if !ok || response.HasResponseError() {
		return c.JSON(http.StatusServiceUnavailable, errorBody(responseError(res)))
	}
	devices := response.Devices
	if devices == nil {
		devices = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) ReadingHandler(c echo.Context) error {
	deviceId := c.Param("id")
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetReadingRequest{DeviceId: deviceId}, askTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.GetReadingResponse)
	if !ok || response.HasResponseError() {
		return c.JSON(http.StatusServiceUnavailable, errorBody(responseError(res)))
	}
	if !response.Known {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "unknown device", "device_id": deviceId})
	}
	// the device exists but neither source has produced telemetry yet
	if response.Reading == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "waiting for data", "device_id": deviceId})
	}
	return c.JSON(http.StatusOK, response.Reading)
}

// CellsHandler reads the store directly: cell telemetry only ever arrives
// over push and is never fetched on demand.
func (s *Server) CellsHandler(c echo.Context) error {
	deviceId := c.Param("id")
	cells, ok := s.store.Cells(deviceId)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "no cell data", "device_id": deviceId})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"device_id": cells.DeviceId,
		"timestamp": cells.Timestamp,
		"cells":     cells.Cells,
		"stats":     cells.Stats(),
	})
}

// HistoryHandler distinguishes "bad date", "never collected that day" and
// "collected": a 404 carries the list of days that do exist. Days the
// sampler never saw fall back to the hub recorder for a single field
// (?field=..., pv_power by default).
func (s *Server) HistoryHandler(c echo.Context) error {
	deviceId := c.Param("id")
	day, err := domain.ParseDayKey(c.Param("day"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid day, expected YYYY-MM-DD"})
	}
	points, ok := s.history.Series(deviceId, day)
	if !ok {
		if hubPoints, ok := s.hubHistory(deviceId, c.QueryParam("field"), day); ok {
			return c.JSON(http.StatusOK, map[string]any{
				"device_id": deviceId,
				"day":       day,
				"source":    "hub",
				"points":    hubPoints,
			})
		}
		return c.JSON(http.StatusNotFound, map[string]any{
			"error":      "no history for day",
			"device_id":  deviceId,
			"day":        day,
			"known_days": s.history.KnownDays(deviceId),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"device_id": deviceId,
		"day":       day,
		"points":    points,
	})
}

func (s *Server) hubHistory(deviceId, field string, day domain.DayKey) ([]domain.HistoryPoint, bool) {
	if field == "" {
		field = hub.FIELD_PV_POWER
	}
	start := day.Time()
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetHubHistoryRequest{
		DeviceId: deviceId,
		Field:    field,
		Start:    start,
		End:      start.Add(24 * time.Hour),
	}, askTimeout).Result()
	if err != nil {
		return nil, false
	}
	response, ok := res.(domain.GetHubHistoryResponse)
	if !ok || response.HasResponseError() || len(response.Points) == 0 {
		return nil, false
	}
	return response.Points, true
}

func (s *Server) RefreshHandler(c echo.Context) error {
	deviceId := c.Param("id")
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.RefreshDeviceRequest{DeviceId: deviceId}, askTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.RefreshDeviceResponse)
	if !ok || response.HasResponseError() {
		return c.JSON(http.StatusBadGateway, errorBody(responseError(res)))
	}
	return c.JSON(http.StatusAccepted, map[string]any{"device_id": deviceId, "refresh": "requested"})
}

func errorBody(err error) map[string]any {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return map[string]any{"error": msg}
}

func responseError(res any) error {
	if resp, ok := res.(domain.ActorResponse); ok && resp.HasResponseError() {
		return resp.GetResponseError()
	}
	return nil
}
