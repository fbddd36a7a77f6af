package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-station-backend/internal/weather"
)

var validate = validator.New()

// UserHeader carries the authenticated principal set by the gateway.
const UserHeader = "X-User-ID"

const dateLayout = "2006-01-02"

// Deps are the services behind the HTTP surface.
type Deps struct {
	Stations  *weather.StationService
	Stats     *weather.StatAggregator
	Forecasts *weather.ForecastCoordinator
	// Location defines "today" for the default stats window.
	Location *time.Location
	Clock    weather.Clock
}

type access int

const (
	accessPublic access = iota
	accessAuthenticated
	accessOwner
)

// policies lists the access rule of every operation. Owner operations are
// additionally scoped to the caller's stations by the handler.
var policies = map[string]access{
	"createStation":     accessAuthenticated,
	"listStations":      accessAuthenticated,
	"getStation":        accessOwner,
	"updateCoordinates": accessOwner,
	"recordMeasurement": accessOwner,
	"dailyStats":        accessOwner,
	"forecast":          accessOwner,
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Clock == nil {
		deps.Clock = weather.SystemClock
	}
	h := &handlers{deps: deps}

	v1 := app.Group("/api/v1")
	v1.Post("/stations", authorize("createStation"), h.createStation)
	v1.Get("/stations", authorize("listStations"), h.listStations)
	v1.Get("/stations/:id", authorize("getStation"), h.getStation)
	v1.Put("/stations/:id/coordinates", authorize("updateCoordinates"), h.updateCoordinates)
	v1.Post("/stations/:id/measurements", authorize("recordMeasurement"), h.recordMeasurement)
	v1.Get("/stations/:id/stats", authorize("dailyStats"), h.dailyStats)
	v1.Get("/stations/:id/forecast", authorize("forecast"), h.forecast)
}

// authorize enforces the policy registered for op.
func authorize(op string) fiber.Handler {
	rule, ok := policies[op]
	if !ok {
		panic("httpapi: no access policy for " + op)
	}
	return func(c *fiber.Ctx) error {
		if rule == accessPublic {
			return c.Next()
		}
		user := strings.TrimSpace(c.Get(UserHeader))
		if user == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		c.Locals("user", user)
		return c.Next()
	}
}

func principal(c *fiber.Ctx) string {
	user, _ := c.Locals("user").(string)
	return user
}

type handlers struct {
	deps Deps
}

type createStationRequest struct {
	Name      string   `json:"name" validate:"required,max=100"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

func (h *handlers) createStation(c *fiber.Ctx) error {
	var req createStationRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	st, err := h.deps.Stations.CreateStation(c.UserContext(), principal(c), req.Name, weather.Coordinates{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(st)
}

func (h *handlers) listStations(c *fiber.Ctx) error {
	stations, err := h.deps.Stations.Stations(c.UserContext(), principal(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"stations": stations})
}

func (h *handlers) getStation(c *fiber.Ctx) error {
	st, err := h.deps.Stations.OwnedStation(c.UserContext(), principal(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

type coordinatesRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

func (h *handlers) updateCoordinates(c *fiber.Ctx) error {
	var req coordinatesRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	st, err := h.deps.Stations.UpdateCoordinates(c.UserContext(), principal(c), c.Params("id"), weather.Coordinates{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	})
	if err != nil {
		return err
	}
	return c.JSON(st)
}

type measurementRequest struct {
	Timestamp     time.Time `json:"timestamp" validate:"required"`
	Temperature   *float64  `json:"temperature" validate:"required,gte=-100,lte=100"`
	Humidity      *float64  `json:"humidity" validate:"required,gte=0,lte=100"`
	Pressure      *float64  `json:"pressure" validate:"omitempty,gt=0"`
	Rain          *float64  `json:"rain" validate:"omitempty,gte=0"`
	WindSpeed     *float64  `json:"wind_speed" validate:"omitempty,gte=0"`
	WindDirection *float64  `json:"wind_direction" validate:"omitempty,gte=0,lt=360"`
}

func (h *handlers) recordMeasurement(c *fiber.Ctx) error {
	var req measurementRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	m, err := h.deps.Stations.RecordMeasurement(c.UserContext(), principal(c), weather.Measurement{
		StationID:     c.Params("id"),
		Timestamp:     req.Timestamp,
		Temperature:   *req.Temperature,
		Humidity:      *req.Humidity,
		Pressure:      req.Pressure,
		Rain:          req.Rain,
		WindSpeed:     req.WindSpeed,
		WindDirection: req.WindDirection,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// statsQuery holds query parameters for the stats endpoint.
type statsQuery struct {
	Start string `query:"start" validate:"omitempty,datetime=2006-01-02"`
	End   string `query:"end" validate:"omitempty,datetime=2006-01-02"`
}

type dailyStatResponse struct {
	Day           string   `json:"day"`
	Temperature   *float64 `json:"temperature"`
	Humidity      *float64 `json:"humidity"`
	Pressure      *float64 `json:"pressure,omitempty"`
	Rain          *float64 `json:"rain,omitempty"`
	WindSpeed     *float64 `json:"wind_speed,omitempty"`
	WindDirection *float64 `json:"wind_direction,omitempty"`
	Samples       int      `json:"samples"`
	Final         bool     `json:"final"`
}

func (h *handlers) dailyStats(c *fiber.Ctx) error {
	var q statsQuery
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	start, end, err := h.statsWindow(q)
	if err != nil {
		return err
	}

	st, err := h.deps.Stations.OwnedStation(c.UserContext(), principal(c), c.Params("id"))
	if err != nil {
		return err
	}

	stats, err := h.deps.Stats.ComputeRange(c.UserContext(), st.ID, start, end)
	if err != nil {
		return err
	}

	out := make([]dailyStatResponse, 0, len(stats))
	for _, s := range stats {
		out = append(out, dailyStatResponse{
			Day:           s.Day.Format(dateLayout),
			Temperature:   s.Temperature,
			Humidity:      s.Humidity,
			Pressure:      s.Pressure,
			Rain:          s.Rain,
			WindSpeed:     s.WindSpeed,
			WindDirection: s.WindDirection,
			Samples:       s.Samples,
			Final:         s.Final,
		})
	}

	return c.JSON(fiber.Map{
		"station": st.ID,
		"start":   start.Format(dateLayout),
		"end":     end.Format(dateLayout),
		"stats":   out,
	})
}

// statsWindow resolves the requested days. A missing end means today and a
// missing start means six days before end.
func (h *handlers) statsWindow(q statsQuery) (time.Time, time.Time, error) {
	end := weather.CivilDay(h.deps.Clock().In(h.deps.Location))
	if q.End != "" {
		t, err := time.Parse(dateLayout, q.End)
		if err != nil {
			return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "invalid end date")
		}
		end = t
	}
	start := end.AddDate(0, 0, -6)
	if q.Start != "" {
		t, err := time.Parse(dateLayout, q.Start)
		if err != nil {
			return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "invalid start date")
		}
		start = t
	}
	return start, end, nil
}

func (h *handlers) forecast(c *fiber.Ctx) error {
	st, err := h.deps.Stations.OwnedStation(c.UserContext(), principal(c), c.Params("id"))
	if err != nil {
		return err
	}

	snap, err := h.deps.Forecasts.Fetch(c.UserContext(), st.ID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"station":    st.ID,
		"latitude":   snap.Latitude,
		"longitude":  snap.Longitude,
		"model_run":  snap.ModelRun,
		"utc_offset": snap.UTCOffset,
		"fetched_at": snap.CreatedAt,
		"days":       snap.Daily.Days(),
	})
}

func bindBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// ErrorHandler renders every error as {"error": true, "message": ...} with a
// status derived from the error kind. Internal errors get a generic message.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code, message = fe.Code, fe.Message
	case errors.Is(err, weather.ErrNotFound):
		code, message = fiber.StatusNotFound, "station not found"
	case errors.Is(err, weather.ErrInvalidRange), errors.Is(err, weather.ErrValidation):
		code, message = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, weather.ErrUpstream):
		code, message = fiber.StatusBadGateway, upstreamMessage(err)
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}

func upstreamMessage(err error) string {
	var ue *weather.UpstreamError
	if errors.As(err, &ue) && ue.StatusCode != 0 {
		return "forecast provider unavailable (status " + strconv.Itoa(ue.StatusCode) + ")"
	}
	return "forecast provider unavailable"
}
