package weather

import (
	"time"
)

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Key returns a canonical string key for indexing coordinates in stores.
func (c Coordinates) Key() string {
	return formatCoord(c.Latitude) + ":" + formatCoord(c.Longitude)
}

// Station is a user-owned sensor location. PlaceName is derived from the
// coordinates and may lag behind them until the next successful lookup.
type Station struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Name      string    `json:"name" db:"name"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	PlaceName string    `json:"place_name" db:"place_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Coordinates returns the station position.
func (s Station) Coordinates() Coordinates {
	return Coordinates{Latitude: s.Latitude, Longitude: s.Longitude}
}

// Measurement is one timestamped sensor reading. Temperature and humidity are
// always reported; the remaining channels depend on the station hardware.
type Measurement struct {
	ID            string    `json:"id" db:"id"`
	StationID     string    `json:"station_id" db:"station_id"`
	Timestamp     time.Time `json:"timestamp" db:"observed_at"`
	Temperature   float64   `json:"temperature" db:"temperature"`
	Humidity      float64   `json:"humidity" db:"humidity"`
	Pressure      *float64  `json:"pressure,omitempty" db:"pressure"`
	Rain          *float64  `json:"rain,omitempty" db:"rain"`
	WindSpeed     *float64  `json:"wind_speed,omitempty" db:"wind_speed"`
	WindDirection *float64  `json:"wind_direction,omitempty" db:"wind_direction"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// DailyStat is the aggregate of one station's measurements over one local
// calendar day. Day holds the civil date at UTC midnight.
type DailyStat struct {
	StationID     string    `json:"station_id" db:"station_id"`
	Day           time.Time `json:"day" db:"stat_date"`
	Temperature   *float64  `json:"temperature" db:"temperature"`
	Humidity      *float64  `json:"humidity" db:"humidity"`
	Pressure      *float64  `json:"pressure,omitempty" db:"pressure"`
	Rain          *float64  `json:"rain,omitempty" db:"rain"`
	WindSpeed     *float64  `json:"wind_speed,omitempty" db:"wind_speed"`
	WindDirection *float64  `json:"wind_direction,omitempty" db:"wind_direction"`
	Samples       int       `json:"samples" db:"samples"`
	Final         bool      `json:"final" db:"final"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// DailySeries holds the provider's per-day forecast arrays. Index i of every
// slice describes the same forecast day.
type DailySeries struct {
	Time                 []string  `json:"time"`
	TemperatureMean      []float64 `json:"temperature_mean"`
	TemperatureInstant   []float64 `json:"temperature_instant"`
	TemperatureMax       []float64 `json:"temperature_max"`
	TemperatureMin       []float64 `json:"temperature_min"`
	FeltTemperatureMax   []float64 `json:"felttemperature_max"`
	FeltTemperatureMin   []float64 `json:"felttemperature_min"`
	HumidityMean         []float64 `json:"relativehumidity_mean"`
	WindSpeedMean        []float64 `json:"windspeed_mean"`
	SeaLevelPressureMean []float64 `json:"sealevelpressure_mean"`
	Precipitation        []float64 `json:"precipitation"`
	PrecipitationHours   []float64 `json:"precipitation_hours"`
	Predictability       []float64 `json:"predictability"`
	Pictocode            []int     `json:"pictocode"`
	WindDirection        []float64 `json:"winddirection"`
	UVIndex              []float64 `json:"uvindex"`
}

// Len returns the number of forecast days.
func (d DailySeries) Len() int {
	return len(d.Time)
}

// ForecastDay is one row of a DailySeries.
type ForecastDay struct {
	Date                 string   `json:"date"`
	TemperatureMean      *float64 `json:"temperature_mean,omitempty"`
	TemperatureInstant   *float64 `json:"temperature_instant,omitempty"`
	TemperatureMax       *float64 `json:"temperature_max,omitempty"`
	TemperatureMin       *float64 `json:"temperature_min,omitempty"`
	FeltTemperatureMax   *float64 `json:"felt_temperature_max,omitempty"`
	FeltTemperatureMin   *float64 `json:"felt_temperature_min,omitempty"`
	HumidityMean         *float64 `json:"humidity_mean,omitempty"`
	WindSpeedMean        *float64 `json:"wind_speed_mean,omitempty"`
	SeaLevelPressureMean *float64 `json:"sea_level_pressure_mean,omitempty"`
	Precipitation        *float64 `json:"precipitation,omitempty"`
	PrecipitationHours   *float64 `json:"precipitation_hours,omitempty"`
	Predictability       *float64 `json:"predictability,omitempty"`
	Pictocode            *int     `json:"pictocode,omitempty"`
	WindDirection        *float64 `json:"wind_direction,omitempty"`
	UVIndex              *float64 `json:"uv_index,omitempty"`
}

// Days zips the parallel arrays into one record per forecast day. A value
// missing from a shorter array is left nil.
func (d DailySeries) Days() []ForecastDay {
	days := make([]ForecastDay, 0, d.Len())
	for i, date := range d.Time {
		days = append(days, ForecastDay{
			Date:                 date,
			TemperatureMean:      at(d.TemperatureMean, i),
			TemperatureInstant:   at(d.TemperatureInstant, i),
			TemperatureMax:       at(d.TemperatureMax, i),
			TemperatureMin:       at(d.TemperatureMin, i),
			FeltTemperatureMax:   at(d.FeltTemperatureMax, i),
			FeltTemperatureMin:   at(d.FeltTemperatureMin, i),
			HumidityMean:         at(d.HumidityMean, i),
			WindSpeedMean:        at(d.WindSpeedMean, i),
			SeaLevelPressureMean: at(d.SeaLevelPressureMean, i),
			Precipitation:        at(d.Precipitation, i),
			PrecipitationHours:   at(d.PrecipitationHours, i),
			Predictability:       at(d.Predictability, i),
			Pictocode:            at(d.Pictocode, i),
			WindDirection:        at(d.WindDirection, i),
			UVIndex:              at(d.UVIndex, i),
		})
	}
	return days
}

func at[T any](values []T, i int) *T {
	if i >= len(values) {
		return nil
	}
	v := values[i]
	return &v
}

// ForecastSnapshot is one persisted response from the forecast provider.
type ForecastSnapshot struct {
	ID               string      `json:"id"`
	Latitude         float64     `json:"latitude"`
	Longitude        float64     `json:"longitude"`
	ModelRun         time.Time   `json:"model_run"`
	ModelRunUpdated  time.Time   `json:"model_run_updated"`
	UTCOffset        float64     `json:"utc_offset"`
	GenerationTimeMs float64     `json:"generation_time_ms"`
	CreatedAt        time.Time   `json:"created_at"` // always UTC
	Daily            DailySeries `json:"data_day"`
}

// Coordinates returns the position the forecast was served for.
func (f ForecastSnapshot) Coordinates() Coordinates {
	return Coordinates{Latitude: f.Latitude, Longitude: f.Longitude}
}

// Place is a single place-search result.
type Place struct {
	Name    string  `json:"name"`
	Country string  `json:"country,omitempty"`
	Admin1  string  `json:"admin1,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lon     float64 `json:"lon,omitempty"`
}
