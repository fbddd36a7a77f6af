package weather

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/i474232898/weather-station-backend/internal/metrics"
)

// PlaceResolver turns coordinates into a human-readable place name using the
// provider's place search.
type PlaceResolver struct {
	searcher PlaceSearcher
	log      *zap.SugaredLogger
}

// NewPlaceResolver creates a PlaceResolver.
func NewPlaceResolver(searcher PlaceSearcher, log *zap.SugaredLogger) *PlaceResolver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PlaceResolver{searcher: searcher, log: log}
}

// ResolvePlaceName returns the name of the first place found near the given
// position. An empty result list is not an error and yields "".
func (r *PlaceResolver) ResolvePlaceName(ctx context.Context, latitude, longitude float64) (string, error) {
	places, err := r.searcher.SearchPlaces(ctx, FormatDMS(latitude, longitude))
	if err != nil {
		return "", err
	}
	if len(places) == 0 {
		return "", nil
	}
	return places[0].Name, nil
}

// PlaceNameOrEmpty resolves c and swallows any failure, for call sites where
// the place name is optional enrichment.
func (r *PlaceResolver) PlaceNameOrEmpty(ctx context.Context, c Coordinates) string {
	name, err := r.ResolvePlaceName(ctx, c.Latitude, c.Longitude)
	if err != nil {
		metrics.GeocodeFailuresTotal.Inc()
		r.log.Warnw("place name lookup failed", "coordinates", c.Key(), "error", err)
		return ""
	}
	return name
}

// FormatDMS renders a position in degrees, minutes and whole seconds with a
// hemisphere letter, e.g. 47°33'30"N 7°34'24"E.
func FormatDMS(latitude, longitude float64) string {
	return formatDMSAxis(latitude, "N", "S") + " " + formatDMSAxis(longitude, "E", "W")
}

func formatDMSAxis(v float64, pos, neg string) string {
	hemi := pos
	if v < 0 {
		hemi = neg
	}

	total := int(math.Round(math.Abs(v) * 3600))
	deg := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60

	return fmt.Sprintf("%d°%d'%d\"%s", deg, mins, secs, hemi)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
