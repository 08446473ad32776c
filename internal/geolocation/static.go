package geolocation

import (
	"context"

	"github.com/kjstillabower/weather-deck/internal/models"
)

// Static reports a fixed, configured position. A zero position is treated as
// "not configured" and yields ErrUnsupported.
type Static struct {
	Coord models.Coordinates
}

func (s Static) CurrentPosition(ctx context.Context, _ Options) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, ErrTimeout
	}
	if s.Coord.Lat == 0 && s.Coord.Lon == 0 {
		return models.Coordinates{}, ErrUnsupported
	}
	return s.Coord, nil
}
