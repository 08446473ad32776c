// Package locations derives the addressable location sequence from favorites.
package locations

import "github.com/kjstillabower/weather-deck/internal/models"

// DefaultGPSLabel names the GPS entry.
const DefaultGPSLabel = "Current location"

// Build returns [GPS] followed by one Saved entry per favorite, in order.
func Build(gpsLabel string, favs []models.FavoriteCity) []models.Location {
	if gpsLabel == "" {
		gpsLabel = DefaultGPSLabel
	}
	out := make([]models.Location, 0, len(favs)+1)
	out = append(out, models.Location{Kind: models.LocationGPS, Name: gpsLabel})
	for _, f := range favs {
		out = append(out, models.Location{
			Kind:    models.LocationSaved,
			CityID:  f.ID,
			Name:    f.Name,
			Country: f.Country,
		})
	}
	return out
}

// IndexOf returns the position of key in locs, or -1.
func IndexOf(locs []models.Location, key models.LocationKey) int {
	for i, l := range locs {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

// FindByName returns the first position whose name matches case-insensitively, or -1.
func FindByName(locs []models.Location, name string) int {
	for i, l := range locs {
		if l.SameName(name) {
			return i
		}
	}
	return -1
}
