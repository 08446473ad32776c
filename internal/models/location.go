package models

import (
	"strconv"
	"strings"
)

// FavoriteCity is the persisted record of a saved city. Unique by ID.
type FavoriteCity struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

// LocationKind distinguishes the synthetic GPS entry from saved cities.
type LocationKind string

const (
	LocationGPS   LocationKind = "gps"
	LocationSaved LocationKind = "saved"
)

// LocationKey is a stable identity for a location, independent of its list position.
type LocationKey string

// GPSKey is the key of the GPS entry.
const GPSKey LocationKey = "gps"

// CityKey returns the key of a saved city with the given provider id.
func CityKey(id int64) LocationKey {
	return LocationKey("city:" + strconv.FormatInt(id, 10))
}

// Location is one entry of the addressable location sequence.
type Location struct {
	Kind    LocationKind `json:"kind"`
	CityID  int64        `json:"cityId,omitempty"`
	Name    string       `json:"name"`
	Country string       `json:"country,omitempty"`
}

// Key returns the stable key for the location.
func (l Location) Key() LocationKey {
	if l.Kind == LocationGPS {
		return GPSKey
	}
	return CityKey(l.CityID)
}

// IsGPS reports whether l is the GPS entry.
func (l Location) IsGPS() bool {
	return l.Kind == LocationGPS
}

// SameName reports whether l's display name matches name case-insensitively.
func (l Location) SameName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(l.Name), strings.TrimSpace(name))
}
