package models

import "time"

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WeatherSnapshot is the current conditions for one location as returned by the provider.
type WeatherSnapshot struct {
	CityID      int64       `json:"cityId"`
	Name        string      `json:"name"`
	Country     string      `json:"country"`
	Coord       Coordinates `json:"coord"`
	Temp        float64     `json:"temp"`
	FeelsLike   float64     `json:"feelsLike"`
	TempMin     float64     `json:"tempMin"`
	TempMax     float64     `json:"tempMax"`
	Pressure    int         `json:"pressure"`
	Humidity    int         `json:"humidity"`
	Condition   string      `json:"condition"`
	Description string      `json:"description"`
	Icon        string      `json:"icon"`
	WindSpeed   float64     `json:"windSpeed"` // m/s
	WindDeg     int         `json:"windDeg"`
	Visibility  int         `json:"visibility"`
	AirQuality  int         `json:"airQuality,omitempty"` // 1 (good) .. 5 (very poor), 0 unknown
	ObservedAt  time.Time   `json:"observedAt"`
	FetchedAt   time.Time   `json:"fetchedAt"`
}

// WindKmh returns the wind speed in km/h.
func (w WeatherSnapshot) WindKmh() float64 {
	return w.WindSpeed * 3.6
}

// ForecastEntry is a single 3-hour forecast point.
type ForecastEntry struct {
	Time              time.Time `json:"time"`
	TimeText          string    `json:"timeText"`
	Temp              float64   `json:"temp"`
	FeelsLike         float64   `json:"feelsLike"`
	TempMin           float64   `json:"tempMin"`
	TempMax           float64   `json:"tempMax"`
	Pressure          int       `json:"pressure"`
	Humidity          int       `json:"humidity"`
	Condition         string    `json:"condition"`
	Description       string    `json:"description"`
	Icon              string    `json:"icon"`
	WindSpeed         float64   `json:"windSpeed"`
	WindDeg           int       `json:"windDeg"`
	PrecipProbability float64   `json:"precipProbability"` // 0..1
	Visibility        int       `json:"visibility"`
}

// WindKmh returns the wind speed in km/h.
func (f ForecastEntry) WindKmh() float64 {
	return f.WindSpeed * 3.6
}

// ForecastSnapshot is the ordered forecast for one location.
type ForecastSnapshot struct {
	City      string          `json:"city"`
	Entries   []ForecastEntry `json:"entries"`
	FetchedAt time.Time       `json:"fetchedAt"`
}
