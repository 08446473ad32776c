package deck

import (
	"github.com/kjstillabower/weather-deck/internal/models"
)

const (
	hourlyEntries = 10
	// Forecast points are three hours apart, so every 8th is one per day.
	dailyStride = 8
	// Precipitation chance is shown from this probability up.
	precipThreshold = 0.2
)

// View is everything needed to render the viewed location.
type View struct {
	Index      int              `json:"index"`
	Count      int              `json:"count"`
	Location   models.Location  `json:"location"`
	State      models.LoadState `json:"state"`
	IsFavorite bool             `json:"isFavorite"`
	// ManualSearch offers city search when the GPS entry cannot be located.
	ManualSearch bool                   `json:"manualSearch"`
	WindKmh      float64                `json:"windKmh,omitempty"`
	Hourly       []models.ForecastEntry `json:"hourly,omitempty"`
	Daily        []models.ForecastEntry `json:"daily,omitempty"`
}

// ForecastDetail is a single forecast point as shown in the detail view.
type ForecastDetail struct {
	models.ForecastEntry
	WindKmh           float64 `json:"windKmh"`
	ShowPrecipitation bool    `json:"showPrecipitation"`
}

// View returns a snapshot of the viewed location.
func (d *Deck) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()

	loc := d.locs[d.viewed]
	state := d.stateLocked(loc.Key())
	v := View{
		Index:    d.viewed,
		Count:    len(d.locs),
		Location: loc,
		State:    state,
	}
	if state.Loaded() {
		v.IsFavorite = d.favs.Contains(state.Weather.CityID)
		v.WindKmh = state.Weather.WindKmh()
	}
	if loc.IsGPS() && state.FailedWith(models.ErrorGPSUnavailable) {
		v.ManualSearch = true
	}
	if state.Forecast != nil {
		v.Hourly = HourlyStrip(state.Forecast.Entries)
		v.Daily = DailyStrip(state.Forecast.Entries)
	}
	return v
}

// ForecastItem returns forecast point i of the viewed location.
func (d *Deck) ForecastItem(i int) (ForecastDetail, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := d.stateLocked(d.locs[d.viewed].Key())
	if !state.Loaded() {
		return ForecastDetail{}, ErrNotLoaded
	}
	if state.Forecast == nil {
		return ForecastDetail{}, ErrNoForecast
	}
	if i < 0 || i >= len(state.Forecast.Entries) {
		return ForecastDetail{}, ErrIndexOutOfRange
	}
	e := state.Forecast.Entries[i]
	return ForecastDetail{
		ForecastEntry:     e,
		WindKmh:           e.WindKmh(),
		ShowPrecipitation: e.PrecipProbability >= precipThreshold,
	}, nil
}

// HourlyStrip returns the first ten forecast points.
func HourlyStrip(entries []models.ForecastEntry) []models.ForecastEntry {
	if len(entries) > hourlyEntries {
		entries = entries[:hourlyEntries]
	}
	return append([]models.ForecastEntry(nil), entries...)
}

// DailyStrip returns every eighth forecast point starting with the first.
func DailyStrip(entries []models.ForecastEntry) []models.ForecastEntry {
	var out []models.ForecastEntry
	for i := 0; i < len(entries); i += dailyStride {
		out = append(out, entries[i])
	}
	return out
}
