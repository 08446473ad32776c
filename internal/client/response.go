package client

import (
	"time"

	"github.com/kjstillabower/weather-deck/internal/models"
)

type condition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type mainBlock struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  int     `json:"humidity"`
}

type windBlock struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
}

type currentResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main       mainBlock   `json:"main"`
	Weather    []condition `json:"weather"`
	Wind       windBlock   `json:"wind"`
	Visibility int         `json:"visibility"`
	Dt         int64       `json:"dt"`
}

func (r currentResponse) toSnapshot() models.WeatherSnapshot {
	cond := firstCondition(r.Weather)
	observed := time.Now().UTC()
	if r.Dt > 0 {
		observed = time.Unix(r.Dt, 0).UTC()
	}
	return models.WeatherSnapshot{
		CityID:      r.ID,
		Name:        r.Name,
		Country:     r.Sys.Country,
		Coord:       models.Coordinates{Lat: r.Coord.Lat, Lon: r.Coord.Lon},
		Temp:        r.Main.Temp,
		FeelsLike:   r.Main.FeelsLike,
		TempMin:     r.Main.TempMin,
		TempMax:     r.Main.TempMax,
		Pressure:    r.Main.Pressure,
		Humidity:    r.Main.Humidity,
		Condition:   cond.Main,
		Description: cond.Description,
		Icon:        cond.Icon,
		WindSpeed:   r.Wind.Speed,
		WindDeg:     r.Wind.Deg,
		Visibility:  r.Visibility,
		ObservedAt:  observed,
		FetchedAt:   time.Now().UTC(),
	}
}

type forecastResponse struct {
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	List []struct {
		Dt         int64       `json:"dt"`
		DtTxt      string      `json:"dt_txt"`
		Main       mainBlock   `json:"main"`
		Weather    []condition `json:"weather"`
		Wind       windBlock   `json:"wind"`
		Pop        float64     `json:"pop"`
		Visibility int         `json:"visibility"`
	} `json:"list"`
}

func (r forecastResponse) toSnapshot() models.ForecastSnapshot {
	entries := make([]models.ForecastEntry, 0, len(r.List))
	for _, item := range r.List {
		cond := firstCondition(item.Weather)
		entries = append(entries, models.ForecastEntry{
			Time:              time.Unix(item.Dt, 0).UTC(),
			TimeText:          item.DtTxt,
			Temp:              item.Main.Temp,
			FeelsLike:         item.Main.FeelsLike,
			TempMin:           item.Main.TempMin,
			TempMax:           item.Main.TempMax,
			Pressure:          item.Main.Pressure,
			Humidity:          item.Main.Humidity,
			Condition:         cond.Main,
			Description:       cond.Description,
			Icon:              cond.Icon,
			WindSpeed:         item.Wind.Speed,
			WindDeg:           item.Wind.Deg,
			PrecipProbability: item.Pop,
			Visibility:        item.Visibility,
		})
	}
	return models.ForecastSnapshot{
		City:      r.City.Name,
		Entries:   entries,
		FetchedAt: time.Now().UTC(),
	}
}

type airResponse struct {
	List []struct {
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
	} `json:"list"`
}

func firstCondition(items []condition) condition {
	if len(items) == 0 {
		return condition{}
	}
	return items[0]
}
