package models

// ErrorKind classifies a load failure and drives retry and UI behavior.
type ErrorKind string

const (
	ErrorNetwork        ErrorKind = "network"
	ErrorGPSUnavailable ErrorKind = "gps"
	ErrorGeneral        ErrorKind = "general"
)

// LoadError is a classified, user-facing load failure.
type LoadError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *LoadError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// LoadStatus is the lifecycle position of a location's data.
type LoadStatus string

const (
	StatusNotLoaded LoadStatus = "not_loaded"
	StatusLoading   LoadStatus = "loading"
	StatusLoaded    LoadStatus = "loaded"
	StatusFailed    LoadStatus = "failed"
)

// LoadState is the per-location state. Weather is set iff Status is loaded;
// Forecast may be nil within loaded (best-effort). Err is set iff Status is failed.
type LoadState struct {
	Status   LoadStatus        `json:"status"`
	Weather  *WeatherSnapshot  `json:"weather,omitempty"`
	Forecast *ForecastSnapshot `json:"forecast,omitempty"`
	Err      *LoadError        `json:"error,omitempty"`
}

// Loaded reports whether weather data is available.
func (s LoadState) Loaded() bool {
	return s.Status == StatusLoaded && s.Weather != nil
}

// FailedWith reports whether the last load failed with the given kind.
func (s LoadState) FailedWith(kind ErrorKind) bool {
	return s.Status == StatusFailed && s.Err != nil && s.Err.Kind == kind
}
