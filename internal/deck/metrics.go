package deck

import (
	"time"

	"github.com/kjstillabower/weather-deck/internal/models"
	"github.com/kjstillabower/weather-deck/internal/observability"
	"github.com/kjstillabower/weather-deck/internal/traffic"
)

var (
	reconnectRetries = observability.ReconnectRetriesTotal
	forecastDropped  = observability.ForecastDroppedTotal
)

// recordOutcome feeds load metrics and the health tracker. elapsed is zero for
// loads refused before any provider call.
func recordOutcome(loc models.Location, state models.LoadState, elapsed time.Duration) {
	kind := string(loc.Kind)
	outcome := "loaded"
	if state.Err != nil {
		outcome = string(state.Err.Kind)
		traffic.RecordFailure(state.Err.Kind)
	} else {
		traffic.RecordLoaded()
	}
	observability.LocationLoadsTotal.WithLabelValues(kind, outcome).Inc()
	if elapsed > 0 {
		observability.LocationLoadDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
}
