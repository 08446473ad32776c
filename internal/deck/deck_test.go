package deck

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kjstillabower/weather-deck/internal/client"
	"github.com/kjstillabower/weather-deck/internal/geolocation"
	"github.com/kjstillabower/weather-deck/internal/models"
)

// TestEnsureLoaded_OfflineMakesNoProviderCalls verifies that an offline load
// fails with a network error without touching geolocation or the provider.
func TestEnsureLoaded_OfflineMakesNoProviderCalls(t *testing.T) {
	h := newHarness(t, false, rome)

	for _, index := range []int{0, 1} {
		waitDone(t, h.deck.EnsureLoaded(index))
		s := mustState(t, h.deck, index)
		if !s.FailedWith(models.ErrorNetwork) {
			t.Errorf("State(%d) = %+v, want failed network", index, s)
		}
		if s.Err.Message == "" {
			t.Errorf("State(%d) has empty message", index)
		}
	}
	if n := h.weather.totalCalls(); n != 0 {
		t.Errorf("provider calls = %d, want 0", n)
	}
	if n := h.geo.callCount(); n != 0 {
		t.Errorf("geolocation calls = %d, want 0", n)
	}
}

// TestEnsureLoaded_ForecastFailureStillLoaded verifies that a failed forecast
// leaves the weather loaded with a nil forecast.
func TestEnsureLoaded_ForecastFailureStillLoaded(t *testing.T) {
	h := newHarness(t, true, rome)
	h.weather.forecastErr = &client.ProviderError{Endpoint: "forecast", StatusCode: 500}

	for _, index := range []int{0, 1} {
		waitDone(t, h.deck.EnsureLoaded(index))
		s := mustState(t, h.deck, index)
		if !s.Loaded() {
			t.Fatalf("State(%d) = %+v, want loaded", index, s)
		}
		if s.Forecast != nil {
			t.Errorf("State(%d).Forecast = %+v, want nil", index, s.Forecast)
		}
		if s.Err != nil {
			t.Errorf("State(%d).Err = %v, want nil", index, s.Err)
		}
	}
}

// TestEnsureLoaded_SavedCityUsesReturnedCoordinates verifies the forecast is
// requested for the coordinates of the weather response.
func TestEnsureLoaded_SavedCityUsesReturnedCoordinates(t *testing.T) {
	h := newHarness(t, true, milan)

	waitDone(t, h.deck.EnsureLoaded(1))
	s := mustState(t, h.deck, 1)
	if !s.Loaded() || s.Weather.Name != "Milan" {
		t.Fatalf("State(1) = %+v, want Milan loaded", s)
	}
	if s.Forecast == nil || len(s.Forecast.Entries) != 2 {
		t.Errorf("Forecast = %+v, want 2 entries", s.Forecast)
	}
	if h.weather.calls("Milan") != 1 {
		t.Errorf("CurrentByCity(Milan) calls = %d, want 1", h.weather.calls("Milan"))
	}
}

// TestEnsureLoaded_GPSFailures verifies every geolocation failure maps to a
// GPS-unavailable state with its own message and enables manual search.
func TestEnsureLoaded_GPSFailures(t *testing.T) {
	errs := []error{
		geolocation.ErrPermissionDenied,
		geolocation.ErrPositionUnavailable,
		geolocation.ErrTimeout,
		geolocation.ErrUnsupported,
	}
	messages := make(map[string]error)
	for _, geoErr := range errs {
		t.Run(geoErr.Error(), func(t *testing.T) {
			h := newHarness(t, true)
			h.geo.err = geoErr

			waitDone(t, h.deck.EnsureLoaded(0))
			s := mustState(t, h.deck, 0)
			if !s.FailedWith(models.ErrorGPSUnavailable) {
				t.Fatalf("State(0) = %+v, want failed gps", s)
			}
			if s.Err.Message == "" {
				t.Error("empty message")
			}
			if prev, ok := messages[s.Err.Message]; ok {
				t.Errorf("message %q shared with %v", s.Err.Message, prev)
			}
			messages[s.Err.Message] = geoErr
			if h.weather.totalCalls() != 0 {
				t.Error("provider called after geolocation failure")
			}
			if !h.deck.View().ManualSearch {
				t.Error("View().ManualSearch = false, want true on GPS failure")
			}
		})
	}
}

// TestEnsureLoaded_GPSRequestOptions verifies the fix request hints and that
// the forecast is requested at the device fix, not the provider's echo.
func TestEnsureLoaded_GPSRequestOptions(t *testing.T) {
	h := newHarness(t, true)
	h.weather.echoCoord = &models.Coordinates{Lat: 43.8, Lon: 11.3}
	waitDone(t, h.deck.EnsureLoaded(0))

	h.geo.mu.Lock()
	opts := h.geo.opts
	h.geo.mu.Unlock()
	if opts.Timeout != 10*time.Second || !opts.HighAccuracy || opts.MaximumAge != 0 {
		t.Errorf("geolocation options = %+v", opts)
	}
	if s := mustState(t, h.deck, 0); !s.Loaded() || s.Weather.Name != "Florence" {
		t.Errorf("State(0) = %+v, want Florence loaded", s)
	}
	want := models.Coordinates{Lat: 43.77, Lon: 11.25}
	if got := h.weather.forecastCoords(); len(got) != 1 || got[0] != want {
		t.Errorf("forecast requested at %v, want [%v]", got, want)
	}
}

// TestEnsureLoaded_GPSWeatherFailureIsNetwork verifies a provider failure after
// a successful fix is classified as network.
func TestEnsureLoaded_GPSWeatherFailureIsNetwork(t *testing.T) {
	h := newHarness(t, true)
	h.weather.coordsErr = &client.ProviderError{Endpoint: "weather", StatusCode: 502}

	waitDone(t, h.deck.EnsureLoaded(0))
	s := mustState(t, h.deck, 0)
	if !s.FailedWith(models.ErrorNetwork) {
		t.Errorf("State(0) = %+v, want failed network", s)
	}
	if h.deck.View().ManualSearch {
		t.Error("ManualSearch should only be offered for GPS failures")
	}
}

// TestEnsureLoaded_SavedCityClassification verifies provider failures for a
// saved city are general unless connectivity is missing.
func TestEnsureLoaded_SavedCityClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.ErrorKind
	}{
		{"not found", client.ErrLocationNotFound, models.ErrorGeneral},
		{"unauthorized", client.ErrInvalidAPIKey, models.ErrorGeneral},
		{"rate limited", client.ErrRateLimited, models.ErrorGeneral},
		{"provider error", &client.ProviderError{Endpoint: "weather", StatusCode: 500}, models.ErrorGeneral},
		{"offline", client.ErrOffline, models.ErrorNetwork},
		{"transport", fmt.Errorf("%w: connection refused", client.ErrTransport), models.ErrorNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true, rome)
			h.weather.setCityErr("Rome", tt.err)

			waitDone(t, h.deck.EnsureLoaded(1))
			s := mustState(t, h.deck, 1)
			if !s.FailedWith(tt.want) {
				t.Errorf("State(1) = %+v, want failed %s", s, tt.want)
			}
			if s.Err.Message != client.UserMessage(tt.err) {
				t.Errorf("message = %q, want %q", s.Err.Message, client.UserMessage(tt.err))
			}
		})
	}
}

// TestEnsureLoaded_InFlightGuard verifies repeated calls while loading share
// one provider request.
func TestEnsureLoaded_InFlightGuard(t *testing.T) {
	h := newHarness(t, true, rome)
	release := h.weather.gate("Rome")

	first := h.deck.EnsureLoaded(1)
	second := h.deck.EnsureLoaded(1)
	third := h.deck.Retry(1)
	if first != second || first != third {
		t.Error("calls during a load should return the in-flight channel")
	}
	if s := mustState(t, h.deck, 1); s.Status != models.StatusLoading {
		t.Errorf("Status = %s, want loading", s.Status)
	}

	close(release)
	waitDone(t, first)
	if n := h.weather.calls("Rome"); n != 1 {
		t.Errorf("CurrentByCity(Rome) calls = %d, want 1", n)
	}

	waitDone(t, h.deck.EnsureLoaded(1))
	if n := h.weather.calls("Rome"); n != 1 {
		t.Errorf("EnsureLoaded on loaded location made %d calls, want 1", n)
	}
}

// TestEnsureLoaded_StaleCompletionKeepsOriginalLocation verifies a load that
// finishes after the view moved is stored for the location that started it.
func TestEnsureLoaded_StaleCompletionKeepsOriginalLocation(t *testing.T) {
	h := newHarness(t, true, rome, milan)
	release := h.weather.gate("Rome")

	done := h.deck.EnsureLoaded(1)
	if err := h.deck.SetViewed(2); err != nil {
		t.Fatal(err)
	}
	close(release)
	waitDone(t, done)

	s := mustState(t, h.deck, 1)
	if !s.Loaded() || s.Weather.Name != "Rome" {
		t.Errorf("State(1) = %+v, want Rome loaded", s)
	}
	waitFor(t, "Milan loaded", func() bool { return mustState(t, h.deck, 2).Loaded() })
	if v := h.deck.View(); v.Index != 2 || v.State.Weather.Name != "Milan" {
		t.Errorf("View() = index %d %+v, want Milan at 2", v.Index, v.State.Weather)
	}
}

// TestRetry_ReloadsFailedLocation verifies an explicit retry reloads a failure.
func TestRetry_ReloadsFailedLocation(t *testing.T) {
	h := newHarness(t, true, rome)
	h.weather.setCityErr("Rome", client.ErrRateLimited)
	waitDone(t, h.deck.EnsureLoaded(1))
	if !mustState(t, h.deck, 1).FailedWith(models.ErrorGeneral) {
		t.Fatal("expected general failure")
	}

	h.weather.setCityErr("Rome", nil)
	waitDone(t, h.deck.Retry(1))
	if s := mustState(t, h.deck, 1); !s.Loaded() {
		t.Errorf("State(1) after retry = %+v, want loaded", s)
	}
}

// TestDebounce_LoadsOnlyFinalPosition verifies rapid navigation loads only the
// position the view settles on.
func TestDebounce_LoadsOnlyFinalPosition(t *testing.T) {
	h := newHarness(t, true, rome, milan, paris)

	h.deck.Next()
	h.deck.Next()
	h.deck.Next()
	if got := h.deck.Next(); got != 3 {
		t.Errorf("Next() past the end = %d, want 3", got)
	}

	waitFor(t, "Paris loaded", func() bool { return mustState(t, h.deck, 3).Loaded() })
	time.Sleep(30 * time.Millisecond)
	if h.weather.calls("Rome") != 0 || h.weather.calls("Milan") != 0 {
		t.Errorf("intermediate loads: Rome=%d Milan=%d, want 0", h.weather.calls("Rome"), h.weather.calls("Milan"))
	}
	if n := h.weather.calls("Paris"); n != 1 {
		t.Errorf("CurrentByCity(Paris) calls = %d, want 1", n)
	}
	if h.geo.callCount() != 0 {
		t.Error("GPS entry loaded while never settled on")
	}
}

func TestNavigation_Bounds(t *testing.T) {
	h := newHarness(t, false, rome)

	if got := h.deck.Prev(); got != 0 {
		t.Errorf("Prev() at start = %d, want 0", got)
	}
	if err := h.deck.SetViewed(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("SetViewed(2) error = %v, want ErrIndexOutOfRange", err)
	}
	if err := h.deck.SetViewed(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("SetViewed(-1) error = %v, want ErrIndexOutOfRange", err)
	}
	if _, err := h.deck.State(5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("State(5) error = %v, want ErrIndexOutOfRange", err)
	}
}

// TestReconnect_RetriesViewedNetworkFailureOnce verifies that restoring
// connectivity retries the viewed location exactly once.
func TestReconnect_RetriesViewedNetworkFailureOnce(t *testing.T) {
	h := newHarness(t, false, rome)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.deck.Run(ctx)

	if err := h.deck.SetViewed(1); err != nil {
		t.Fatal(err)
	}
	waitDone(t, h.deck.EnsureLoaded(1))
	if !mustState(t, h.deck, 1).FailedWith(models.ErrorNetwork) {
		t.Fatal("expected network failure while offline")
	}
	time.Sleep(40 * time.Millisecond)
	if h.weather.totalCalls() != 0 {
		t.Fatal("provider called while offline")
	}

	h.net.Set(true)
	waitFor(t, "Rome loaded", func() bool { return mustState(t, h.deck, 1).Loaded() })

	h.net.Set(false)
	h.net.Set(true)
	time.Sleep(40 * time.Millisecond)
	if n := h.weather.calls("Rome"); n != 1 {
		t.Errorf("CurrentByCity(Rome) calls = %d, want exactly 1", n)
	}
}

// TestReconnect_IgnoresOtherFailures verifies no automatic retry for general
// failures or for locations other than the viewed one.
func TestReconnect_IgnoresOtherFailures(t *testing.T) {
	h := newHarness(t, true, rome, milan)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.deck.Run(ctx)

	h.weather.setCityErr("Rome", client.ErrLocationNotFound)
	if err := h.deck.SetViewed(1); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "Rome failed", func() bool { return mustState(t, h.deck, 1).FailedWith(models.ErrorGeneral) })

	h.net.Set(false)
	waitDone(t, h.deck.EnsureLoaded(2))
	if !mustState(t, h.deck, 2).FailedWith(models.ErrorNetwork) {
		t.Fatal("expected Milan network failure")
	}
	time.Sleep(40 * time.Millisecond)
	romeCalls := h.weather.calls("Rome")

	h.net.Set(true)
	time.Sleep(40 * time.Millisecond)
	if n := h.weather.calls("Rome"); n != romeCalls {
		t.Errorf("general failure retried on reconnect: calls %d -> %d", romeCalls, n)
	}
	if n := h.weather.calls("Milan"); n != 0 {
		t.Errorf("non-viewed location retried on reconnect: %d calls", n)
	}
}
