// Package deck owns the per-location weather state, the viewed position and
// the favorites mutations that reshape the location sequence.
//
// State is keyed by models.LocationKey, so removing or inserting favorites
// never moves cached data to another city. The viewed index is only a
// pagination cursor into the current sequence.
package deck

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-deck/internal/client"
	"github.com/kjstillabower/weather-deck/internal/connectivity"
	"github.com/kjstillabower/weather-deck/internal/favorites"
	"github.com/kjstillabower/weather-deck/internal/geolocation"
	"github.com/kjstillabower/weather-deck/internal/locations"
	"github.com/kjstillabower/weather-deck/internal/models"
)

const (
	DefaultDebounce    = 100 * time.Millisecond
	DefaultLoadTimeout = 30 * time.Second
)

// OfflineMessage is the message of a load refused because the device is offline.
const OfflineMessage = "No internet connection. Check Wi-Fi or mobile data."

var (
	ErrIndexOutOfRange = errors.New("location index out of range")
	ErrNotLoaded       = errors.New("location has no loaded weather")
	ErrNoForecast      = errors.New("forecast unavailable")
)

// Network reports connectivity and publishes online/offline transitions.
// *connectivity.Monitor implements it.
type Network interface {
	Online() bool
	Subscribe() (<-chan connectivity.Transition, func())
}

// Options tune a Deck. Zero values take the defaults.
type Options struct {
	GPSLabel    string
	Debounce    time.Duration
	LoadTimeout time.Duration
	Geo         geolocation.Options
}

type entry struct {
	state models.LoadState
	done  chan struct{} // non-nil while a load is in flight
}

// Deck is the single owned state object behind the view.
type Deck struct {
	weather client.WeatherClient
	geo     geolocation.Provider
	net     Network
	favs    *favorites.Store
	logger  *zap.Logger
	opts    Options

	// favMu serializes favorite mutations, including their store writes.
	// It is always taken before mu.
	favMu sync.Mutex

	mu       sync.Mutex
	locs     []models.Location
	viewed   int
	states   map[models.LocationKey]*entry
	debounce *time.Timer
	closed   bool

	transitions <-chan connectivity.Transition
	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Deck over the given collaborators. The viewed index starts at 0 (GPS).
// Call Run to react to connectivity changes and Close to stop pending work.
func New(weather client.WeatherClient, geo geolocation.Provider, net Network, favs *favorites.Store, logger *zap.Logger, opts Options) *Deck {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.Geo == (geolocation.Options{}) {
		opts.Geo = geolocation.FreshFix()
	}
	if opts.GPSLabel == "" {
		opts.GPSLabel = locations.DefaultGPSLabel
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Deck{
		weather: weather,
		geo:     geolocation.Bounded(geo),
		net:     net,
		favs:    favs,
		logger:  logger,
		opts:    opts,
		states:  make(map[models.LocationKey]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
	d.locs = locations.Build(opts.GPSLabel, favs.List())
	d.transitions, d.unsubscribe = net.Subscribe()
	return d
}

// Close cancels in-flight loads and any pending debounced load.
func (d *Deck) Close() {
	d.mu.Lock()
	d.closed = true
	if d.debounce != nil {
		d.debounce.Stop()
	}
	d.mu.Unlock()
	d.cancel()
	d.unsubscribe()
}

// Run retries the viewed location once each time connectivity comes back,
// if its last failure was network-classified. Blocks until ctx is done.
func (d *Deck) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.ctx.Done():
			return
		case tr, ok := <-d.transitions:
			if !ok {
				return
			}
			if tr.Online {
				d.retryViewedAfterReconnect()
			}
		}
	}
}

func (d *Deck) retryViewedAfterReconnect() {
	d.mu.Lock()
	index := d.viewed
	e := d.states[d.locs[index].Key()]
	eligible := e != nil && e.done == nil && e.state.FailedWith(models.ErrorNetwork)
	d.mu.Unlock()
	if !eligible {
		return
	}
	d.logger.Info("connectivity restored, retrying viewed location", zap.Int("index", index))
	reconnectRetries.Inc()
	d.Retry(index)
}

// Locations returns the current location sequence.
func (d *Deck) Locations() []models.Location {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Location(nil), d.locs...)
}

// Viewed returns the current viewed index.
func (d *Deck) Viewed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewed
}

// State returns the load state of the location at index.
func (d *Deck) State(index int) (models.LoadState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.locs) {
		return models.LoadState{}, ErrIndexOutOfRange
	}
	return d.stateLocked(d.locs[index].Key()), nil
}

func (d *Deck) stateLocked(key models.LocationKey) models.LoadState {
	if e, ok := d.states[key]; ok {
		return e.state
	}
	return models.LoadState{Status: models.StatusNotLoaded}
}

// SetViewed moves the cursor and schedules a debounced load of the new position.
func (d *Deck) SetViewed(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.locs) {
		return ErrIndexOutOfRange
	}
	d.viewed = index
	d.scheduleLoadLocked()
	return nil
}

// Next moves to the following location if there is one and returns the viewed index.
func (d *Deck) Next() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.viewed < len(d.locs)-1 {
		d.viewed++
		d.scheduleLoadLocked()
	}
	return d.viewed
}

// Prev moves to the preceding location if there is one and returns the viewed index.
func (d *Deck) Prev() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.viewed > 0 {
		d.viewed--
		d.scheduleLoadLocked()
	}
	return d.viewed
}

// LoadViewed schedules a debounced load of the viewed location. Used at startup.
func (d *Deck) LoadViewed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scheduleLoadLocked()
}

// scheduleLoadLocked restarts the debounce timer. Only the position viewed when
// the timer fires is loaded, so intermediate positions are skipped.
func (d *Deck) scheduleLoadLocked() {
	if d.closed {
		return
	}
	if d.debounce != nil {
		d.debounce.Stop()
	}
	d.debounce = time.AfterFunc(d.opts.Debounce, func() {
		d.mu.Lock()
		index := d.viewed
		closed := d.closed
		d.mu.Unlock()
		if !closed {
			d.EnsureLoaded(index)
		}
	})
}

// EnsureLoaded starts a load of the location at index when it is not loaded or
// failed. The returned channel closes once the location leaves Loading; it is
// already closed when nothing had to be done.
func (d *Deck) EnsureLoaded(index int) <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ensureLoadedLocked(index)
}

// Retry forces the location at index out of Failed and loads it again.
func (d *Deck) Retry(index int) <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index >= 0 && index < len(d.locs) {
		if e, ok := d.states[d.locs[index].Key()]; ok && e.done == nil && e.state.Status == models.StatusFailed {
			e.state = models.LoadState{Status: models.StatusNotLoaded}
		}
	}
	return d.ensureLoadedLocked(index)
}

func (d *Deck) ensureLoadedLocked(index int) <-chan struct{} {
	if index < 0 || index >= len(d.locs) || d.closed {
		return closedChan()
	}
	loc := d.locs[index]
	key := loc.Key()
	e, ok := d.states[key]
	if !ok {
		e = &entry{state: models.LoadState{Status: models.StatusNotLoaded}}
		d.states[key] = e
	}
	if e.done != nil {
		return e.done
	}
	if e.state.Status == models.StatusLoaded {
		return closedChan()
	}

	if !d.net.Online() {
		d.logger.Debug("offline, skipping provider calls", zap.String("location", string(key)))
		e.state = failedState(models.ErrorNetwork, OfflineMessage)
		recordOutcome(loc, e.state, 0)
		return closedChan()
	}

	done := make(chan struct{})
	e.done = done
	e.state = models.LoadState{Status: models.StatusLoading}
	go d.load(loc, done)
	return done
}

// load runs outside the lock and stores the result under the location's own
// key, whatever is being viewed by the time it completes.
func (d *Deck) load(loc models.Location, done chan struct{}) {
	start := time.Now()
	key := loc.Key()
	ctx, cancel := context.WithTimeout(d.ctx, d.opts.LoadTimeout)
	defer cancel()

	d.logger.Debug("location load started", zap.String("location", string(key)))
	var state models.LoadState
	if loc.IsGPS() {
		state = d.loadGPS(ctx)
	} else {
		state = d.loadSaved(ctx, loc)
	}

	d.mu.Lock()
	if e, ok := d.states[key]; ok && e.done == done {
		e.state = state
		e.done = nil
	}
	d.mu.Unlock()
	close(done)

	recordOutcome(loc, state, time.Since(start))
	if state.Err != nil {
		d.logger.Info("location load failed",
			zap.String("location", string(key)),
			zap.String("kind", string(state.Err.Kind)),
			zap.String("message", state.Err.Message),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	d.logger.Debug("location loaded",
		zap.String("location", string(key)),
		zap.Bool("forecast", state.Forecast != nil),
		zap.Duration("duration", time.Since(start)),
	)
}

func (d *Deck) loadGPS(ctx context.Context) models.LoadState {
	coord, err := d.geo.CurrentPosition(ctx, d.opts.Geo)
	if err != nil {
		return failedState(models.ErrorGPSUnavailable, geolocation.UserMessage(err))
	}
	weather, err := d.weather.CurrentByCoords(ctx, coord)
	if err != nil {
		return failedState(models.ErrorNetwork, client.UserMessage(err))
	}
	return loadedState(weather, d.bestEffortForecast(ctx, coord))
}

func (d *Deck) loadSaved(ctx context.Context, loc models.Location) models.LoadState {
	weather, err := d.weather.CurrentByCity(ctx, loc.Name)
	if err != nil {
		kind := models.ErrorGeneral
		if errors.Is(err, client.ErrOffline) || errors.Is(err, client.ErrTransport) {
			kind = models.ErrorNetwork
		}
		return failedState(kind, client.UserMessage(err))
	}
	return loadedState(weather, d.bestEffortForecast(ctx, weather.Coord))
}

// bestEffortForecast returns nil when the forecast cannot be fetched.
func (d *Deck) bestEffortForecast(ctx context.Context, coord models.Coordinates) *models.ForecastSnapshot {
	forecast, err := d.weather.ForecastByCoords(ctx, coord)
	if err != nil {
		forecastDropped.Inc()
		d.logger.Debug("forecast unavailable", zap.Error(err))
		return nil
	}
	return &forecast
}

func loadedState(w models.WeatherSnapshot, f *models.ForecastSnapshot) models.LoadState {
	return models.LoadState{Status: models.StatusLoaded, Weather: &w, Forecast: f}
}

func failedState(kind models.ErrorKind, msg string) models.LoadState {
	return models.LoadState{Status: models.StatusFailed, Err: &models.LoadError{Kind: kind, Message: msg}}
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
