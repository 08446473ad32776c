package deck

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weather-deck/internal/client"
	"github.com/kjstillabower/weather-deck/internal/connectivity"
	"github.com/kjstillabower/weather-deck/internal/favorites"
	"github.com/kjstillabower/weather-deck/internal/geolocation"
	"github.com/kjstillabower/weather-deck/internal/kvstore"
	"github.com/kjstillabower/weather-deck/internal/models"
)

var (
	rome  = models.FavoriteCity{ID: 1, Name: "Rome", Country: "IT"}
	milan = models.FavoriteCity{ID: 2, Name: "Milan", Country: "IT"}
	paris = models.FavoriteCity{ID: 3, Name: "Paris", Country: "FR"}
)

func snapshotOf(f models.FavoriteCity) models.WeatherSnapshot {
	return models.WeatherSnapshot{
		CityID:  f.ID,
		Name:    f.Name,
		Country: f.Country,
		Coord:   models.Coordinates{Lat: float64(f.ID), Lon: float64(f.ID)},
		Temp:    20,
	}
}

type fakeWeather struct {
	mu        sync.Mutex
	cities    map[string]models.WeatherSnapshot
	cityErr   map[string]error
	gates     map[string]chan struct{}
	coords    models.WeatherSnapshot
	coordsErr error
	// echoCoord, when set, replaces the request coordinates in the snapshot
	// the way the provider snaps them to its own station grid.
	echoCoord     *models.Coordinates
	forecastAt    []models.Coordinates
	forecast      []models.ForecastEntry
	forecastErr   error
	cityCalls     map[string]int
	coordsCalls   int
	forecastCalls int
}

func newFakeWeather(known ...models.FavoriteCity) *fakeWeather {
	f := &fakeWeather{
		cities:    make(map[string]models.WeatherSnapshot),
		cityErr:   make(map[string]error),
		gates:     make(map[string]chan struct{}),
		cityCalls: make(map[string]int),
		forecast:  []models.ForecastEntry{{Temp: 18}, {Temp: 17}},
	}
	for _, c := range known {
		f.cities[c.Name] = snapshotOf(c)
	}
	return f
}

func (f *fakeWeather) CurrentByCity(ctx context.Context, name string) (models.WeatherSnapshot, error) {
	f.mu.Lock()
	f.cityCalls[name]++
	gate := f.gates[name]
	err := f.cityErr[name]
	w, ok := f.cities[name]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.WeatherSnapshot{}, ctx.Err()
		}
	}
	if err != nil {
		return models.WeatherSnapshot{}, err
	}
	if !ok {
		return models.WeatherSnapshot{}, client.ErrLocationNotFound
	}
	return w, nil
}

func (f *fakeWeather) CurrentByCoords(ctx context.Context, coord models.Coordinates) (models.WeatherSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coordsCalls++
	if f.coordsErr != nil {
		return models.WeatherSnapshot{}, f.coordsErr
	}
	w := f.coords
	w.Coord = coord
	if f.echoCoord != nil {
		w.Coord = *f.echoCoord
	}
	return w, nil
}

func (f *fakeWeather) ForecastByCoords(ctx context.Context, coord models.Coordinates) (models.ForecastSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forecastCalls++
	f.forecastAt = append(f.forecastAt, coord)
	if f.forecastErr != nil {
		return models.ForecastSnapshot{}, f.forecastErr
	}
	return models.ForecastSnapshot{Entries: append([]models.ForecastEntry(nil), f.forecast...)}, nil
}

func (f *fakeWeather) calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cityCalls[name]
}

func (f *fakeWeather) forecastCoords() []models.Coordinates {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Coordinates(nil), f.forecastAt...)
}

func (f *fakeWeather) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.coordsCalls + f.forecastCalls
	for _, c := range f.cityCalls {
		n += c
	}
	return n
}

func (f *fakeWeather) gate(name string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[name] = ch
	return ch
}

func (f *fakeWeather) setCityErr(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cityErr[name] = err
}

type fakeGeo struct {
	mu    sync.Mutex
	coord models.Coordinates
	err   error
	calls int
	opts  geolocation.Options
}

func (g *fakeGeo) CurrentPosition(ctx context.Context, opts geolocation.Options) (models.Coordinates, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.opts = opts
	return g.coord, g.err
}

func (g *fakeGeo) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type harness struct {
	deck    *Deck
	weather *fakeWeather
	geo     *fakeGeo
	net     *connectivity.Monitor
	favs    *favorites.Store
}

func newHarness(t *testing.T, online bool, favs ...models.FavoriteCity) *harness {
	t.Helper()
	return newHarnessWithStore(t, kvstore.NewMemory(), online, favs...)
}

func newHarnessWithStore(t *testing.T, kv kvstore.Store, online bool, favs ...models.FavoriteCity) *harness {
	t.Helper()
	ctx := context.Background()
	store := favorites.Open(ctx, kv, "", nil)
	for _, f := range favs {
		if _, err := store.Add(ctx, f); err != nil {
			t.Fatal(err)
		}
	}
	weather := newFakeWeather(rome, milan, paris)
	weather.coords = snapshotOf(models.FavoriteCity{ID: 10, Name: "Florence", Country: "IT"})
	geo := &fakeGeo{coord: models.Coordinates{Lat: 43.77, Lon: 11.25}}
	net := connectivity.New(online, nil)

	d := New(weather, geo, net, store, nil, Options{GPSLabel: "Current location", Debounce: 10 * time.Millisecond})
	t.Cleanup(d.Close)
	return &harness{deck: d, weather: weather, geo: geo, net: net, favs: store}
}

// slowKV is a memory store whose Set, once held, blocks until released or
// the caller's context ends. entered receives one value per blocked Set.
type slowKV struct {
	*kvstore.Memory
	mu      sync.Mutex
	hold    bool
	entered chan struct{}
	release chan struct{}
}

func newSlowKV() *slowKV {
	return &slowKV{
		Memory:  kvstore.NewMemory(),
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (s *slowKV) holdWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = true
}

func (s *slowKV) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	hold := s.hold
	s.mu.Unlock()
	if hold {
		s.entered <- struct{}{}
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.Memory.Set(ctx, key, value)
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("load did not complete")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mustState(t *testing.T, d *Deck, index int) models.LoadState {
	t.Helper()
	s, err := d.State(index)
	if err != nil {
		t.Fatalf("State(%d) error = %v", index, err)
	}
	return s
}
