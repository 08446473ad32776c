package deck

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/kjstillabower/weather-deck/internal/client"
	"github.com/kjstillabower/weather-deck/internal/models"
	"github.com/kjstillabower/weather-deck/internal/validation"
)

// TestRemoveFavorite_BeforeViewed verifies removing Rome while Milan is viewed
// keeps Milan in view at its new position with its cached data.
func TestRemoveFavorite_BeforeViewed(t *testing.T) {
	h := newHarness(t, true, rome, milan)
	if err := h.deck.SetViewed(2); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "Milan loaded", func() bool { return mustState(t, h.deck, 2).Loaded() })

	removed, err := h.deck.RemoveFavorite(context.Background(), 1)
	if err != nil || !removed {
		t.Fatalf("RemoveFavorite(1) = %v, %v", removed, err)
	}

	if got := h.favs.List(); !reflect.DeepEqual(got, []models.FavoriteCity{milan}) {
		t.Errorf("favorites = %+v, want [Milan]", got)
	}
	if v := h.deck.Viewed(); v != 1 {
		t.Errorf("Viewed() = %d, want 1", v)
	}
	locs := h.deck.Locations()
	if len(locs) != 2 || locs[1].Name != "Milan" {
		t.Errorf("Locations() = %+v, want Milan at 1", locs)
	}
	if s := mustState(t, h.deck, 1); !s.Loaded() || s.Weather.Name != "Milan" {
		t.Errorf("State(1) = %+v, want Milan loaded", s)
	}
}

func TestRemoveFavorite_ViewedIndexAdjustment(t *testing.T) {
	tests := []struct {
		name       string
		viewed     int
		removeID   int64
		wantViewed int
		wantOK     bool
	}{
		{"removes viewed entry", 2, 2, 1, true},
		{"after viewed", 1, 3, 1, true},
		{"viewing gps", 0, 1, 0, true},
		{"last entry viewed", 3, 3, 2, true},
		{"unknown id", 2, 99, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false, rome, milan, paris)
			if err := h.deck.SetViewed(tt.viewed); err != nil {
				t.Fatal(err)
			}
			removed, err := h.deck.RemoveFavorite(context.Background(), tt.removeID)
			if err != nil || removed != tt.wantOK {
				t.Fatalf("RemoveFavorite(%d) = %v, %v; want %v", tt.removeID, removed, err, tt.wantOK)
			}
			if v := h.deck.Viewed(); v != tt.wantViewed {
				t.Errorf("Viewed() = %d, want %d", v, tt.wantViewed)
			}
			if v := h.deck.Viewed(); v >= len(h.deck.Locations()) {
				t.Errorf("Viewed() = %d past end of %d locations", v, len(h.deck.Locations()))
			}
		})
	}
}

// TestToggleFavorite_AddThenRemove verifies toggling the loaded GPS city adds
// it with the snapshot's id, name and country and a second toggle removes it.
func TestToggleFavorite_AddThenRemove(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	waitDone(t, h.deck.EnsureLoaded(0))

	fav, err := h.deck.ToggleFavorite(ctx)
	if err != nil || !fav {
		t.Fatalf("ToggleFavorite() = %v, %v; want true", fav, err)
	}
	want := []models.FavoriteCity{{ID: 10, Name: "Florence", Country: "IT"}}
	if got := h.favs.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("favorites = %+v, want %+v", got, want)
	}
	if s := mustState(t, h.deck, 1); !s.Loaded() || s.Weather.CityID != 10 {
		t.Errorf("new entry state = %+v, want seeded from current view", s)
	}
	if !h.deck.View().IsFavorite {
		t.Error("View().IsFavorite = false after adding")
	}

	fav, err = h.deck.ToggleFavorite(ctx)
	if err != nil || fav {
		t.Fatalf("second ToggleFavorite() = %v, %v; want false", fav, err)
	}
	if n := len(h.favs.List()); n != 0 {
		t.Errorf("favorites len = %d, want 0", n)
	}
	if n := len(h.deck.Locations()); n != 1 {
		t.Errorf("Locations() len = %d, want 1", n)
	}
}

// TestToggleFavorite_ViewedSavedCity verifies toggling a saved city removes it
// and keeps the view within bounds.
func TestToggleFavorite_ViewedSavedCity(t *testing.T) {
	h := newHarness(t, true, rome, milan)
	if err := h.deck.SetViewed(2); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "Milan loaded", func() bool { return mustState(t, h.deck, 2).Loaded() })

	fav, err := h.deck.ToggleFavorite(context.Background())
	if err != nil || fav {
		t.Fatalf("ToggleFavorite() = %v, %v; want false", fav, err)
	}
	if v := h.deck.Viewed(); v != 1 {
		t.Errorf("Viewed() = %d, want 1", v)
	}
}

func TestToggleFavorite_NotLoaded(t *testing.T) {
	h := newHarness(t, false, rome)
	if _, err := h.deck.ToggleFavorite(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("ToggleFavorite() error = %v, want ErrNotLoaded", err)
	}
	if n := len(h.favs.List()); n != 1 {
		t.Errorf("favorites changed: len %d", n)
	}
}

func TestAddFavoriteByName(t *testing.T) {
	ctx := context.Background()

	t.Run("offline", func(t *testing.T) {
		h := newHarness(t, false)
		n, err := h.deck.AddFavoriteByName(ctx, "Paris")
		if err != nil || n.Kind != NoticeOffline || n.Message == "" {
			t.Errorf("AddFavoriteByName() = %+v, %v; want offline notice", n, err)
		}
		if h.weather.totalCalls() != 0 {
			t.Error("provider called while offline")
		}
	})

	t.Run("existing name navigates", func(t *testing.T) {
		h := newHarness(t, false, rome, milan)
		h.net.Set(true)
		n, err := h.deck.AddFavoriteByName(ctx, "  mILan ")
		if err != nil || n.Kind != NoticeExisting || n.Index != 2 {
			t.Errorf("AddFavoriteByName() = %+v, %v; want existing at 2", n, err)
		}
		if h.deck.Viewed() != 2 {
			t.Errorf("Viewed() = %d, want 2", h.deck.Viewed())
		}
		if h.weather.calls("mILan") != 0 {
			t.Error("provider searched for an already listed name")
		}
	})

	t.Run("existing id navigates", func(t *testing.T) {
		h := newHarness(t, true, rome, milan)
		h.weather.cities["Roma"] = snapshotOf(rome)
		n, err := h.deck.AddFavoriteByName(ctx, "Roma")
		if err != nil || n.Kind != NoticeExisting || n.Index != 1 {
			t.Errorf("AddFavoriteByName() = %+v, %v; want existing at 1", n, err)
		}
		if len(h.favs.List()) != 2 {
			t.Error("duplicate favorite added")
		}
	})

	t.Run("added and viewed", func(t *testing.T) {
		h := newHarness(t, true, rome)
		n, err := h.deck.AddFavoriteByName(ctx, "Paris")
		if err != nil || n.Kind != NoticeAdded || n.Index != 2 {
			t.Fatalf("AddFavoriteByName() = %+v, %v; want added at 2", n, err)
		}
		if got := h.favs.List(); !reflect.DeepEqual(got, []models.FavoriteCity{rome, paris}) {
			t.Errorf("favorites = %+v", got)
		}
		v := h.deck.View()
		if v.Index != 2 || !v.State.Loaded() || v.State.Forecast == nil || !v.IsFavorite {
			t.Errorf("View() = %+v, want Paris loaded with forecast", v)
		}
		if h.weather.calls("Paris") != 1 {
			t.Errorf("CurrentByCity(Paris) calls = %d, want 1", h.weather.calls("Paris"))
		}
	})

	t.Run("not found", func(t *testing.T) {
		h := newHarness(t, true, rome)
		n, err := h.deck.AddFavoriteByName(ctx, "Atlantis")
		if err != nil || n.Kind != NoticeNotFound || n.Message != "City not found: Atlantis" {
			t.Errorf("AddFavoriteByName() = %+v, %v; want not found notice", n, err)
		}
		if len(h.favs.List()) != 1 || h.deck.Viewed() != 0 {
			t.Error("failed search changed favorites or view")
		}
		if s := mustState(t, h.deck, 0); s.Err != nil {
			t.Error("failed search stored a per-location error")
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		h := newHarness(t, true)
		h.weather.setCityErr("Oslo", client.ErrRateLimited)
		n, err := h.deck.AddFavoriteByName(ctx, "Oslo")
		if err != nil || n.Kind != NoticeFailed || n.Message != client.UserMessage(client.ErrRateLimited) {
			t.Errorf("AddFavoriteByName() = %+v, %v; want failed notice", n, err)
		}
	})

	t.Run("invalid name", func(t *testing.T) {
		h := newHarness(t, true)
		if _, err := h.deck.AddFavoriteByName(ctx, "   "); !errors.Is(err, validation.ErrCityNameEmpty) {
			t.Errorf("error = %v, want ErrCityNameEmpty", err)
		}
	})
}

// within fails the test if fn does not return within d.
func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s blocked while favorites were being written", what)
	}
}

// TestRemoveFavorite_SlowStoreDoesNotBlockReads verifies reads and load
// completions proceed while a favorites write is stuck in the store.
func TestRemoveFavorite_SlowStoreDoesNotBlockReads(t *testing.T) {
	kv := newSlowKV()
	h := newHarnessWithStore(t, kv, true, rome, milan)
	if err := h.deck.SetViewed(2); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "Milan loaded", func() bool { return mustState(t, h.deck, 2).Loaded() })

	kv.holdWrites()
	type result struct {
		removed bool
		err     error
	}
	res := make(chan result, 1)
	go func() {
		removed, err := h.deck.RemoveFavorite(context.Background(), 1)
		res <- result{removed, err}
	}()
	select {
	case <-kv.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("favorites write never reached the store")
	}

	within(t, 200*time.Millisecond, "View", func() { h.deck.View() })
	within(t, 200*time.Millisecond, "Locations", func() { h.deck.Locations() })
	within(t, 200*time.Millisecond, "favorites List", func() { h.favs.List() })
	within(t, 2*time.Second, "GPS load", func() { <-h.deck.EnsureLoaded(0) })

	close(kv.release)
	r := <-res
	if !r.removed || r.err != nil {
		t.Fatalf("RemoveFavorite(1) = %v, %v", r.removed, r.err)
	}
	if got := h.deck.Viewed(); got != 1 {
		t.Errorf("Viewed() = %d, want 1", got)
	}
	if locs := h.deck.Locations(); len(locs) != 2 || locs[1].Name != "Milan" {
		t.Errorf("Locations() = %+v, want [GPS Milan]", locs)
	}
}

// TestAddFavoriteByName_SlowStoreDoesNotBlockReads verifies add-by-search
// leaves the deck readable while its write is pending.
func TestAddFavoriteByName_SlowStoreDoesNotBlockReads(t *testing.T) {
	kv := newSlowKV()
	h := newHarnessWithStore(t, kv, true)
	kv.holdWrites()

	res := make(chan Notice, 1)
	go func() {
		n, _ := h.deck.AddFavoriteByName(context.Background(), "Paris")
		res <- n
	}()
	select {
	case <-kv.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("favorites write never reached the store")
	}
	within(t, 200*time.Millisecond, "View", func() { h.deck.View() })

	close(kv.release)
	n := <-res
	if n.Kind != NoticeAdded || n.Index != 1 {
		t.Fatalf("notice = %+v, want added at index 1", n)
	}
	if s := mustState(t, h.deck, 1); !s.Loaded() || s.Weather.Name != "Paris" {
		t.Errorf("State(1) = %+v, want Paris loaded", s)
	}
}
