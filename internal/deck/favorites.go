package deck

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-deck/internal/client"
	"github.com/kjstillabower/weather-deck/internal/locations"
	"github.com/kjstillabower/weather-deck/internal/models"
	"github.com/kjstillabower/weather-deck/internal/validation"
)

// NoticeKind is the outcome of an add-by-search request.
type NoticeKind string

const (
	NoticeAdded    NoticeKind = "added"
	NoticeExisting NoticeKind = "existing"
	NoticeOffline  NoticeKind = "offline"
	NoticeNotFound NoticeKind = "not_found"
	NoticeFailed   NoticeKind = "failed"
)

// Notice is a one-shot message about an add-by-search request. It is not
// stored as per-location state. Index is the viewed index afterwards.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Index   int        `json:"index"`
}

// AddFavoriteByName searches for a city and saves it. A name matching an
// existing entry case-insensitively navigates to that entry instead. On
// success the weather result seeds the new entry's state and the view moves to
// it. The only error is invalid input.
func (d *Deck) AddFavoriteByName(ctx context.Context, name string) (Notice, error) {
	name, err := validation.ValidateCityName(name)
	if err != nil {
		return Notice{}, err
	}

	if !d.net.Online() {
		return Notice{Kind: NoticeOffline, Message: "Cannot search cities: no internet connection.", Index: d.Viewed()}, nil
	}

	d.mu.Lock()
	if i := locations.FindByName(d.locs, name); i >= 0 {
		existing := d.locs[i].Name
		d.viewed = i
		d.scheduleLoadLocked()
		d.mu.Unlock()
		return Notice{Kind: NoticeExisting, Message: fmt.Sprintf("%s is already in your list.", existing), Index: i}, nil
	}
	d.mu.Unlock()

	weather, err := d.weather.CurrentByCity(ctx, name)
	if err != nil {
		d.logger.Info("city search failed", zap.String("name", name), zap.Error(err))
		if errors.Is(err, client.ErrLocationNotFound) {
			return Notice{Kind: NoticeNotFound, Message: "City not found: " + name, Index: d.Viewed()}, nil
		}
		return Notice{Kind: NoticeFailed, Message: client.UserMessage(err), Index: d.Viewed()}, nil
	}
	forecast := d.bestEffortForecast(ctx, weather.Coord)

	fav := models.FavoriteCity{ID: weather.CityID, Name: weather.Name, Country: weather.Country}

	d.favMu.Lock()
	defer d.favMu.Unlock()
	d.mu.Lock()
	if i := locations.IndexOf(d.locs, models.CityKey(fav.ID)); i >= 0 {
		d.viewed = i
		d.scheduleLoadLocked()
		d.mu.Unlock()
		return Notice{Kind: NoticeExisting, Message: fmt.Sprintf("%s is already in your list.", fav.Name), Index: i}, nil
	}
	d.mu.Unlock()

	d.add(ctx, fav, loadedState(weather, forecast), true)
	return Notice{Kind: NoticeAdded, Message: fmt.Sprintf("%s added.", fav.Name), Index: d.Viewed()}, nil
}

// RemoveFavorite deletes the saved city with id. When the removed entry sat at
// or before the viewed position and the view is not on GPS, the viewed index
// moves back by one. Unknown ids are a no-op.
func (d *Deck) RemoveFavorite(ctx context.Context, id int64) (bool, error) {
	d.favMu.Lock()
	defer d.favMu.Unlock()
	return d.remove(ctx, id)
}

// remove and add persist through the store without holding d.mu, so reads and
// load completions proceed while the kv write is in flight. Callers hold favMu,
// which keeps d.locs in step with the store between the write and the rebuild.
func (d *Deck) remove(ctx context.Context, id int64) (bool, error) {
	position, removed, err := d.favs.Remove(ctx, id)
	if !removed {
		return false, err
	}
	if err != nil {
		d.logger.Warn("favorite removed but not persisted", zap.Int64("id", id), zap.Error(err))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	removedIndex := position + 1
	if d.viewed >= removedIndex && d.viewed > 0 {
		d.viewed--
	}
	delete(d.states, models.CityKey(id))
	d.locs = locations.Build(d.opts.GPSLabel, d.favs.List())
	d.scheduleLoadLocked()
	return true, nil
}

// add saves fav and, when seed is loaded and the city has no state yet, uses
// seed as its state. navigate moves the view to the new entry.
func (d *Deck) add(ctx context.Context, fav models.FavoriteCity, seed models.LoadState, navigate bool) bool {
	added, err := d.favs.Add(ctx, fav)
	if err != nil {
		d.logger.Warn("favorite added but not persisted", zap.Int64("id", fav.ID), zap.Error(err))
	}
	if !added {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.locs = locations.Build(d.opts.GPSLabel, d.favs.List())
	key := models.CityKey(fav.ID)
	if _, ok := d.states[key]; !ok && seed.Loaded() {
		d.states[key] = &entry{state: seed}
	}
	if navigate {
		d.viewed = len(d.locs) - 1
	}
	d.scheduleLoadLocked()
	return true
}

// ToggleFavorite saves or removes the city whose weather is loaded at the
// viewed position. It reports whether the city is a favorite afterwards and
// fails with ErrNotLoaded when there is no loaded weather.
func (d *Deck) ToggleFavorite(ctx context.Context) (bool, error) {
	d.favMu.Lock()
	defer d.favMu.Unlock()

	d.mu.Lock()
	state := d.stateLocked(d.locs[d.viewed].Key())
	d.mu.Unlock()
	if !state.Loaded() {
		return false, ErrNotLoaded
	}
	w := state.Weather
	if d.favs.Contains(w.CityID) {
		_, err := d.remove(ctx, w.CityID)
		return false, err
	}

	d.add(ctx, models.FavoriteCity{ID: w.CityID, Name: w.Name, Country: w.Country}, state, false)
	return true, nil
}
