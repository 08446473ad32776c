// Package favorites owns the ordered list of saved cities and its persistence.
package favorites

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-deck/internal/kvstore"
	"github.com/kjstillabower/weather-deck/internal/models"
	"github.com/kjstillabower/weather-deck/internal/observability"
)

// DefaultKey is the store key the list is serialized under.
const DefaultKey = "weather_deck_favs"

// Store is the in-memory favorites list backed by a kvstore key. The full list
// is written on every mutation.
type Store struct {
	// writeMu orders mutations with their writes; mu only guards items and
	// is never held across kv I/O.
	writeMu sync.Mutex
	mu      sync.RWMutex
	items   []models.FavoriteCity
	kv      kvstore.Store
	key     string
	logger  *zap.Logger
}

// Open loads the list once. Missing or unreadable data yields an empty list
// and is logged, never returned as an error.
func Open(ctx context.Context, kv kvstore.Store, key string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key == "" {
		key = DefaultKey
	}
	s := &Store{kv: kv, key: key, logger: logger}

	raw, ok, err := kv.Get(ctx, key)
	switch {
	case err != nil:
		logger.Warn("favorites load failed, starting empty", zap.String("key", key), zap.Error(err))
	case !ok:
		logger.Debug("no persisted favorites", zap.String("key", key))
	default:
		var items []models.FavoriteCity
		if err := json.Unmarshal(raw, &items); err != nil {
			logger.Warn("favorites data corrupt, starting empty", zap.String("key", key), zap.Error(err))
		} else {
			s.items = dedupe(items)
		}
	}
	observability.FavoritesCount.Set(float64(len(s.items)))
	return s
}

func dedupe(items []models.FavoriteCity) []models.FavoriteCity {
	seen := make(map[int64]bool, len(items))
	out := make([]models.FavoriteCity, 0, len(items))
	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out
}

// List returns a copy of the favorites in stored order.
func (s *Store) List() []models.FavoriteCity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FavoriteCity(nil), s.items...)
}

// Len returns the number of favorites.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Contains reports whether id is saved.
func (s *Store) Contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOfLocked(id) >= 0
}

func (s *Store) indexOfLocked(id int64) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Add appends fav unless its id is already present. The in-memory list is
// updated even when persisting fails; the error is returned for logging.
func (s *Store) Add(ctx context.Context, fav models.FavoriteCity) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.indexOfLocked(fav.ID) >= 0 {
		s.mu.Unlock()
		return false, nil
	}
	s.items = append(s.items, fav)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return true, s.persist(ctx, snapshot)
}

// Remove deletes the entry with id and returns its former position in the list.
// position is -1 and removed false when id is not present.
func (s *Store) Remove(ctx context.Context, id int64) (position int, removed bool, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	i := s.indexOfLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return -1, false, nil
	}
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return i, true, s.persist(ctx, snapshot)
}

func (s *Store) snapshotLocked() []models.FavoriteCity {
	return append([]models.FavoriteCity{}, s.items...)
}

// persist writes items under the store key. Callers hold writeMu.
func (s *Store) persist(ctx context.Context, items []models.FavoriteCity) error {
	observability.FavoritesCount.Set(float64(len(items)))
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		s.logger.Warn("favorites persist failed", zap.String("key", s.key), zap.Error(err))
		return fmt.Errorf("persist favorites: %w", err)
	}
	return nil
}
