//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-deck/internal/client"
	"github.com/kjstillabower/weather-deck/internal/connectivity"
	"github.com/kjstillabower/weather-deck/internal/deck"
	"github.com/kjstillabower/weather-deck/internal/favorites"
	"github.com/kjstillabower/weather-deck/internal/geolocation"
	"github.com/kjstillabower/weather-deck/internal/kvstore"
	"github.com/kjstillabower/weather-deck/internal/models"
	"github.com/kjstillabower/weather-deck/internal/observability"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	StoreBackend  string // "memory", "memcached" or "redis"
	MemcachedAddr string
	RedisAddr     string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org/data/2.5"
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		StoreBackend:  os.Getenv("INTEGRATION_STORE_BACKEND"),
		MemcachedAddr: memcachedAddr,
		RedisAddr:     redisAddr,
	}
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) client.WeatherClient {
	c, err := client.New(client.Options{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.APIURL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return c
}

// SetupIntegrationStore returns the configured favorites backend, falling back
// to memory when the requested server is unreachable.
func SetupIntegrationStore(t *testing.T, cfg IntegrationTestConfig) (kvstore.Store, func()) {
	switch cfg.StoreBackend {
	case "memcached":
		mc := kvstore.NewMemcached(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		err := mc.Ping()
		if err == nil {
			t.Logf("Using Memcached store at %s", cfg.MemcachedAddr)
			return mc, func() { _ = mc.Close() }
		}
		t.Logf("Memcached not available (%v), using memory store", err)
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		rc, err := kvstore.NewRedis(ctx, kvstore.RedisOptions{Addr: cfg.RedisAddr})
		if err == nil {
			t.Logf("Using Redis store at %s", cfg.RedisAddr)
			return rc, func() { _ = rc.Close() }
		}
		t.Logf("Redis not available (%v), using memory store", err)
	}
	return kvstore.NewMemory(), func() {}
}

// SetupIntegrationDeck builds a deck against the live provider. The GPS entry
// resolves to coord; pass a zero value to exercise the unsupported path.
// Favorites are stored under a per-test key.
func SetupIntegrationDeck(t *testing.T, cfg IntegrationTestConfig, coord models.Coordinates) (*deck.Deck, func()) {
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	store, closeStore := SetupIntegrationStore(t, cfg)
	favs := favorites.Open(context.Background(), store, "weather_deck_favs_it_"+t.Name(), logger)
	network := connectivity.New(true, logger)
	d := deck.New(SetupIntegrationClient(t, cfg), geolocation.Static{Coord: coord}, network, favs, logger, deck.Options{})

	return d, func() {
		d.Close()
		closeStore()
	}
}
