package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-deck/internal/circuitbreaker"
	"github.com/kjstillabower/weather-deck/internal/client"
	"github.com/kjstillabower/weather-deck/internal/config"
	"github.com/kjstillabower/weather-deck/internal/connectivity"
	"github.com/kjstillabower/weather-deck/internal/deck"
	"github.com/kjstillabower/weather-deck/internal/favorites"
	"github.com/kjstillabower/weather-deck/internal/geolocation"
	httphandler "github.com/kjstillabower/weather-deck/internal/http"
	"github.com/kjstillabower/weather-deck/internal/kvstore"
	"github.com/kjstillabower/weather-deck/internal/lifecycle"
	"github.com/kjstillabower/weather-deck/internal/models"
	"github.com/kjstillabower/weather-deck/internal/observability"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	network := connectivity.New(true, logger)
	go func() {
		_ = network.Run(ctx, connectivity.ProbeConfig{
			Addr:     cfg.ProbeAddr,
			Interval: cfg.ProbeInterval,
			Timeout:  cfg.ProbeTimeout,
		})
	}()

	clientOpts := client.Options{
		APIKey:         cfg.WeatherAPIKey,
		BaseURL:        cfg.WeatherAPIURL,
		Timeout:        cfg.WeatherAPITimeout,
		Units:          cfg.Units,
		Lang:           cfg.Lang,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		Connectivity:   network,
	}
	if cfg.CircuitBreakerEnabled {
		clientOpts.Breaker = circuitbreaker.New(circuitbreaker.Config{
			Name:             "weather_api",
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			OpenTimeout:      cfg.CircuitBreakerTimeout,
			IsFailure:        client.IsBreakerFailure,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(name, from.String(), to.String(), int(to))
				logger.Warn("circuit breaker state change",
					zap.String("component", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	if cfg.ProviderRPS > 0 {
		clientOpts.Limiter = rate.NewLimiter(rate.Limit(cfg.ProviderRPS), cfg.ProviderBurst)
	}
	weatherClient, err := client.New(clientOpts)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	var geo geolocation.Provider
	switch cfg.GeoProvider {
	case config.GeoIP:
		geo = geolocation.NewIPLookup(cfg.GeoIPURL, &http.Client{Timeout: cfg.GeoTimeout}, logger)
		logger.Info("geolocation: ip lookup")
	default:
		geo = geolocation.Static{Coord: models.Coordinates{Lat: cfg.GeoLatitude, Lon: cfg.GeoLongitude}}
		logger.Info("geolocation: static",
			zap.Float64("lat", cfg.GeoLatitude),
			zap.Float64("lon", cfg.GeoLongitude))
	}

	healthConfig := &httphandler.HealthConfig{
		FailureWindow: cfg.HealthFailureWindow,
		FailurePct:    cfg.HealthFailurePct,
		MinLoads:      cfg.HealthMinLoads,
		StartTime:     time.Now(),
		Online:        network.Online,
	}

	var store kvstore.Store
	var closeStore func() error
	switch cfg.FavoritesBackend {
	case config.BackendMemcached:
		mc := kvstore.NewMemcached(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		store, closeStore = mc, mc.Close
		healthConfig.StorePing = func(context.Context) error { return mc.Ping() }
		logger.Info("favorites backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case config.BackendRedis:
		rc, err := kvstore.NewRedis(ctx, kvstore.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Fatal("redis favorites store", zap.Error(err))
		}
		store, closeStore = rc, rc.Close
		healthConfig.StorePing = rc.Ping
		logger.Info("favorites backend: redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	case config.BackendMemory:
		store = kvstore.NewMemory()
		logger.Info("favorites backend: memory")
	default:
		fs, err := kvstore.NewFile(cfg.FavoritesFilePath)
		if err != nil {
			logger.Fatal("file favorites store", zap.Error(err))
		}
		store = fs
		logger.Info("favorites backend: file", zap.String("dir", cfg.FavoritesFilePath))
	}

	favs := favorites.Open(ctx, store, cfg.FavoritesKey, logger)
	weatherDeck := deck.New(weatherClient, geo, network, favs, logger, deck.Options{
		GPSLabel: cfg.GPSLabel,
		Debounce: cfg.Debounce,
		Geo: geolocation.Options{
			Timeout:      cfg.GeoTimeout,
			HighAccuracy: true,
		},
	})
	go weatherDeck.Run(ctx)
	weatherDeck.LoadViewed()

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherDeck, healthConfig, logger)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	httphandler.Register(router, handler,
		httphandler.RateLimitMiddleware(limiter),
		httphandler.TimeoutMiddleware(cfg.RequestTimeout))

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()
	lifecycle.SetPhase(lifecycle.PhaseReady)

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetPhase(lifecycle.PhaseDraining)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	weatherDeck.Close()

	if closeStore != nil {
		if err := closeStore(); err != nil {
			logger.Error("favorites store close", zap.Error(err))
		}
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
