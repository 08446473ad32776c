package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Favorites backends.
const (
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Geolocation providers.
const (
	GeoStatic = "static"
	GeoIP     = "ip"
)

// Config holds service configuration loaded from .env, YAML and env.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	Units             string
	Lang              string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// Outbound provider budget. Zero disables the limiter.
	ProviderRPS   float64
	ProviderBurst int
	// Inbound API budget. Zero disables the limiter.
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	GeoProvider  string
	GeoLatitude  float64
	GeoLongitude float64
	GeoIPURL     string
	GeoTimeout   time.Duration

	ProbeAddr     string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	Debounce time.Duration
	GPSLabel string

	FavoritesBackend      string
	FavoritesKey          string
	FavoritesFilePath     string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisAddr             string
	RedisPassword         string
	RedisDB               int

	HealthFailureWindow time.Duration
	HealthFailurePct    int
	HealthMinLoads      int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
		Units   string `yaml:"units"`
		Lang    string `yaml:"lang"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RetryMaxAttempts int     `yaml:"retry_max_attempts"`
		RetryBaseDelay   string  `yaml:"retry_base_delay"`
		RetryMaxDelay    string  `yaml:"retry_max_delay"`
		ProviderRPS      float64 `yaml:"provider_rps"`
		ProviderBurst    int     `yaml:"provider_burst"`
		RateLimitRPS     int     `yaml:"rate_limit_rps"`
		RateLimitBurst   int     `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Geolocation struct {
		Provider  string  `yaml:"provider"`
		Latitude  float64 `yaml:"latitude"`
		Longitude float64 `yaml:"longitude"`
		IPURL     string  `yaml:"ip_url"`
		Timeout   string  `yaml:"timeout"`
	} `yaml:"geolocation"`

	Connectivity struct {
		ProbeAddr     string `yaml:"probe_addr"`
		ProbeInterval string `yaml:"probe_interval"`
		ProbeTimeout  string `yaml:"probe_timeout"`
	} `yaml:"connectivity"`

	Deck struct {
		Debounce string `yaml:"debounce"`
		GPSLabel string `yaml:"gps_label"`
	} `yaml:"deck"`

	Favorites struct {
		Backend   string `yaml:"backend"`
		Key       string `yaml:"key"`
		FilePath  string `yaml:"file_path"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"favorites"`

	Health struct {
		FailureWindow string `yaml:"failure_window"`
		FailurePct    int    `yaml:"failure_pct"`
		MinLoads      int    `yaml:"min_loads"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	RedisPassword string `yaml:"redis_password"`
}

// Load reads .env (optional), config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. Environment variables win over files. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
	}
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.BaseURL, "https://api.openweathermap.org/data/2.5")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.Units = firstNonEmpty(fc.WeatherAPI.Units, "metric")
	cfg.Lang = firstNonEmpty(fc.WeatherAPI.Lang, "en")

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 20*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.ProviderRPS = fc.Reliability.ProviderRPS
	cfg.ProviderBurst = fc.Reliability.ProviderBurst
	if cfg.ProviderRPS > 0 && cfg.ProviderBurst <= 0 {
		cfg.ProviderBurst = 1
	}
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS * 2
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled == nil || *cb.Enabled
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.GeoProvider = strings.ToLower(firstNonEmpty(os.Getenv("GEO_PROVIDER"), fc.Geolocation.Provider, GeoStatic))
	cfg.GeoLatitude = fc.Geolocation.Latitude
	cfg.GeoLongitude = fc.Geolocation.Longitude
	cfg.GeoIPURL = fc.Geolocation.IPURL
	cfg.GeoTimeout = parseDuration(fc.Geolocation.Timeout, 10*time.Second)

	cfg.ProbeAddr = strings.TrimSpace(fc.Connectivity.ProbeAddr)
	cfg.ProbeInterval = parseDuration(fc.Connectivity.ProbeInterval, 5*time.Second)
	cfg.ProbeTimeout = parseDuration(fc.Connectivity.ProbeTimeout, 2*time.Second)

	cfg.Debounce = parseDuration(fc.Deck.Debounce, 100*time.Millisecond)
	cfg.GPSLabel = fc.Deck.GPSLabel

	cfg.FavoritesBackend = strings.ToLower(firstNonEmpty(os.Getenv("FAVORITES_BACKEND"), fc.Favorites.Backend, BackendFile))
	cfg.FavoritesKey = firstNonEmpty(fc.Favorites.Key, "weather_deck_favs")
	cfg.FavoritesFilePath = firstNonEmpty(fc.Favorites.FilePath, "data")
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Favorites.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Favorites.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Favorites.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = firstNonEmpty(os.Getenv("REDIS_ADDR"), fc.Favorites.Redis.Addr, "localhost:6379")
	cfg.RedisPassword = firstNonEmpty(os.Getenv("REDIS_PASSWORD"), sec.RedisPassword, fc.Favorites.Redis.Password)
	cfg.RedisDB = fc.Favorites.Redis.DB
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB must be an integer: %w", err)
		}
		cfg.RedisDB = db
	}

	cfg.HealthFailureWindow = parseDuration(fc.Health.FailureWindow, time.Minute)
	cfg.HealthFailurePct = fc.Health.FailurePct
	if cfg.HealthFailurePct <= 0 {
		cfg.HealthFailurePct = 50
	}
	cfg.HealthMinLoads = fc.Health.MinLoads
	if cfg.HealthMinLoads <= 0 {
		cfg.HealthMinLoads = 4
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is for validate to reject.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate rejects non-positive provider timeouts and unknown backends, and
// stretches RequestTimeout so a geolocation fix plus a provider call fit in it.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if floor := cfg.GeoTimeout + cfg.WeatherAPITimeout; cfg.RequestTimeout < floor {
		cfg.RequestTimeout = floor + time.Second
	}
	switch cfg.FavoritesBackend {
	case BackendMemory, BackendFile, BackendMemcached, BackendRedis:
	default:
		return fmt.Errorf("favorites.backend must be memory, file, memcached or redis, got %q", cfg.FavoritesBackend)
	}
	switch cfg.GeoProvider {
	case GeoStatic, GeoIP:
	default:
		return fmt.Errorf("geolocation.provider must be static or ip, got %q", cfg.GeoProvider)
	}
	return nil
}
