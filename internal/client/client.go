package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-deck/internal/circuitbreaker"
	"github.com/kjstillabower/weather-deck/internal/models"
	"github.com/kjstillabower/weather-deck/internal/observability"
)

// WeatherClient is the weather data provider consumed by the deck.
type WeatherClient interface {
	CurrentByCity(ctx context.Context, name string) (models.WeatherSnapshot, error)
	CurrentByCoords(ctx context.Context, coord models.Coordinates) (models.WeatherSnapshot, error)
	ForecastByCoords(ctx context.Context, coord models.Coordinates) (models.ForecastSnapshot, error)
}

// OnlineChecker reports local connectivity without doing I/O.
type OnlineChecker interface {
	Online() bool
}

const (
	endpointWeather  = "weather"
	endpointForecast = "forecast"
	endpointAir      = "air_pollution"
)

// Options configures an OpenWeatherClient. Zero values use defaults.
type Options struct {
	APIKey         string
	BaseURL        string // default https://api.openweathermap.org/data/2.5
	Timeout        time.Duration
	Units          string // default metric
	Lang           string // default en
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	Connectivity OnlineChecker
	Breaker      *circuitbreaker.Breaker
	Limiter      *rate.Limiter
	HTTPClient   *http.Client
}

// OpenWeatherClient talks to the OpenWeatherMap 2.5 API.
type OpenWeatherClient struct {
	opts   Options
	client *http.Client
}

// NewOpenWeatherClient returns a client with default retry settings.
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return New(Options{APIKey: apiKey, BaseURL: baseURL, Timeout: timeout})
}

// New validates opts and returns a client.
func New(opts Options) (*OpenWeatherClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(opts.APIKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openweathermap.org/data/2.5"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Units == "" {
		opts.Units = "metric"
	}
	if opts.Lang == "" {
		opts.Lang = "en"
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 100 * time.Millisecond
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 2 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &OpenWeatherClient{opts: opts, client: hc}, nil
}

// ambiguousCities are bare Italian city names that also exist elsewhere (mostly the US).
var ambiguousCities = map[string]struct{}{
	"roma": {}, "rome": {}, "verona": {}, "milano": {}, "milan": {}, "napoli": {}, "naples": {},
	"venezia": {}, "venice": {}, "firenze": {}, "florence": {}, "torino": {}, "turin": {},
}

// normalizeCityQuery trims the query and pins well-known ambiguous Italian cities to IT.
func normalizeCityQuery(name string) string {
	q := strings.TrimSpace(name)
	if strings.Contains(q, ",") {
		return q
	}
	if _, ok := ambiguousCities[strings.ToLower(q)]; ok {
		return q + ",IT"
	}
	return q
}

// CurrentByCity fetches current weather by city name, enriched with a best-effort air quality index.
func (c *OpenWeatherClient) CurrentByCity(ctx context.Context, name string) (models.WeatherSnapshot, error) {
	if err := c.checkOnline(); err != nil {
		return models.WeatherSnapshot{}, err
	}
	params := url.Values{}
	params.Set("q", normalizeCityQuery(name))

	var resp currentResponse
	if err := c.getJSON(ctx, endpointWeather, params, &resp); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("current weather for %q: %w", name, err)
	}
	snap := resp.toSnapshot()
	snap.AirQuality = c.AirQuality(ctx, snap.Coord)
	return snap, nil
}

// CurrentByCoords fetches current weather at coord, enriched with a best-effort air quality index.
func (c *OpenWeatherClient) CurrentByCoords(ctx context.Context, coord models.Coordinates) (models.WeatherSnapshot, error) {
	if err := c.checkOnline(); err != nil {
		return models.WeatherSnapshot{}, err
	}
	var resp currentResponse
	if err := c.getJSON(ctx, endpointWeather, coordParams(coord), &resp); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("current weather at %s: %w", formatCoord(coord), err)
	}
	snap := resp.toSnapshot()
	snap.AirQuality = c.AirQuality(ctx, coord)
	return snap, nil
}

// ForecastByCoords fetches the 5 day / 3 hour forecast at coord.
func (c *OpenWeatherClient) ForecastByCoords(ctx context.Context, coord models.Coordinates) (models.ForecastSnapshot, error) {
	if err := c.checkOnline(); err != nil {
		return models.ForecastSnapshot{}, err
	}
	var resp forecastResponse
	if err := c.getJSON(ctx, endpointForecast, coordParams(coord), &resp); err != nil {
		return models.ForecastSnapshot{}, fmt.Errorf("forecast at %s: %w", formatCoord(coord), err)
	}
	return resp.toSnapshot(), nil
}

// AirQuality returns the provider's air quality index (1..5) at coord, or 0 on any failure.
// It is a single attempt and never retried.
func (c *OpenWeatherClient) AirQuality(ctx context.Context, coord models.Coordinates) int {
	if c.checkOnline() != nil {
		return 0
	}
	var resp airResponse
	if err := c.callAPI(ctx, endpointAir, coordParams(coord), &resp); err != nil {
		return 0
	}
	if len(resp.List) == 0 {
		return 0
	}
	return resp.List[0].Main.AQI
}

func (c *OpenWeatherClient) checkOnline() error {
	if c.opts.Connectivity != nil && !c.opts.Connectivity.Online() {
		observability.ProviderCallsTotal.WithLabelValues("any", "offline").Inc()
		return ErrOffline
	}
	return nil
}

// getJSON performs a GET with retries, exponential backoff, optional rate limiting and circuit breaking.
func (c *OpenWeatherClient) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			observability.ProviderRetriesTotal.WithLabelValues(endpoint).Inc()
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%w: rate limit wait: %v", ErrTransport, err)
			}
		}

		var err error
		if c.opts.Breaker != nil {
			err = c.opts.Breaker.Do(func() error { return c.callAPI(ctx, endpoint, params, out) })
			if errors.Is(err, circuitbreaker.ErrOpen) {
				return &ProviderError{Endpoint: endpoint, StatusCode: http.StatusServiceUnavailable}
			}
		} else {
			err = c.callAPI(ctx, endpoint, params, out)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		observability.ProviderErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		if !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, params)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.ProviderDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: request timeout: %v", ErrTransport, err)
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.ProviderCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.ProviderDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(endpoint, resp); err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response body: %v", ErrTransport, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s response: %w", endpoint, err)
	}
	return nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.opts.BaseURL + "/" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("appid", c.opts.APIKey)
	if endpoint != endpointAir {
		q.Set("units", c.opts.Units)
		q.Set("lang", c.opts.Lang)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(endpoint string, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrInvalidAPIKey, endpoint)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrLocationNotFound, endpoint)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}
	return nil
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrOffline) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransport) {
		return true
	}
	return StatusCode(err) >= 500
}

// IsBreakerFailure reports whether err indicates an unhealthy provider rather than a bad
// request. Use it as circuitbreaker.Config.IsFailure for breakers guarding this client.
func IsBreakerFailure(err error) bool {
	return isRetryable(err)
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.opts.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.opts.RetryMaxDelay) {
		delay = float64(c.opts.RetryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "error"
}

func coordParams(coord models.Coordinates) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coord.Lon, 'f', -1, 64))
	return params
}

func formatCoord(coord models.Coordinates) string {
	return fmt.Sprintf("%.4f,%.4f", coord.Lat, coord.Lon)
}
