package geolocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-deck/internal/models"
)

// DefaultIPLookupURL is an ip-api.com compatible endpoint.
const DefaultIPLookupURL = "http://ip-api.com/json/?fields=status,message,lat,lon"

// IPLookup approximates the position from the public IP address.
// HighAccuracy is accepted but cannot be honored by this source.
type IPLookup struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

type ipLookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// NewIPLookup creates an IP-based provider. An empty url uses DefaultIPLookupURL.
func NewIPLookup(url string, httpClient *http.Client, logger *zap.Logger) *IPLookup {
	if url == "" {
		url = DefaultIPLookupURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IPLookup{url: url, httpClient: httpClient, logger: logger}
}

func (p *IPLookup) CurrentPosition(ctx context.Context, opts Options) (models.Coordinates, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	req.Header.Set("Accept", "application/json")
	if opts.MaximumAge == 0 {
		req.Header.Set("Cache-Control", "no-cache")
	}

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return models.Coordinates{}, ErrTimeout
		}
		p.logger.Info("ip lookup failed", zap.Error(err))
		return models.Coordinates{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return models.Coordinates{}, ErrPermissionDenied
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return models.Coordinates{}, fmt.Errorf("%w: status %d", ErrPositionUnavailable, resp.StatusCode)
	}

	var body ipLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: decode: %v", ErrPositionUnavailable, err)
	}
	if body.Status != "" && body.Status != "success" {
		return models.Coordinates{}, fmt.Errorf("%w: %s", ErrPositionUnavailable, body.Message)
	}

	p.logger.Debug("ip lookup fix",
		zap.Float64("lat", body.Lat),
		zap.Float64("lon", body.Lon),
		zap.Duration("duration", time.Since(start)),
	)
	return models.Coordinates{Lat: body.Lat, Lon: body.Lon}, nil
}
