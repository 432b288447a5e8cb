// Package service orchestrates environmental data retrieval: it builds
// provider request signatures, pulls raw payloads through the caching
// fetcher, and hands them to the normalizers.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/ecowatch/ecowatch-service/internal/fetch"
	"github.com/ecowatch/ecowatch-service/internal/models"
	"github.com/ecowatch/ecowatch-service/internal/normalize"
)

// UpstreamError reports a non-success HTTP status from a provider. Handlers
// translate it into the structured {error, status} payload.
type UpstreamError struct {
	Resource   string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("could not fetch %s: HTTP %d", e.Resource, e.StatusCode)
}

// Config carries provider endpoints, API keys and per-family cache TTLs.
type Config struct {
	AQICNBaseURL  string
	AQICNKey      string
	EBirdBaseURL  string
	EBirdKey      string
	OpenAQBaseURL string
	OpenAQKey     string

	AQITTL       time.Duration
	BirdTTL      time.Duration
	HotspotTTL   time.Duration
	PollutionTTL time.Duration
}

// EnvService exposes one operation per upstream data family.
type EnvService struct {
	fetcher fetch.Fetcher
	cfg     Config
}

// NewEnvService creates an EnvService using the given fetcher and provider config.
func NewEnvService(fetcher fetch.Fetcher, cfg Config) *EnvService {
	return &EnvService{fetcher: fetcher, cfg: cfg}
}

// AirQuality fetches and normalizes the AQICN feed. Coordinates take
// precedence over the city name when both are supplied; the city defaults to
// "beijing" when neither is given.
func (s *EnvService) AirQuality(ctx context.Context, city, lat, lng string) (models.AirQuality, error) {
	var feedURL string
	if lat != "" && lng != "" {
		feedURL = fmt.Sprintf("%s/feed/geo:%s;%s/?token=%s", s.cfg.AQICNBaseURL, lat, lng, s.cfg.AQICNKey)
	} else {
		if city == "" {
			city = "beijing"
		}
		feedURL = fmt.Sprintf("%s/feed/%s/?token=%s", s.cfg.AQICNBaseURL, url.PathEscape(city), s.cfg.AQICNKey)
	}

	resp, err := s.fetcher.GetOrFetch(ctx, feedURL, nil, s.cfg.AQITTL)
	if err != nil {
		return models.AirQuality{}, fmt.Errorf("air quality: %w", err)
	}
	if !resp.Success() {
		return models.AirQuality{}, &UpstreamError{Resource: "AQI data", StatusCode: resp.StatusCode}
	}
	return normalize.AirQuality(resp.Body)
}

// BirdObservations fetches and normalizes recent sightings for an eBird region.
func (s *EnvService) BirdObservations(ctx context.Context, region string) (models.BirdSummary, error) {
	obsURL := fmt.Sprintf("%s/data/obs/%s/recent", s.cfg.EBirdBaseURL, url.PathEscape(region))
	resp, err := s.fetcher.GetOrFetch(ctx, obsURL, s.ebirdHeaders(), s.cfg.BirdTTL)
	if err != nil {
		return models.BirdSummary{}, fmt.Errorf("bird observations: %w", err)
	}
	if !resp.Success() {
		return models.BirdSummary{}, &UpstreamError{Resource: "bird data", StatusCode: resp.StatusCode}
	}
	return normalize.BirdObservations(resp.Body)
}

// BirdHotspots fetches birding hotspots near a coordinate. The provider
// payload is passed through untouched.
func (s *EnvService) BirdHotspots(ctx context.Context, lat, lng string) (json.RawMessage, error) {
	hotspotURL := fmt.Sprintf("%s/ref/hotspot/geo?lat=%s&lng=%s&fmt=json", s.cfg.EBirdBaseURL, url.QueryEscape(lat), url.QueryEscape(lng))
	resp, err := s.fetcher.GetOrFetch(ctx, hotspotURL, s.ebirdHeaders(), s.cfg.HotspotTTL)
	if err != nil {
		return nil, fmt.Errorf("bird hotspots: %w", err)
	}
	if !resp.Success() {
		return nil, &UpstreamError{Resource: "bird hotspots", StatusCode: resp.StatusCode}
	}
	return json.RawMessage(resp.Body), nil
}

// Pollution fetches and normalizes the latest OpenAQ measurements for a country.
func (s *EnvService) Pollution(ctx context.Context, country string) (models.PollutionSummary, error) {
	pollutionURL := fmt.Sprintf("%s/latest?limit=100&page=1&offset=0&sort=desc&country=%s&order_by=lastUpdated",
		s.cfg.OpenAQBaseURL, url.QueryEscape(country))

	var headers map[string]string
	if s.cfg.OpenAQKey != "" {
		headers = map[string]string{"X-API-Key": s.cfg.OpenAQKey}
	}

	resp, err := s.fetcher.GetOrFetch(ctx, pollutionURL, headers, s.cfg.PollutionTTL)
	if err != nil {
		return models.PollutionSummary{}, fmt.Errorf("pollution: %w", err)
	}
	if !resp.Success() {
		return models.PollutionSummary{}, &UpstreamError{Resource: "pollution data", StatusCode: resp.StatusCode}
	}
	return normalize.Pollution(resp.Body)
}

func (s *EnvService) ebirdHeaders() map[string]string {
	return map[string]string{"X-eBirdApiToken": s.cfg.EBirdKey}
}
