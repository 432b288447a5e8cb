// Package http wires the REST surface: one handler per endpoint, JSON in and
// out, with the upstream error taxonomy translated into the documented error
// payloads.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ecowatch/ecowatch-service/internal/impact"
	"github.com/ecowatch/ecowatch-service/internal/models"
	"github.com/ecowatch/ecowatch-service/internal/normalize"
	"github.com/ecowatch/ecowatch-service/internal/observability"
	"github.com/ecowatch/ecowatch-service/internal/service"
)

// Defaults applied when a request omits its query parameters.
const (
	defaultBirdRegion = "US-NY-063"
	defaultHotspotLat = "40.7128"
	defaultHotspotLng = "-74.0060"
	defaultCountry    = "USA"
)

// EnvironmentService is the data-family surface the handlers call.
type EnvironmentService interface {
	AirQuality(ctx context.Context, city, lat, lng string) (models.AirQuality, error)
	BirdObservations(ctx context.Context, region string) (models.BirdSummary, error)
	BirdHotspots(ctx context.Context, lat, lng string) (json.RawMessage, error)
	Pollution(ctx context.Context, country string) (models.PollutionSummary, error)
}

// ArticleSource supplies scraped news articles.
type ArticleSource interface {
	Articles(ctx context.Context) []models.Article
}

// DeforestationSource supplies the composite deforestation report and stats.
type DeforestationSource interface {
	Report(ctx context.Context) (models.DeforestationReport, error)
	Stats(ctx context.Context) map[string]any
}

// SpeciesStore serves the CSV-backed species reference dataset.
type SpeciesStore interface {
	Count() int
	All() []models.SpeciesSummary
	ByCommonName(name string) (models.SpeciesDetail, bool)
	Search(query string, limit int) []models.Species
	ByFamily(name string) ([]models.Species, bool)
}

// Handler holds dependencies for HTTP handlers. The species store may be nil
// when the dataset failed to load; the species endpoints then return 503.
type Handler struct {
	env           EnvironmentService
	news          ArticleSource
	deforestation DeforestationSource
	species       SpeciesStore
	logger        *zap.Logger
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	cachePing func() error
}

// NewHandler returns a new Handler.
func NewHandler(
	env EnvironmentService,
	news ArticleSource,
	deforestation DeforestationSource,
	species SpeciesStore,
	logger *zap.Logger,
	cachePing func() error,
) *Handler {
	return &Handler{
		env:           env,
		news:          news,
		deforestation: deforestation,
		species:       species,
		logger:        logger,
		cachePing:     cachePing,
	}
}

// GetAirQuality handles GET /api/aqi?lat=&lng=&city=.
func (h *Handler) GetAirQuality(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.env.AirQuality(r.Context(), q.Get("city"), q.Get("lat"), q.Get("lng"))
	if err != nil {
		h.writeAirQualityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeAirQualityError maps the AQI error taxonomy onto the documented
// payloads: provider status rejection, missing data, upstream HTTP failure,
// and everything else.
func (h *Handler) writeAirQualityError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "air quality request failed", err)

	var statusErr *normalize.StatusError
	if errors.As(err, &statusErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":      "API returned non-OK status",
			"raw_status": statusErr.Status,
		})
		return
	}
	var missingErr *normalize.MissingDataError
	if errors.As(err, &missingErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "No AQI data available for this location",
		})
		return
	}
	var upstreamErr *service.UpstreamError
	if errors.As(err, &upstreamErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "Could not fetch AQI data",
			"status": upstreamErr.StatusCode,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": "Could not fetch AQI data",
	})
}

// GetBirds handles GET /api/birds?region=.
func (h *Handler) GetBirds(w http.ResponseWriter, r *http.Request) {
	region := strings.TrimSpace(r.URL.Query().Get("region"))
	if region == "" {
		region = defaultBirdRegion
	}
	result, err := h.env.BirdObservations(r.Context(), region)
	if err != nil {
		logError(r, "bird observations request failed", err)
		h.writeUpstreamError(w, err, "Could not fetch bird data")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetBirdHotspots handles GET /api/birds/hotspots?lat=&lng=. The provider
// payload is relayed untouched.
func (h *Handler) GetBirdHotspots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat := strings.TrimSpace(q.Get("lat"))
	lng := strings.TrimSpace(q.Get("lng"))
	if lat == "" {
		lat = defaultHotspotLat
	}
	if lng == "" {
		lng = defaultHotspotLng
	}
	raw, err := h.env.BirdHotspots(r.Context(), lat, lng)
	if err != nil {
		logError(r, "bird hotspots request failed", err)
		h.writeUpstreamError(w, err, "Could not fetch hotspot data")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// GetPollution handles GET /api/pollution?country=.
func (h *Handler) GetPollution(w http.ResponseWriter, r *http.Request) {
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		country = defaultCountry
	}
	result, err := h.env.Pollution(r.Context(), country)
	if err != nil {
		logError(r, "pollution request failed", err)
		h.writeUpstreamError(w, err, "Could not fetch pollution data")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CalculateImpact handles POST /api/calculate-impact. An empty body computes
// the all-defaults footprint; malformed JSON is the only rejection.
func (h *Handler) CalculateImpact(w http.ResponseWriter, r *http.Request) {
	var profile models.ImpactProfile

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Could not read request body"})
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &profile); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON in request body"})
			return
		}
	}

	result, warnings := impact.Calculate(profile)
	if len(warnings) > 0 {
		if logger := loggerFrom(r); logger != nil {
			logger.Info("impact profile adjusted", zap.Strings("warnings", warnings))
		}
	}
	observability.ImpactCalculationsTotal.Inc()
	writeJSON(w, http.StatusOK, result)
}

// GetNews handles GET /api/news. Always 200; scrape failures surface as an
// empty list.
func (h *Handler) GetNews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.news.Articles(r.Context()))
}

// GetDeforestation handles GET /api/deforestation.
func (h *Handler) GetDeforestation(w http.ResponseWriter, r *http.Request) {
	report, err := h.deforestation.Report(r.Context())
	if err != nil {
		logError(r, "deforestation request failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Could not fetch deforestation data",
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetDeforestationStats handles GET /api/deforestation/stats.
func (h *Handler) GetDeforestationStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deforestation.Stats(r.Context()))
}

// GetAllBirds handles GET /api/birds/all.
func (h *Handler) GetAllBirds(w http.ResponseWriter, r *http.Request) {
	if h.species == nil {
		writeSpeciesUnavailable(w)
		return
	}
	writeJSON(w, http.StatusOK, h.species.All())
}

// GetBird handles GET /api/bird/{common_name}.
func (h *Handler) GetBird(w http.ResponseWriter, r *http.Request) {
	if h.species == nil {
		writeSpeciesUnavailable(w)
		return
	}
	name := mux.Vars(r)["common_name"]
	detail, ok := h.species.ByCommonName(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Bird not found"})
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// SearchBirds handles GET /api/birds/search?q=&limit=.
func (h *Handler) SearchBirds(w http.ResponseWriter, r *http.Request) {
	if h.species == nil {
		writeSpeciesUnavailable(w)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	writeJSON(w, http.StatusOK, h.species.Search(q.Get("q"), limit))
}

// GetFamilyBirds handles GET /api/birds/family/{family}.
func (h *Handler) GetFamilyBirds(w http.ResponseWriter, r *http.Request) {
	if h.species == nil {
		writeSpeciesUnavailable(w)
		return
	}
	family := mux.Vars(r)["family"]
	birds, ok := h.species.ByFamily(family)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Family not found"})
		return
	}
	writeJSON(w, http.StatusOK, birds)
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK

	checks := make(map[string]string)
	if h.cachePing != nil {
		if h.cachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}
	speciesLoaded := 0
	if h.species != nil {
		speciesLoaded = h.species.Count()
	}

	writeJSON(w, statusCode, map[string]any{
		"status":         status,
		"service":        "ecowatch-service",
		"version":        "dev",
		"checks":         checks,
		"species_loaded": speciesLoaded,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// writeUpstreamError emits the {error, status} payload for provider HTTP
// failures, or just {error} for transport-level ones.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, err error, message string) {
	var upstreamErr *service.UpstreamError
	if errors.As(err, &upstreamErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  message,
			"status": upstreamErr.StatusCode,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": message})
}

func writeSpeciesUnavailable(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{
		"error": "Species dataset not loaded",
	})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// logError logs an upstream failure at ERROR with the request-scoped logger
// when the middleware installed one.
func logError(r *http.Request, msg string, err error) {
	if logger := loggerFrom(r); logger != nil {
		logger.Error(msg, zap.Error(err))
	}
}

func loggerFrom(r *http.Request) *zap.Logger {
	logger, _ := r.Context().Value("logger").(*zap.Logger)
	return logger
}
