package models

import (
	"encoding/json"
	"time"
)

// UpstreamResponse is a raw provider response as returned by the fetcher and
// stored in the response cache.
type UpstreamResponse struct {
	StatusCode int       `json:"statusCode"`
	Body       []byte    `json:"body"`
	FetchedAt  time.Time `json:"fetchedAt"`
	Cached     bool      `json:"-"` // served from cache, not persisted
}

// Success reports whether the upstream returned a 2xx status.
func (r UpstreamResponse) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// City is the normalized city block of an air quality record.
type City struct {
	Name string `json:"name"`
}

// ObservationTime carries both the raw short form and the ISO form of the
// upstream observation timestamp. Providers that send a bare scalar have it
// duplicated into both fields.
type ObservationTime struct {
	S   string `json:"s"`
	ISO string `json:"iso"`
}

// PollutantReading is a single per-pollutant value, always in object form
// even when the provider sent a bare number.
type PollutantReading struct {
	V float64 `json:"v"`
	U string  `json:"u,omitempty"`
}

// Geo is an optional coordinate pair on an air quality record.
type Geo struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AirQuality is the canonical air quality record served to API consumers.
type AirQuality struct {
	City              City                        `json:"city"`
	AQI               int                         `json:"aqi"`
	Time              ObservationTime             `json:"time"`
	DominantPollutant string                      `json:"dominantPollutant"`
	IAQI              map[string]PollutantReading `json:"iaqi"`
	Geo               *Geo                        `json:"geo,omitempty"`
	Forecast          json.RawMessage             `json:"forecast,omitempty"`
	Category          string                      `json:"category"`
	Color             string                      `json:"color"`
}

// Coordinates is a lat/lng pair on a bird observation.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BirdObservation is one canonical sighting record.
type BirdObservation struct {
	Species         string      `json:"species"`
	ScientificName  string      `json:"scientific_name"`
	Location        string      `json:"location"`
	ObservationDate string      `json:"observation_date"`
	Count           int         `json:"count"`
	Coordinates     Coordinates `json:"coordinates"`
}

// BirdSummary is the normalized response for a region's recent sightings.
// Counts holds the ten most frequently observed species.
type BirdSummary struct {
	Birds  []BirdObservation `json:"birds"`
	Counts map[string]int    `json:"counts"`
	Total  int               `json:"total"`
}

// LatLong is the coordinate pair on a pollution measurement site.
type LatLong struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Measurement is a single pollutant measurement at a location.
type Measurement struct {
	Parameter   string  `json:"parameter"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	LastUpdated string  `json:"lastUpdated"`
}

// PollutionLocation is one canonical measurement site.
type PollutionLocation struct {
	Name         string        `json:"name"`
	City         string        `json:"city"`
	Coordinates  LatLong       `json:"coordinates"`
	Measurements []Measurement `json:"measurements"`
}

// PollutantStats aggregates occurrence counts and mean values per pollutant
// parameter across all locations in a response.
type PollutantStats struct {
	Counts   map[string]int     `json:"counts"`
	Averages map[string]float64 `json:"averages"`
}

// PollutionSummary is the normalized response for a country's measurements.
type PollutionSummary struct {
	Locations  []PollutionLocation `json:"locations"`
	Pollutants PollutantStats      `json:"pollutants"`
	Total      int                 `json:"total"`
}

// ImpactProfile is the household lifestyle input to the impact calculator.
// Every field is optional; missing fields resolve to documented defaults and
// out-of-range values are clamped rather than rejected. Pointer fields
// distinguish "absent" from a deliberate zero.
type ImpactProfile struct {
	TransportationType string   `json:"transportation_type" validate:"omitempty,oneof=car electric_car public_transport carpool bicycle walking"`
	CommuteDistance    *float64 `json:"commute_distance" validate:"omitempty,gte=0"`
	FlightsPerYear     *int     `json:"flights_per_year" validate:"omitempty,gte=0"`
	HomeSize           *float64 `json:"home_size" validate:"omitempty,gte=0"`
	HouseholdMembers   *int     `json:"household_members" validate:"omitempty,gte=1"`
	EnergySource       string   `json:"energy_source" validate:"omitempty,oneof=grid renewable natural_gas oil mixed"`
	DietType           string   `json:"diet_type" validate:"omitempty,oneof=meat_heavy meat_medium pescatarian vegetarian vegan"`
	LocalFoodPercent   *float64 `json:"local_food_percent" validate:"omitempty,gte=0,lte=100"`
	RecyclingRate      *float64 `json:"recycling_rate" validate:"omitempty,gte=0,lte=100"`
	ShoppingFrequency  string   `json:"shopping_frequency" validate:"omitempty,oneof=minimal moderate frequent very_frequent"`
}

// Recommendation is one advisory record in an impact result.
type Recommendation struct {
	Category    string `json:"category"`
	Impact      string `json:"impact"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ImpactResult is the output of the impact calculator. CarbonFootprint is in
// metric tons CO2 per year, WaterFootprint in liters per day, LandFootprint
// in global hectares. Breakdown entries sum to CarbonFootprint within
// rounding.
type ImpactResult struct {
	CarbonFootprint float64            `json:"carbon_footprint"`
	WaterFootprint  float64            `json:"water_footprint"`
	LandFootprint   float64            `json:"land_footprint"`
	Breakdown       map[string]float64 `json:"breakdown"`
	Recommendations []Recommendation   `json:"recommendations"`
}

// Article is one scraped news or deforestation article.
type Article struct {
	Title   string `json:"title"`
	Source  string `json:"source"`
	Date    string `json:"date"`
	Link    string `json:"link"`
	Summary string `json:"summary"`
	Image   string `json:"image,omitempty"`
}

// DeforestationReport is the composite of scraped articles and forest
// statistics served by the deforestation endpoint.
type DeforestationReport struct {
	Timestamp  string         `json:"timestamp"`
	Articles   []Article      `json:"articles"`
	ForestData map[string]any `json:"forest_data"`
	Source     string         `json:"source"`
}

// Species is one row of the bird species reference dataset.
type Species struct {
	CommonName      string `json:"common_name"`
	ScientificName  string `json:"scientific_name"`
	Family          string `json:"family"`
	PopulationSize  string `json:"population_size"`
	PopulationTrend string `json:"population_trend"`
}

// SpeciesSummary is the slim listing shape used for autocomplete.
type SpeciesSummary struct {
	CommonName     string `json:"common_name"`
	ScientificName string `json:"scientific_name"`
	Family         string `json:"family"`
}

// FamilyStats aggregates population trends and sizes across a family.
type FamilyStats struct {
	Trends          map[string]int `json:"trends"`
	PopulationSizes map[string]int `json:"population_sizes"`
}

// SpeciesDetail is the lookup-by-name response: the bird itself, its family
// members, and family-level statistics.
type SpeciesDetail struct {
	Bird        Species     `json:"bird"`
	Family      []Species   `json:"family"`
	FamilyStats FamilyStats `json:"family_stats"`
}
