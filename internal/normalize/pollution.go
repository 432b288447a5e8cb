package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/ecowatch/ecowatch-service/internal/models"
)

// Pollution normalizes a raw OpenAQ latest-measurements payload. An empty
// results list yields {locations: [], pollutants: {}, total: 0}. Per-parameter
// occurrence counts and arithmetic means are accumulated across every
// measurement of every location; a parameter only appears once observed, so
// the mean never divides by zero.
func Pollution(payload []byte) (models.PollutionSummary, error) {
	var raw pollutionEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return models.PollutionSummary{}, fmt.Errorf("decode pollution payload: %w", err)
	}

	summary := models.PollutionSummary{
		Locations: make([]models.PollutionLocation, 0, len(raw.Results)),
		Pollutants: models.PollutantStats{
			Counts:   make(map[string]int),
			Averages: make(map[string]float64),
		},
		Total: len(raw.Results),
	}
	if len(raw.Results) == 0 {
		return summary, nil
	}

	sums := make(map[string]float64)
	for _, loc := range raw.Results {
		canonical := models.PollutionLocation{
			Name:         defaultString(loc.Location, "Unknown"),
			City:         defaultString(loc.City, "Unknown"),
			Measurements: make([]models.Measurement, 0, len(loc.Measurements)),
		}
		if loc.Coordinates != nil {
			canonical.Coordinates = models.LatLong{
				Latitude:  loc.Coordinates.Latitude,
				Longitude: loc.Coordinates.Longitude,
			}
		}

		for _, m := range loc.Measurements {
			parameter := defaultString(m.Parameter, "Unknown")
			value := 0.0
			if m.Value != nil {
				value = *m.Value
			}

			summary.Pollutants.Counts[parameter]++
			sums[parameter] += value

			canonical.Measurements = append(canonical.Measurements, models.Measurement{
				Parameter:   parameter,
				Value:       value,
				Unit:        m.Unit,
				LastUpdated: defaultString(m.LastUpdated, "Unknown"),
			})
		}

		summary.Locations = append(summary.Locations, canonical)
	}

	for parameter, count := range summary.Pollutants.Counts {
		summary.Pollutants.Averages[parameter] = sums[parameter] / float64(count)
	}

	return summary, nil
}

type pollutionEnvelope struct {
	Results []rawPollutionLocation `json:"results"`
}

type rawPollutionLocation struct {
	Location    string `json:"location"`
	City        string `json:"city"`
	Coordinates *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	Measurements []rawMeasurement `json:"measurements"`
}

type rawMeasurement struct {
	Parameter   string   `json:"parameter"`
	Value       *float64 `json:"value"`
	Unit        string   `json:"unit"`
	LastUpdated string   `json:"lastUpdated"`
}
