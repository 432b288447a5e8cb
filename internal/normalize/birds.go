package normalize

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ecowatch/ecowatch-service/internal/models"
)

// topSpecies caps the frequency table at the ten most observed species.
const topSpecies = 10

// BirdObservations normalizes a raw eBird recent-observations payload. An
// empty (or null) array is not an error: it yields the explicit empty shape
// {birds: [], counts: {}, total: 0}. Missing fields get documented defaults:
// names "Unknown", count 1, coordinates {0, 0}.
func BirdObservations(payload []byte) (models.BirdSummary, error) {
	var raw []rawSighting
	if err := json.Unmarshal(payload, &raw); err != nil {
		return models.BirdSummary{}, fmt.Errorf("decode bird payload: %w", err)
	}

	summary := models.BirdSummary{
		Birds:  make([]models.BirdObservation, 0, len(raw)),
		Counts: make(map[string]int),
		Total:  len(raw),
	}
	if len(raw) == 0 {
		return summary, nil
	}

	freq := make(map[string]int)
	var order []string // first-seen order, the tie-break for the top-10 cut
	for _, s := range raw {
		species := defaultString(s.ComName, "Unknown")
		if _, seen := freq[species]; !seen {
			order = append(order, species)
		}
		freq[species]++

		count := 1
		if s.HowMany != nil {
			count = *s.HowMany
		}
		summary.Birds = append(summary.Birds, models.BirdObservation{
			Species:         species,
			ScientificName:  defaultString(s.SciName, "Unknown"),
			Location:        defaultString(s.LocName, "Unknown"),
			ObservationDate: defaultString(s.ObsDt, "Unknown"),
			Count:           count,
			Coordinates:     models.Coordinates{Lat: s.Lat, Lng: s.Lng},
		})
	}

	// order starts in first-seen order; a stable sort keeps that as the tie-break.
	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if len(order) > topSpecies {
		order = order[:topSpecies]
	}
	for _, species := range order {
		summary.Counts[species] = freq[species]
	}

	return summary, nil
}

type rawSighting struct {
	ComName string  `json:"comName"`
	SciName string  `json:"sciName"`
	LocName string  `json:"locName"`
	ObsDt   string  `json:"obsDt"`
	HowMany *int    `json:"howMany"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
