package normalize

import (
	"math"
	"testing"
)

func TestPollution_EmptyResults(t *testing.T) {
	for _, payload := range []string{`{"results": []}`, `{}`} {
		summary, err := Pollution([]byte(payload))
		if err != nil {
			t.Fatalf("Pollution(%s) error = %v", payload, err)
		}
		if summary.Locations == nil || len(summary.Locations) != 0 {
			t.Errorf("Locations = %v, want empty non-nil slice", summary.Locations)
		}
		if len(summary.Pollutants.Counts) != 0 || len(summary.Pollutants.Averages) != 0 {
			t.Errorf("Pollutants = %+v, want empty maps", summary.Pollutants)
		}
		if summary.Total != 0 {
			t.Errorf("Total = %d, want 0", summary.Total)
		}
	}
}

func TestPollution_AveragesAcrossLocations(t *testing.T) {
	payload := []byte(`{
		"results": [
			{
				"location": "Station A",
				"city": "Denver",
				"coordinates": {"latitude": 39.7, "longitude": -104.9},
				"measurements": [
					{"parameter": "pm25", "value": 10.0, "unit": "µg/m³", "lastUpdated": "2024-05-01T00:00:00Z"},
					{"parameter": "o3", "value": 30.0, "unit": "ppm", "lastUpdated": "2024-05-01T00:00:00Z"}
				]
			},
			{
				"location": "Station B",
				"city": "Denver",
				"measurements": [
					{"parameter": "pm25", "value": 20.0, "unit": "µg/m³", "lastUpdated": "2024-05-01T01:00:00Z"}
				]
			}
		]
	}`)

	summary, err := Pollution(payload)
	if err != nil {
		t.Fatalf("Pollution() error = %v", err)
	}
	if summary.Total != 2 {
		t.Errorf("Total = %d, want 2", summary.Total)
	}
	if summary.Pollutants.Counts["pm25"] != 2 || summary.Pollutants.Counts["o3"] != 1 {
		t.Errorf("Counts = %v", summary.Pollutants.Counts)
	}
	if got := summary.Pollutants.Averages["pm25"]; math.Abs(got-15.0) > 1e-9 {
		t.Errorf("Averages[pm25] = %v, want 15", got)
	}
	if got := summary.Pollutants.Averages["o3"]; math.Abs(got-30.0) > 1e-9 {
		t.Errorf("Averages[o3] = %v, want 30", got)
	}

	a := summary.Locations[0]
	if a.Name != "Station A" || a.City != "Denver" {
		t.Errorf("location = %+v", a)
	}
	if a.Coordinates.Latitude != 39.7 || a.Coordinates.Longitude != -104.9 {
		t.Errorf("Coordinates = %+v", a.Coordinates)
	}

	// Absent coordinates become the zero pair rather than an error.
	b := summary.Locations[1]
	if b.Coordinates.Latitude != 0 || b.Coordinates.Longitude != 0 {
		t.Errorf("Coordinates = %+v, want zero pair when absent", b.Coordinates)
	}
}

func TestPollution_Defaults(t *testing.T) {
	payload := []byte(`{
		"results": [
			{"measurements": [{"parameter": "", "unit": "µg/m³"}]}
		]
	}`)

	summary, err := Pollution(payload)
	if err != nil {
		t.Fatalf("Pollution() error = %v", err)
	}
	loc := summary.Locations[0]
	if loc.Name != "Unknown" || loc.City != "Unknown" {
		t.Errorf("location = %+v, want Unknown defaults", loc)
	}
	m := loc.Measurements[0]
	if m.Parameter != "Unknown" {
		t.Errorf("Parameter = %q, want Unknown", m.Parameter)
	}
	if m.Value != 0 {
		t.Errorf("Value = %v, want 0 when absent", m.Value)
	}
	if m.LastUpdated != "Unknown" {
		t.Errorf("LastUpdated = %q, want Unknown", m.LastUpdated)
	}
	if summary.Pollutants.Counts["Unknown"] != 1 {
		t.Errorf("Counts = %v, want Unknown counted", summary.Pollutants.Counts)
	}
}

func TestPollution_MalformedJSON(t *testing.T) {
	if _, err := Pollution([]byte(`[`)); err == nil {
		t.Fatal("Pollution() error = nil for malformed payload")
	}
}
