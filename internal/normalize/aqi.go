package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ecowatch/ecowatch-service/internal/models"
)

// AirQuality normalizes a raw AQICN feed payload into the canonical record.
// A payload whose status is not "ok" yields a *StatusError; a payload without
// a usable numeric AQI yields a *MissingDataError. Shape variants (city as
// string or object, time as scalar or struct, per-pollutant readings as bare
// numbers or objects) all collapse into the canonical shapes.
func AirQuality(payload []byte) (models.AirQuality, error) {
	var raw aqiEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return models.AirQuality{}, fmt.Errorf("decode aqi payload: %w", err)
	}
	if raw.Status != "ok" {
		// Error payloads carry a message string in data; never decode it.
		return models.AirQuality{}, &StatusError{Status: raw.Status}
	}

	if len(raw.Data) == 0 {
		return models.AirQuality{}, &MissingDataError{Field: "data"}
	}
	var d aqiData
	if err := json.Unmarshal(raw.Data, &d); err != nil {
		return models.AirQuality{}, fmt.Errorf("decode aqi data: %w", err)
	}
	if !d.AQI.ok {
		return models.AirQuality{}, &MissingDataError{Field: "aqi"}
	}

	if d.City.name == "" {
		// UnmarshalJSON never ran because the city key was absent.
		d.City.name = "Unknown"
	}

	rec := models.AirQuality{
		City:              models.City{Name: d.City.name},
		AQI:               d.AQI.value,
		Time:              d.Time.value,
		DominantPollutant: d.Dominentpol,
		IAQI:              make(map[string]models.PollutantReading, len(d.IAQI)),
	}
	if rec.DominantPollutant == "" {
		rec.DominantPollutant = "Unknown"
	}

	for pollutant, reading := range d.IAQI {
		if reading.ok {
			rec.IAQI[pollutant] = reading.value
		}
	}

	if geo := parseGeo(d.Geo); geo != nil {
		rec.Geo = geo
	}
	if isJSONObject(d.Forecast) {
		rec.Forecast = d.Forecast
	}

	rec.Category, rec.Color = Category(rec.AQI)
	return rec, nil
}

// Category maps an integer AQI onto its severity band and display color.
// Band upper bounds are inclusive: 50 is still "Good", 51 is "Moderate".
func Category(aqi int) (string, string) {
	switch {
	case aqi <= 50:
		return "Good", "#00e400"
	case aqi <= 100:
		return "Moderate", "#ffff00"
	case aqi <= 150:
		return "Unhealthy for Sensitive Groups", "#ff7e00"
	case aqi <= 200:
		return "Unhealthy", "#ff0000"
	case aqi <= 300:
		return "Very Unhealthy", "#99004c"
	default:
		return "Hazardous", "#7e0023"
	}
}

type aqiEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type aqiData struct {
	AQI         flexAQI                `json:"aqi"`
	City        flexCity               `json:"city"`
	Time        flexTime               `json:"time"`
	Dominentpol string                 `json:"dominentpol"`
	Geo         json.RawMessage        `json:"geo"`
	IAQI        map[string]flexReading `json:"iaqi"`
	Forecast    json.RawMessage        `json:"forecast"`
}

// flexAQI accepts a JSON number or a numeric string. Anything else (null,
// "-", objects) leaves ok false, which the caller turns into MissingDataError.
type flexAQI struct {
	value int
	ok    bool
}

func (f *flexAQI) UnmarshalJSON(data []byte) error {
	// A *float64 stays nil on the null literal, which json would otherwise
	// decode into a zero float without error.
	var n *float64
	if err := json.Unmarshal(data, &n); err == nil && n != nil {
		f.value = int(*n)
		f.ok = true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.Atoi(s); err == nil {
			f.value = v
			f.ok = true
		}
	}
	return nil
}

// flexCity accepts either a plain string or an object with a name field.
// Ambiguous shapes fall back to "Unknown".
type flexCity struct {
	name string
}

func (f *flexCity) UnmarshalJSON(data []byte) error {
	f.name = "Unknown"
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "" {
			f.name = s
		}
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Name != "" {
		f.name = obj.Name
	}
	return nil
}

// flexTime accepts the structured {s, iso} shape or a bare scalar. A scalar
// is duplicated into both subfields.
type flexTime struct {
	value models.ObservationTime
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	if isJSONObject(data) {
		var obj struct {
			S   string `json:"s"`
			ISO string `json:"iso"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil
		}
		f.value = models.ObservationTime{S: obj.S, ISO: obj.ISO}
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	s := formatScalar(v)
	f.value = models.ObservationTime{S: s, ISO: s}
	return nil
}

// flexReading accepts a bare number or an object containing a v field.
// Objects without a numeric v are skipped (ok false).
type flexReading struct {
	value models.PollutantReading
	ok    bool
}

func (f *flexReading) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		f.value = models.PollutantReading{V: n}
		f.ok = true
		return nil
	}
	var obj struct {
		V *float64 `json:"v"`
		U string   `json:"u"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.V != nil {
		f.value = models.PollutantReading{V: *obj.V, U: obj.U}
		f.ok = true
	}
	return nil
}

// parseGeo returns a coordinate pair when the raw geo field is an array of at
// least two numbers, nil otherwise.
func parseGeo(raw json.RawMessage) *models.Geo {
	if len(raw) == 0 {
		return nil
	}
	var coords []float64
	if err := json.Unmarshal(raw, &coords); err != nil || len(coords) < 2 {
		return nil
	}
	return &models.Geo{Lat: coords[0], Lng: coords[1]}
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func formatScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
