// Package species serves the CSV-backed bird species reference dataset used
// by the visualization endpoints: listing, name lookup with family
// statistics, substring search, and family listing.
package species

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ecowatch/ecowatch-service/internal/models"
)

const (
	familyCap         = 50 // family members returned per lookup
	populationSizeCap = 10 // family members contributing population sizes
	defaultSearchCap  = 10
)

// requiredColumns maps each standard column to the header the dataset is
// expected to carry. When the expected header is absent, any header
// containing the standard name is accepted instead.
var requiredColumns = map[string]string{
	"family":           "family",
	"common_name":      "common_name",
	"scientific_name":  "scientific_name",
	"population_size":  "population_size_(mature_individuals)",
	"population_trend": "current_population_trend",
}

// Store holds the loaded species dataset. Read-only after Load, safe for
// concurrent use.
type Store struct {
	species  []models.Species
	families map[string][]models.Species
	// canonical family names keyed by lowercase, for case-insensitive lookup
	familyNames map[string]string
}

// Load reads the species CSV at path. Header names are normalized (trimmed,
// lowercased, spaces to underscores) before column resolution; missing cell
// values become "Unknown".
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open species csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read species csv: %w", err)
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("species csv is empty")
	}

	header := make([]string, len(rows[0]))
	for i, col := range rows[0] {
		header[i] = normalizeHeader(col)
	}

	columns, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	store := &Store{
		families:    make(map[string][]models.Species),
		familyNames: make(map[string]string),
	}
	for _, row := range rows[1:] {
		sp := models.Species{
			Family:          cell(row, columns["family"]),
			CommonName:      cell(row, columns["common_name"]),
			ScientificName:  cell(row, columns["scientific_name"]),
			PopulationSize:  cell(row, columns["population_size"]),
			PopulationTrend: cell(row, columns["population_trend"]),
		}
		store.species = append(store.species, sp)
		store.families[sp.Family] = append(store.families[sp.Family], sp)
		store.familyNames[strings.ToLower(sp.Family)] = sp.Family
	}

	return store, nil
}

// Count returns the number of species loaded.
func (s *Store) Count() int {
	return len(s.species)
}

// All returns the slim listing of every species, for autocomplete payloads.
func (s *Store) All() []models.SpeciesSummary {
	out := make([]models.SpeciesSummary, 0, len(s.species))
	for _, sp := range s.species {
		out = append(out, models.SpeciesSummary{
			CommonName:     sp.CommonName,
			ScientificName: sp.ScientificName,
			Family:         sp.Family,
		})
	}
	return out
}

// ByCommonName looks up a species case-insensitively and builds its detail
// view: the bird, up to 50 family members, trend counts across those members,
// and population sizes for the first 10 members with numeric figures.
func (s *Store) ByCommonName(name string) (models.SpeciesDetail, bool) {
	lower := strings.ToLower(name)
	for _, sp := range s.species {
		if strings.ToLower(sp.CommonName) != lower {
			continue
		}

		family := s.families[sp.Family]
		if len(family) > familyCap {
			family = family[:familyCap]
		}

		trends := make(map[string]int)
		for _, member := range family {
			trend := member.PopulationTrend
			if trend == "" {
				trend = "Unknown"
			}
			trends[trend]++
		}

		sizes := make(map[string]int)
		limit := len(family)
		if limit > populationSizeCap {
			limit = populationSizeCap
		}
		for _, member := range family[:limit] {
			if n, err := strconv.Atoi(member.PopulationSize); err == nil {
				sizes[member.CommonName] = n
			}
		}

		return models.SpeciesDetail{
			Bird:   sp,
			Family: family,
			FamilyStats: models.FamilyStats{
				Trends:          trends,
				PopulationSizes: sizes,
			},
		}, true
	}
	return models.SpeciesDetail{}, false
}

// Search returns species whose common name contains the query,
// case-insensitively, capped at limit (default 10 when limit <= 0).
func (s *Store) Search(query string, limit int) []models.Species {
	if limit <= 0 {
		limit = defaultSearchCap
	}
	query = strings.ToLower(strings.TrimSpace(query))
	results := []models.Species{}
	if query == "" {
		return results
	}
	for _, sp := range s.species {
		if strings.Contains(strings.ToLower(sp.CommonName), query) {
			results = append(results, sp)
			if len(results) >= limit {
				break
			}
		}
	}
	return results
}

// ByFamily returns all species in the named family, case-insensitively.
func (s *Store) ByFamily(name string) ([]models.Species, bool) {
	canonical, ok := s.familyNames[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return s.families[canonical], true
}

func normalizeHeader(col string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(col)), " ", "_")
}

// resolveColumns maps each standard column name to its index in the header,
// tolerating renamed variants that still contain the standard name.
func resolveColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[col] = i
	}

	columns := make(map[string]int, len(requiredColumns))
	for standard, expected := range requiredColumns {
		if i, ok := index[expected]; ok {
			columns[standard] = i
			continue
		}
		found := -1
		for i, col := range header {
			if strings.Contains(col, standard) {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("species csv missing required column %q (have %v)", standard, header)
		}
		columns[standard] = found
	}
	return columns, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return "Unknown"
	}
	v := strings.TrimSpace(row[i])
	if v == "" {
		return "Unknown"
	}
	return v
}
