// Package impact estimates a household's environmental footprint from a
// lifestyle profile. Calculate is a pure function: no I/O, no mutable state,
// identical input always yields identical output.
package impact

import (
	"errors"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/ecowatch/ecowatch-service/internal/models"
)

// Emission factors in kg CO2. Transport is per km, energy per square meter
// per day, diet per day, waste factors scale the annual baseline.
var (
	transportFactors = map[string]float64{
		"car":              0.192,
		"electric_car":     0.053,
		"public_transport": 0.058,
		"carpool":          0.096,
		"bicycle":          0.0,
		"walking":          0.0,
	}
	energyFactors = map[string]float64{
		"grid":        0.3,
		"renewable":   0.02,
		"natural_gas": 0.2,
		"oil":         0.35,
		"mixed":       0.25,
	}
	dietFactors = map[string]float64{
		"meat_heavy":  7.9,
		"meat_medium": 5.1,
		"pescatarian": 3.9,
		"vegetarian":  3.3,
		"vegan":       2.5,
	}
	shoppingFactors = map[string]float64{
		"minimal":       0.5,
		"moderate":      1.0,
		"frequent":      1.5,
		"very_frequent": 2.0,
	}
	// Liters per day attributable to diet, on top of the 150 L/day direct-use base.
	dietWater = map[string]float64{
		"meat_heavy":  5000,
		"meat_medium": 3800,
		"pescatarian": 2800,
		"vegetarian":  2200,
		"vegan":       1700,
	}
	// Global hectares attributable to diet, on top of the 0.2 gha housing base.
	dietLand = map[string]float64{
		"meat_heavy":  2.0,
		"meat_medium": 1.2,
		"pescatarian": 0.8,
		"vegetarian":  0.6,
		"vegan":       0.4,
	}
)

const (
	flightEmission = 1100 // kg CO2 per round-trip flight
	wasteBase      = 1100 // kg CO2 per year baseline
	waterBase      = 150  // liters per day direct usage
	landBase       = 0.2  // global hectares, housing and infrastructure
)

// Profile field defaults, applied when the input omits a field.
const (
	defaultTransport        = "car"
	defaultCommuteDistance  = 20.0
	defaultFlightsPerYear   = 2
	defaultHomeSize         = 100.0
	defaultHouseholdMembers = 2
	defaultEnergySource     = "grid"
	defaultDietType         = "meat_medium"
	defaultLocalFood        = 30.0
	defaultRecyclingRate    = 50.0
	defaultShopping         = "moderate"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Calculate computes the footprint estimate for the given profile. Missing
// fields resolve to documented defaults, out-of-range numerics are clamped,
// and unknown enum values fall back to default factors; the calculation never
// rejects a profile. The returned warnings name fields that were adjusted or
// unrecognized, for request logging.
func Calculate(profile models.ImpactProfile) (models.ImpactResult, []string) {
	p, warnings := sanitize(profile)

	transportationImpact := p.commuteDistance * 365 * factorOr(transportFactors, p.transportType, transportFactors[defaultTransport])
	flightImpact := float64(p.flightsPerYear) * flightEmission
	homeEnergyImpact := p.homeSize * 365 * factorOr(energyFactors, p.energySource, energyFactors[defaultEnergySource]) / math.Max(1, float64(p.householdMembers))

	// Each percent of local food shaves 0.25% off diet emissions, up to 25%.
	localFoodAdjustment := 1 - p.localFoodPercent*0.0025
	dietImpact := 365 * factorOr(dietFactors, p.dietType, dietFactors[defaultDietType]) * localFoodAdjustment

	// Each percent recycled shaves 0.5% off the waste baseline.
	recyclingAdjustment := 1 - p.recyclingRate*0.005
	wasteImpact := wasteBase * recyclingAdjustment * factorOr(shoppingFactors, p.shoppingFrequency, shoppingFactors[defaultShopping])

	totalKg := transportationImpact + flightImpact + homeEnergyImpact + dietImpact + wasteImpact

	result := models.ImpactResult{
		CarbonFootprint: round2(totalKg / 1000),
		WaterFootprint:  math.Round(waterBase + factorOr(dietWater, p.dietType, dietWater[defaultDietType])),
		LandFootprint:   round2(landBase + factorOr(dietLand, p.dietType, dietLand[defaultDietType])),
		Breakdown: map[string]float64{
			"transportation": round2(transportationImpact / 1000),
			"flights":        round2(flightImpact / 1000),
			"home_energy":    round2(homeEnergyImpact / 1000),
			"diet":           round2(dietImpact / 1000),
			"waste":          round2(wasteImpact / 1000),
		},
		Recommendations: recommendations(p),
	}
	return result, warnings
}

// recommendations evaluates the advisory rules in fixed order; every matching
// rule fires, the rules are not mutually exclusive.
func recommendations(p resolvedProfile) []models.Recommendation {
	recs := []models.Recommendation{}

	if p.transportType == "car" || p.transportType == "electric_car" {
		recs = append(recs, models.Recommendation{
			Category:    "transport",
			Impact:      "high",
			Title:       "Consider public transit or carpooling",
			Description: "Taking public transportation or sharing rides can reduce your carbon footprint significantly.",
		})
	}
	if p.flightsPerYear > 3 {
		recs = append(recs, models.Recommendation{
			Category:    "transport",
			Impact:      "high",
			Title:       "Reduce air travel",
			Description: "Consider fewer flights or alternatives like train travel for shorter distances.",
		})
	}
	if p.energySource != "renewable" {
		recs = append(recs, models.Recommendation{
			Category:    "energy",
			Impact:      "high",
			Title:       "Switch to renewable energy",
			Description: "Consider solar panels or a renewable energy provider for your home electricity.",
		})
	}
	if p.dietType == "meat_heavy" || p.dietType == "meat_medium" {
		recs = append(recs, models.Recommendation{
			Category:    "diet",
			Impact:      "high",
			Title:       "Reduce meat consumption",
			Description: "Try incorporating more plant-based meals into your diet to reduce your environmental impact.",
		})
	}
	if p.localFoodPercent < 40 {
		recs = append(recs, models.Recommendation{
			Category:    "diet",
			Impact:      "medium",
			Title:       "Choose local and seasonal foods",
			Description: "Buying locally produced food reduces transportation emissions and supports local farmers.",
		})
	}
	if p.recyclingRate < 60 {
		recs = append(recs, models.Recommendation{
			Category:    "waste",
			Impact:      "medium",
			Title:       "Increase recycling efforts",
			Description: "Try to recycle more of your waste and compost food scraps if possible.",
		})
	}
	if p.shoppingFrequency == "frequent" || p.shoppingFrequency == "very_frequent" {
		recs = append(recs, models.Recommendation{
			Category:    "waste",
			Impact:      "medium",
			Title:       "Reduce consumption",
			Description: "Consider buying fewer items and focusing on quality, durable products that last longer.",
		})
	}

	return recs
}

// resolvedProfile is the fully-defaulted, clamped profile used internally.
type resolvedProfile struct {
	transportType     string
	commuteDistance   float64
	flightsPerYear    int
	homeSize          float64
	householdMembers  int
	energySource      string
	dietType          string
	localFoodPercent  float64
	recyclingRate     float64
	shoppingFrequency string
}

// sanitize applies defaults, clamps numeric fields into their valid ranges,
// and reports adjusted or unrecognized fields. Unknown enum values are kept
// (factor lookups fall back to defaults) so that recommendation rules see the
// caller's literal input, matching the defaulting contract.
func sanitize(in models.ImpactProfile) (resolvedProfile, []string) {
	var warnings []string
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				warnings = append(warnings, fe.Field()+": "+fe.Tag())
			}
		}
	}

	p := resolvedProfile{
		transportType:     defaultString(in.TransportationType, defaultTransport),
		commuteDistance:   clamp(orFloat(in.CommuteDistance, defaultCommuteDistance), 0, math.MaxFloat64),
		flightsPerYear:    clampInt(orInt(in.FlightsPerYear, defaultFlightsPerYear), 0, math.MaxInt),
		homeSize:          clamp(orFloat(in.HomeSize, defaultHomeSize), 0, math.MaxFloat64),
		householdMembers:  clampInt(orInt(in.HouseholdMembers, defaultHouseholdMembers), 1, math.MaxInt),
		energySource:      defaultString(in.EnergySource, defaultEnergySource),
		dietType:          defaultString(in.DietType, defaultDietType),
		localFoodPercent:  clamp(orFloat(in.LocalFoodPercent, defaultLocalFood), 0, 100),
		recyclingRate:     clamp(orFloat(in.RecyclingRate, defaultRecyclingRate), 0, 100),
		shoppingFrequency: defaultString(in.ShoppingFrequency, defaultShopping),
	}
	return p, warnings
}

func factorOr(m map[string]float64, key string, fallback float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func orFloat(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

func orInt(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
