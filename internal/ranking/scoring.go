// Package ranking scores candidate climate actions against a city's emissions profile.
package ranking

import (
	"strings"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
)

// Default weights for scoring components
const (
	relevanceWeight   = 0.5
	impactWeight      = 0.25
	feasibilityWeight = 0.2
	coBenefitsWeight  = 0.05
)

func normalizeSector(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// sectorShares returns each sector's share of the city's total CO2e, keyed by normalized name.
func sectorShares(profile *types.InventoryTotals) map[string]float64 {
	shares := make(map[string]float64)
	if profile == nil || profile.TotalCO2e <= 0 {
		return shares
	}
	for sector, value := range profile.BySector {
		shares[normalizeSector(sector)] += value / profile.TotalCO2e
	}
	return shares
}

// computeRelevanceScore is the share of city emissions in the sectors the action targets.
// Returns the score (0-1) and the matched sectors.
func computeRelevanceScore(action *types.CandidateAction, shares map[string]float64) (float64, []string) {
	seen := make(map[string]bool, len(action.Sectors))
	score := 0.0
	matched := make([]string, 0)
	for _, sector := range action.Sectors {
		key := normalizeSector(sector)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if share, found := shares[key]; found && share > 0 {
			score += share
			matched = append(matched, key)
		}
	}
	return clamp(score), matched
}

// computeFeasibilityScore combines cost level (60%) and implementation timeline (40%).
func computeFeasibilityScore(action *types.CandidateAction) float64 {
	var cost float64
	switch strings.ToLower(action.CostLevel) {
	case "low":
		cost = 1.0
	case "medium":
		cost = 0.6
	case "high":
		cost = 0.3
	default:
		// Unknown cost defaults to neutral
		cost = 0.5
	}

	var timeline float64
	switch years := action.TimelineYears; {
	case years <= 0:
		timeline = 0.5
	case years <= 2:
		timeline = 1.0
	case years <= 5:
		timeline = 0.7
	case years <= 10:
		timeline = 0.4
	default:
		timeline = 0.2
	}

	return clamp(0.6*cost + 0.4*timeline)
}

// computeCoBenefitsScore maps the mean co-benefit rating (-2..2) onto 0..1.
// Actions without co-benefit data get a neutral 0.5.
func computeCoBenefitsScore(action *types.CandidateAction) float64 {
	if len(action.CoBenefits) == 0 {
		return 0.5
	}
	sum := 0
	for _, v := range action.CoBenefits {
		if v > 2 {
			v = 2
		}
		if v < -2 {
			v = -2
		}
		sum += v
	}
	mean := float64(sum) / float64(len(action.CoBenefits))
	return clamp((mean + 2) / 4)
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0.0 || v != v {
		return 0.0
	}
	return v
}
