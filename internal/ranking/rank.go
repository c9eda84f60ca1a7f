package ranking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
)

type componentScores struct {
	relevance   float64
	impact      float64
	feasibility float64
	coBenefits  float64
	matched     []string
}

// Rank scores every action in catalogue against the city's emissions profile and returns
// them sorted by score (descending), ties broken by action id. Rank has no side effects.
func Rank(profile *types.InventoryTotals, catalogue []types.CandidateAction) []types.ScoredAction {
	shares := sectorShares(profile)
	topSector := largestSector(shares)

	components := make([]componentScores, len(catalogue))
	maxRawImpact := 0.0
	for i := range catalogue {
		action := &catalogue[i]
		relevance, matched := computeRelevanceScore(action, shares)
		components[i] = componentScores{
			relevance:   relevance,
			impact:      clamp(action.ReductionPotential) * relevance,
			feasibility: computeFeasibilityScore(action),
			coBenefits:  computeCoBenefitsScore(action),
			matched:     matched,
		}
		if components[i].impact > maxRawImpact {
			maxRawImpact = components[i].impact
		}
	}

	scored := make([]types.ScoredAction, 0, len(catalogue))
	for i := range catalogue {
		c := &components[i]
		// Normalize impact against the strongest action in this catalogue
		if maxRawImpact > 0 {
			c.impact = c.impact / maxRawImpact
		} else {
			c.impact = 0
		}

		score := (relevanceWeight * c.relevance) +
			(impactWeight * c.impact) +
			(feasibilityWeight * c.feasibility) +
			(coBenefitsWeight * c.coBenefits)

		scored = append(scored, types.ScoredAction{
			ActionID:  catalogue[i].ID,
			Score:     clamp(score),
			Rationale: generateNotes(c, topSector),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ActionID < scored[j].ActionID
	})

	return scored
}

func largestSector(shares map[string]float64) string {
	top := ""
	best := 0.0
	for sector, share := range shares {
		if share > best || (share == best && share > 0 && sector < top) {
			top, best = sector, share
		}
	}
	return top
}

// generateNotes creates a brief explanation of the ranking.
func generateNotes(c *componentScores, topSector string) string {
	var parts []string

	// Sector relevance description
	if len(c.matched) > 0 {
		parts = append(parts, fmt.Sprintf("Targets %.0f%% of city emissions (%s)", c.relevance*100, strings.Join(c.matched, ", ")))
		for _, s := range c.matched {
			if s == topSector {
				parts = append(parts, "Addresses the highest-emitting sector")
				break
			}
		}
	} else {
		parts = append(parts, "No overlap with reported emission sectors")
	}

	// Impact description
	if c.impact >= 0.7 {
		parts = append(parts, "High reduction impact")
	} else if c.impact >= 0.3 {
		parts = append(parts, "Moderate reduction impact")
	} else if c.impact > 0 {
		parts = append(parts, "Low reduction impact")
	}

	// Feasibility description
	if c.feasibility >= 0.8 {
		parts = append(parts, "Highly feasible")
	} else if c.feasibility >= 0.5 {
		parts = append(parts, "Moderately feasible")
	} else {
		parts = append(parts, "Hard to implement")
	}

	if c.coBenefits > 0.5 {
		parts = append(parts, "Positive co-benefits")
	} else if c.coBenefits < 0.5 {
		parts = append(parts, "Negative co-benefits")
	}

	return strings.Join(parts, ". ")
}
