package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/observability"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/ranking"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/spf13/cobra"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank climate actions against inventory totals",
	Long:  "Deterministically ranks a climate action catalogue against the totals produced by the aggregate command, producing scored actions sorted by priority.",
	RunE:  runRank,
}

var (
	rankTotals  string
	rankActions string
	rankOutput  string
	rankTop     int
)

func init() {
	rankCmd.Flags().StringVarP(&rankTotals, "totals", "t", "", "Path to inventory totals JSON file (required)")
	rankCmd.Flags().StringVarP(&rankActions, "actions", "a", "", "Path to action catalogue JSON file (required)")
	rankCmd.Flags().StringVarP(&rankOutput, "out", "o", "", "Path to output ranking JSON file (default stdout)")
	rankCmd.Flags().IntVar(&rankTop, "top", 0, "Keep only the N highest ranked actions (0 keeps all)")

	if err := rankCmd.MarkFlagRequired("totals"); err != nil {
		panic(fmt.Sprintf("failed to mark totals flag as required: %v", err))
	}
	if err := rankCmd.MarkFlagRequired("actions"); err != nil {
		panic(fmt.Sprintf("failed to mark actions flag as required: %v", err))
	}

	rootCmd.AddCommand(rankCmd)
}

func runRank(_ *cobra.Command, _ []string) error {
	scored, err := rankFiles(rankTotals, rankActions, rankTop)
	if err != nil {
		return err
	}
	if verbose {
		observability.NewPrinter(os.Stderr).PrintRanking(scored)
	}
	return writeJSON(rankOutput, scored)
}

func rankFiles(totalsPath, actionsPath string, top int) ([]types.ScoredAction, error) {
	content, err := os.ReadFile(totalsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read totals file %s: %w", totalsPath, err)
	}
	var totals types.InventoryTotals
	if err := json.Unmarshal(content, &totals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal totals JSON: %w", err)
	}

	actions, err := readActionCatalogue(actionsPath)
	if err != nil {
		return nil, err
	}

	scored := ranking.Rank(&totals, actions)
	if top > 0 && len(scored) > top {
		scored = scored[:top]
	}
	return scored, nil
}
