package main

import (
	"fmt"
	"os"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/calculator"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/catalog"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/locking"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/logger"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/observability"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/spf13/cobra"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Compute inventory totals from an inventory file",
	Long:  "Aggregates an inventory file (inventory, activities, data sources and emissions factors) into totals by scope, sector and gas, reporting every activity that could not be calculated.",
	RunE:  runAggregate,
}

var (
	aggregateInventory string
	aggregateOutput    string
)

func init() {
	aggregateCmd.Flags().StringVarP(&aggregateInventory, "inventory", "i", "", "Path to inventory JSON file (required)")
	aggregateCmd.Flags().StringVarP(&aggregateOutput, "out", "o", "", "Path to output totals JSON file (default stdout)")

	if err := aggregateCmd.MarkFlagRequired("inventory"); err != nil {
		panic(fmt.Sprintf("failed to mark inventory flag as required: %v", err))
	}

	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(_ *cobra.Command, _ []string) error {
	totals, err := aggregateFile(aggregateInventory, logger.NewNop())
	if err != nil {
		return err
	}
	if verbose {
		observability.NewPrinter(os.Stderr).PrintTotals(&totals)
	}
	return writeJSON(aggregateOutput, totals)
}

// aggregateFile computes totals for an inventory file without a database. Factors the
// catalog rejects are skipped and logged.
func aggregateFile(path string, log *logger.Logger) (types.InventoryTotals, error) {
	f, err := readInventoryFile(path)
	if err != nil {
		return types.InventoryTotals{}, err
	}

	factors := catalog.New(log)
	_, rejected := factors.Publish(f.EmissionsFactors)
	for _, r := range rejected {
		log.Warn("Skipped emissions factor", "factor_id", r.FactorID, "version", r.Version, "reason", r.Reason)
	}

	calc := calculator.New(nil, factors, locking.NewLocalLocker(), log)
	return calc.AggregateActivities(&f.Inventory, f.Activities, f.DataSources), nil
}
