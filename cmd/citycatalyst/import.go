package main

import (
	"context"
	"fmt"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/config"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/db"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load inventory files and action catalogues into the database",
	Long:  "Stores the inventory, activities, data sources and emissions factors of an inventory file, and/or a climate action catalogue, so the server can aggregate and rank them.",
	RunE:  runImport,
}

var (
	importInventory string
	importActions   string
)

func init() {
	importCmd.Flags().StringVarP(&importInventory, "inventory", "i", "", "Path to inventory JSON file")
	importCmd.Flags().StringVarP(&importActions, "actions", "a", "", "Path to action catalogue JSON file")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	if importInventory == "" && importActions == "" {
		return fmt.Errorf("at least one of --inventory or --actions is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	database, err := db.Connect(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if importInventory != "" {
		if err := importInventoryFile(cmd.Context(), database, importInventory); err != nil {
			return err
		}
	}
	if importActions != "" {
		if err := importActionCatalogue(cmd.Context(), database, importActions); err != nil {
			return err
		}
	}
	return nil
}

func importInventoryFile(ctx context.Context, database *db.DB, path string) error {
	f, err := readInventoryFile(path)
	if err != nil {
		return err
	}

	for i := range f.DataSources {
		if err := database.SaveDataSource(ctx, &f.DataSources[i]); err != nil {
			return err
		}
	}
	if err := database.SaveInventory(ctx, &f.Inventory); err != nil {
		return err
	}
	for i := range f.EmissionsFactors {
		if err := database.SaveEmissionsFactor(ctx, &f.EmissionsFactors[i]); err != nil {
			return err
		}
	}
	for i := range f.Activities {
		if err := database.SaveActivity(ctx, &f.Activities[i]); err != nil {
			return err
		}
	}

	fmt.Printf("Imported inventory %s: %d activities, %d data sources, %d emissions factors\n",
		f.Inventory.ID, len(f.Activities), len(f.DataSources), len(f.EmissionsFactors))
	return nil
}

func importActionCatalogue(ctx context.Context, database *db.DB, path string) error {
	actions, err := readActionCatalogue(path)
	if err != nil {
		return err
	}
	for i := range actions {
		if err := database.SaveCandidateAction(ctx, &actions[i]); err != nil {
			return err
		}
	}
	fmt.Printf("Imported %d candidate actions\n", len(actions))
	return nil
}
