package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/schemas"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
)

// inventoryFile is the document read by the aggregate and import commands.
type inventoryFile struct {
	Inventory        types.Inventory         `json:"inventory"`
	Activities       []types.ActivityRecord  `json:"activities"`
	DataSources      []types.DataSource      `json:"data_sources,omitempty"`
	EmissionsFactors []types.EmissionsFactor `json:"emissions_factors,omitempty"`
}

// readInventoryFile validates the file against the inventory schema and decodes it.
// Activities without an inventory id are attached to the file's inventory.
func readInventoryFile(path string) (*inventoryFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file %s: %w", path, err)
	}
	if err := schemas.ValidateDocument(schemas.InventoryFileSchema, content); err != nil {
		return nil, fmt.Errorf("inventory file %s: %w", path, err)
	}

	var f inventoryFile
	if err := json.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inventory file JSON: %w", err)
	}
	if f.Inventory.InventoryType == "" {
		f.Inventory.InventoryType = types.InventoryTypeBasic
	}
	for i := range f.Activities {
		f.Activities[i].InventoryID = f.Inventory.ID
	}
	return &f, nil
}

// readActionCatalogue validates and decodes a climate action catalogue file.
func readActionCatalogue(path string) ([]types.CandidateAction, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read action catalogue %s: %w", path, err)
	}
	if err := schemas.ValidateDocument(schemas.ActionCatalogueSchema, content); err != nil {
		return nil, fmt.Errorf("action catalogue %s: %w", path, err)
	}

	var actions []types.CandidateAction
	if err := json.Unmarshal(content, &actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action catalogue JSON: %w", err)
	}
	for i := range actions {
		if err := actions[i].Validate(); err != nil {
			return nil, fmt.Errorf("action catalogue %s: action %s: %w", path, actions[i].ID, err)
		}
	}
	return actions, nil
}

// writeJSON writes v as indented JSON to path, or to stdout when path is empty.
func writeJSON(path string, v any) error {
	jsonOutput, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output JSON: %w", err)
	}

	if path == "" {
		_, err := fmt.Fprintln(os.Stdout, string(jsonOutput))
		return err
	}

	// Ensure output directory exists
	outputDir := filepath.Dir(path)
	if outputDir != "" && outputDir != "." {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
		}
	}

	if err := os.WriteFile(path, jsonOutput, 0644); err != nil {
		return fmt.Errorf("failed to write output file %s: %w", path, err)
	}
	return nil
}
