// Package main provides the citycatalyst CLI: the HTTP API server plus file-based
// inventory aggregation and action ranking.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:          "citycatalyst",
	Short:        "CityCatalyst emissions core and HIAP job service",
	Long:         "CityCatalyst aggregates city greenhouse gas inventories from activity data and emissions factors, and ranks climate actions for cities through asynchronous HIAP jobs.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to JSON config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print a human-readable summary to stderr")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
