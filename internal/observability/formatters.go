// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stderr; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintTotals outputs a human-readable summary of inventory totals.
func (p *Printer) PrintTotals(totals *types.InventoryTotals) {
	if totals == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Inventory: %s (%d)\n", totals.InventoryID, totals.Year))
	sb.WriteString(fmt.Sprintf("Total:     %.2f kg CO2e\n", totals.TotalCO2e))
	sb.WriteString(fmt.Sprintf("Resolved:  %d/%d (%.0f%%)\n",
		totals.Completeness.Resolved, totals.Completeness.Total, totals.Completeness.Ratio*100))

	if len(totals.ByScope) > 0 {
		sb.WriteString("\nBy scope:\n")
		scopes := make([]int, 0, len(totals.ByScope))
		for s := range totals.ByScope {
			scopes = append(scopes, s)
		}
		sort.Ints(scopes)
		for _, s := range scopes {
			sb.WriteString(fmt.Sprintf("  • Scope %d: %.2f\n", s, totals.ByScope[s]))
		}
	}

	if len(totals.BySector) > 0 {
		sb.WriteString("\nBy sector:\n")
		writeTop(&sb, totals.BySector)
	}

	p.printBox("INVENTORY TOTALS", strings.TrimSuffix(sb.String(), "\n"))

	if len(totals.Issues) > 0 {
		p.printIssues(totals.Issues)
	}
}

func (p *Printer) printIssues(issues []types.ActivityIssue) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d activities not calculated:\n\n", len(issues)))

	count := min(len(issues), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("• [%s] %s\n", issues[i].Kind, issues[i].ActivityID))
		sb.WriteString(fmt.Sprintf("    %s\n", issues[i].Message))
	}
	if len(issues) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(issues)-maxItemsToShow))
	}

	p.printBox("CALCULATION ISSUES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRanking outputs the top ranked actions with scores and rationale.
func (p *Printer) PrintRanking(scored []types.ScoredAction) {
	if len(scored) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total actions ranked: %d\n\n", len(scored)))

	count := min(len(scored), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("#%d  %s\n", i+1, scored[i].ActionID))
		sb.WriteString(fmt.Sprintf("    Score: %.3f\n", scored[i].Score))
		if scored[i].Rationale != "" {
			sb.WriteString(fmt.Sprintf("    %s\n", scored[i].Rationale))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(scored) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more actions", len(scored)-maxItemsToShow))
	}

	p.printBox("TOP RANKED ACTIONS", strings.TrimSuffix(sb.String(), "\n"))
}

// writeTop writes the largest entries of m in descending order.
func writeTop(sb *strings.Builder, m map[string]float64) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})

	count := min(len(keys), maxItemsToShow)
	for _, k := range keys[:count] {
		sb.WriteString(fmt.Sprintf("  • %s: %.2f\n", k, m[k]))
	}
	if len(keys) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(keys)-maxItemsToShow))
	}
}
