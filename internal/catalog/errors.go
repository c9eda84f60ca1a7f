// Package catalog provides the versioned, read-mostly emissions factor catalog.
package catalog

import (
	"fmt"

	"github.com/google/uuid"
)

// NotFoundError indicates a factor id/version pair that was never published.
type NotFoundError struct {
	FactorID uuid.UUID
	Version  int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("emissions factor not found: %s@%d", e.FactorID, e.Version)
}

// Rejected describes a factor that failed validation and was left out of a snapshot.
type Rejected struct {
	FactorID uuid.UUID `json:"factor_id"`
	Version  int       `json:"version"`
	Reason   string    `json:"reason"`
}
