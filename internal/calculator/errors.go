// Package calculator turns activity records into emission quantities and inventory totals.
package calculator

import (
	"fmt"

	"github.com/google/uuid"
)

// UnitConversionError indicates that an activity's input unit cannot be reconciled with
// its factor unit. It is fatal for that activity only.
type UnitConversionError struct {
	ActivityID uuid.UUID
	Message    string
	Cause      error
}

func (e *UnitConversionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unit conversion error for activity %s: %s: %v", e.ActivityID, e.Message, e.Cause)
	}
	return fmt.Sprintf("unit conversion error for activity %s: %s", e.ActivityID, e.Message)
}

func (e *UnitConversionError) Unwrap() error {
	return e.Cause
}

// InvalidInputError indicates an activity payload that does not satisfy its methodology.
type InvalidInputError struct {
	ActivityID uuid.UUID
	Message    string
	Cause      error
}

func (e *InvalidInputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid input for activity %s: %s: %v", e.ActivityID, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid input for activity %s: %s", e.ActivityID, e.Message)
}

func (e *InvalidInputError) Unwrap() error {
	return e.Cause
}

// InventoryNotFoundError is returned by Aggregate for an unknown inventory.
type InventoryNotFoundError struct {
	InventoryID uuid.UUID
}

func (e *InventoryNotFoundError) Error() string {
	return fmt.Sprintf("inventory not found: %s", e.InventoryID)
}
