// Package resolver selects the data source that supplies the factor for an activity.
package resolver

import (
	"fmt"

	"github.com/google/uuid"
)

// UnresolvedError indicates that no data source applies to an activity and it carries no
// user-supplied value. It is not fatal: the activity is excluded from totals.
type UnresolvedError struct {
	ActivityID uuid.UUID
	Message    string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved activity %s: %s", e.ActivityID, e.Message)
}
