package resolver

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
)

// Origin tells where the resolved factor comes from.
type Origin string

// Resolution origins
const (
	OriginUser    Origin = "user"
	OriginCatalog Origin = "catalog"
)

// ResolvedSource is the outcome of resolving an activity's data source.
type ResolvedSource struct {
	Origin     Origin            `json:"origin"`
	Source     *types.DataSource `json:"source,omitempty"`
	UserFactor *types.UserFactor `json:"user_factor,omitempty"`
	Note       string            `json:"note,omitempty"`
}

// Resolve picks the source for activity among candidates.
//
// A user-supplied factor always wins. Otherwise candidates are filtered to the
// non-deprecated sources applicable to the activity's type and region, and the best is
// chosen by priority (higher first), then specificity, then lowest identifier. An explicit
// data source reference on the activity is honoured when that source is applicable.
func Resolve(activity *types.ActivityRecord, candidates []types.DataSource) (ResolvedSource, error) {
	if activity.UserFactor != nil {
		return ResolvedSource{Origin: OriginUser, UserFactor: activity.UserFactor}, nil
	}

	applicable := Applicable(activity, candidates)

	var note string
	if activity.DataSourceID != nil {
		for i := range applicable {
			if applicable[i].ID == *activity.DataSourceID {
				src := applicable[i]
				return ResolvedSource{Origin: OriginCatalog, Source: &src, Note: "explicit data source"}, nil
			}
		}
		note = fmt.Sprintf("explicit data source %s not applicable, fell back to ranked selection", *activity.DataSourceID)
	}

	if len(applicable) == 0 {
		return ResolvedSource{}, &UnresolvedError{
			ActivityID: activity.ID,
			Message:    fmt.Sprintf("no applicable data source for %s in region %q", activity.ActivityType, activity.Region),
		}
	}

	best := applicable[0]
	return ResolvedSource{Origin: OriginCatalog, Source: &best, Note: note}, nil
}

// Applicable returns the non-deprecated candidates that apply to the activity's type and
// region, best first: priority (higher first), then specificity, then lowest identifier.
func Applicable(activity *types.ActivityRecord, candidates []types.DataSource) []types.DataSource {
	applicable := make([]types.DataSource, 0, len(candidates))
	for _, ds := range candidates {
		if applies(ds, activity) {
			applicable = append(applicable, ds)
		}
	}

	sort.Slice(applicable, func(i, j int) bool {
		a, b := applicable[i], applicable[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if sa, sb := specificity(a), specificity(b); sa != sb {
			return sa > sb
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
	return applicable
}

func applies(ds types.DataSource, activity *types.ActivityRecord) bool {
	if ds.Deprecated {
		return false
	}
	if ds.ActivityType != "" && !strings.EqualFold(strings.TrimSpace(ds.ActivityType), strings.TrimSpace(activity.ActivityType)) {
		return false
	}
	return types.RegionCovers(ds.Region, activity.Region)
}

// specificity is the region depth plus one when the source is narrowed to an activity type.
func specificity(ds types.DataSource) int {
	s := types.RegionDepth(ds.Region)
	if ds.ActivityType != "" {
		s++
	}
	return s
}
