package types

import "strings"

// GlobalRegion is the code of the region covering every other region.
const GlobalRegion = "world"

// NormalizeRegion upper-cases a hierarchical region code (e.g. "us-ca-sfo" -> "US-CA-SFO").
// The empty string and "world" both normalize to "".
func NormalizeRegion(code string) string {
	code = strings.TrimSpace(code)
	if strings.EqualFold(code, GlobalRegion) {
		return ""
	}
	return strings.ToUpper(code)
}

// RegionDepth returns how specific a region code is: 0 for global, 1 for a country,
// 2 for a subnational region, 3 for a city.
func RegionDepth(code string) int {
	code = NormalizeRegion(code)
	if code == "" {
		return 0
	}
	return strings.Count(code, "-") + 1
}

// RegionCovers reports whether scope is the same region as target or one of its ancestors.
func RegionCovers(scope, target string) bool {
	scope = NormalizeRegion(scope)
	target = NormalizeRegion(target)
	if scope == "" {
		return true
	}
	return scope == target || strings.HasPrefix(target, scope+"-")
}
