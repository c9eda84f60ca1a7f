package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegionDepth(t *testing.T) {
	assert.Equal(t, 0, RegionDepth(""))
	assert.Equal(t, 0, RegionDepth("world"))
	assert.Equal(t, 1, RegionDepth("US"))
	assert.Equal(t, 2, RegionDepth("us-ca"))
	assert.Equal(t, 3, RegionDepth("US-CA-SFO"))
}

func TestRegionCovers(t *testing.T) {
	tests := []struct {
		scope, target string
		want          bool
	}{
		{"", "US-CA-SFO", true},
		{"World", "BR", true},
		{"US", "US-CA-SFO", true},
		{"us-ca", "US-CA-SFO", true},
		{"US-CA-SFO", "US-CA-SFO", true},
		{"US-CA-SFO", "US-CA", false},
		{"US-C", "US-CA", false},
		{"BR", "US", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RegionCovers(tt.scope, tt.target), "%s covers %s", tt.scope, tt.target)
	}
}
