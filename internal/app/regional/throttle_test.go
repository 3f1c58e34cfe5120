package regional

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/tunemap/internal/domain/region"
)

// kmPerDegree is the length of one degree of latitude on the haversine sphere.
var kmPerDegree = 6371.0 * math.Pi / 180

func TestThrottle_ShouldOfferRefetch(t *testing.T) {
	origin := region.Coordinate{Latitude: 10, Longitude: 20}
	north := func(km float64) region.Coordinate {
		return region.Coordinate{Latitude: origin.Latitude + km/kmPerDegree, Longitude: origin.Longitude}
	}

	tests := []struct {
		name     string
		current  region.Coordinate
		last     *region.Coordinate
		expected bool
	}{
		{name: "never fetched", current: origin, last: nil, expected: true},
		{name: "same place", current: origin, last: &origin, expected: false},
		{name: "499 km away", current: north(499), last: &origin, expected: false},
		{name: "501 km away", current: north(501), last: &origin, expected: true},
		{name: "other hemisphere", current: region.Coordinate{Latitude: -33.9, Longitude: 151.2}, last: &origin, expected: true},
	}

	throttle := NewThrottle(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, throttle.ShouldOfferRefetch(tt.current, tt.last))
		})
	}
}

func TestThrottle_CustomDistance(t *testing.T) {
	throttle := NewThrottle(100)
	paris := region.Coordinate{Latitude: 48.8566, Longitude: 2.3522}
	london := region.Coordinate{Latitude: 51.5074, Longitude: -0.1278}

	assert.True(t, throttle.ShouldOfferRefetch(london, &paris))

	d, ok := throttle.Distance(london, &paris)
	assert.True(t, ok)
	assert.InDelta(t, 344, d, 2)

	_, ok = throttle.Distance(london, nil)
	assert.False(t, ok)
}
