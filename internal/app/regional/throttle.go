package regional

import "github.com/osa030/tunemap/internal/domain/region"

// DefaultMinDistanceKm is how far the map center must move before a new
// area search is offered.
const DefaultMinDistanceKm = 500.0

// Throttle decides whether to offer a manual "search this area" refresh.
// It holds no state and never fetches anything.
type Throttle struct {
	MinDistanceKm float64
}

// NewThrottle creates a throttle; a non-positive distance uses the default.
func NewThrottle(minDistanceKm float64) Throttle {
	if minDistanceKm <= 0 {
		minDistanceKm = DefaultMinDistanceKm
	}
	return Throttle{MinDistanceKm: minDistanceKm}
}

// ShouldOfferRefetch reports whether current is more than MinDistanceKm from
// the center of the last fetch. It is always true when nothing was fetched yet.
func (t Throttle) ShouldOfferRefetch(current region.Coordinate, lastFetched *region.Coordinate) bool {
	if lastFetched == nil {
		return true
	}
	return region.DistanceKm(current, *lastFetched) > t.MinDistanceKm
}

// Distance returns the great-circle distance the throttle compares.
func (t Throttle) Distance(current region.Coordinate, lastFetched *region.Coordinate) (float64, bool) {
	if lastFetched == nil {
		return 0, false
	}
	return region.DistanceKm(current, *lastFetched), true
}
