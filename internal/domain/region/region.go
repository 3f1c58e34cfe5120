// Package region provides country codes, centroids and map geometry.
package region

import (
	"math"
	"sort"
	"strings"
)

// earthRadiusKm is the mean earth radius used for great-circle distances.
const earthRadiusKm = 6371.0

// Coordinate is a point on the globe in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Country is a row of the static coordinate table.
type Country struct {
	Code      string
	Name      string
	Latitude  float64
	Longitude float64
}

// Coordinate returns the country centroid.
func (c Country) Coordinate() Coordinate {
	return Coordinate{Latitude: c.Latitude, Longitude: c.Longitude}
}

// Viewport is a visible map area described by its center and span in degrees.
type Viewport struct {
	Center         Coordinate `json:"center"`
	LatitudeDelta  float64    `json:"latDelta"`
	LongitudeDelta float64    `json:"lonDelta"`
}

// Contains reports whether p lies in the viewport's bounding box.
func (v Viewport) Contains(p Coordinate) bool {
	return math.Abs(p.Latitude-v.Center.Latitude) <= v.LatitudeDelta/2 &&
		math.Abs(p.Longitude-v.Center.Longitude) <= v.LongitudeDelta/2
}

// NormalizeCode trims and upper-cases a country code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeCodes normalizes codes, dropping blanks and duplicates while
// keeping first-seen order.
func NormalizeCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		n := NormalizeCode(c)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// DistanceKm returns the haversine great-circle distance between a and b.
func DistanceKm(a, b Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180.0
	lon1 := a.Longitude * math.Pi / 180.0
	lat2 := b.Latitude * math.Pi / 180.0
	lon2 := b.Longitude * math.Pi / 180.0

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// Table is a read-only country code to centroid lookup.
type Table map[string]Country

// NewTable builds a table from rows, normalizing their codes.
func NewTable(rows ...Country) Table {
	t := make(Table, len(rows))
	for _, r := range rows {
		r.Code = NormalizeCode(r.Code)
		t[r.Code] = r
	}
	return t
}

// Lookup returns the row for code. A missing code is not an error:
// that country is simply not plottable.
func (t Table) Lookup(code string) (Country, bool) {
	c, ok := t[NormalizeCode(code)]
	return c, ok
}

// Name returns the display name for code, falling back to the code itself.
func (t Table) Name(code string) string {
	if c, ok := t.Lookup(code); ok {
		return c.Name
	}
	return NormalizeCode(code)
}

// Codes returns every code in the table, sorted.
func (t Table) Codes() []string {
	codes := make([]string, 0, len(t))
	for code := range t {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// VisibleCountries returns, sorted, the codes whose centroid falls inside
// the viewport's bounding box. This is a centroid test, not a polygon
// intersection: a large country whose centroid is off-screen is not visible.
func (t Table) VisibleCountries(v Viewport) []string {
	var codes []string
	for code, c := range t {
		if v.Contains(c.Coordinate()) {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}
