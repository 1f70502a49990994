// Package geo provides the small amount of spherical geometry the feed
// needs: nautical-mile distances, cheap proximity comparisons, and
// great-circle point projection for fix-radial-distance route elements and
// localizer centerlines.
package geo

import "math"

const (
	// NMPerDegreeLat is the length of one degree of latitude in nautical miles.
	NMPerDegreeLat = 60.0

	earthRadiusNM = 3440.065
)

// Point is a position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether the point is the unset origin value.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// SqDistApprox returns an equirectangular squared-distance approximation in
// squared degrees. It is only meaningful for comparing candidate points
// against the same anchor; it is never converted to a real distance.
func SqDistApprox(a, b Point) float64 {
	dlat := a.Lat - b.Lat
	dlon := (a.Lon - b.Lon) * math.Cos((a.Lat+b.Lat)/2*math.Pi/180)
	return dlat*dlat + dlon*dlon
}

// DistanceNM returns the great-circle distance between two points in
// nautical miles (haversine).
func DistanceNM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dlat := (b.Lat - a.Lat) * math.Pi / 180
	dlon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return 2 * earthRadiusNM * math.Asin(math.Sqrt(h))
}

// Project returns the point reached by travelling distNM nautical miles from
// p along the given true bearing in degrees.
func Project(p Point, bearingDeg, distNM float64) Point {
	lat1 := p.Lat * math.Pi / 180
	lon1 := p.Lon * math.Pi / 180
	brg := bearingDeg * math.Pi / 180
	d := distNM / earthRadiusNM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(
		math.Sin(brg)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Point{
		Lat: lat2 * 180 / math.Pi,
		Lon: math.Mod(lon2*180/math.Pi+540, 360) - 180,
	}
}

// Nearest returns the index of the candidate closest to anchor, or -1 for an
// empty slice. When the anchor is the zero point the first candidate wins.
func Nearest(anchor Point, candidates []Point) int {
	if len(candidates) == 0 {
		return -1
	}
	if anchor.IsZero() {
		return 0
	}
	best, bestD := 0, math.MaxFloat64
	for i, c := range candidates {
		if d := SqDistApprox(anchor, c); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}
