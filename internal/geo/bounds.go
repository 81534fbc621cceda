package geo

import "math"

// Bounds is a lat/lng rectangle that contains every point within a radius of a center.
// FullLng is set when the rectangle would cross a pole or the antimeridian; the
// longitude limits must then be ignored.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
	FullLng        bool
}

// BoundsAround returns a conservative bounding rectangle for the circle (center, radiusMeters).
func BoundsAround(center Point, radiusMeters float64) Bounds {
	angular := radiusMeters / EarthRadiusMeters
	dLat := toDegrees(angular)

	b := Bounds{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLng: -180,
		MaxLng: 180,
	}

	if b.MaxLat >= 90 || b.MinLat <= -90 {
		b.MinLat = math.Max(b.MinLat, -90)
		b.MaxLat = math.Min(b.MaxLat, 90)
		b.FullLng = true
		return b
	}

	ratio := math.Sin(angular) / math.Cos(toRadians(center.Lat))
	if ratio >= 1 {
		b.FullLng = true
		return b
	}

	dLng := toDegrees(math.Asin(ratio))
	b.MinLng = center.Lng - dLng
	b.MaxLng = center.Lng + dLng
	if b.MinLng < -180 || b.MaxLng > 180 {
		b.MinLng, b.MaxLng = -180, 180
		b.FullLng = true
	}
	return b
}

// Contains reports whether p lies inside the rectangle.
func (b Bounds) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if b.FullLng {
		return true
	}
	return p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}
