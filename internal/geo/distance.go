package geo

import (
	"math"
)

const EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Distance returns the great-circle distance between two points in meters.
func Distance(a, b Point) float64 {
	return HaversineDistance(a.Lat, a.Lng, b.Lat, b.Lng)
}

// HaversineDistance calculates the distance between two points on Earth in meters.
// NaN inputs propagate to a NaN result.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	deltaLat := toRadians(lat2 - lat1)
	deltaLon := toRadians(lon2 - lon1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// RoundMeters rounds a distance to whole meters, half away from zero.
func RoundMeters(distance float64) int {
	return int(math.Round(distance))
}

// Offset moves p by the given number of meters north and east. Only accurate for short distances.
func Offset(p Point, northMeters, eastMeters float64) Point {
	dLat := toDegrees(northMeters / EarthRadiusMeters)
	dLng := toDegrees(eastMeters / (EarthRadiusMeters * math.Cos(toRadians(p.Lat))))
	return Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func toDegrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}
