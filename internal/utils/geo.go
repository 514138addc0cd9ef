package utils

import "math"

const earthRadiusKm = 6371

// HaversineKm returns the great-circle distance between two points in kilometers
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * (math.Pi / 180.0)
	dLng := (lng2 - lng1) * (math.Pi / 180.0)
	lat1Rad := lat1 * (math.Pi / 180.0)
	lat2Rad := lat2 * (math.Pi / 180.0)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1Rad)*math.Cos(lat2Rad)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// BoundingBox returns a lat/lng box that contains every point within radiusKm of the center.
// It is a cheap SQL prefilter; callers still check HaversineKm.
func BoundingBox(lat, lng, radiusKm float64) (minLat, maxLat, minLng, maxLng float64) {
	dLat := radiusKm / 111.0
	minLat = math.Max(lat-dLat, -90)
	maxLat = math.Min(lat+dLat, 90)

	cosLat := math.Cos(lat * math.Pi / 180.0)
	if cosLat < 0.01 || minLat == -90 || maxLat == 90 {
		// Near the poles every longitude is close
		return minLat, maxLat, -180, 180
	}
	dLng := radiusKm / (111.0 * cosLat)
	if dLng >= 180 {
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, lng - dLng, lng + dLng
}
