package utils

import (
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64
		delta                  float64
	}{
		{"Same point", 51.3397, 12.3731, 51.3397, 12.3731, 0, 0.001},
		{"Leipzig to Berlin", 51.3397, 12.3731, 52.5200, 13.4050, 149, 2},
		{"Berlin to Potsdam", 52.5200, 13.4050, 52.3967, 13.0583, 27, 1},
		{"Quarter meridian", 0, 0, 90, 0, math.Pi / 2 * 6371, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.want) > tt.delta {
				t.Errorf("HaversineKm() = %v, want %v ± %v", got, tt.want, tt.delta)
			}
		})
	}
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	lat, lng, radius := 51.3397, 12.3731, 50.0
	minLat, maxLat, minLng, maxLng := BoundingBox(lat, lng, radius)

	// Points due north, south, east and west just inside the radius must fall in the box
	for _, p := range [][2]float64{
		{lat + 0.44, lng},
		{lat - 0.44, lng},
		{lat, lng + 0.7},
		{lat, lng - 0.7},
	} {
		if HaversineKm(lat, lng, p[0], p[1]) > radius {
			t.Fatalf("test point %v is outside the radius", p)
		}
		if p[0] < minLat || p[0] > maxLat || p[1] < minLng || p[1] > maxLng {
			t.Errorf("point %v outside box [%v,%v]x[%v,%v]", p, minLat, maxLat, minLng, maxLng)
		}
	}

	minLat, maxLat, minLng, maxLng = BoundingBox(89.9, 0, 50)
	if minLng != -180 || maxLng != 180 || maxLat != 90 {
		t.Errorf("polar box = [%v,%v]x[%v,%v], want full longitude span", minLat, maxLat, minLng, maxLng)
	}
}
