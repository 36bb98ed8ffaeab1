// Package geo provides the great-circle distance model shared by the
// assignment engine and the report decoder.
package geo

import (
	"encoding/json"
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used for all distances.
const EarthRadiusKm = 6371.0

// Point is a geographic coordinate. Its JSON form is a two-element
// [lat, lon] array.
type Point struct {
	Lat float64
	Lon float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lon})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("point: expected [lat, lon] array: %w", err)
	}
	if len(arr) != 2 {
		return fmt.Errorf("point: expected 2 coordinates, got %d", len(arr))
	}
	p.Lat, p.Lon = arr[0], arr[1]
	return nil
}

// Valid reports whether the point has finite coordinates within
// latitude [-90,90] and longitude [-180,180].
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance returns the haversine great-circle distance between a and b
// in kilometers. Symmetric, and zero for identical points.
func Distance(a, b Point) float64 {
	if a == b {
		return 0
	}
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}
