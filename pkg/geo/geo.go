// Package geo provides the great-circle math behind nearby-donation discovery.
//
// Coordinates are always (longitude, latitude) in degrees. Distances are
// computed with the haversine formula on a sphere, and bounding boxes are
// computed so that they always contain the full search circle; callers query
// storage with the box and then decide containment with Distance.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean equatorial radius used for all distance math.
const EarthRadiusMeters = 6378100.0

// boxSlack widens bounding boxes slightly (in radians, about 6mm) so that
// points lying exactly on the circle survive float rounding in storage.
const boxSlack = 1e-9

// Point is a WGS84 position.
type Point struct {
	Lon float64
	Lat float64
}

// NewPoint builds a point from longitude and latitude, in that order.
func NewPoint(lon, lat float64) Point {
	return Point{Lon: lon, Lat: lat}
}

// Validate reports whether the point lies within the valid coordinate ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) {
		return errors.New("coordinates must be numbers")
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", p.Lat)
	}
	return nil
}

type geoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// MarshalJSON encodes the point as a GeoJSON Point.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSONPoint{Type: "Point", Coordinates: []float64{p.Lon, p.Lat}})
}

// UnmarshalJSON decodes a GeoJSON Point. The type member may be omitted.
func (p *Point) UnmarshalJSON(data []byte) error {
	var g geoJSONPoint
	if err := json.Unmarshal(data, &g); err != nil {
		return err
	}
	if g.Type != "" && g.Type != "Point" {
		return fmt.Errorf("unsupported geometry type %q", g.Type)
	}
	if len(g.Coordinates) != 2 {
		return fmt.Errorf("point must have exactly 2 coordinates, got %d", len(g.Coordinates))
	}
	p.Lon, p.Lat = g.Coordinates[0], g.Coordinates[1]
	return nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Within reports whether p lies within radiusMeters of center.
func Within(center, p Point, radiusMeters float64) bool {
	return Distance(center, p) <= radiusMeters
}

// Box is a latitude/longitude rectangle in degrees. When MinLon > MaxLon the
// box wraps across the antimeridian.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// CrossesAntimeridian reports whether the longitude range wraps past ±180.
func (b Box) CrossesAntimeridian() bool {
	return b.MinLon > b.MaxLon
}

// Contains reports whether p falls inside the box.
func (b Box) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if b.CrossesAntimeridian() {
		return p.Lon >= b.MinLon || p.Lon <= b.MaxLon
	}
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// BoundingBox returns a box guaranteed to contain every point within
// radiusMeters of center. Near the poles the box spans all longitudes.
func BoundingBox(center Point, radiusMeters float64) Box {
	angular := radiusMeters/EarthRadiusMeters + boxSlack
	lat := radians(center.Lat)
	lon := radians(center.Lon)

	minLat := lat - angular
	maxLat := lat + angular

	if minLat <= -math.Pi/2 || maxLat >= math.Pi/2 {
		return Box{
			MinLat: degrees(math.Max(minLat, -math.Pi/2)),
			MaxLat: degrees(math.Min(maxLat, math.Pi/2)),
			MinLon: -180,
			MaxLon: 180,
		}
	}

	deltaLon := math.Asin(math.Sin(angular) / math.Cos(lat))
	minLon := lon - deltaLon
	maxLon := lon + deltaLon
	if minLon < -math.Pi {
		minLon += 2 * math.Pi
	}
	if maxLon > math.Pi {
		maxLon -= 2 * math.Pi
	}

	return Box{
		MinLat: degrees(minLat),
		MaxLat: degrees(maxLat),
		MinLon: degrees(minLon),
		MaxLon: degrees(maxLon),
	}
}
