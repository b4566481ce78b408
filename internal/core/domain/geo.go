package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// BoundingBox is a rectangular query region in degrees.
// Boxes crossing the antimeridian are not supported.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Area returns the planar area of the box in square degrees.
func (b BoundingBox) Area() float64 {
	return (b.East - b.West) * (b.North - b.South)
}

// Validate reports whether the box is well formed.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidBounds)
		}
	}
	switch {
	case b.North <= b.South:
		return fmt.Errorf("%w: north %.6f must be greater than south %.6f", ErrInvalidBounds, b.North, b.South)
	case b.East <= b.West:
		return fmt.Errorf("%w: east %.6f must be greater than west %.6f", ErrInvalidBounds, b.East, b.West)
	case b.South < -90 || b.North > 90:
		return fmt.Errorf("%w: latitude outside [-90, 90]", ErrInvalidBounds)
	case b.West < -180 || b.East > 180:
		return fmt.Errorf("%w: longitude outside [-180, 180]", ErrInvalidBounds)
	}
	return nil
}

// Bound returns the box as an orb.Bound (min is south-west, max is north-east).
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Pad grows the box by d degrees on every side, clamped to the valid range.
func (b BoundingBox) Pad(d float64) BoundingBox {
	return BoundingBox{
		North: math.Min(b.North+d, 90),
		South: math.Max(b.South-d, -90),
		East:  math.Min(b.East+d, 180),
		West:  math.Max(b.West-d, -180),
	}
}

// Waypoints converts the box into the south-west to north-east pair
// sent to the routing service.
func (b BoundingBox) Waypoints() []Waypoint {
	return []Waypoint{
		{Lat: b.South, Lon: b.West},
		{Lat: b.North, Lon: b.East},
	}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("n=%.6f s=%.6f e=%.6f w=%.6f", b.North, b.South, b.East, b.West)
}

// Waypoint is a location passed to the routing service (WGS 84).
type Waypoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ParseWaypoints parses the "lat/lng,lat/lng,..." form used in shared URLs.
func ParseWaypoints(s string) ([]Waypoint, error) {
	parts := strings.Split(s, ",")
	out := make([]Waypoint, 0, len(parts))
	for _, p := range parts {
		latlng := strings.Split(strings.TrimSpace(p), "/")
		if len(latlng) != 2 {
			return nil, fmt.Errorf("waypoint %q: expected lat/lng", p)
		}
		lat, err := strconv.ParseFloat(latlng[0], 64)
		if err != nil {
			return nil, fmt.Errorf("waypoint %q: %w", p, err)
		}
		lon, err := strconv.ParseFloat(latlng[1], 64)
		if err != nil {
			return nil, fmt.Errorf("waypoint %q: %w", p, err)
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("waypoint %q: out of range", p)
		}
		out = append(out, Waypoint{Lat: lat, Lon: lon})
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("at least two waypoints are required, got %d", len(out))
	}
	return out, nil
}

// RouteBounds is the summary bounding box of a resolved route.
type RouteBounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// BoundingBox converts the route summary into a BoundingBox.
func (r RouteBounds) BoundingBox() BoundingBox {
	return BoundingBox{North: r.MaxLat, South: r.MinLat, East: r.MaxLon, West: r.MinLon}
}
