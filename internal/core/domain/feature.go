package domain

import (
	"encoding/json"
	"strconv"

	"github.com/paulmach/orb"
)

// Property names read from and written to OSMLR features.
const (
	SegmentIDProperty   = "osmlr_id"
	SpeedProperty       = "speed"
	PercentDiffProperty = "percentDiff"
)

// PointGroup is an ordered run of [lng, lat] pairs.
type PointGroup []orb.Point

// Line is an ordered sequence of point groups.
type Line []PointGroup

// Geometry holds the nested multi-line coordinates of an OSMLR feature.
type Geometry struct {
	Type        string `json:"type"`
	Coordinates []Line `json:"coordinates"`
}

// Properties are the free-form attributes of a feature.
type Properties map[string]any

// Feature is one roadway segment geometry.
type Feature struct {
	Type       string     `json:"type"`
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection returns a collection holding features.
func NewFeatureCollection(features []Feature) *FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return &FeatureCollection{Type: "FeatureCollection", Features: features}
}

// Merge concatenates the features of every collection in input order.
// Nil collections are skipped. No deduplication happens here.
func Merge(collections ...*FeatureCollection) *FeatureCollection {
	n := 0
	for _, c := range collections {
		if c != nil {
			n += len(c.Features)
		}
	}
	features := make([]Feature, 0, n)
	for _, c := range collections {
		if c != nil {
			features = append(features, c.Features...)
		}
	}
	return NewFeatureCollection(features)
}

// Clone returns a deep copy sharing no memory with fc.
func (fc *FeatureCollection) Clone() *FeatureCollection {
	if fc == nil {
		return nil
	}
	out := &FeatureCollection{Type: fc.Type}
	if fc.Features != nil {
		out.Features = make([]Feature, len(fc.Features))
		for i := range fc.Features {
			out.Features[i] = fc.Features[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the feature.
func (f Feature) Clone() Feature {
	out := Feature{
		Type:       f.Type,
		Geometry:   Geometry{Type: f.Geometry.Type},
		Properties: f.Properties.Clone(),
	}
	if f.Geometry.Coordinates != nil {
		out.Geometry.Coordinates = make([]Line, len(f.Geometry.Coordinates))
		for i, line := range f.Geometry.Coordinates {
			if line == nil {
				continue
			}
			l := make(Line, len(line))
			for j, group := range line {
				if group != nil {
					l[j] = append(PointGroup(make([]orb.Point, 0, len(group))), group...)
				}
			}
			out.Geometry.Coordinates[i] = l
		}
	}
	return out
}

// CoordinateCount returns the number of coordinate pairs in the feature.
func (f Feature) CoordinateCount() int {
	n := 0
	for _, line := range f.Geometry.Coordinates {
		for _, group := range line {
			n += len(group)
		}
	}
	return n
}

// Clone returns a deep copy of the properties.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// SegmentKey returns the raw segment identifier stored under SegmentIDProperty.
func (p Properties) SegmentKey() (string, bool) {
	switch v := p[SegmentIDProperty].(type) {
	case string:
		return v, v != ""
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case int:
		return strconv.Itoa(v), true
	default:
		return "", false
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case Properties:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	case *float64:
		if t == nil {
			return t
		}
		f := *t
		return &f
	default:
		return v
	}
}
