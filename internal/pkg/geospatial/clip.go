package geospatial

import (
	"github.com/opentraffic/analyst/internal/core/domain"
)

// DefaultClipBuffer is the tolerance in degrees kept around a clip box so
// segments crossing the edge are not cut exactly at the boundary.
const DefaultClipBuffer = 0.0003

// Clip keeps the coordinates of features lying within bounds grown by
// buffer on every side, then drops point groups, lines and features left
// empty. Features are compacted in place and keep their relative order;
// the returned slice shares memory with features.
func Clip(features []domain.Feature, bounds domain.BoundingBox, buffer float64) []domain.Feature {
	box := bounds.Bound().Pad(buffer)

	kept := features[:0]
	for _, f := range features {
		lines := f.Geometry.Coordinates[:0]
		for _, line := range f.Geometry.Coordinates {
			groups := line[:0]
			for _, group := range line {
				points := group[:0]
				for _, p := range group {
					if box.Contains(p) {
						points = append(points, p)
					}
				}
				if len(points) > 0 {
					groups = append(groups, points)
				}
			}
			if len(groups) > 0 {
				lines = append(lines, groups)
			}
		}
		if len(lines) == 0 {
			continue
		}
		f.Geometry.Coordinates = lines
		kept = append(kept, f)
	}

	// release references held past the new length
	for i := len(kept); i < len(features); i++ {
		features[i] = domain.Feature{}
	}
	return kept
}
