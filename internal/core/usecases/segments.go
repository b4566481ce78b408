package usecases

import (
	"github.com/opentraffic/analyst/internal/core/domain"
	"github.com/opentraffic/analyst/internal/pkg/osmlr"
)

// Segments is the result of resolving the segment ids of a feature set.
type Segments struct {
	// IDs holds one decoded id per distinct raw identifier, in first
	// occurrence order.
	IDs []domain.SegmentID
	// Skipped lists identifiers that could not be decoded.
	Skipped []domain.SkippedSegment
}

// ResolveSegmentIDs extracts, deduplicates and decodes the segment ids
// carried by features. Malformed identifiers are skipped and reported.
// Features without an identifier contribute nothing.
func ResolveSegmentIDs(features []domain.Feature) Segments {
	var out Segments
	seen := make(map[string]struct{}, len(features))
	for _, f := range features {
		raw, ok := f.Properties.SegmentKey()
		if !ok {
			continue
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}

		id, err := osmlr.ParseSegmentID(raw)
		if err != nil {
			out.Skipped = append(out.Skipped, domain.SkippedSegment{Raw: raw, Reason: err.Error()})
			continue
		}
		out.IDs = append(out.IDs, id)
	}
	return out
}

// AnnotateSpeeds joins speed records onto features by segment id and
// returns the annotated features in input order. Features whose id was
// skipped are dropped. Features with no speed record get a null speed.
// In compare mode the percent difference is attached as well.
//
// Properties are replaced with fresh maps so the input features are not
// modified.
func AnnotateSpeeds(features []domain.Feature, segs Segments, speeds domain.SpeedTable, compare bool) []domain.Feature {
	byRaw := make(map[string]uint64, len(segs.IDs))
	for _, id := range segs.IDs {
		byRaw[id.Raw] = id.ID
	}

	out := make([]domain.Feature, 0, len(features))
	for _, f := range features {
		raw, ok := f.Properties.SegmentKey()
		if !ok {
			continue
		}
		id, ok := byRaw[raw]
		if !ok {
			continue
		}

		props := f.Properties.Clone()
		if rec, found := speeds[id]; found {
			props[domain.SpeedProperty] = rec.Speed
			if compare {
				props[domain.PercentDiffProperty] = rec.PercentDiff
			}
		} else {
			props[domain.SpeedProperty] = nil
			if compare {
				props[domain.PercentDiffProperty] = nil
			}
		}
		f.Properties = props
		out = append(out, f)
	}
	return out
}
