package usecases_test

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/opentraffic/analyst/internal/core/domain"
	"github.com/opentraffic/analyst/internal/core/usecases"
	"github.com/opentraffic/analyst/internal/pkg/osmlr"
)

func rawID(level int, tile, segment uint32) string {
	return strconv.FormatUint(osmlr.EncodeSegmentID(level, tile, segment), 10)
}

func TestResolveSegmentIDs_DedupPreservesOrder(t *testing.T) {
	a, b, c := rawID(1, 32580, 1), rawID(1, 32580, 2), rawID(0, 2025, 7)
	var features []domain.Feature
	for _, id := range []string{b, a, b, c, a} {
		features = append(features, segmentFeature(id, orb.Point{0, 0}))
	}

	segs := usecases.ResolveSegmentIDs(features)

	var got []string
	for _, id := range segs.IDs {
		got = append(got, id.Raw)
	}
	if diff := cmp.Diff([]string{b, a, c}, got); diff != "" {
		t.Errorf("dedup mismatch (-want +got):\n%s", diff)
	}
	if len(segs.Skipped) != 0 {
		t.Errorf("unexpected skipped ids: %v", segs.Skipped)
	}
	if segs.IDs[2].Level != 0 || segs.IDs[2].TileIndex != 2025 || segs.IDs[2].SegmentIndex != 7 {
		t.Errorf("unexpected decoded id %+v", segs.IDs[2])
	}
}

func TestResolveSegmentIDs_SkipsMalformed(t *testing.T) {
	good := rawID(1, 32580, 3)
	features := []domain.Feature{
		segmentFeature("not-a-number", orb.Point{0, 0}),
		segmentFeature(good, orb.Point{0, 0}),
		segmentFeature("not-a-number", orb.Point{0, 0}),
		{Properties: domain.Properties{"name": "no id"}},
	}

	segs := usecases.ResolveSegmentIDs(features)
	if len(segs.IDs) != 1 || segs.IDs[0].Raw != good {
		t.Fatalf("expected only %s, got %+v", good, segs.IDs)
	}
	if len(segs.Skipped) != 1 || segs.Skipped[0].Raw != "not-a-number" {
		t.Errorf("expected one skipped id, got %+v", segs.Skipped)
	}
}

func TestAnnotateSpeeds_KeyedJoin(t *testing.T) {
	a, b := rawID(1, 32580, 1), rawID(1, 32580, 2)
	features := []domain.Feature{
		segmentFeature(a, orb.Point{0, 0}),
		segmentFeature("bogus", orb.Point{0, 0}),
		segmentFeature(b, orb.Point{0, 0}),
		segmentFeature(a, orb.Point{1, 1}),
	}
	segs := usecases.ResolveSegmentIDs(features)
	speeds := domain.SpeedTable{
		osmlr.EncodeSegmentID(1, 32580, 1): {Speed: 42.5, PercentDiff: -3},
	}

	out := usecases.AnnotateSpeeds(features, segs, speeds, true)

	if len(out) != 3 {
		t.Fatalf("expected 3 annotated features, got %d", len(out))
	}
	for _, i := range []int{0, 2} {
		if out[i].Properties[domain.SpeedProperty] != 42.5 {
			t.Errorf("feature %d: expected speed 42.5, got %v", i, out[i].Properties[domain.SpeedProperty])
		}
		if out[i].Properties[domain.PercentDiffProperty] != -3.0 {
			t.Errorf("feature %d: expected percentDiff -3, got %v", i, out[i].Properties[domain.PercentDiffProperty])
		}
	}
	if v, ok := out[1].Properties[domain.SpeedProperty]; !ok || v != nil {
		t.Errorf("expected null speed for segment without data, got %v (present=%v)", v, ok)
	}
	if _, ok := features[0].Properties[domain.SpeedProperty]; ok {
		t.Error("input properties were modified")
	}
}

func TestAnnotateSpeeds_NoCompare(t *testing.T) {
	a := rawID(1, 32580, 1)
	features := []domain.Feature{segmentFeature(a, orb.Point{0, 0})}
	segs := usecases.ResolveSegmentIDs(features)
	speeds := domain.SpeedTable{osmlr.EncodeSegmentID(1, 32580, 1): {Speed: 30, PercentDiff: 12}}

	out := usecases.AnnotateSpeeds(features, segs, speeds, false)
	if _, ok := out[0].Properties[domain.PercentDiffProperty]; ok {
		t.Error("percentDiff must only be set in compare mode")
	}
}
