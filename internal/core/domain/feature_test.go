package domain_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/opentraffic/analyst/internal/core/domain"
)

const tileJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "geometry": {"type": "MultiLineString", "coordinates": [[[[0.01, 0.02], [0.03, 0.04]]]]},
     "properties": {"osmlr_id": 1234567, "tags": {"frc": 2}, "refs": [1, 2]}}
  ]
}`

func decode(t *testing.T) *domain.FeatureCollection {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(tileJSON))
	dec.UseNumber()
	var fc domain.FeatureCollection
	if err := dec.Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &fc
}

func TestFeatureCollection_Decode(t *testing.T) {
	fc := decode(t)
	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(fc.Features))
	}
	got := fc.Features[0].Geometry.Coordinates[0][0][1]
	if got != (orb.Point{0.03, 0.04}) {
		t.Errorf("unexpected coordinate %v", got)
	}
	id, ok := fc.Features[0].Properties.SegmentKey()
	if !ok || id != "1234567" {
		t.Errorf("expected segment key 1234567, got %q (%v)", id, ok)
	}
}

func TestFeatureCollection_CloneIsIndependent(t *testing.T) {
	orig := decode(t)
	clone := orig.Clone()

	if diff := cmp.Diff(orig, clone); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}

	clone.Features[0].Geometry.Coordinates[0][0][0] = orb.Point{9, 9}
	clone.Features[0].Properties["speed"] = 42.0
	clone.Features[0].Properties["tags"].(map[string]any)["frc"] = 7
	clone.Features[0].Properties["refs"].([]any)[0] = "x"

	f := orig.Features[0]
	if f.Geometry.Coordinates[0][0][0] != (orb.Point{0.01, 0.02}) {
		t.Error("coordinate mutation leaked into original")
	}
	if _, ok := f.Properties["speed"]; ok {
		t.Error("property insertion leaked into original")
	}
	if f.Properties["tags"].(map[string]any)["frc"] != json.Number("2") {
		t.Error("nested map mutation leaked into original")
	}
	if f.Properties["refs"].([]any)[0] != json.Number("1") {
		t.Error("nested slice mutation leaked into original")
	}
}

func TestMerge_ConcatenatesInOrder(t *testing.T) {
	a := domain.NewFeatureCollection([]domain.Feature{{Properties: domain.Properties{"osmlr_id": "a"}}})
	b := domain.NewFeatureCollection([]domain.Feature{
		{Properties: domain.Properties{"osmlr_id": "b"}},
		{Properties: domain.Properties{"osmlr_id": "a"}},
	})

	merged := domain.Merge(a, nil, b)
	var ids []string
	for _, f := range merged.Features {
		id, _ := f.Properties.SegmentKey()
		ids = append(ids, id)
	}
	if diff := cmp.Diff([]string{"a", "b", "a"}, ids); diff != "" {
		t.Errorf("unexpected merge order (-want +got):\n%s", diff)
	}
	if merged.Type != "FeatureCollection" {
		t.Errorf("unexpected type %q", merged.Type)
	}
}

func TestMerge_Empty(t *testing.T) {
	merged := domain.Merge()
	data, err := json.Marshal(merged)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"FeatureCollection","features":[]}` {
		t.Errorf("unexpected encoding %s", data)
	}
}
