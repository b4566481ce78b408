package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/opentraffic/analyst/internal/core/domain"
)

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("43.27, 43.25, -2.92, -2.94")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := domain.BoundingBox{North: 43.27, South: 43.25, East: -2.92, West: -2.94}
	if diff := cmp.Diff(want, b); diff != "" {
		t.Errorf("bbox mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"", "1,2,3", "a,0,1,0", "0,1,1,0"} {
		if _, err := parseBBox(bad); err == nil {
			t.Errorf("parseBBox(%q): expected error", bad)
		}
	}
}

func TestParseWindow(t *testing.T) {
	q, err := parseWindow("2017-01-01", "2017-01-31", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Compare {
		t.Error("expected compare")
	}
	if got := q.End.Format(dateLayout); got != "2017-02-01" {
		t.Errorf("expected exclusive end 2017-02-01, got %s", got)
	}

	if _, err := parseWindow("2017-02-01", "2017-01-01", false); err == nil {
		t.Error("expected error for start after end")
	}
	if _, err := parseWindow("01/01/2017", "", false); err == nil {
		t.Error("expected error for bad date")
	}

	q, err = parseWindow("", "", false)
	if err != nil || !q.Start.IsZero() || !q.End.IsZero() {
		t.Errorf("expected open window, got %+v, %v", q, err)
	}
}

func TestWriteGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	fc := domain.NewFeatureCollection(nil)
	if err := writeGeoJSON(&buf, "", fc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["type"] != "FeatureCollection" {
		t.Errorf("expected FeatureCollection, got %v", got["type"])
	}
	if features, ok := got["features"].([]interface{}); !ok || len(features) != 0 {
		t.Errorf("expected empty features array, got %v", got["features"])
	}
}
