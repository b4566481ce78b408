package postgres

import (
	"testing"
	"time"
)

func TestAggregate(t *testing.T) {
	rec := aggregate(42, 300, -20, 6)
	if rec.Speed != 50 || rec.PercentDiff != -20.0/6 || rec.Count != 6 || rec.SegmentID != 42 {
		t.Errorf("unexpected record %+v", rec)
	}

	empty := aggregate(7, 10, 10, 0)
	if empty.Speed != 0 || empty.PercentDiff != 0 {
		t.Errorf("expected zero averages without observations, got %+v", empty)
	}
}

func TestOptionalTime(t *testing.T) {
	if optionalTime(time.Time{}) != nil {
		t.Error("zero time must map to NULL")
	}
	now := time.Now()
	if p := optionalTime(now); p == nil || !p.Equal(now) {
		t.Error("non-zero time must be passed through")
	}
}
