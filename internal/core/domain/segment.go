package domain

import "time"

// SegmentID is a decoded OSMLR segment identifier.
type SegmentID struct {
	Raw          string `json:"raw"`
	ID           uint64 `json:"id"`
	Level        int    `json:"level"`
	TileIndex    uint32 `json:"tile_index"`
	SegmentIndex uint32 `json:"segment_index"`
}

// SpeedRecord is the historical speed of one segment over a query window.
type SpeedRecord struct {
	SegmentID   uint64  `json:"segment_id"`
	Speed       float64 `json:"speed"`
	PercentDiff float64 `json:"percent_diff"`
	Count       int64   `json:"count"`
}

// SpeedTable maps segment ids to their speed records.
type SpeedTable map[uint64]SpeedRecord

// SpeedQuery selects the observation window. Zero times are open ends.
type SpeedQuery struct {
	Start   time.Time `json:"start,omitempty"`
	End     time.Time `json:"end,omitempty"`
	Compare bool      `json:"compare"`
}

// SkippedSegment is an identifier dropped because it could not be decoded.
type SkippedSegment struct {
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

// SpeedObservation is one hourly aggregate of speed measurements for a segment.
type SpeedObservation struct {
	SegmentID uint64    `json:"segment_id"`
	Hour      time.Time `json:"hour"`
	SpeedSum  float64   `json:"speed_sum"`
	DiffSum   float64   `json:"diff_sum"`
	Count     int64     `json:"count"`
}
