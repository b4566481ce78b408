package domain

import "time"

// SignalKind names a UI state signal.
type SignalKind string

const (
	SignalLoadingStarted SignalKind = "loading-started"
	SignalLoadingStopped SignalKind = "loading-stopped"
	SignalLoadingHidden  SignalKind = "loading-hidden"
	SignalErrorMessage   SignalKind = "error-message"
)

// User-facing messages.
const (
	MessageRegionTooLarge = "Please zoom in and reduce the size of your bounding box"
	MessageInvalidBounds  = "The selected bounding box is not valid"
	MessageFetchFailed    = "Unable to load traffic data for this area, please try again"
)

// Signal is emitted to the UI state sink.
type Signal struct {
	Kind       SignalKind `json:"kind"`
	Message    string     `json:"message,omitempty"`
	QueryID    string     `json:"query_id,omitempty"`
	Generation uint64     `json:"generation"`
	Time       time.Time  `json:"time"`
}

// RegionState is the orchestrator state.
type RegionState string

const (
	StateIdle           RegionState = "idle"
	StateLoading        RegionState = "loading"
	StateSuccess        RegionState = "success"
	StateRegionTooLarge RegionState = "region_too_large"
	StateFailed         RegionState = "failed"
)

// RegionStatus is a snapshot of the latest query.
type RegionStatus struct {
	State      RegionState  `json:"state"`
	QueryID    string       `json:"query_id,omitempty"`
	Generation uint64       `json:"generation"`
	Bounds     *BoundingBox `json:"bounds,omitempty"`
	Message    string       `json:"message,omitempty"`
	Features   int          `json:"features"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
