package domain

import "errors"

var (
	// ErrInvalidBounds is returned for malformed bounding boxes.
	ErrInvalidBounds = errors.New("invalid bounding box")
	// ErrRegionTooLarge is returned when a box exceeds the maximum area.
	ErrRegionTooLarge = errors.New("region too large")
	// ErrTooManyTiles is returned when a box needs more tiles than a query may fetch.
	ErrTooManyTiles = errors.New("too many tiles")
	// ErrMalformedSegmentID is returned when a segment id cannot be decoded.
	ErrMalformedSegmentID = errors.New("malformed segment id")
	// ErrSuperseded is returned when a newer query replaced this one before it finished.
	ErrSuperseded = errors.New("query superseded")
	// ErrTileFetch wraps network and parse failures of geometry tiles.
	ErrTileFetch = errors.New("tile fetch failed")
	// ErrNoRoute is returned when the routing service finds no route.
	ErrNoRoute = errors.New("no route found")
	// ErrCacheMiss is returned by caches for absent keys.
	ErrCacheMiss = errors.New("cache miss")
)
