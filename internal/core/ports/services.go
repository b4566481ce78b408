package ports

import (
	"context"

	"github.com/opentraffic/analyst/internal/core/domain"
)

// TileSource fetches one OSMLR geometry tile over the network.
type TileSource interface {
	FetchTile(ctx context.Context, suffix string) (*domain.FeatureCollection, error)
}

// TileCache stores immutable tile snapshots keyed by tile suffix.
// Get returns an independent copy; Put takes ownership of fc.
type TileCache interface {
	Get(suffix string) (*domain.FeatureCollection, bool)
	Put(suffix string, fc *domain.FeatureCollection)
	Keys() []string
	Len() int
}

// RouteResolver resolves waypoints into a route summary bounding box.
type RouteResolver interface {
	Route(ctx context.Context, waypoints []domain.Waypoint) (*domain.RouteBounds, error)
}

// SpeedSource returns historical speeds for the given segments.
// Segments without data are absent from the returned table.
type SpeedSource interface {
	Speeds(ctx context.Context, ids []domain.SegmentID, q domain.SpeedQuery) (domain.SpeedTable, error)
}

// ResultPublisher delivers named GeoJSON data sources to the renderer.
// Deleting a source signals that no region is selected.
type ResultPublisher interface {
	SetDataSource(ctx context.Context, name string, fc *domain.FeatureCollection) error
	DeleteDataSource(ctx context.Context, name string) error
}

// StateSink consumes UI state signals.
type StateSink interface {
	Emit(ctx context.Context, s domain.Signal) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
