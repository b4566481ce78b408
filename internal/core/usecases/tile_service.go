package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/opentraffic/analyst/internal/core/domain"
	"github.com/opentraffic/analyst/internal/core/ports"
	"github.com/opentraffic/analyst/internal/pkg/metrics"
	"github.com/opentraffic/analyst/internal/pkg/osmlr"
)

const (
	defaultFetchConcurrency = 8
	defaultMaxTiles         = 64
)

// GeometryLevels are the tile levels that carry segment geometry.
var GeometryLevels = []int{0, 1}

// TileService fetches OSMLR geometry tiles through a process-scoped cache.
// Concurrent requests for the same uncached suffix share one network fetch.
type TileService struct {
	source      ports.TileSource
	cache       ports.TileCache
	group       singleflight.Group
	concurrency int
	maxTiles    int
}

// NewTileService creates a new TileService. concurrency bounds the number
// of tiles fetched in parallel by FetchAll.
func NewTileService(source ports.TileSource, cache ports.TileCache, concurrency int) *TileService {
	if concurrency <= 0 {
		concurrency = defaultFetchConcurrency
	}
	return &TileService{source: source, cache: cache, concurrency: concurrency, maxTiles: defaultMaxTiles}
}

// WithMaxTiles sets the largest number of tiles one query may touch.
// Non-positive values keep the current limit.
func (s *TileService) WithMaxTiles(n int) *TileService {
	if n > 0 {
		s.maxTiles = n
	}
	return s
}

// MaxTiles returns the per-query tile limit.
func (s *TileService) MaxTiles() int { return s.maxTiles }

// Suffixes resolves b into tile suffixes under the service's tile limit.
func (s *TileService) Suffixes(b domain.BoundingBox) ([]string, error) {
	return TileSuffixes(b, s.maxTiles)
}

// Fetch returns an independent copy of the tile identified by suffix.
// Failures are never cached.
func (s *TileService) Fetch(ctx context.Context, suffix string) (*domain.FeatureCollection, error) {
	if fc, ok := s.cache.Get(suffix); ok {
		metrics.CacheHits.WithLabelValues("tile").Inc()
		return fc, nil
	}
	metrics.CacheMisses.WithLabelValues("tile").Inc()

	// The flight is shared with other queries, so it must not inherit the
	// cancellation of whichever caller started it. Each caller stops
	// waiting on its own context instead.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(suffix, func() (any, error) {
		// Another caller may have filled the cache between our miss and here.
		if _, ok := s.cache.Get(suffix); ok {
			return nil, nil
		}
		start := time.Now()
		fc, err := s.source.FetchTile(fetchCtx, suffix)
		metrics.TileFetchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.TileFetches.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.TileFetches.WithLabelValues("ok").Inc()
		if fc == nil {
			fc = domain.NewFeatureCollection(nil)
		}
		s.cache.Put(suffix, fc)
		metrics.CachedTiles.Set(float64(s.cache.Len()))
		slog.Debug("tile cached", "suffix", suffix, "features", len(fc.Features))
		return nil, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrTileFetch, suffix, ctx.Err())
	}
	if res.Shared {
		metrics.TileSharedFetches.Inc()
	}
	if res.Err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrTileFetch, suffix, res.Err)
	}

	fc, ok := s.cache.Get(suffix)
	if !ok {
		return nil, fmt.Errorf("%w: %s: not cached after fetch", domain.ErrTileFetch, suffix)
	}
	return fc, nil
}

// FetchAll fetches every suffix concurrently and merges the results in
// suffix order. Any single failure fails the whole batch.
func (s *TileService) FetchAll(ctx context.Context, suffixes []string) (*domain.FeatureCollection, error) {
	results := make([]*domain.FeatureCollection, len(suffixes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, suffix := range suffixes {
		g.Go(func() error {
			fc, err := s.Fetch(gctx, suffix)
			if err != nil {
				return err
			}
			results[i] = fc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return domain.Merge(results...), nil
}

// Cached returns the suffixes currently held in the cache.
func (s *TileService) Cached() []string {
	return s.cache.Keys()
}

// TileSuffixes resolves a bounding box into the ordered, deduplicated tile
// suffixes covering it. Level 2 tiles carry no geometry and are never
// enumerated. A box needing more than maxTiles tiles fails with
// ErrTooManyTiles before any tile is built; maxTiles <= 0 disables the check.
func TileSuffixes(b domain.BoundingBox, maxTiles int) ([]string, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if maxTiles > 0 {
		if n := osmlr.CountTiles(b.West, b.South, b.East, b.North, GeometryLevels...); n > maxTiles {
			return nil, fmt.Errorf("%w: %d tiles exceeds %d", domain.ErrTooManyTiles, n, maxTiles)
		}
	}
	tiles := osmlr.TilesForBBox(b.West, b.South, b.East, b.North, GeometryLevels...)
	suffixes := make([]string, 0, len(tiles))
	for _, t := range tiles {
		suffixes = append(suffixes, t.Suffix())
	}
	return suffixes, nil
}
