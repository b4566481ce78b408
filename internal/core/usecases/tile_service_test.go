package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/opentraffic/analyst/internal/adapters/memory"
	"github.com/opentraffic/analyst/internal/core/domain"
	"github.com/opentraffic/analyst/internal/core/usecases"
)

func segmentFeature(id string, points ...orb.Point) domain.Feature {
	return domain.Feature{
		Type:       "Feature",
		Geometry:   domain.Geometry{Type: "MultiLineString", Coordinates: []domain.Line{{domain.PointGroup(points)}}},
		Properties: domain.Properties{domain.SegmentIDProperty: id},
	}
}

func TestTileService_CachesAndCopies(t *testing.T) {
	src := &mockTileSource{
		fetchFn: func(ctx context.Context, suffix string) (*domain.FeatureCollection, error) {
			return domain.NewFeatureCollection([]domain.Feature{
				segmentFeature("1", orb.Point{0.01, 0.01}, orb.Point{0.02, 0.02}),
			}), nil
		},
	}
	svc := usecases.NewTileService(src, memory.NewTileCache(), 4)

	var results []*domain.FeatureCollection
	for i := 0; i < 5; i++ {
		fc, err := svc.Fetch(context.Background(), "1/032/580")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		results = append(results, fc)
	}

	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected 1 network fetch, got %d", got)
	}
	for i := 1; i < len(results); i++ {
		if results[i] == results[0] {
			t.Fatalf("call %d returned the same pointer", i)
		}
		if diff := cmp.Diff(results[0], results[i]); diff != "" {
			t.Errorf("call %d differs (-first +got):\n%s", i, diff)
		}
	}

	// Mutating a returned copy must not leak into the cache.
	results[0].Features[0].Properties["speed"] = 99.0
	results[0].Features[0].Geometry.Coordinates[0][0][0] = orb.Point{50, 50}
	again, _ := svc.Fetch(context.Background(), "1/032/580")
	if _, ok := again.Features[0].Properties["speed"]; ok {
		t.Error("cached properties were mutated through a copy")
	}
	if again.Features[0].Geometry.Coordinates[0][0][0] != (orb.Point{0.01, 0.01}) {
		t.Error("cached coordinates were mutated through a copy")
	}
}

func TestTileService_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	src := &mockTileSource{
		fetchFn: func(ctx context.Context, suffix string) (*domain.FeatureCollection, error) {
			<-release
			return domain.NewFeatureCollection([]domain.Feature{segmentFeature("1", orb.Point{0, 0})}), nil
		},
	}
	svc := usecases.NewTileService(src, memory.NewTileCache(), 4)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Fetch(context.Background(), "0/002/024")
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected 1 network fetch for concurrent callers, got %d", got)
	}
}

func TestTileService_ErrorsAreNotCached(t *testing.T) {
	fail := true
	src := &mockTileSource{
		fetchFn: func(ctx context.Context, suffix string) (*domain.FeatureCollection, error) {
			if fail {
				return nil, errors.New("connection reset")
			}
			return domain.NewFeatureCollection(nil), nil
		},
	}
	cache := memory.NewTileCache()
	svc := usecases.NewTileService(src, cache, 1)

	_, err := svc.Fetch(context.Background(), "1/000/001")
	if !errors.Is(err, domain.ErrTileFetch) {
		t.Fatalf("expected ErrTileFetch, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatal("failed fetch must not be cached")
	}

	fail = false
	if _, err := svc.Fetch(context.Background(), "1/000/001"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("expected retry to re-fetch, got %d calls", got)
	}
}

func TestTileService_FetchAll(t *testing.T) {
	src := &mockTileSource{
		fetchFn: func(ctx context.Context, suffix string) (*domain.FeatureCollection, error) {
			return domain.NewFeatureCollection([]domain.Feature{segmentFeature(suffix, orb.Point{0, 0})}), nil
		},
	}
	svc := usecases.NewTileService(src, memory.NewTileCache(), 2)

	fc, err := svc.FetchAll(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []string
	for _, f := range fc.Features {
		id, _ := f.Properties.SegmentKey()
		got = append(got, id)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("merge order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, svc.Cached()); diff != "" {
		t.Errorf("cached suffixes mismatch (-want +got):\n%s", diff)
	}
}

func TestTileService_FetchAllFailsWhole(t *testing.T) {
	src := &mockTileSource{
		fetchFn: func(ctx context.Context, suffix string) (*domain.FeatureCollection, error) {
			if suffix == "b" {
				return nil, errors.New("404")
			}
			return domain.NewFeatureCollection(nil), nil
		},
	}
	svc := usecases.NewTileService(src, memory.NewTileCache(), 2)

	fc, err := svc.FetchAll(context.Background(), []string{"a", "b", "c"})
	if !errors.Is(err, domain.ErrTileFetch) {
		t.Fatalf("expected ErrTileFetch, got %v", err)
	}
	if fc != nil {
		t.Error("expected no collection on failure")
	}
}

func TestTileSuffixes(t *testing.T) {
	suffixes, err := usecases.TileSuffixes(domain.BoundingBox{North: 0.05, South: 0.01, East: 0.05, West: 0.01}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"0/002/025", "1/032/580"}
	if diff := cmp.Diff(want, suffixes); diff != "" {
		t.Errorf("suffixes mismatch (-want +got):\n%s", diff)
	}

	if _, err := usecases.TileSuffixes(domain.BoundingBox{North: 0, South: 1, East: 1, West: 0}, 0); !errors.Is(err, domain.ErrInvalidBounds) {
		t.Errorf("expected ErrInvalidBounds, got %v", err)
	}
}

func TestTileSuffixes_MaxTiles(t *testing.T) {
	world := domain.BoundingBox{North: 90, South: -90, East: 180, West: -180}
	_, err := usecases.TileSuffixes(world, 64)
	if !errors.Is(err, domain.ErrTooManyTiles) {
		t.Fatalf("expected ErrTooManyTiles, got %v", err)
	}

	// 2x2 degrees: one level 0 tile and four level 1 tiles.
	box := domain.BoundingBox{North: 1.5, South: 0.5, East: 1.5, West: 0.5}
	if _, err := usecases.TileSuffixes(box, 4); !errors.Is(err, domain.ErrTooManyTiles) {
		t.Errorf("expected ErrTooManyTiles at limit 4, got %v", err)
	}
	suffixes, err := usecases.TileSuffixes(box, 5)
	if err != nil {
		t.Fatalf("unexpected error at limit 5: %v", err)
	}
	if len(suffixes) != 5 {
		t.Errorf("expected 5 suffixes, got %v", suffixes)
	}
}

func TestTileService_Suffixes(t *testing.T) {
	svc := usecases.NewTileService(&mockTileSource{}, memory.NewTileCache(), 1)
	if svc.MaxTiles() != 64 {
		t.Fatalf("expected default limit 64, got %d", svc.MaxTiles())
	}
	box := domain.BoundingBox{North: 9.5, South: 0.5, East: 9.5, West: 0.5}
	if _, err := svc.Suffixes(box); !errors.Is(err, domain.ErrTooManyTiles) {
		t.Errorf("expected ErrTooManyTiles, got %v", err)
	}
	if _, err := svc.WithMaxTiles(1000).Suffixes(box); err != nil {
		t.Errorf("unexpected error with raised limit: %v", err)
	}
}

func TestTileService_SharedFetchIgnoresFirstCallerCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	src := &mockTileSource{
		fetchFn: func(ctx context.Context, suffix string) (*domain.FeatureCollection, error) {
			close(started)
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return domain.NewFeatureCollection([]domain.Feature{segmentFeature("1", orb.Point{0, 0})}), nil
		},
	}
	svc := usecases.NewTileService(src, memory.NewTileCache(), 2)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.Fetch(ctxA, "1/032/580")
		errA <- err
	}()
	<-started

	type result struct {
		fc  *domain.FeatureCollection
		err error
	}
	resB := make(chan result, 1)
	go func() {
		fc, err := svc.Fetch(context.Background(), "1/032/580")
		resB <- result{fc, err}
	}()

	cancelA()
	if err := <-errA; !errors.Is(err, domain.ErrTileFetch) {
		t.Errorf("expected the cancelled caller to give up, got %v", err)
	}

	close(release)
	select {
	case r := <-resB:
		if r.err != nil {
			t.Fatalf("uncancelled caller failed: %v", r.err)
		}
		if len(r.fc.Features) != 1 {
			t.Errorf("expected 1 feature, got %d", len(r.fc.Features))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("uncancelled caller did not return")
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected 1 network fetch, got %d", got)
	}
}
