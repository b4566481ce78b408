package usecases_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/opentraffic/analyst/internal/core/domain"
)

// --- Mock TileSource ---

type mockTileSource struct {
	fetchFn func(ctx context.Context, suffix string) (*domain.FeatureCollection, error)
	calls   atomic.Int64
}

func (m *mockTileSource) FetchTile(ctx context.Context, suffix string) (*domain.FeatureCollection, error) {
	m.calls.Add(1)
	if m.fetchFn != nil {
		return m.fetchFn(ctx, suffix)
	}
	return domain.NewFeatureCollection(nil), nil
}

// --- Mock RouteResolver ---

type mockRouteResolver struct {
	routeFn func(ctx context.Context, waypoints []domain.Waypoint) (*domain.RouteBounds, error)
	calls   atomic.Int64
}

func (m *mockRouteResolver) Route(ctx context.Context, waypoints []domain.Waypoint) (*domain.RouteBounds, error) {
	m.calls.Add(1)
	if m.routeFn != nil {
		return m.routeFn(ctx, waypoints)
	}
	return nil, domain.ErrNoRoute
}

// --- Mock SpeedSource ---

type mockSpeedSource struct {
	speedsFn func(ctx context.Context, ids []domain.SegmentID, q domain.SpeedQuery) (domain.SpeedTable, error)
	calls    atomic.Int64
}

func (m *mockSpeedSource) Speeds(ctx context.Context, ids []domain.SegmentID, q domain.SpeedQuery) (domain.SpeedTable, error) {
	m.calls.Add(1)
	if m.speedsFn != nil {
		return m.speedsFn(ctx, ids, q)
	}
	return domain.SpeedTable{}, nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return v, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Recording publisher and sink ---

type recorder struct {
	mu        sync.Mutex
	published map[string]*domain.FeatureCollection
	sets      int
	deletes   int
	signals   []domain.Signal
	setErr    error
}

func newRecorder() *recorder {
	return &recorder{published: make(map[string]*domain.FeatureCollection)}
}

func (r *recorder) SetDataSource(_ context.Context, name string, fc *domain.FeatureCollection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setErr != nil {
		return r.setErr
	}
	r.sets++
	r.published[name] = fc
	return nil
}

func (r *recorder) DeleteDataSource(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	delete(r.published, name)
	return nil
}

func (r *recorder) Emit(_ context.Context, s domain.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
	return nil
}

func (r *recorder) kinds() []domain.SignalKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SignalKind, len(r.signals))
	for i, s := range r.signals {
		out[i] = s.Kind
	}
	return out
}

func (r *recorder) source(name string) (*domain.FeatureCollection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fc, ok := r.published[name]
	return fc, ok
}
