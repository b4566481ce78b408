package memory

import (
	"context"
	"sync"

	"github.com/opentraffic/analyst/internal/core/domain"
)

const maxRecentSignals = 50

// SourceStore keeps the latest published data sources and recent state
// signals. It implements ports.ResultPublisher and ports.StateSink and
// backs the read endpoints of the HTTP adapter.
type SourceStore struct {
	mu      sync.RWMutex
	sources map[string]*domain.FeatureCollection
	signals []domain.Signal
}

// NewSourceStore creates an empty SourceStore.
func NewSourceStore() *SourceStore {
	return &SourceStore{sources: make(map[string]*domain.FeatureCollection)}
}

// SetDataSource replaces the named source. Published collections are
// treated as immutable.
func (s *SourceStore) SetDataSource(_ context.Context, name string, fc *domain.FeatureCollection) error {
	s.mu.Lock()
	s.sources[name] = fc
	s.mu.Unlock()
	return nil
}

// DeleteDataSource removes the named source.
func (s *SourceStore) DeleteDataSource(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.sources, name)
	s.mu.Unlock()
	return nil
}

// DataSource returns the named source.
func (s *SourceStore) DataSource(name string) (*domain.FeatureCollection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fc, ok := s.sources[name]
	return fc, ok
}

// Emit records a signal.
func (s *SourceStore) Emit(_ context.Context, sig domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
	if n := len(s.signals); n > maxRecentSignals {
		s.signals = append(s.signals[:0:0], s.signals[n-maxRecentSignals:]...)
	}
	return nil
}

// Signals returns the most recent signals, oldest first.
func (s *SourceStore) Signals() []domain.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Signal(nil), s.signals...)
}
