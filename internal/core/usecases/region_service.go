package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentraffic/analyst/internal/core/domain"
	"github.com/opentraffic/analyst/internal/core/ports"
	"github.com/opentraffic/analyst/internal/pkg/geospatial"
	"github.com/opentraffic/analyst/internal/pkg/metrics"
	"github.com/opentraffic/analyst/internal/pkg/telemetry"
)

// RegionConfig holds the pipeline policy.
type RegionConfig struct {
	MaxArea    float64
	ClipBuffer float64
	SourceName string
	// RouteTTL is how long resolved routes stay in the shared cache, in seconds.
	RouteTTL int
}

// DefaultRegionConfig returns the production policy.
func DefaultRegionConfig() RegionConfig {
	return RegionConfig{
		MaxArea:    0.01,
		ClipBuffer: geospatial.DefaultClipBuffer,
		SourceName: "routes",
		RouteTTL:   3600,
	}
}

// RegionResult describes a finished pipeline run.
type RegionResult struct {
	QueryID    string                    `json:"query_id"`
	Generation uint64                    `json:"generation"`
	State      domain.RegionState        `json:"state"`
	Bounds     *domain.BoundingBox       `json:"bounds,omitempty"`
	Tiles      []string                  `json:"tiles,omitempty"`
	Skipped    []domain.SkippedSegment   `json:"skipped,omitempty"`
	Collection *domain.FeatureCollection `json:"collection,omitempty"`
}

// RegionService runs the region analysis pipeline: route resolution, tile
// fetch, clipping, segment resolution, speed lookup and annotation, and
// publication of the result.
//
// Every query takes a new generation. Only the newest generation may
// publish or end the loading state; older runs finish with ErrSuperseded.
type RegionService struct {
	routes    ports.RouteResolver
	cache     ports.CacheService
	tiles     *TileService
	speeds    ports.SpeedSource
	publisher ports.ResultPublisher
	sink      ports.StateSink
	cfg       RegionConfig
	tracer    trace.Tracer

	generation atomic.Uint64

	mu     sync.Mutex // serializes state transitions with publication
	status domain.RegionStatus
}

// NewRegionService creates a new RegionService. cache may be nil.
func NewRegionService(
	routes ports.RouteResolver,
	cache ports.CacheService,
	tiles *TileService,
	speeds ports.SpeedSource,
	publisher ports.ResultPublisher,
	sink ports.StateSink,
	cfg RegionConfig,
) *RegionService {
	def := DefaultRegionConfig()
	if cfg.MaxArea <= 0 {
		cfg.MaxArea = def.MaxArea
	}
	if cfg.ClipBuffer < 0 {
		cfg.ClipBuffer = def.ClipBuffer
	}
	if cfg.SourceName == "" {
		cfg.SourceName = def.SourceName
	}
	if cfg.RouteTTL <= 0 {
		cfg.RouteTTL = def.RouteTTL
	}
	return &RegionService{
		routes:    routes,
		cache:     cache,
		tiles:     tiles,
		speeds:    speeds,
		publisher: publisher,
		sink:      sink,
		cfg:       cfg,
		tracer:    telemetry.Tracer(),
		status:    domain.RegionStatus{State: domain.StateIdle, UpdatedAt: time.Now().UTC()},
	}
}

// Config returns the active pipeline policy.
func (s *RegionService) Config() RegionConfig { return s.cfg }

// Status returns the state of the latest query.
func (s *RegionService) Status() domain.RegionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.Bounds != nil {
		b := *st.Bounds
		st.Bounds = &b
	}
	return st
}

// Analyze runs the pipeline for a bounding box. A nil box clears the
// published result and returns to idle without any loading signal.
//
// The user's bounds clip the geometry. Tiles are selected from the summary
// box of a route between the south-west and north-east corners.
func (s *RegionService) Analyze(ctx context.Context, bounds *domain.BoundingBox, q domain.SpeedQuery) (res *RegionResult, err error) {
	if bounds == nil {
		return s.Clear(ctx)
	}

	run := s.begin(ctx, bounds)
	ctx, span := s.tracer.Start(ctx, telemetry.SpanRegion, trace.WithAttributes(
		telemetry.AttrQueryID.String(run.QueryID),
		telemetry.AttrGeneration.Int64(int64(run.Generation)),
		telemetry.AttrBounds.String(bounds.String()),
	))
	defer func() { endRegionSpan(span, res) }()

	if err := bounds.Validate(); err != nil {
		return s.fail(ctx, run, domain.MessageInvalidBounds, err)
	}
	if area := bounds.Area(); area > s.cfg.MaxArea {
		return s.reject(ctx, run, fmt.Errorf("%w: area %g exceeds %g", domain.ErrRegionTooLarge, area, s.cfg.MaxArea))
	}

	return s.execute(ctx, run, bounds.Waypoints(), bounds, q)
}

// AnalyzeRoute runs the pipeline along a route through waypoints. Tiles
// are selected from the route's summary box padded by the clip buffer, and
// geometry is clipped to the summary box with the same buffer. A route
// touching more tiles than the tile service allows is rejected as too large.
func (s *RegionService) AnalyzeRoute(ctx context.Context, waypoints []domain.Waypoint, q domain.SpeedQuery) (res *RegionResult, err error) {
	run := s.begin(ctx, nil)
	ctx, span := s.tracer.Start(ctx, telemetry.SpanRegion, trace.WithAttributes(
		telemetry.AttrQueryID.String(run.QueryID),
		telemetry.AttrGeneration.Int64(int64(run.Generation)),
	))
	defer func() { endRegionSpan(span, res) }()

	if len(waypoints) < 2 {
		return s.fail(ctx, run, domain.MessageInvalidBounds,
			fmt.Errorf("%w: route needs at least two waypoints", domain.ErrInvalidBounds))
	}
	return s.execute(ctx, run, waypoints, nil, q)
}

// Clear removes the published result and returns the pipeline to idle.
// Any in-flight query is superseded.
func (s *RegionService) Clear(ctx context.Context) (*RegionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.generation.Add(1)
	res := &RegionResult{QueryID: uuid.NewString(), Generation: gen, State: domain.StateIdle}
	if err := s.publisher.DeleteDataSource(ctx, s.cfg.SourceName); err != nil {
		slog.Warn("delete data source failed", "source", s.cfg.SourceName, "error", err)
	}
	s.status = domain.RegionStatus{
		State:      domain.StateIdle,
		QueryID:    res.QueryID,
		Generation: gen,
		UpdatedAt:  time.Now().UTC(),
	}
	metrics.RegionQueries.WithLabelValues(string(domain.StateIdle)).Inc()
	slog.Debug("region cleared", "generation", gen)
	return res, nil
}

// begin opens a new generation and enters Loading.
func (s *RegionService) begin(ctx context.Context, bounds *domain.BoundingBox) *RegionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &RegionResult{
		QueryID:    uuid.NewString(),
		Generation: s.generation.Add(1),
		State:      domain.StateLoading,
	}
	if bounds != nil {
		b := *bounds
		run.Bounds = &b
	}
	s.setStatus(run, "", 0)
	s.emit(ctx, run, domain.SignalLoadingStarted, "")
	return run
}

func (s *RegionService) execute(ctx context.Context, run *RegionResult, waypoints []domain.Waypoint, clip *domain.BoundingBox, q domain.SpeedQuery) (*RegionResult, error) {
	start := time.Now()
	log := slog.With("query_id", run.QueryID, "generation", run.Generation)

	// Route
	rctx, span := s.tracer.Start(ctx, telemetry.SpanRoute)
	route, err := s.resolveRoute(rctx, waypoints)
	endSpan(span, err)
	if err != nil {
		return s.fail(ctx, run, domain.MessageFetchFailed, fmt.Errorf("resolve route: %w", err))
	}
	// Clip pads by the buffer itself, so route mode clips to the raw box.
	rawBox := route.BoundingBox()
	routeBox := rawBox.Pad(s.cfg.ClipBuffer)
	if clip == nil {
		clip = &rawBox
		run.Bounds = &routeBox
	}
	log.Debug("route resolved", "bounds", routeBox.String())

	// Tiles
	tctx, span := s.tracer.Start(ctx, telemetry.SpanTiles)
	suffixes, err := s.tiles.Suffixes(routeBox)
	if errors.Is(err, domain.ErrTooManyTiles) {
		endSpan(span, err)
		return s.reject(ctx, run, fmt.Errorf("%w: %w", domain.ErrRegionTooLarge, err))
	}
	var merged *domain.FeatureCollection
	if err == nil {
		run.Tiles = suffixes
		span.SetAttributes(telemetry.AttrTiles.Int(len(suffixes)))
		merged, err = s.tiles.FetchAll(tctx, suffixes)
	}
	endSpan(span, err)
	if err != nil {
		return s.fail(ctx, run, domain.MessageFetchFailed, fmt.Errorf("fetch tiles: %w", err))
	}
	log.Debug("tiles fetched", "tiles", len(suffixes), "features", len(merged.Features))

	// Clip
	_, span = s.tracer.Start(ctx, telemetry.SpanClip)
	clipped := geospatial.Clip(merged.Features, *clip, s.cfg.ClipBuffer)
	span.SetAttributes(telemetry.AttrFeatures.Int(len(clipped)))
	span.End()
	log.Debug("features clipped", "kept", len(clipped), "fetched", len(merged.Features))

	// Segments
	_, span = s.tracer.Start(ctx, telemetry.SpanSegments)
	segs := ResolveSegmentIDs(clipped)
	span.SetAttributes(
		telemetry.AttrSegments.Int(len(segs.IDs)),
		telemetry.AttrSkipped.Int(len(segs.Skipped)),
	)
	span.End()
	run.Skipped = segs.Skipped
	if len(segs.Skipped) > 0 {
		metrics.SkippedSegments.Add(float64(len(segs.Skipped)))
		log.Warn("skipped malformed segment ids", "count", len(segs.Skipped), "first", segs.Skipped[0].Raw)
	}

	// Speeds
	speeds := domain.SpeedTable{}
	if len(segs.IDs) > 0 {
		sctx, span := s.tracer.Start(ctx, telemetry.SpanSpeeds)
		speeds, err = s.speeds.Speeds(sctx, segs.IDs, q)
		endSpan(span, err)
		if err != nil {
			return s.fail(ctx, run, domain.MessageFetchFailed, fmt.Errorf("fetch speeds: %w", err))
		}
	}
	log.Debug("speeds fetched", "segments", len(segs.IDs), "records", len(speeds))

	// Annotate
	_, span = s.tracer.Start(ctx, telemetry.SpanAnnotate)
	annotated := AnnotateSpeeds(clipped, segs, speeds, q.Compare)
	span.SetAttributes(telemetry.AttrFeatures.Int(len(annotated)))
	span.End()
	run.Collection = domain.NewFeatureCollection(annotated)

	// Publish
	pctx, span := s.tracer.Start(ctx, telemetry.SpanPublish)
	err = s.publish(pctx, run)
	endSpan(span, err)
	if err != nil {
		return run, err
	}
	metrics.RegionDuration.WithLabelValues(string(domain.StateSuccess)).Observe(time.Since(start).Seconds())
	metrics.RegionFeatures.Observe(float64(len(annotated)))
	log.Info("region published", "features", len(annotated), "tiles", len(suffixes), "duration", time.Since(start))
	return run, nil
}

// resolveRoute reads through the shared route cache.
func (s *RegionService) resolveRoute(ctx context.Context, waypoints []domain.Waypoint) (*domain.RouteBounds, error) {
	key := routeCacheKey(waypoints)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var rb domain.RouteBounds
			if err := json.Unmarshal(data, &rb); err == nil {
				metrics.CacheHits.WithLabelValues("route").Inc()
				return &rb, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("route").Inc()
	}

	rb, err := s.routes.Route(ctx, waypoints)
	if err != nil {
		return nil, err
	}
	if rb == nil {
		return nil, domain.ErrNoRoute
	}

	if s.cache != nil {
		if data, err := json.Marshal(rb); err == nil {
			_ = s.cache.Set(ctx, key, data, s.cfg.RouteTTL)
		}
	}
	return rb, nil
}

func routeCacheKey(waypoints []domain.Waypoint) string {
	var b strings.Builder
	b.WriteString("route:")
	for i, w := range waypoints {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%.6f/%.6f", w.Lat, w.Lon)
	}
	return b.String()
}

// publish hands the result to the renderer if run is still the newest query.
func (s *RegionService) publish(ctx context.Context, run *RegionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(run) {
		return s.superseded(run)
	}
	if err := s.publisher.SetDataSource(ctx, s.cfg.SourceName, run.Collection); err != nil {
		run.State = domain.StateFailed
		s.setStatus(run, domain.MessageFetchFailed, 0)
		s.emit(ctx, run, domain.SignalErrorMessage, domain.MessageFetchFailed)
		s.emit(ctx, run, domain.SignalLoadingHidden, "")
		metrics.RegionQueries.WithLabelValues(string(domain.StateFailed)).Inc()
		slog.Error("publish region failed", "query_id", run.QueryID, "error", err)
		return fmt.Errorf("publish: %w", err)
	}
	run.State = domain.StateSuccess
	s.setStatus(run, "", len(run.Collection.Features))
	s.emit(ctx, run, domain.SignalLoadingStopped, "")
	metrics.RegionQueries.WithLabelValues(string(domain.StateSuccess)).Inc()
	return nil
}

// reject ends a query that asks for more than the policy allows: a box
// over the maximum area, or a route touching too many tiles. No tile has
// been fetched at this point.
func (s *RegionService) reject(ctx context.Context, run *RegionResult, cause error) (*RegionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(run) {
		return run, s.superseded(run)
	}
	run.State = domain.StateRegionTooLarge
	s.setStatus(run, domain.MessageRegionTooLarge, 0)
	s.emit(ctx, run, domain.SignalErrorMessage, domain.MessageRegionTooLarge)
	s.emit(ctx, run, domain.SignalLoadingStopped, "")
	metrics.RegionQueries.WithLabelValues(string(domain.StateRegionTooLarge)).Inc()
	slog.Info("region rejected", "query_id", run.QueryID, "reason", cause)
	return run, cause
}

// fail ends a query after an invalid input or a transport failure.
func (s *RegionService) fail(ctx context.Context, run *RegionResult, message string, cause error) (*RegionResult, error) {
	trace.SpanFromContext(ctx).RecordError(cause)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(run) {
		return run, s.superseded(run)
	}
	run.State = domain.StateFailed
	run.Collection = nil
	s.setStatus(run, message, 0)
	s.emit(ctx, run, domain.SignalErrorMessage, message)
	s.emit(ctx, run, domain.SignalLoadingHidden, "")
	metrics.RegionQueries.WithLabelValues(string(domain.StateFailed)).Inc()
	if errors.Is(cause, domain.ErrInvalidBounds) {
		slog.Info("region query invalid", "query_id", run.QueryID, "error", cause)
	} else {
		slog.Error("region pipeline failed", "query_id", run.QueryID, "generation", run.Generation, "error", cause)
	}
	return run, cause
}

// current reports whether run is the newest generation. Callers hold s.mu.
func (s *RegionService) current(run *RegionResult) bool {
	return s.generation.Load() == run.Generation
}

func (s *RegionService) superseded(run *RegionResult) error {
	run.Collection = nil
	metrics.RegionQueries.WithLabelValues("superseded").Inc()
	slog.Info("discarding superseded region result", "query_id", run.QueryID, "generation", run.Generation)
	return fmt.Errorf("%w: generation %d", domain.ErrSuperseded, run.Generation)
}

// setStatus records run as the latest status. Callers hold s.mu.
func (s *RegionService) setStatus(run *RegionResult, message string, features int) {
	s.status = domain.RegionStatus{
		State:      run.State,
		QueryID:    run.QueryID,
		Generation: run.Generation,
		Bounds:     run.Bounds,
		Message:    message,
		Features:   features,
		UpdatedAt:  time.Now().UTC(),
	}
}

func (s *RegionService) emit(ctx context.Context, run *RegionResult, kind domain.SignalKind, message string) {
	sig := domain.Signal{
		Kind:       kind,
		Message:    message,
		QueryID:    run.QueryID,
		Generation: run.Generation,
		Time:       time.Now().UTC(),
	}
	if err := s.sink.Emit(ctx, sig); err != nil {
		slog.Warn("emit signal failed", "kind", kind, "error", err)
	}
}

func endRegionSpan(span trace.Span, res *RegionResult) {
	if res != nil {
		span.SetAttributes(telemetry.AttrState.String(string(res.State)))
	}
	span.End()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
