package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/opentraffic/analyst/internal/adapters/memory"
	"github.com/opentraffic/analyst/internal/core/domain"
	"github.com/opentraffic/analyst/internal/core/usecases"
)

func TestFanout_DeliversToAll(t *testing.T) {
	a, b := newRecorder(), newRecorder()
	f := usecases.NewFanout().AddPublisher(a).AddPublisher(b).AddPublisher(nil).AddSink(a).AddSink(nil)
	ctx := context.Background()

	if err := f.SetDataSource(ctx, "routes", domain.NewFeatureCollection(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := b.source("routes"); !ok {
		t.Error("second publisher missed the update")
	}
	_ = f.Emit(ctx, domain.Signal{Kind: domain.SignalLoadingStarted})
	if len(a.kinds()) != 1 || len(b.kinds()) != 0 {
		t.Error("signals must only reach registered sinks")
	}
}

func TestFanout_PrimaryFailureSkipsRelays(t *testing.T) {
	primary := newRecorder()
	primary.setErr = errors.New("store rejected")
	relay := newRecorder()
	f := usecases.NewFanout().AddPublisher(primary).AddPublisher(relay)

	err := f.SetDataSource(context.Background(), "routes", domain.NewFeatureCollection(nil))
	if err == nil {
		t.Fatal("expected the primary error")
	}
	if _, published := relay.source("routes"); published {
		t.Error("relay must not see an update the primary rejected")
	}
}

func TestFanout_RelayFailureIsNotAnError(t *testing.T) {
	primary := newRecorder()
	relay := newRecorder()
	relay.setErr = errors.New("broker down")
	f := usecases.NewFanout().AddPublisher(primary).AddPublisher(relay)

	if err := f.SetDataSource(context.Background(), "routes", domain.NewFeatureCollection(nil)); err != nil {
		t.Fatalf("relay failure must not fail the update: %v", err)
	}
	if _, published := primary.source("routes"); !published {
		t.Error("primary must hold the update")
	}
}

func TestFanout_RelayFailureKeepsRegionSuccessful(t *testing.T) {
	f := newRegionFixture()
	relay := newRecorder()
	relay.setErr = errors.New("broker down")
	fan := usecases.NewFanout().AddPublisher(f.out).AddPublisher(relay).AddSink(f.out)
	svc := usecases.NewRegionService(
		f.routes,
		nil,
		usecases.NewTileService(f.tiles, memory.NewTileCache(), 2),
		f.speeds,
		fan,
		fan,
		usecases.DefaultRegionConfig(),
	)

	res, err := svc.Analyze(context.Background(), &domain.BoundingBox{North: 0.05, South: 0, East: 0.05, West: 0}, domain.SpeedQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != domain.StateSuccess {
		t.Errorf("expected %s, got %s", domain.StateSuccess, res.State)
	}
	if _, ok := f.out.source("routes"); !ok {
		t.Error("renderer store missed the result")
	}
}
