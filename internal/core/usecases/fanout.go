package usecases

import (
	"context"
	"errors"
	"log/slog"

	"github.com/opentraffic/analyst/internal/core/domain"
	"github.com/opentraffic/analyst/internal/core/ports"
)

// Fanout delivers published sources and state signals to several
// collaborators, e.g. the in-process source store and a NATS relay.
// Nil members are skipped.
//
// The first publisher is the primary: its error is the result, and when it
// rejects an update no relay sees it. Relay failures are logged only, so a
// result the primary accepted is never reported as failed.
type Fanout struct {
	publishers []ports.ResultPublisher
	sinks      []ports.StateSink
}

// NewFanout creates a new Fanout.
func NewFanout() *Fanout { return &Fanout{} }

// AddPublisher registers a result publisher.
func (f *Fanout) AddPublisher(p ports.ResultPublisher) *Fanout {
	if p != nil {
		f.publishers = append(f.publishers, p)
	}
	return f
}

// AddSink registers a state sink.
func (f *Fanout) AddSink(s ports.StateSink) *Fanout {
	if s != nil {
		f.sinks = append(f.sinks, s)
	}
	return f
}

// SetDataSource implements ports.ResultPublisher.
func (f *Fanout) SetDataSource(ctx context.Context, name string, fc *domain.FeatureCollection) error {
	if len(f.publishers) == 0 {
		return nil
	}
	if err := f.publishers[0].SetDataSource(ctx, name, fc); err != nil {
		return err
	}
	for _, p := range f.publishers[1:] {
		if err := p.SetDataSource(ctx, name, fc); err != nil {
			slog.Warn("relay data source failed", "source", name, "error", err)
		}
	}
	return nil
}

// DeleteDataSource implements ports.ResultPublisher.
func (f *Fanout) DeleteDataSource(ctx context.Context, name string) error {
	if len(f.publishers) == 0 {
		return nil
	}
	if err := f.publishers[0].DeleteDataSource(ctx, name); err != nil {
		return err
	}
	for _, p := range f.publishers[1:] {
		if err := p.DeleteDataSource(ctx, name); err != nil {
			slog.Warn("relay delete data source failed", "source", name, "error", err)
		}
	}
	return nil
}

// Emit implements ports.StateSink.
func (f *Fanout) Emit(ctx context.Context, s domain.Signal) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Emit(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
