package http

import (
	"time"

	"github.com/opentraffic/analyst/internal/adapters/memory"
	natsadapter "github.com/opentraffic/analyst/internal/adapters/nats"
	"github.com/opentraffic/analyst/internal/adapters/postgres"
	"github.com/opentraffic/analyst/internal/adapters/valkey"
	"github.com/opentraffic/analyst/internal/core/ports"
	"github.com/opentraffic/analyst/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Region  *usecases.RegionService
	Tiles   *usecases.TileService
	Sources *memory.SourceStore
	Speeds  ports.SpeedSource
	Relay   *natsadapter.Subscriber
	DB      *postgres.DB
	Cache   *valkey.Cache

	// RequestTimeout bounds pipeline endpoints. Zero means 30s.
	RequestTimeout time.Duration
}

func (d *Dependencies) requestTimeout() time.Duration {
	if d.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return d.RequestTimeout
}
