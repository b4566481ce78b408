package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/opentraffic/analyst/internal/adapters/http"
	"github.com/opentraffic/analyst/internal/adapters/memory"
	natsadapter "github.com/opentraffic/analyst/internal/adapters/nats"
	"github.com/opentraffic/analyst/internal/adapters/osmlr"
	"github.com/opentraffic/analyst/internal/adapters/postgres"
	"github.com/opentraffic/analyst/internal/adapters/valhalla"
	"github.com/opentraffic/analyst/internal/adapters/valkey"
	"github.com/opentraffic/analyst/internal/core/ports"
	"github.com/opentraffic/analyst/internal/core/usecases"
	"github.com/opentraffic/analyst/internal/pkg/config"
	"github.com/opentraffic/analyst/internal/pkg/logging"
	"github.com/opentraffic/analyst/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("analyst-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go recordPoolMetrics(ctx, db)

	// Route cache
	var routeCache ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.KeyPrefix)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
		cache = nil
	} else {
		defer cache.Close()
		routeCache = cache
	}

	// Publication: the in-process store always, NATS when reachable
	sources := memory.NewSourceStore()
	fanout := usecases.NewFanout().AddPublisher(sources).AddSink(sources)

	nc, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer nc.Close()
		fanout.AddPublisher(nc).AddSink(nc)
	}

	// Raw NATS connection for WebSocket relay
	var relay *natsadapter.Subscriber
	if natsConn, err := natsadapter.RawConn(cfg.NATS.URL); err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
		if relay, err = natsadapter.NewSubscriber(natsConn); err != nil {
			slog.Warn("nats relay unavailable", "error", err)
			relay = nil
		}
	}

	// Upstreams
	tileClient := osmlr.NewClient(cfg.OSMLR.TileURL, cfg.OSMLR.TimeoutDuration())
	router := valhalla.NewClient(valhalla.Config{
		Scheme:  cfg.Routing.Scheme,
		Host:    cfg.Routing.Host,
		Costing: cfg.Routing.Costing,
		Timeout: cfg.Routing.TimeoutDuration(),
	})
	speedRepo := postgres.NewSpeedRepo(db)

	// Use cases
	tileSvc := usecases.NewTileService(tileClient, memory.NewTileCache(), cfg.Region.FetchConcurrency).
		WithMaxTiles(cfg.Region.MaxTiles)
	regionSvc := usecases.NewRegionService(
		router,
		routeCache,
		tileSvc,
		speedRepo,
		fanout,
		fanout,
		usecases.RegionConfig{
			MaxArea:    cfg.Region.MaxArea,
			ClipBuffer: cfg.Region.ClipBuffer,
			SourceName: cfg.Region.SourceName,
			RouteTTL:   cfg.Valkey.RouteTTL,
		},
	)

	deps := &http.Dependencies{
		Region:         regionSvc,
		Tiles:          tileSvc,
		Sources:        sources,
		Speeds:         speedRepo,
		Relay:          relay,
		DB:             db,
		Cache:          cache,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Analyst API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.opentraffic.io",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, traceparent, tracestate",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "tiles", cfg.OSMLR.TileURL, "routing", cfg.Routing.Host)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// recordPoolMetrics samples connection pool gauges until ctx ends.
func recordPoolMetrics(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		db.RecordMetrics()
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
