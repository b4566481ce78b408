// Command region runs the region pipeline once and prints the annotated
// segments as GeoJSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opentraffic/analyst/internal/adapters/memory"
	"github.com/opentraffic/analyst/internal/adapters/osmlr"
	"github.com/opentraffic/analyst/internal/adapters/postgres"
	"github.com/opentraffic/analyst/internal/adapters/valhalla"
	"github.com/opentraffic/analyst/internal/core/domain"
	"github.com/opentraffic/analyst/internal/core/ports"
	"github.com/opentraffic/analyst/internal/core/usecases"
	"github.com/opentraffic/analyst/internal/pkg/config"
	"github.com/opentraffic/analyst/internal/pkg/logging"
)

const dateLayout = "2006-01-02"

var opts struct {
	bbox      string
	waypoints string
	start     string
	end       string
	compare   bool
	noSpeeds  bool
	out       string
}

var rootCmd = &cobra.Command{
	Use:   "region",
	Short: "analyze a bounding box or route and print annotated OSMLR segments",
	Long: `
	Resolves the query into OSMLR tiles, clips the merged geometry, looks up
	historical speeds and writes the result as a GeoJSON FeatureCollection.
	Exactly one of --bbox or --waypoints is required.
	`,
	Example: `  region --bbox 43.27,43.25,-2.92,-2.94 --start 2017-01-01 --end 2017-01-31
  region --waypoints 43.25/-2.94,43.27/-2.92 --compare`,
	SilenceUsage: true,
	RunE:         runRegion,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.bbox, "bbox", "", "bounding box as north,south,east,west")
	f.StringVar(&opts.waypoints, "waypoints", "", "route waypoints as lat/lng,lat/lng,...")
	f.StringVar(&opts.start, "start", "", "first day of the speed window (YYYY-MM-DD)")
	f.StringVar(&opts.end, "end", "", "last day of the speed window, inclusive (YYYY-MM-DD)")
	f.BoolVar(&opts.compare, "compare", false, "add percentDiff to every segment")
	f.BoolVar(&opts.noSpeeds, "no-speeds", false, "skip the speed database; every segment gets speed null")
	f.StringVarP(&opts.out, "out", "o", "", "write GeoJSON to this file instead of stdout")
	rootCmd.MarkFlagsMutuallyExclusive("bbox", "waypoints")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRegion(cmd *cobra.Command, args []string) error {
	if opts.bbox == "" && opts.waypoints == "" {
		return fmt.Errorf("one of --bbox or --waypoints is required")
	}
	q, err := parseWindow(opts.start, opts.end, opts.compare)
	if err != nil {
		return err
	}

	cfg, err := config.Load("analyst-region")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	// stdout carries the GeoJSON, logs go to stderr
	slog.SetDefault(logging.New(os.Stderr, cfg.Log.Level, "text"))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var speeds ports.SpeedSource = noSpeeds{}
	if !opts.noSpeeds {
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("database (use --no-speeds to skip): %w", err)
		}
		defer db.Close()
		speeds = postgres.NewSpeedRepo(db)
	}

	store := memory.NewSourceStore()
	sink := usecases.NewFanout().AddPublisher(store).AddSink(store).AddSink(signalLogger{})

	svc := usecases.NewRegionService(
		valhalla.NewClient(valhalla.Config{
			Scheme:  cfg.Routing.Scheme,
			Host:    cfg.Routing.Host,
			Costing: cfg.Routing.Costing,
			Timeout: cfg.Routing.TimeoutDuration(),
		}),
		nil,
		usecases.NewTileService(
			osmlr.NewClient(cfg.OSMLR.TileURL, cfg.OSMLR.TimeoutDuration()),
			memory.NewTileCache(),
			cfg.Region.FetchConcurrency,
		).WithMaxTiles(cfg.Region.MaxTiles),
		speeds,
		sink,
		sink,
		usecases.RegionConfig{
			MaxArea:    cfg.Region.MaxArea,
			ClipBuffer: cfg.Region.ClipBuffer,
			SourceName: cfg.Region.SourceName,
		},
	)

	start := time.Now()
	var res *usecases.RegionResult
	if opts.bbox != "" {
		b, err := parseBBox(opts.bbox)
		if err != nil {
			return err
		}
		res, err = svc.Analyze(ctx, &b, q)
		if err != nil {
			return err
		}
	} else {
		waypoints, err := domain.ParseWaypoints(opts.waypoints)
		if err != nil {
			return err
		}
		res, err = svc.AnalyzeRoute(ctx, waypoints, q)
		if err != nil {
			return err
		}
	}

	slog.Info("region analyzed",
		"query_id", res.QueryID,
		"tiles", strings.Join(res.Tiles, " "),
		"features", len(res.Collection.Features),
		"skipped", len(res.Skipped),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	fc, ok := store.DataSource(cfg.Region.SourceName)
	if !ok {
		return fmt.Errorf("no %q data source was published", cfg.Region.SourceName)
	}
	return writeGeoJSON(cmd.OutOrStdout(), opts.out, fc)
}

func writeGeoJSON(stdout io.Writer, path string, fc *domain.FeatureCollection) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fc)
}

// parseBBox reads "north,south,east,west".
func parseBBox(s string) (domain.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.BoundingBox{}, fmt.Errorf("bbox %q: expected north,south,east,west", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.BoundingBox{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	b := domain.BoundingBox{North: v[0], South: v[1], East: v[2], West: v[3]}
	if err := b.Validate(); err != nil {
		return domain.BoundingBox{}, err
	}
	return b, nil
}

// parseWindow builds the speed window. end is inclusive.
func parseWindow(start, end string, compare bool) (domain.SpeedQuery, error) {
	q := domain.SpeedQuery{Compare: compare}
	if start != "" {
		t, err := time.Parse(dateLayout, start)
		if err != nil {
			return q, fmt.Errorf("--start: %w", err)
		}
		q.Start = t
	}
	if end != "" {
		t, err := time.Parse(dateLayout, end)
		if err != nil {
			return q, fmt.Errorf("--end: %w", err)
		}
		q.End = t.AddDate(0, 0, 1)
	}
	if !q.Start.IsZero() && !q.End.IsZero() && !q.Start.Before(q.End) {
		return q, fmt.Errorf("--start must not be after --end")
	}
	return q, nil
}

type noSpeeds struct{}

func (noSpeeds) Speeds(context.Context, []domain.SegmentID, domain.SpeedQuery) (domain.SpeedTable, error) {
	return domain.SpeedTable{}, nil
}

// signalLogger reports state signals on stderr.
type signalLogger struct{}

func (signalLogger) Emit(_ context.Context, s domain.Signal) error {
	level := slog.LevelDebug
	if s.Kind == domain.SignalErrorMessage {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, string(s.Kind), "message", s.Message, "generation", s.Generation)
	return nil
}
