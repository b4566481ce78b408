package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opentraffic/analyst/internal/adapters/postgres"
	"github.com/opentraffic/analyst/internal/core/domain"
	"github.com/opentraffic/analyst/internal/pkg/config"
	"github.com/opentraffic/analyst/internal/pkg/logging"
	"github.com/opentraffic/analyst/internal/pkg/osmlr"
)

const batchSize = 500

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

// Usage: ingestor <source>...
//
// A source is a CSV file, a zip of CSV files, or an http(s) URL to either.
// Rows carry segment_id, hour and speed, and optionally percent_diff and
// count. Observations are summed per (segment, hour) across all sources
// and then upserted.
func main() {
	cfg, err := config.Load("analyst-ingestor")
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	sources := os.Args[1:]
	if len(sources) == 0 {
		slog.Error("usage: ingestor <csv|zip|url>...")
		os.Exit(2)
	}

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Error("db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	client := &http.Client{Timeout: 120 * time.Second}
	agg := newAggregator()

	var wg sync.WaitGroup
	sem := make(chan struct{}, 4) // max 4 concurrent downloads

	for _, src := range sources {
		wg.Add(1)
		go func(src string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ingestSource(client, agg, src); err != nil {
				slog.Error("ingest failed", "source", src, "error", err)
			}
		}(src)
	}
	wg.Wait()

	obs := agg.observations()
	slog.Info("aggregated observations", "rows", agg.rows, "skipped", agg.skipped, "buckets", len(obs))

	repo := postgres.NewSpeedRepo(db)
	for start := 0; start < len(obs); start += batchSize {
		end := min(start+batchSize, len(obs))
		if err := repo.UpsertBatch(ctx, obs[start:end]); err != nil {
			slog.Error("upsert failed", "offset", start, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("ingestion complete", "buckets", len(obs))
}

// ---------------------------------------------------------------------------
// Sources
// ---------------------------------------------------------------------------

func ingestSource(client *http.Client, agg *aggregator, src string) error {
	body, err := readSource(client, src)
	if err != nil {
		return err
	}

	if !strings.HasSuffix(strings.ToLower(src), ".zip") {
		return agg.readCSV(bytes.NewReader(body), src)
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
		err = agg.readCSV(rc, src+"!"+f.Name)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func readSource(client *http.Client, src string) ([]byte, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return os.ReadFile(src)
	}

	slog.Info("downloading", "url", src)
	resp, err := client.Get(src)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, src)
	}
	return io.ReadAll(resp.Body)
}

// ---------------------------------------------------------------------------
// Aggregation
// ---------------------------------------------------------------------------

type bucketKey struct {
	segment uint64
	hour    int64
}

type aggregator struct {
	mu      sync.Mutex
	buckets map[bucketKey]*domain.SpeedObservation
	rows    int
	skipped int
}

func newAggregator() *aggregator {
	return &aggregator{buckets: make(map[bucketKey]*domain.SpeedObservation)}
}

// readCSV adds every valid row of r. Malformed rows are counted and skipped.
func (a *aggregator) readCSV(r io.Reader, name string) error {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("%s: read header: %w", name, err)
	}
	cols := indexColumns(header)
	for _, required := range []string{"segment_id", "hour", "speed"} {
		if _, ok := cols[required]; !ok {
			return fmt.Errorf("%s: missing column %q", name, required)
		}
	}

	rows, skipped := 0, 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		obs, err := parseRow(record, cols)
		if err != nil {
			skipped++
			continue
		}
		a.add(obs)
		rows++
	}

	a.mu.Lock()
	a.rows += rows
	a.skipped += skipped
	a.mu.Unlock()
	slog.Info("read observations", "source", name, "rows", rows, "skipped", skipped)
	return nil
}

func (a *aggregator) add(o domain.SpeedObservation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := bucketKey{segment: o.SegmentID, hour: o.Hour.Unix()}
	b, ok := a.buckets[k]
	if !ok {
		a.buckets[k] = &o
		return
	}
	b.SpeedSum += o.SpeedSum
	b.DiffSum += o.DiffSum
	b.Count += o.Count
}

// observations returns the buckets ordered by segment then hour.
func (a *aggregator) observations() []domain.SpeedObservation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.SpeedObservation, 0, len(a.buckets))
	for _, b := range a.buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SegmentID != out[j].SegmentID {
			return out[i].SegmentID < out[j].SegmentID
		}
		return out[i].Hour.Before(out[j].Hour)
	})
	return out
}

// parseRow reads one observation. speed and percent_diff are per
// observation means and are scaled by count into sums.
func parseRow(record []string, cols map[string]int) (domain.SpeedObservation, error) {
	id, err := osmlr.ParseSegmentID(getField(record, cols, "segment_id"))
	if err != nil {
		return domain.SpeedObservation{}, err
	}
	hour, err := parseHour(getField(record, cols, "hour"))
	if err != nil {
		return domain.SpeedObservation{}, err
	}
	speed, err := strconv.ParseFloat(getField(record, cols, "speed"), 64)
	if err != nil || speed < 0 {
		return domain.SpeedObservation{}, fmt.Errorf("bad speed %q", getField(record, cols, "speed"))
	}
	var diff float64
	if s := getField(record, cols, "percent_diff"); s != "" {
		if diff, err = strconv.ParseFloat(s, 64); err != nil {
			return domain.SpeedObservation{}, fmt.Errorf("bad percent_diff %q", s)
		}
	}
	count := int64(1)
	if s := getField(record, cols, "count"); s != "" {
		if count, err = strconv.ParseInt(s, 10, 64); err != nil || count <= 0 {
			return domain.SpeedObservation{}, fmt.Errorf("bad count %q", s)
		}
	}

	return domain.SpeedObservation{
		SegmentID: id.ID,
		Hour:      hour,
		SpeedSum:  speed * float64(count),
		DiffSum:   diff * float64(count),
		Count:     count,
	}, nil
}

// parseHour accepts RFC 3339 timestamps or unix seconds and truncates to the hour.
func parseHour(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Truncate(time.Hour), nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad hour %q", s)
	}
	return time.Unix(secs, 0).UTC().Truncate(time.Hour), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func indexColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		// Strip BOM from first column
		col = strings.TrimPrefix(col, "\xef\xbb\xbf")
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

func getField(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
