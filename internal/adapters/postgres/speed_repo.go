package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opentraffic/analyst/internal/core/domain"
)

// SpeedRepo implements ports.SpeedSource over hourly speed aggregates.
type SpeedRepo struct {
	db *DB
}

// NewSpeedRepo creates a new SpeedRepo.
func NewSpeedRepo(db *DB) *SpeedRepo {
	return &SpeedRepo{db: db}
}

// Speeds returns average speed and percent difference per segment over the
// query window. Segments without observations are absent from the table.
func (r *SpeedRepo) Speeds(ctx context.Context, ids []domain.SegmentID, q domain.SpeedQuery) (domain.SpeedTable, error) {
	table := make(domain.SpeedTable, len(ids))
	if len(ids) == 0 {
		return table, nil
	}

	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id.ID)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT segment_id, SUM(speed_sum), SUM(diff_sum), SUM(obs_count)
		FROM segment_speeds
		WHERE segment_id = ANY($1)
		  AND ($2::timestamptz IS NULL OR hour >= $2)
		  AND ($3::timestamptz IS NULL OR hour < $3)
		GROUP BY segment_id
	`, keys, optionalTime(q.Start), optionalTime(q.End))
	if err != nil {
		return nil, fmt.Errorf("query speeds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                int64
			speedSum, diffSum float64
			count             int64
		)
		if err := rows.Scan(&id, &speedSum, &diffSum, &count); err != nil {
			return nil, fmt.Errorf("scan speed: %w", err)
		}
		table[uint64(id)] = aggregate(uint64(id), speedSum, diffSum, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate speeds: %w", err)
	}
	return table, nil
}

// UpsertBatch inserts many observations using pgx.Batch. Observations for
// an existing (segment, hour) replace the stored aggregate.
func (r *SpeedRepo) UpsertBatch(ctx context.Context, obs []domain.SpeedObservation) error {
	if len(obs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, o := range obs {
		batch.Queue(`
			INSERT INTO segment_speeds (segment_id, hour, speed_sum, diff_sum, obs_count)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (segment_id, hour) DO UPDATE
			SET speed_sum = EXCLUDED.speed_sum, diff_sum = EXCLUDED.diff_sum, obs_count = EXCLUDED.obs_count
		`, int64(o.SegmentID), o.Hour.UTC().Truncate(time.Hour), o.SpeedSum, o.DiffSum, o.Count)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range obs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// aggregate turns summed observations into a speed record. Speed and
// percent difference are averages over the observation count.
func aggregate(id uint64, speedSum, diffSum float64, count int64) domain.SpeedRecord {
	rec := domain.SpeedRecord{SegmentID: id, Count: count}
	if count > 0 {
		rec.Speed = speedSum / float64(count)
		rec.PercentDiff = diffSum / float64(count)
	}
	return rec
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
