package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Metric snapshots ---

// MetricPoint is one recorded metric value.
type MetricPoint struct {
	Source     string    `json:"source"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecordSnapshot stores every metric of one snapshot in a single transaction.
func (s *Store) RecordSnapshot(ctx context.Context, source string, metrics map[string]float64, at time.Time) error {
	if len(metrics) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for name, v := range metrics {
		_, err := tx.Exec(ctx, `
			INSERT INTO metric_snapshots (source, metric, value, recorded_at)
			VALUES ($1, $2, $3, $4)`,
			source, name, v, at)
		if err != nil {
			return fmt.Errorf("insert %s/%s: %w", source, name, err)
		}
	}
	return tx.Commit(ctx)
}

// History returns points for a source metric newer than since, oldest first.
func (s *Store) History(ctx context.Context, source, metric string, since time.Time) ([]MetricPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source, metric, value, recorded_at FROM metric_snapshots
		WHERE source = $1 AND metric = $2 AND recorded_at > $3
		ORDER BY recorded_at`, source, metric, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []MetricPoint
	for rows.Next() {
		var p MetricPoint
		if err := rows.Scan(&p.Source, &p.Metric, &p.Value, &p.RecordedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// CleanupOldSnapshots deletes points older than the given duration.
func (s *Store) CleanupOldSnapshots(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM metric_snapshots WHERE recorded_at < $1`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
