package store

import (
	"context"
	"time"
)

// Recorder persists metric snapshots. *Store implements it; NoopRecorder is
// used when no database is configured.
type Recorder interface {
	RecordSnapshot(ctx context.Context, source string, metrics map[string]float64, at time.Time) error
	History(ctx context.Context, source, metric string, since time.Time) ([]MetricPoint, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Recorder = (*Store)(nil)

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) RecordSnapshot(context.Context, string, map[string]float64, time.Time) error {
	return nil
}

func (NoopRecorder) History(context.Context, string, string, time.Time) ([]MetricPoint, error) {
	return nil, nil
}

func (NoopRecorder) Ping(context.Context) error { return nil }

func (NoopRecorder) Close() {}
