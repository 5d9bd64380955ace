// Package collector batches snapshot writes to the history store and prunes
// old rows.
package collector

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/store"
)

const (
	flushInterval = 5 * time.Second
	flushTimeout  = 10 * time.Second
	cleanupAge    = 30 * 24 * time.Hour
	cleanupEvery  = 1 * time.Hour
	maxBuffered   = 1000
)

// Cleaner is implemented by backends that can prune old snapshots.
type Cleaner interface {
	CleanupOldSnapshots(ctx context.Context, maxAge time.Duration) (int64, error)
}

type record struct {
	source  string
	metrics map[string]float64
	at      time.Time
}

// Collector is a store.Recorder that buffers snapshots in memory and writes
// them to the backend on a timer. Reads go straight to the backend.
type Collector struct {
	backend store.Recorder
	logger  *slog.Logger

	FlushInterval time.Duration
	CleanupEvery  time.Duration
	CleanupAge    time.Duration

	mu     sync.Mutex
	buffer []record
}

var _ store.Recorder = (*Collector)(nil)

func New(backend store.Recorder, logger *slog.Logger) *Collector {
	return &Collector{
		backend:       backend,
		logger:        logger,
		FlushInterval: flushInterval,
		CleanupEvery:  cleanupEvery,
		CleanupAge:    cleanupAge,
		buffer:        make([]record, 0, 64),
	}
}

// Run flushes and prunes until ctx is cancelled, then flushes once more.
func (c *Collector) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.cleanupLoop(ctx)
	}()

	ticker := time.NewTicker(c.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			fctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			c.Flush(fctx)
			cancel()
			return
		case <-ticker.C:
			c.Flush(ctx)
		}
	}
}

// RecordSnapshot queues a snapshot. When the buffer is full the oldest
// entry is dropped.
func (c *Collector) RecordSnapshot(_ context.Context, source string, metrics map[string]float64, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buffer) >= maxBuffered {
		c.logger.Warn("snapshot buffer full, dropping oldest", "source", c.buffer[0].source)
		c.buffer = c.buffer[1:]
	}
	c.buffer = append(c.buffer, record{source: source, metrics: maps.Clone(metrics), at: at})
	return nil
}

// Pending returns the number of buffered snapshots.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Flush writes every buffered snapshot. Snapshots that fail to write stay
// buffered for the next flush.
func (c *Collector) Flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	records := c.buffer
	c.buffer = make([]record, 0, 64)
	c.mu.Unlock()

	for i, r := range records {
		if err := c.backend.RecordSnapshot(ctx, r.source, r.metrics, r.at); err != nil {
			c.logger.Error("flush snapshots failed", "count", len(records)-i, "error", err)
			c.mu.Lock()
			c.buffer = append(records[i:], c.buffer...)
			if over := len(c.buffer) - maxBuffered; over > 0 {
				c.buffer = c.buffer[over:]
			}
			c.mu.Unlock()
			return
		}
	}
	c.logger.Debug("flushed snapshots", "count", len(records))
}

func (c *Collector) History(ctx context.Context, source, metric string, since time.Time) ([]store.MetricPoint, error) {
	return c.backend.History(ctx, source, metric, since)
}

func (c *Collector) Ping(ctx context.Context) error { return c.backend.Ping(ctx) }

func (c *Collector) Close() { c.backend.Close() }

func (c *Collector) cleanupLoop(ctx context.Context) {
	cl, ok := c.backend.(Cleaner)
	if !ok {
		return
	}
	ticker := time.NewTicker(c.CleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := cl.CleanupOldSnapshots(ctx, c.CleanupAge)
			if err != nil {
				c.logger.Error("cleanup old snapshots failed", "error", err)
			} else if deleted > 0 {
				c.logger.Info("cleaned up old snapshots", "deleted", deleted)
			}
		}
	}
}
