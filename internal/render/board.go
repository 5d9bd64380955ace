package render

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/web3-frozen/eth-terminal/internal/metrics"
)

// Target receives every tile update the Board accepts.
type Target interface {
	Apply(ctx context.Context, t Tile) error
}

// Board is the single owner of the current tile values. It tracks the
// sequence number of the last update applied to each tile and discards
// updates issued earlier, so a slow response cannot overwrite a newer one.
type Board struct {
	logger *slog.Logger

	mu      sync.Mutex
	tiles   map[string]Tile
	last    map[string]uint64
	targets []Target

	// applyMu serializes fan-out to targets. It is never held with mu held,
	// so readers do not wait on a slow target.
	applyMu sync.Mutex
}

func NewBoard(logger *slog.Logger, targets ...Target) *Board {
	return &Board{
		logger:  logger,
		tiles:   make(map[string]Tile),
		last:    make(map[string]uint64),
		targets: targets,
	}
}

// AddTarget registers another render target. Existing tiles are not replayed.
func (b *Board) AddTarget(t Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targets = append(b.targets, t)
}

// Update applies t to every target unless a later-issued update for the
// same tile was already applied. It reports whether t was accepted.
func (b *Board) Update(ctx context.Context, t Tile) bool {
	b.mu.Lock()
	if last, ok := b.last[t.Metric]; ok && t.Seq < last {
		b.mu.Unlock()
		metrics.TilesStale.WithLabelValues(t.Metric).Inc()
		b.logger.Warn("stale tile discarded", "metric", t.Metric, "seq", t.Seq, "last_seq", last)
		return false
	}
	b.last[t.Metric] = t.Seq
	b.tiles[t.Metric] = t
	b.mu.Unlock()

	b.fanOut(ctx, t, "apply tile failed")
	metrics.TilesApplied.WithLabelValues(t.Metric).Inc()
	return true
}

// Restore seeds tiles saved by a previous process. Restored tiles reach the
// targets but do not advance sequence numbers, so any live update wins.
func (b *Board) Restore(ctx context.Context, tiles []Tile) {
	var seeded []Tile
	b.mu.Lock()
	for _, t := range tiles {
		if _, ok := b.last[t.Metric]; ok {
			continue
		}
		if _, ok := b.tiles[t.Metric]; ok {
			continue
		}
		t.Seq = 0
		b.tiles[t.Metric] = t
		seeded = append(seeded, t)
	}
	b.mu.Unlock()

	for _, t := range seeded {
		b.fanOut(ctx, t, "restore tile failed")
	}
}

// fanOut hands t to every target unless another update replaced it while
// waiting for an earlier fan-out to finish; that update fans out itself.
func (b *Board) fanOut(ctx context.Context, t Tile, failMsg string) {
	b.applyMu.Lock()
	defer b.applyMu.Unlock()

	b.mu.Lock()
	current, ok := b.tiles[t.Metric]
	targets := make([]Target, len(b.targets))
	copy(targets, b.targets)
	b.mu.Unlock()
	if !ok || current != t {
		return
	}

	for _, target := range targets {
		if err := target.Apply(ctx, t); err != nil {
			b.logger.Error(failMsg, "metric", t.Metric, "error", err)
		}
	}
}

// Tiles returns the current tiles sorted by metric name.
func (b *Board) Tiles() []Tile {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Tile, 0, len(b.tiles))
	for _, t := range b.tiles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}

// Tile returns the current value of one tile.
func (b *Board) Tile(metric string) (Tile, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tiles[metric]
	return t, ok
}
