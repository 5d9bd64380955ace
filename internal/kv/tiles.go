package kv

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/render"
)

const (
	tilesKey = "terminal:tiles"
	// applyTimeout bounds one cache write.
	applyTimeout = 2 * time.Second
)

// TileCache persists the last rendered tiles so a restart shows the last
// good values.
type TileCache struct {
	kv KV
}

func NewTileCache(kv KV) *TileCache {
	return &TileCache{kv: kv}
}

// Apply implements render.Target.
func (c *TileCache) Apply(ctx context.Context, t render.Tile) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, applyTimeout)
	defer cancel()
	return c.kv.HSet(ctx, tilesKey, t.Metric, b)
}

// Load returns every cached tile sorted by metric. Undecodable entries are skipped.
func (c *TileCache) Load(ctx context.Context) ([]render.Tile, error) {
	m, err := c.kv.HGetAll(ctx, tilesKey)
	if err != nil {
		return nil, err
	}
	tiles := make([]render.Tile, 0, len(m))
	for _, b := range m {
		var t render.Tile
		if err := json.Unmarshal(b, &t); err != nil {
			continue
		}
		tiles = append(tiles, t)
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Metric < tiles[j].Metric })
	return tiles, nil
}
