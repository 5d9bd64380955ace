// Package terminal turns source snapshots and the ETF flow book into the
// tiles and charts of the terminal page.
package terminal

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/aggregate"
	"github.com/web3-frozen/eth-terminal/internal/dataset"
	"github.com/web3-frozen/eth-terminal/internal/format"
	"github.com/web3-frozen/eth-terminal/internal/metrics"
	"github.com/web3-frozen/eth-terminal/internal/monitor"
	"github.com/web3-frozen/eth-terminal/internal/render"
)

// Chart names.
const (
	ChartETFCumulative = "etf-cumulative"
	ChartETHStaked     = "eth-staked"
)

// tileMapping maps snapshot metrics onto one tile. The value metric is always
// required; the change metric is required unless changeOptional is set.
type tileMapping struct {
	tile           string
	value          string
	formatValue    func(float64) string
	change         string
	formatChange   func(float64) string
	changeOptional bool
	trend          bool
	label          string
}

func percent(dp int) func(float64) string {
	return func(v float64) string { return format.FormatPercent(v, dp) }
}

func millionsETH(v float64) string { return format.FormatMillions(v, "ETH") }

var sourceTiles = map[string][]tileMapping{
	"stakingrewards": {
		{tile: "eth-staked", value: "staking_ratio", formatValue: percent(1), change: "staked_tokens", formatChange: millionsETH},
		{tile: "eth-staking-apy", value: "apy", formatValue: percent(2), label: "APY"},
		{tile: "eth-validators", value: "active_validators", formatValue: format.FormatThousands},
	},
	"coingecko-market": {
		{tile: "eth-price", value: "eth_price", formatValue: format.FormatPrice, change: "eth_price_change_7d", formatChange: format.FormatChange, changeOptional: true, trend: true},
		{tile: "eth-market-cap", value: "eth_market_cap", formatValue: format.FormatScaled, change: "eth_market_cap_change_7d", formatChange: format.FormatChange, changeOptional: true, trend: true},
	},
	"coingecko-categories": {
		{tile: "rwa-market-cap", value: "category_market_cap", formatValue: format.FormatScaled, change: "category_market_cap_change_24h", formatChange: format.FormatChange, changeOptional: true, trend: true},
	},
	"defillama": {
		{tile: "eth-defi-tvl", value: "defi_tvl", formatValue: format.FormatScaled, change: "defi_tvl_change_7d", formatChange: format.FormatChange, changeOptional: true, trend: true},
	},
	"growthepie": {
		{tile: "eth-daa", value: "daa", formatValue: format.FormatCount, change: "daa_change_7d", formatChange: format.FormatChange, changeOptional: true, trend: true},
		{tile: "eth-txcount", value: "txcount", formatValue: format.FormatCount, change: "txcount_change_7d", formatChange: format.FormatChange, changeOptional: true, trend: true},
		{tile: "eth-fees", value: "fees_paid_usd", formatValue: format.FormatScaled, change: "fees_paid_usd_change_7d", formatChange: format.FormatChange, changeOptional: true, trend: true},
	},
}

// Presenter renders snapshots onto the board and charts it was given.
type Presenter struct {
	board  *render.Board
	charts *render.Charts
	book   *dataset.Book
	logger *slog.Logger
}

func New(board *render.Board, charts *render.Charts, book *dataset.Book, logger *slog.Logger) *Presenter {
	return &Presenter{board: board, charts: charts, book: book, logger: logger}
}

// OnSnapshot is the monitor.SnapshotFunc of the terminal.
func (p *Presenter) OnSnapshot(ctx context.Context, seq uint64, snap *monitor.Snapshot) {
	switch snap.Source {
	case "staking-history":
		p.renderStakingChart(seq, snap)
	case "etf-flows":
		p.applyFlows(ctx, seq, snap)
	default:
		mappings, ok := sourceTiles[snap.Source]
		if !ok {
			p.logger.Debug("no tiles for source", "source", snap.Source)
			return
		}
		for _, m := range mappings {
			if t, ok := buildTile(m, snap, seq); ok {
				p.board.Update(ctx, t)
			} else {
				metrics.TilesSkipped.WithLabelValues(m.tile).Inc()
				p.logger.Warn("tile skipped, metric missing or not finite", "tile", m.tile, "source", snap.Source)
			}
		}
	}
}

func buildTile(m tileMapping, snap *monitor.Snapshot, seq uint64) (render.Tile, bool) {
	v, ok := snap.Get(m.value)
	if !ok {
		return render.Tile{}, false
	}
	t := render.Tile{
		Metric:    m.tile,
		Value:     m.formatValue(v),
		Change:    m.label,
		Seq:       seq,
		UpdatedAt: snap.FetchedAt,
	}
	if m.change == "" {
		return t, true
	}
	c, ok := snap.Get(m.change)
	if !ok {
		_, present := snap.Metrics[m.change]
		if present || !m.changeOptional {
			return render.Tile{}, false
		}
		return t, true
	}
	t.Change = m.formatChange(c)
	if m.trend {
		t.Trend = render.TrendOf(c)
	}
	return t, true
}

func (p *Presenter) renderStakingChart(seq uint64, snap *monitor.Snapshot) {
	points := snap.Series["staked_tokens"]
	if len(points) == 0 {
		return
	}
	ch := render.Chart{
		Name:      ChartETHStaked,
		Labels:    make([]string, len(points)),
		Datasets:  []render.Dataset{{Label: "ETH Staked (M)", Data: make([]float64, len(points))}},
		Seq:       seq,
		UpdatedAt: snap.FetchedAt,
	}
	for i, pt := range points {
		ch.Labels[i] = format.FormatDay(pt.Time)
		ch.Datasets[0].Data[i] = pt.Value / 1_000_000
	}
	p.charts.Set(ch)
}

// applyFlows swaps a scraped flow table into the book and re-renders. A table
// from an issuance older than the one the book holds is dropped.
func (p *Presenter) applyFlows(ctx context.Context, seq uint64, snap *monitor.Snapshot) {
	records, ok := snap.Payload.([]dataset.FlowRecord)
	if !ok {
		p.logger.Warn("flow snapshot has no table", "seq", seq)
		return
	}
	applied, err := p.book.Replace(seq, records, snap.FetchedAt)
	if err != nil {
		p.logger.Warn("replace flow book failed", "seq", seq, "error", err)
		return
	}
	if !applied {
		p.logger.Warn("stale flow table discarded", "seq", seq)
		return
	}
	p.RenderFlows(ctx, seq)
}

// RenderFlows renders the ETF summary tiles and the cumulative flow chart
// from the current flow book.
func (p *Presenter) RenderFlows(ctx context.Context, seq uint64) {
	records := p.book.Records()
	s := aggregate.Summarize(records, p.book.Tickers())
	now := time.Now()

	netLabel := "Net inflows"
	if s.TotalNet < 0 {
		netLabel = "Net outflows"
	}
	tiles := []struct {
		t      render.Tile
		values []float64
	}{
		{render.Tile{Metric: "total-net-flow", Value: format.FormatLarge(s.TotalNet), Change: netLabel, Trend: render.TrendOf(s.TotalNet)}, []float64{s.TotalNet}},
		{render.Tile{Metric: "week-flow", Value: format.FormatLarge(s.Week), Change: format.FormatSigned(s.Week), Trend: render.TrendOf(s.Week)}, []float64{s.Week}},
		{render.Tile{Metric: "month-flow", Value: format.FormatLarge(s.Month), Change: format.FormatSigned(s.Month), Trend: render.TrendOf(s.Month)}, []float64{s.Month}},
		{render.Tile{Metric: "etha-flow", Value: format.FormatLarge(s.Cumulative["ETHA"])}, []float64{s.Cumulative["ETHA"]}},
		{render.Tile{Metric: "feth-flow", Value: format.FormatLarge(s.Cumulative["FETH"])}, []float64{s.Cumulative["FETH"]}},
		{render.Tile{Metric: "ethe-flow", Value: format.FormatLarge(s.Cumulative["ETHE"])}, []float64{s.Cumulative["ETHE"]}},
	}
	for _, e := range tiles {
		if !finite(e.values...) {
			metrics.TilesSkipped.WithLabelValues(e.t.Metric).Inc()
			continue
		}
		e.t.Seq, e.t.UpdatedAt = seq, now
		p.board.Update(ctx, e.t)
	}
	if !s.LastUpdated.IsZero() {
		p.board.Update(ctx, render.Tile{Metric: "last-updated", Value: format.FormatDate(s.LastUpdated), Seq: seq, UpdatedAt: now})
	}

	series := aggregate.CumulativeSeries(records, aggregate.DefaultGroups)
	ch := render.Chart{Name: ChartETFCumulative, Labels: make([]string, len(series.Dates)), Seq: seq, UpdatedAt: now}
	for i, d := range series.Dates {
		ch.Labels[i] = format.FormatDay(d)
	}
	for _, g := range aggregate.DefaultGroups {
		ch.Datasets = append(ch.Datasets, render.Dataset{Label: g.Label, Data: series.Lines[g.Label]})
	}
	p.charts.Set(ch)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
