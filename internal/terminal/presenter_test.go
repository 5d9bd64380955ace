package terminal

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/dataset"
	"github.com/web3-frozen/eth-terminal/internal/monitor"
	"github.com/web3-frozen/eth-terminal/internal/render"
)

func newPresenter() (*Presenter, *render.Board, *render.Charts) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	board := render.NewBoard(logger)
	charts := render.NewCharts()
	return New(board, charts, dataset.NewBook(), logger), board, charts
}

func snapshot(source string, m map[string]float64) *monitor.Snapshot {
	return &monitor.Snapshot{Source: source, Metrics: m, FetchedAt: time.Date(2026, 1, 22, 12, 0, 0, 0, time.UTC)}
}

func TestOnSnapshotStakingTiles(t *testing.T) {
	p, board, _ := newPresenter()
	p.OnSnapshot(context.Background(), 1, snapshot("stakingrewards", map[string]float64{
		"staking_ratio":     28.8,
		"staked_tokens":     34_560_000,
		"apy":               2.93,
		"active_validators": 1_050_321,
	}))

	tests := []struct {
		tile, value, change string
	}{
		{"eth-staked", "28.8%", "34.56M ETH"},
		{"eth-staking-apy", "2.93%", "APY"},
		{"eth-validators", "1050.3K", ""},
	}
	for _, tt := range tests {
		got, ok := board.Tile(tt.tile)
		if !ok {
			t.Errorf("%s not rendered", tt.tile)
			continue
		}
		if got.Value != tt.value || got.Change != tt.change {
			t.Errorf("%s = %q / %q, want %q / %q", tt.tile, got.Value, got.Change, tt.value, tt.change)
		}
		if got.Seq != 1 {
			t.Errorf("%s seq = %d, want 1", tt.tile, got.Seq)
		}
	}
}

func TestOnSnapshotSkipsMissingOrNonFinite(t *testing.T) {
	p, board, _ := newPresenter()
	p.OnSnapshot(context.Background(), 1, snapshot("stakingrewards", map[string]float64{
		"staking_ratio": 28.8,
		"apy":           math.NaN(),
	}))
	if _, ok := board.Tile("eth-staked"); ok {
		t.Error("eth-staked rendered without staked_tokens")
	}
	if _, ok := board.Tile("eth-staking-apy"); ok {
		t.Error("eth-staking-apy rendered from NaN")
	}

	p.OnSnapshot(context.Background(), 2, snapshot("coingecko-market", map[string]float64{
		"eth_price":           3120.5,
		"eth_price_change_7d": math.Inf(1),
		"eth_market_cap":      376e9,
	}))
	if _, ok := board.Tile("eth-price"); ok {
		t.Error("eth-price rendered with an infinite change")
	}
	mc, ok := board.Tile("eth-market-cap")
	if !ok {
		t.Fatal("eth-market-cap should render without its optional change")
	}
	if mc.Value != "$376.00B" || mc.Change != "" || mc.Trend != render.TrendNone {
		t.Errorf("eth-market-cap = %+v", mc)
	}
}

func TestOnSnapshotTrend(t *testing.T) {
	p, board, _ := newPresenter()
	p.OnSnapshot(context.Background(), 1, snapshot("defillama", map[string]float64{
		"defi_tvl":           68.4e9,
		"defi_tvl_change_7d": -2.5,
	}))
	got, _ := board.Tile("eth-defi-tvl")
	if got.Value != "$68.40B" || got.Change != "-2.50%" || got.Trend != render.TrendDown {
		t.Errorf("eth-defi-tvl = %+v", got)
	}
}

func TestOnSnapshotKeepsNewestIssuance(t *testing.T) {
	p, board, _ := newPresenter()
	ctx := context.Background()
	p.OnSnapshot(ctx, 5, snapshot("growthepie", map[string]float64{"daa": 500_000}))
	p.OnSnapshot(ctx, 3, snapshot("growthepie", map[string]float64{"daa": 400_000}))

	got, _ := board.Tile("eth-daa")
	if got.Value != "500,000" || got.Seq != 5 {
		t.Errorf("eth-daa = %+v, want the seq 5 value", got)
	}
}

func TestRenderFlows(t *testing.T) {
	p, board, charts := newPresenter()
	p.RenderFlows(context.Background(), 1)

	tests := []struct {
		tile, value, change string
		trend               render.Trend
	}{
		{"total-net-flow", "$5.54B", "Net inflows", render.TrendUp},
		{"week-flow", "$1.26B", "+$1262.10M", render.TrendUp},
		{"month-flow", "$5.54B", "+$5542.80M", render.TrendUp},
		{"ethe-flow", "-$1.40B", "", render.TrendNone},
		{"last-updated", "Jan 22, 2026", "", render.TrendNone},
	}
	for _, tt := range tests {
		got, ok := board.Tile(tt.tile)
		if !ok {
			t.Errorf("%s not rendered", tt.tile)
			continue
		}
		if got.Value != tt.value || got.Change != tt.change || got.Trend != tt.trend {
			t.Errorf("%s = %+v, want %q / %q / %q", tt.tile, got, tt.value, tt.change, tt.trend)
		}
	}

	ch, ok := charts.Get(ChartETFCumulative)
	if !ok {
		t.Fatal("cumulative chart not set")
	}
	if len(ch.Datasets) != 4 {
		t.Fatalf("datasets = %d, want 4", len(ch.Datasets))
	}
	if len(ch.Labels) != 30 || ch.Labels[len(ch.Labels)-1] != "Jan 22" {
		t.Errorf("labels = %v", ch.Labels)
	}
	for _, ds := range ch.Datasets {
		if len(ds.Data) != len(ch.Labels) {
			t.Errorf("%s has %d points, want %d", ds.Label, len(ds.Data), len(ch.Labels))
		}
	}
}

func TestStakingChart(t *testing.T) {
	p, _, charts := newPresenter()
	snap := snapshot("staking-history", map[string]float64{"staked_tokens": 34e6})
	snap.Series = map[string][]monitor.Point{"staked_tokens": {
		{Time: time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC), Value: 33.5e6},
		{Time: time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC), Value: 34e6},
	}}
	p.OnSnapshot(context.Background(), 2, snap)

	ch, ok := charts.Get(ChartETHStaked)
	if !ok {
		t.Fatal("staking chart not set")
	}
	if ch.Labels[0] != "Jan 21" || ch.Datasets[0].Data[1] != 34 {
		t.Errorf("chart = %+v", ch)
	}

	p.OnSnapshot(context.Background(), 1, snap)
	if ch, _ := charts.Get(ChartETHStaked); ch.Seq != 2 {
		t.Errorf("chart seq = %d, older issuance replaced it", ch.Seq)
	}
}

// flowTableSource returns a slow table dated Jan 20 on its first fetch and a
// fast table dated Jan 22 on every later one.
type flowTableSource struct {
	calls   atomic.Int32
	started chan struct{}
}

func (s *flowTableSource) Name() string { return "etf-flows" }
func (s *flowTableSource) URL() string  { return "https://example.com/flows" }

func (s *flowTableSource) FetchSnapshot(ctx context.Context) (*monitor.Snapshot, error) {
	day := time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC)
	if s.calls.Add(1) == 1 {
		close(s.started)
		time.Sleep(300 * time.Millisecond)
		day = time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	}
	return &monitor.Snapshot{
		Metrics:   map[string]float64{"etf_days": 1},
		Payload:   []dataset.FlowRecord{{Date: day, Flows: map[string]float64{"ETHA": 10}}},
		FetchedAt: time.Now(),
	}, nil
}

func TestOverlappingFlowIssuancesKeepNewestTable(t *testing.T) {
	p, board, _ := newPresenter()
	var wg sync.WaitGroup
	wg.Add(2)
	onSnap := func(ctx context.Context, seq uint64, snap *monitor.Snapshot) {
		defer wg.Done()
		p.OnSnapshot(ctx, seq, snap)
	}

	src := &flowTableSource{started: make(chan struct{})}
	e := monitor.NewEngine(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), onSnap, &monitor.Options{Workers: 2})
	e.Register(src, monitor.Schedule{Disabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	first, err := e.Trigger("etf-flows")
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	<-src.started
	second, err := e.Trigger("etf-flows")
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if second <= first {
		t.Fatalf("seq %d not after %d", second, first)
	}
	wg.Wait()

	records := p.book.Records()
	if len(records) != 1 || records[0].Date.Format("2006-01-02") != "2026-01-22" {
		t.Errorf("book = %+v, want the Jan 22 table from seq %d", records, second)
	}
	got, _ := board.Tile("last-updated")
	if got.Value != "Jan 22, 2026" || got.Seq != second {
		t.Errorf("last-updated = %+v", got)
	}
}

func TestFlowSnapshotWithoutTableKeepsBook(t *testing.T) {
	p, _, _ := newPresenter()
	before := len(p.book.Records())
	p.OnSnapshot(context.Background(), 1, snapshot("etf-flows", map[string]float64{"etf_days": 0}))
	if got := len(p.book.Records()); got != before {
		t.Errorf("book has %d records, want %d", got, before)
	}
}
