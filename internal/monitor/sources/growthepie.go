package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/monitor"
)

const growthepieAPI = "https://api.growthepie.xyz"

// growthepieMetrics are the fundamentals tracked for Ethereum mainnet.
var growthepieMetrics = []string{"daa", "txcount", "fees_paid_usd"}

type fundamentalRow struct {
	MetricKey string   `json:"metric_key"`
	OriginKey string   `json:"origin_key"`
	Date      string   `json:"date"`
	Value     *float64 `json:"value"`
}

// Growthepie reads daily active addresses, transaction count and fees for
// Ethereum mainnet.
type Growthepie struct {
	client  *http.Client
	baseURL string
	origin  string
}

func NewGrowthepie() *Growthepie {
	return &Growthepie{
		client:  newClient(),
		baseURL: growthepieAPI,
		origin:  "ethereum",
	}
}

func (g *Growthepie) Name() string { return "growthepie" }
func (g *Growthepie) URL() string  { return "https://www.growthepie.xyz/chains/ethereum" }

func (g *Growthepie) FetchSnapshot(ctx context.Context) (*monitor.Snapshot, error) {
	var rows []fundamentalRow
	if err := getJSON(ctx, g.client, g.baseURL+"/v1/fundamentals.json", nil, &rows); err != nil {
		return nil, fmt.Errorf("fetch fundamentals: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("fundamentals are empty")
	}

	wanted := make(map[string]bool, len(growthepieMetrics))
	for _, k := range growthepieMetrics {
		wanted[k] = true
	}
	series := make(map[string][]rawPoint)
	for _, r := range rows {
		if r.OriginKey != g.origin || !wanted[r.MetricKey] {
			continue
		}
		t, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			continue
		}
		series[r.MetricKey] = append(series[r.MetricKey], rawPoint{Time: t, Value: r.Value})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no %s fundamentals in response", g.origin)
	}

	m := make(map[string]float64)
	ds := make(map[string]string)
	for _, k := range growthepieMetrics {
		points, err := cleanSeries(series[k])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		if putSeries(m, points, k, "_change_7d", week) {
			ds[k] = "growthepie"
		}
	}
	return &monitor.Snapshot{
		Source:      g.Name(),
		Metrics:     m,
		DataSources: ds,
		FetchedAt:   time.Now(),
	}, nil
}
