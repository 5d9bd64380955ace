package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/monitor"
)

const defiLlamaAPI = "https://api.llama.fi"

type chainTVLPoint struct {
	Date int64    `json:"date"`
	TVL  *float64 `json:"tvl"`
}

// DefiLlama reads the historical TVL of the Ethereum chain.
type DefiLlama struct {
	client  *http.Client
	baseURL string
}

func NewDefiLlama() *DefiLlama {
	return &DefiLlama{
		client:  newClient(),
		baseURL: defiLlamaAPI,
	}
}

func (d *DefiLlama) Name() string { return "defillama" }
func (d *DefiLlama) URL() string  { return "https://defillama.com/chain/Ethereum" }

func (d *DefiLlama) FetchSnapshot(ctx context.Context) (*monitor.Snapshot, error) {
	var raw []chainTVLPoint
	if err := getJSON(ctx, d.client, d.baseURL+"/v2/historicalChainTvl/Ethereum", nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch chain tvl: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("chain tvl history is empty")
	}

	samples := make([]rawPoint, len(raw))
	for i, p := range raw {
		samples[i] = rawPoint{Time: time.Unix(p.Date, 0).UTC(), Value: p.TVL}
	}
	points, err := cleanSeries(samples)
	if err != nil {
		return nil, fmt.Errorf("chain tvl: %w", err)
	}

	m := make(map[string]float64)
	putSeries(m, points, "defi_tvl", "_change_7d", week)
	return &monitor.Snapshot{
		Source:      d.Name(),
		Metrics:     m,
		DataSources: map[string]string{"defi_tvl": "DefiLlama"},
		FetchedAt:   time.Now(),
	}, nil
}
